// Package due lists the cards a student should review now.
package due

import (
	"context"
	"iter"
	"time"

	"github.com/abhisek/mnemo/internal/reviewlog"
	"github.com/abhisek/mnemo/internal/spacedrep"
	"github.com/abhisek/mnemo/internal/store"
)

// DefaultPageSize is how many rows are fetched per round trip.
const DefaultPageSize = 50

// Source reads one keyset page of due cards.
type Source interface {
	ListDuePage(ctx context.Context, studentID string, now time.Time, after *store.DueCursor, limit int) ([]store.DueRow, error)
}

// Item is one due card with the state needed to order and display it.
type Item struct {
	CardID         string              `json:"cardId"`
	Kind           reviewlog.ItemKind  `json:"itemKind"`
	Front          string              `json:"front"`
	Back           string              `json:"back"`
	UnitID         string              `json:"unitId,omitempty"`
	DueAt          time.Time           `json:"dueAt"`
	Lifecycle      spacedrep.Lifecycle `json:"lifecycleState"`
	Stability      float64             `json:"stability"`
	Difficulty     float64             `json:"difficulty"`
	Reps           int                 `json:"repetitionCount"`
	Lapses         int                 `json:"lapseCount"`
	OverdueDays    float64             `json:"overdueDays"`
	Retrievability float64             `json:"retrievability"`
}

// Queue serves due lists. It never writes.
type Queue struct {
	src      Source
	pageSize int
}

// Option configures a Queue.
type Option func(*Queue)

// WithPageSize sets the number of rows fetched per page.
func WithPageSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.pageSize = n
		}
	}
}

// NewQueue returns a Queue reading from src.
func NewQueue(src Source, opts ...Option) *Queue {
	q := &Queue{src: src, pageSize: DefaultPageSize}
	for _, o := range opts {
		o(q)
	}
	return q
}

// ListDue yields the student's cards with dueAt <= now, oldest first, ties
// broken by lifecycle priority (Relearning, Learning, Review, New) and then
// card id. Pages are fetched only as the caller ranges; at most limit items
// are yielded. Each range starts again from the beginning. A fetch error
// is yielded once and ends the sequence.
func (q *Queue) ListDue(ctx context.Context, studentID string, now time.Time, limit int) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		var (
			cursor *store.DueCursor
			served int
		)
		for served < limit {
			want := min(q.pageSize, limit-served)
			rows, err := q.src.ListDuePage(ctx, studentID, now, cursor, want)
			if err != nil {
				yield(Item{}, err)
				return
			}
			for i := range rows {
				if !yield(toItem(&rows[i], now), nil) {
					return
				}
				served++
			}
			// A short page is the last one.
			if len(rows) < want {
				return
			}
			c := rows[len(rows)-1].Cursor()
			cursor = &c
		}
	}
}

// Collect drains seq into a slice, stopping at the first error.
func Collect(seq iter.Seq2[Item, error]) ([]Item, error) {
	var out []Item
	for it, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, it)
	}
	return out, nil
}

func toItem(r *store.DueRow, now time.Time) Item {
	st := r.State
	return Item{
		CardID:         r.CardID,
		Kind:           r.Kind,
		Front:          r.Front,
		Back:           r.Back,
		UnitID:         r.UnitID,
		DueAt:          st.DueAt,
		Lifecycle:      st.Lifecycle,
		Stability:      st.Stability,
		Difficulty:     st.Difficulty,
		Reps:           st.Reps,
		Lapses:         st.Lapses,
		OverdueDays:    st.OverdueDays(now),
		Retrievability: st.Retrievability(now),
	}
}
