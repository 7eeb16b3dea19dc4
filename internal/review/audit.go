package review

import (
	"context"
	"errors"
	"time"

	"github.com/abhisek/mnemo/internal/reviewlog"
	"github.com/abhisek/mnemo/internal/spacedrep"
	"github.com/abhisek/mnemo/internal/store"
)

// AuditReport compares a card's stored memory state with the state
// rebuilt from its review log.
type AuditReport struct {
	StudentID string                 `json:"studentId"`
	CardID    string                 `json:"cardId"`
	Reviews   int                    `json:"reviews"`
	Stored    *spacedrep.MemoryState `json:"stored,omitempty"`
	Replayed  spacedrep.MemoryState  `json:"replayed"`
	Match     bool                   `json:"match"`
}

// Audit replays the card's review log from the New state and reports
// whether the result equals the stored state.
func (p *Pipeline) Audit(ctx context.Context, studentID, cardID string) (*AuditReport, error) {
	entries, err := p.repo.ListCardLogs(ctx, studentID, cardID)
	if err != nil {
		return nil, classify(err)
	}
	rep := &AuditReport{
		StudentID: studentID,
		CardID:    cardID,
		Reviews:   len(entries),
		Replayed:  p.sched.Replay(reviewlog.Reviews(entries)),
	}

	rec, err := p.repo.GetMemory(ctx, studentID, cardID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		rep.Match = len(entries) == 0
	case err != nil:
		return nil, classify(err)
	default:
		rep.Stored = &rec.State
		rep.Match = SameMemory(rec.State, rep.Replayed)
	}
	return rep, nil
}

// SameMemory reports whether two memory states are identical, comparing
// timestamps as instants.
func SameMemory(a, b spacedrep.MemoryState) bool {
	return a.DueAt.Equal(b.DueAt) &&
		a.Stability == b.Stability &&
		a.Difficulty == b.Difficulty &&
		a.ElapsedDays == b.ElapsedDays &&
		a.ScheduledDays == b.ScheduledDays &&
		a.Reps == b.Reps &&
		a.Lapses == b.Lapses &&
		a.Lifecycle == b.Lifecycle &&
		sameInstant(a.LastReviewAt, b.LastReviewAt)
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
