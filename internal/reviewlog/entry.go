// Package reviewlog builds the immutable audit record written for every review.
package reviewlog

import (
	"time"

	"github.com/abhisek/mnemo/internal/mastery"
	"github.com/abhisek/mnemo/internal/spacedrep"
)

// ItemKind distinguishes flashcards from quiz questions.
type ItemKind string

const (
	KindFlashcard ItemKind = "flashcard"
	KindQuiz      ItemKind = "quiz"
)

// Valid reports whether k is a known item kind.
func (k ItemKind) Valid() bool {
	return k == KindFlashcard || k == KindQuiz
}

// Entry is one review in the append-only audit trail. It captures the state
// before the review and the interval the review produced; it is never
// modified after it is built.
type Entry struct {
	ID        string
	Sequence  int64
	StudentID string
	ItemID    string
	SessionID string
	Kind      ItemKind
	Grade     spacedrep.Grade
	Correct   bool

	LifecycleBefore spacedrep.Lifecycle
	PrevDueAt       time.Time
	PrevStability   float64
	PrevDifficulty  float64
	ElapsedDays     float64
	ScheduledDays   int
	ReviewedAt      time.Time
	ResponseTimeMs  *int64

	// Set only when the item is linked to a knowledge unit.
	UnitID      string
	PKnowBefore *float64
	PKnowAfter  *float64
	ColorBefore mastery.Color
	ColorAfter  mastery.Color
}

// Key returns the namespaced storage key of the entry.
func (e *Entry) Key() string {
	return Key(e.ID)
}

// Key returns the storage key for a review id.
func Key(reviewID string) string {
	return "reviewlog:" + reviewID
}

// Review converts the entry into the input the scheduler replays.
func (e *Entry) Review() spacedrep.ReviewEvent {
	return spacedrep.ReviewEvent{Grade: e.Grade, At: e.ReviewedAt}
}

// HasMastery reports whether the review also updated a mastery estimate.
func (e *Entry) HasMastery() bool {
	return e.UnitID != ""
}

// Reviews extracts the replay input from entries already ordered by sequence.
func Reviews(entries []Entry) []spacedrep.ReviewEvent {
	out := make([]spacedrep.ReviewEvent, len(entries))
	for i := range entries {
		out[i] = entries[i].Review()
	}
	return out
}
