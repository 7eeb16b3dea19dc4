package spacedrep

import (
	"encoding"
	"fmt"
	"time"
)

// Lifecycle is the discrete phase of a card's memory.
type Lifecycle int

const (
	New        Lifecycle = 0
	Learning   Lifecycle = 1
	Review     Lifecycle = 2
	Relearning Lifecycle = 3
)

var lifecycleNames = [...]string{New: "new", Learning: "learning", Review: "review", Relearning: "relearning"}

var (
	_ encoding.TextMarshaler   = Lifecycle(0)
	_ encoding.TextUnmarshaler = (*Lifecycle)(nil)
)

// Valid reports whether l is one of the four lifecycle states.
func (l Lifecycle) Valid() bool {
	return l >= New && l <= Relearning
}

func (l Lifecycle) String() string {
	if l.Valid() {
		return lifecycleNames[l]
	}
	return fmt.Sprintf("Lifecycle(%d)", int(l))
}

// Priority ranks lifecycle states for due ordering; lower surfaces first.
// Relearning cards are the most at risk, new cards the least.
func (l Lifecycle) Priority() int {
	switch l {
	case Relearning:
		return 0
	case Learning:
		return 1
	case Review:
		return 2
	default:
		return 3
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l Lifecycle) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("spacedrep: invalid lifecycle: %d", int(l))
	}
	return []byte(lifecycleNames[l]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Lifecycle) UnmarshalText(text []byte) error {
	for i, name := range lifecycleNames {
		if name == string(text) {
			*l = Lifecycle(i)
			return nil
		}
	}
	return fmt.Errorf("spacedrep: invalid lifecycle: %q", text)
}

// Grade is the learner's assessment of recall quality.
type Grade int

const (
	Again Grade = 1
	Hard  Grade = 2
	Good  Grade = 3
	Easy  Grade = 4
)

var gradeNames = [...]string{Again: "again", Hard: "hard", Good: "good", Easy: "easy"}

// Valid reports whether g is between Again and Easy.
func (g Grade) Valid() bool {
	return g >= Again && g <= Easy
}

// Passed reports whether the grade counts as a successful recall.
func (g Grade) Passed() bool {
	return g >= Hard
}

func (g Grade) String() string {
	if g.Valid() {
		return gradeNames[g]
	}
	return fmt.Sprintf("Grade(%d)", int(g))
}

// MemoryState holds the scheduling state for one student's card.
type MemoryState struct {
	DueAt         time.Time  `json:"dueAt"`
	Stability     float64    `json:"stability"`
	Difficulty    float64    `json:"difficulty"`
	ElapsedDays   float64    `json:"elapsedDays"`
	ScheduledDays int        `json:"scheduledDays"`
	Reps          int        `json:"repetitionCount"`
	Lapses        int        `json:"lapseCount"`
	Lifecycle     Lifecycle  `json:"lifecycleState"`
	LastReviewAt  *time.Time `json:"lastReviewAt,omitempty"`
}

// NewMemoryState returns the state of a card that has never been reviewed.
// It is due at now.
func NewMemoryState(now time.Time) MemoryState {
	return MemoryState{
		DueAt:     now,
		Lifecycle: New,
	}
}

// IsDue returns true if the card is due at now (at or past the due date).
func (ms *MemoryState) IsDue(now time.Time) bool {
	return !now.Before(ms.DueAt)
}

// OverdueDays returns how many days past due the card is. Returns 0 if not yet due.
func (ms *MemoryState) OverdueDays(now time.Time) float64 {
	if now.Before(ms.DueAt) {
		return 0
	}
	return now.Sub(ms.DueAt).Hours() / 24.0
}

// Retrievability returns the predicted recall probability at now.
// Cards that were never reviewed have retrievability 0.
func (ms *MemoryState) Retrievability(now time.Time) float64 {
	if ms.LastReviewAt == nil {
		return 0
	}
	return retrievability(elapsedDays(ms.LastReviewAt, now), ms.Stability)
}

// DaysUntilReview returns the number of days until the next review.
// Returns 0 if already due.
func (ms *MemoryState) DaysUntilReview(now time.Time) int {
	if ms.IsDue(now) {
		return 0
	}
	return int(ms.DueAt.Sub(now).Hours()/24.0) + 1
}
