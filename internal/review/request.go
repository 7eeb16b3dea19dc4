package review

import (
	"fmt"
	"time"

	"github.com/abhisek/mnemo/internal/mastery"
	"github.com/abhisek/mnemo/internal/reviewlog"
	"github.com/abhisek/mnemo/internal/spacedrep"
)

// Request is one graded review submitted by a client.
type Request struct {
	SessionID      string             `json:"sessionId"`
	ItemID         string             `json:"itemId"`
	Kind           reviewlog.ItemKind `json:"itemKind"`
	Grade          spacedrep.Grade    `json:"grade"`
	ResponseTimeMs *int64             `json:"responseTimeMs,omitempty"`

	// ReviewedAt lets offline clients report when the review happened.
	// It may not lie in the future beyond the allowed clock skew.
	ReviewedAt *time.Time `json:"reviewedAt,omitempty"`
}

// MemoryUpdate summarizes the card's new memory state.
type MemoryUpdate struct {
	DueAt           time.Time           `json:"dueAt"`
	Stability       float64             `json:"stability"`
	Difficulty      float64             `json:"difficulty"`
	Lifecycle       spacedrep.Lifecycle `json:"lifecycleState"`
	ScheduledDays   int                 `json:"scheduledDays"`
	RepetitionCount int                 `json:"repetitionCount"`
	LapseCount      int                 `json:"lapseCount"`
}

// MasteryUpdate summarizes the unit's new mastery estimate.
type MasteryUpdate struct {
	UnitID string        `json:"unitId"`
	PKnow  float64       `json:"pKnow"`
	Color  mastery.Color `json:"color"`
	Delta  float64       `json:"delta"`
	Trend  mastery.Trend `json:"trend"`
}

// Response is returned for a committed review.
type Response struct {
	ReviewID      string         `json:"reviewId"`
	StudentID     string         `json:"studentId"`
	Memory        MemoryUpdate   `json:"memoryUpdate"`
	Mastery       *MasteryUpdate `json:"masteryUpdate,omitempty"`
	ColorBefore   mastery.Color  `json:"colorBefore,omitempty"`
	ColorAfter    mastery.Color  `json:"colorAfter,omitempty"`
	ColorImproved *bool          `json:"colorImproved,omitempty"`
}

func memoryUpdate(st spacedrep.MemoryState) MemoryUpdate {
	return MemoryUpdate{
		DueAt:           st.DueAt,
		Stability:       st.Stability,
		Difficulty:      st.Difficulty,
		Lifecycle:       st.Lifecycle,
		ScheduledDays:   st.ScheduledDays,
		RepetitionCount: st.Reps,
		LapseCount:      st.Lapses,
	}
}

func masteryUpdate(st mastery.UnitMastery) *MasteryUpdate {
	return &MasteryUpdate{
		UnitID: st.UnitID,
		PKnow:  st.PKnow,
		Color:  st.Color,
		Delta:  st.Delta,
		Trend:  mastery.TrendOf(st.Delta),
	}
}

// validate checks the request shape against the clock. It never touches
// storage.
func validate(req Request, now time.Time, skew time.Duration) error {
	if !req.Grade.Valid() {
		return fmt.Errorf("%w: got %d", ErrInvalidGrade, int(req.Grade))
	}
	if !req.Kind.Valid() {
		return fmt.Errorf("%w: %q is not flashcard or quiz", ErrInvalidItemKind, req.Kind)
	}
	if req.SessionID == "" {
		return fmt.Errorf("%w: session id is required", ErrValidation)
	}
	if req.ItemID == "" {
		return fmt.Errorf("%w: item id is required", ErrValidation)
	}
	if req.ResponseTimeMs != nil && *req.ResponseTimeMs < 0 {
		return fmt.Errorf("%w: response time must not be negative", ErrValidation)
	}
	if req.ReviewedAt != nil {
		at := *req.ReviewedAt
		if at.Before(time.Unix(0, 0)) {
			return fmt.Errorf("%w: %s is before the epoch", ErrInvalidTimestamp, at.Format(time.RFC3339))
		}
		if at.After(now.Add(skew)) {
			return fmt.Errorf("%w: %s is in the future", ErrInvalidTimestamp, at.Format(time.RFC3339))
		}
	}
	return nil
}
