package reviewlog

import (
	"github.com/abhisek/mnemo/internal/mastery"
	"github.com/abhisek/mnemo/internal/spacedrep"
)

// Input carries everything a log entry is derived from.
type Input struct {
	ID             string
	StudentID      string
	ItemID         string
	SessionID      string
	Kind           ItemKind
	Grade          spacedrep.Grade
	ResponseTimeMs *int64

	MemoryBefore spacedrep.MemoryState
	MemoryAfter  spacedrep.MemoryState

	// MasteryBefore and MasteryAfter are nil for items without a unit.
	MasteryBefore *mastery.UnitMastery
	MasteryAfter  *mastery.UnitMastery
}

// Build returns the audit entry for one review. The sequence number is left
// zero; the store assigns it on append.
func Build(in Input) Entry {
	e := Entry{
		ID:              in.ID,
		StudentID:       in.StudentID,
		ItemID:          in.ItemID,
		SessionID:       in.SessionID,
		Kind:            in.Kind,
		Grade:           in.Grade,
		Correct:         in.Grade.Passed(),
		LifecycleBefore: in.MemoryBefore.Lifecycle,
		PrevDueAt:       in.MemoryBefore.DueAt,
		PrevStability:   in.MemoryBefore.Stability,
		PrevDifficulty:  in.MemoryBefore.Difficulty,
		ElapsedDays:     in.MemoryAfter.ElapsedDays,
		ScheduledDays:   in.MemoryAfter.ScheduledDays,
		ResponseTimeMs:  copyInt64(in.ResponseTimeMs),
	}
	if in.MemoryAfter.LastReviewAt != nil {
		e.ReviewedAt = *in.MemoryAfter.LastReviewAt
	}

	if in.MasteryBefore != nil && in.MasteryAfter != nil {
		before, after := in.MasteryBefore.PKnow, in.MasteryAfter.PKnow
		e.UnitID = in.MasteryAfter.UnitID
		e.PKnowBefore = &before
		e.PKnowAfter = &after
		e.ColorBefore = in.MasteryBefore.Color
		e.ColorAfter = in.MasteryAfter.Color
	}
	return e
}

func copyInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
