package spacedrep

import "time"

// ReviewEvent is a single graded review as recorded in the audit trail.
type ReviewEvent struct {
	Grade Grade
	At    time.Time
}

// Replay rebuilds a card's memory state by applying reviews, in order,
// starting from the New state. With the same parameters it reproduces the
// state produced by the original sequence of Next calls.
func (s *Scheduler) Replay(reviews []ReviewEvent) MemoryState {
	if len(reviews) == 0 {
		return MemoryState{Lifecycle: New}
	}
	st := NewMemoryState(reviews[0].At)
	for _, r := range reviews {
		st = s.Next(st, r.Grade, r.At)
	}
	return st
}
