package review

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/abhisek/mnemo/internal/mastery"
	"github.com/abhisek/mnemo/internal/store"
)

// StartSession opens a review session for the student and returns it.
func (p *Pipeline) StartSession(ctx context.Context, studentID string) (*store.Session, error) {
	if studentID == "" {
		return nil, fmt.Errorf("%w: student id is required", ErrValidation)
	}
	s := &store.Session{ID: p.newID(), StudentID: studentID, StartedAt: p.clock()}
	if err := p.repo.CreateSession(ctx, s); err != nil {
		return nil, classify(err)
	}
	p.log.Info("session started", zap.String("session_id", s.ID), zap.String("student_id", studentID))
	return s, nil
}

// Mastery returns the student's current mastery of a unit. A unit that was
// never practiced reports its seed state; nothing is written.
func (p *Pipeline) Mastery(ctx context.Context, studentID, unitID string) (*mastery.UnitMastery, error) {
	rec, err := p.repo.GetMastery(ctx, studentID, unitID)
	if err == nil {
		return &rec.State, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, classify(err)
	}

	unit, err := p.repo.GetUnit(ctx, unitID)
	if err != nil {
		return nil, classify(err)
	}
	st := p.seed(unit)
	return &st, nil
}
