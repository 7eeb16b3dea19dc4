// Package review is the only writer of memory and mastery state. Every
// graded review flows through Pipeline.HandleReview, which updates both
// models and appends the audit entry in one transaction.
package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/abhisek/mnemo/internal/lock"
	"github.com/abhisek/mnemo/internal/mastery"
	"github.com/abhisek/mnemo/internal/metrics"
	"github.com/abhisek/mnemo/internal/reviewlog"
	"github.com/abhisek/mnemo/internal/spacedrep"
	"github.com/abhisek/mnemo/internal/store"
)

// Pipeline orchestrates review handling. It is safe for concurrent use.
type Pipeline struct {
	repo  Repository
	sched *spacedrep.Scheduler
	model *mastery.Model

	locker   lock.Locker
	now      func() time.Time
	newID    func() string
	log      *zap.Logger
	metrics  *metrics.Metrics
	retryCfg RetryConfig
	skew     time.Duration
	loc      *time.Location
}

// NewPipeline wires the models to storage.
func NewPipeline(repo Repository, sched *spacedrep.Scheduler, model *mastery.Model, opts ...Option) *Pipeline {
	p := &Pipeline{repo: repo, sched: sched, model: model}
	defaults(p)
	for _, o := range opts {
		o(p)
	}
	return p
}

// clock returns the current time truncated to the millisecond precision
// timestamps are stored with, so replaying the log reproduces stored state.
func (p *Pipeline) clock() time.Time {
	return p.now().UTC().Truncate(time.Millisecond)
}

// target is everything a review resolves to before the transaction starts.
type target struct {
	studentID string
	item      *store.Item
	unit      *store.Unit
	at        time.Time

	// clientTime is set when at came from the request rather than the clock.
	clientTime bool
}

func (t *target) keys() []string {
	keys := []string{store.MemoryKey(t.studentID, t.item.ID)}
	if t.unit != nil {
		keys = append(keys, store.MasteryKey(t.studentID, t.unit.ID))
	}
	return keys
}

// HandleReview validates req, then updates the card's memory state and,
// when the item belongs to a unit, the unit's mastery state.
func (p *Pipeline) HandleReview(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := p.handle(ctx, req)
	if err != nil {
		p.metrics.Reject(Reason(err))
		p.log.Warn("review rejected",
			zap.String("session_id", req.SessionID),
			zap.String("item_id", req.ItemID),
			zap.Int("grade", int(req.Grade)),
			zap.String("reason", Reason(err)),
			zap.Error(err),
		)
		return nil, err
	}
	p.metrics.ObserveReview(string(req.Kind), int(req.Grade), time.Since(start))
	return resp, nil
}

func (p *Pipeline) handle(ctx context.Context, req Request) (*Response, error) {
	now := p.clock()
	if err := validate(req, now, p.skew); err != nil {
		return nil, err
	}

	t, err := p.resolve(ctx, req, now)
	if err != nil {
		return nil, err
	}

	keys := t.keys()
	unlock, err := p.locker.Lock(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("acquire %v: %w", keys, err)
	}
	defer unlock()

	var resp *Response
	attempts, err := p.retry(ctx, func() error {
		r, err := p.apply(ctx, req, t)
		resp = r
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, &ConflictError{Keys: keys, Attempts: attempts, Err: err}
		}
		return nil, classify(err)
	}

	fields := []zap.Field{
		zap.String("review_id", resp.ReviewID),
		zap.String("student_id", t.studentID),
		zap.String("item_id", t.item.ID),
		zap.Stringer("grade", req.Grade),
		zap.Stringer("lifecycle", resp.Memory.Lifecycle),
		zap.Int("scheduled_days", resp.Memory.ScheduledDays),
		zap.Int("attempts", attempts),
	}
	if resp.Mastery != nil {
		fields = append(fields, zap.String("unit_id", resp.Mastery.UnitID), zap.Float64("p_know", resp.Mastery.PKnow))
	}
	p.log.Info("review committed", fields...)
	return resp, nil
}

// resolve maps the session to its student and loads the item and unit.
func (p *Pipeline) resolve(ctx context.Context, req Request, now time.Time) (*target, error) {
	sess, err := p.repo.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, classify(err)
	}
	item, err := p.repo.GetItem(ctx, req.ItemID)
	if err != nil {
		return nil, classify(err)
	}
	if item.Kind != req.Kind {
		return nil, fmt.Errorf("%w: item %s is a %s, not a %s", ErrInvalidItemKind, item.ID, item.Kind, req.Kind)
	}

	t := &target{studentID: sess.StudentID, item: item, at: now}
	if req.ReviewedAt != nil {
		t.at = req.ReviewedAt.UTC().Truncate(time.Millisecond)
		t.clientTime = true
	}
	if item.UnitID != "" {
		unit, err := p.repo.GetUnit(ctx, item.UnitID)
		if err != nil {
			return nil, classify(err)
		}
		t.unit = unit
	}
	return t, nil
}

// apply is one read-modify-write attempt.
func (p *Pipeline) apply(ctx context.Context, req Request, t *target) (*Response, error) {
	reviewID := p.newID()
	var (
		resp       *Response
		transition *mastery.StateTransition
	)
	err := p.repo.Atomic(ctx, func(tx Tx) error {
		// A reset may have removed the session since it was resolved.
		if _, err := tx.GetSession(ctx, req.SessionID); err != nil {
			return err
		}
		mem, err := tx.GetMemory(ctx, t.studentID, t.item.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			mem = &store.MemoryRecord{
				StudentID: t.studentID,
				CardID:    t.item.ID,
				State:     spacedrep.NewMemoryState(t.at),
			}
		case err != nil:
			return err
		}
		at, err := reviewTime(t, mem.State)
		if err != nil {
			return err
		}
		memBefore := mem.State
		mem.State = p.sched.Next(memBefore, req.Grade, at)

		in := reviewlog.Input{
			ID:             reviewID,
			StudentID:      t.studentID,
			ItemID:         t.item.ID,
			SessionID:      req.SessionID,
			Kind:           t.item.Kind,
			Grade:          req.Grade,
			ResponseTimeMs: req.ResponseTimeMs,
			MemoryBefore:   memBefore,
			MemoryAfter:    mem.State,
		}

		if t.unit != nil {
			rec, err := tx.GetMastery(ctx, t.studentID, t.unit.ID)
			switch {
			case errors.Is(err, store.ErrNotFound):
				rec = &store.MasteryRecord{StudentID: t.studentID, State: p.seed(t.unit)}
			case err != nil:
				return err
			}
			before := rec.State
			rec.State, transition = p.model.Update(before, req.Grade.Passed(), at)
			after := rec.State
			in.MasteryBefore, in.MasteryAfter = &before, &after

			if err := tx.PutMastery(ctx, rec); err != nil {
				return err
			}
		}

		if err := tx.PutMemory(ctx, mem); err != nil {
			return err
		}

		entry := reviewlog.Build(in)
		if err := tx.AppendReviewLog(ctx, &entry); err != nil {
			return err
		}

		var rt int64
		if req.ResponseTimeMs != nil {
			rt = *req.ResponseTimeMs
		}
		if err := tx.BumpDailyActivity(ctx, t.studentID, at.In(p.loc), entry.Correct, rt); err != nil {
			return err
		}

		resp = &Response{
			ReviewID:  reviewID,
			StudentID: t.studentID,
			Memory:    memoryUpdate(mem.State),
		}
		if in.MasteryAfter != nil {
			resp.Mastery = masteryUpdate(*in.MasteryAfter)
			resp.ColorBefore = in.MasteryBefore.Color
			resp.ColorAfter = in.MasteryAfter.Color
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if transition != nil {
		improved := transition.Improved()
		resp.ColorImproved = &improved
		p.metrics.Transition(string(transition.From), string(transition.To))
	}
	return resp, nil
}

// reviewTime returns the time to grade the card at. A client timestamp
// older than the card's last review is rejected; a server clock that is
// behind it is held at the last review so dueAt never moves backwards.
func reviewTime(t *target, st spacedrep.MemoryState) (time.Time, error) {
	last := st.LastReviewAt
	if last == nil || !t.at.Before(*last) {
		return t.at, nil
	}
	if t.clientTime {
		return time.Time{}, fmt.Errorf("%w: %s is before the last review at %s",
			ErrInvalidTimestamp, t.at.Format(time.RFC3339Nano), last.Format(time.RFC3339Nano))
	}
	return *last, nil
}

// seed returns the first mastery state of a unit, using the unit's own
// parameters when it has any.
func (p *Pipeline) seed(u *store.Unit) mastery.UnitMastery {
	if u.Params == (mastery.Params{}) {
		return p.model.SeedDefault(u.ID)
	}
	return p.model.Seed(u.ID, u.Params)
}
