package store

import (
	"context"
	"database/sql"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/mnemo/internal/mastery"
)

// MasteryRecord is a persisted mastery state, versioned like MemoryRecord.
type MasteryRecord struct {
	StudentID string
	Version   int64
	State     mastery.UnitMastery
}

// Key returns the logical key of the record.
func (r *MasteryRecord) Key() string {
	return MasteryKey(r.StudentID, r.State.UnitID)
}

var masteryColumns = []string{
	"student_id", "unit_id", "version", "p_know", "p_slip", "p_guess", "p_transit",
	"stability", "delta", "color", "review_count", "last_review_at",
}

// GetMastery returns the mastery state of a student's unit, or ErrNotFound.
func (c conn) GetMastery(ctx context.Context, studentID, unitID string) (*MasteryRecord, error) {
	t := c.builder().Table(tableMasteryStates)
	b := c.builder().Select(masteryColumns...).
		From(t).
		Where(entsql.EQ(t.C("key"), MasteryKey(studentID, unitID)))
	rows, err := c.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("query mastery state: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, notFound(rows.Err(), "mastery state", MasteryKey(studentID, unitID))
	}
	var rec MasteryRecord
	if err := scanMastery(rows, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListMastery returns every mastery state of the student ordered by unit.
func (c conn) ListMastery(ctx context.Context, studentID string) ([]MasteryRecord, error) {
	t := c.builder().Table(tableMasteryStates)
	b := c.builder().Select(masteryColumns...).
		From(t).
		Where(entsql.EQ(t.C("student_id"), studentID)).
		OrderBy(t.C("unit_id"))
	rows, err := c.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("query mastery states: %w", err)
	}
	defer rows.Close()

	var out []MasteryRecord
	for rows.Next() {
		var rec MasteryRecord
		if err := scanMastery(rows, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mastery states: %w", err)
	}
	return out, nil
}

// PutMastery writes rec with the same compare-and-swap rules as PutMemory.
func (c conn) PutMastery(ctx context.Context, rec *MasteryRecord) error {
	st := rec.State
	if rec.Version == 0 {
		err := c.insertOnce(ctx, tableMasteryStates, "key",
			append([]string{"key"}, masteryColumns...),
			[]any{
				rec.Key(),
				rec.StudentID, st.UnitID, int64(1), st.PKnow, st.PSlip, st.PGuess, st.PTransit,
				st.Stability, st.Delta, string(st.Color), st.ReviewCount, toNullMillis(st.LastReviewAt),
			})
		if err != nil {
			return fmt.Errorf("put mastery state %s: %w", rec.Key(), err)
		}
		rec.Version = 1
		return nil
	}

	b := c.builder().Update(tableMasteryStates).
		Set("p_know", st.PKnow).
		Set("p_slip", st.PSlip).
		Set("p_guess", st.PGuess).
		Set("p_transit", st.PTransit).
		Set("stability", st.Stability).
		Set("delta", st.Delta).
		Set("color", string(st.Color)).
		Set("review_count", st.ReviewCount).
		Set("last_review_at", toNullMillis(st.LastReviewAt)).
		Add("version", 1).
		Where(entsql.And(
			entsql.EQ("key", rec.Key()),
			entsql.EQ("version", rec.Version),
		))
	res, err := c.exec(ctx, b)
	if err != nil {
		return fmt.Errorf("put mastery state %s: %w", rec.Key(), err)
	}
	if err := expectOne(res, tableMasteryStates); err != nil {
		return fmt.Errorf("put mastery state %s: %w", rec.Key(), err)
	}
	rec.Version++
	return nil
}

func scanMastery(rows scanner, rec *MasteryRecord) error {
	var (
		st    = &rec.State
		color string
		last  sql.NullInt64
	)
	err := rows.Scan(&rec.StudentID, &st.UnitID, &rec.Version, &st.PKnow, &st.PSlip, &st.PGuess, &st.PTransit,
		&st.Stability, &st.Delta, &color, &st.ReviewCount, &last)
	if err != nil {
		return fmt.Errorf("scan mastery state: %w", err)
	}
	st.Color = mastery.Color(color)
	st.LastReviewAt = fromNullMillis(last)
	return nil
}
