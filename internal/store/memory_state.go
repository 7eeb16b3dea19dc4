package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/mnemo/internal/reviewlog"
	"github.com/abhisek/mnemo/internal/spacedrep"
)

// MemoryRecord is a persisted memory state. Version is 0 for a state that
// has never been written and increases by one with every write.
type MemoryRecord struct {
	StudentID string
	CardID    string
	Version   int64
	State     spacedrep.MemoryState
}

// Key returns the logical key of the record.
func (r *MemoryRecord) Key() string {
	return MemoryKey(r.StudentID, r.CardID)
}

var memoryColumns = []string{
	"student_id", "card_id", "version", "due_at", "lifecycle", "stability", "difficulty",
	"elapsed_days", "scheduled_days", "reps", "lapses", "last_review_at",
}

// GetMemory returns the memory state of a student's card, or ErrNotFound.
func (c conn) GetMemory(ctx context.Context, studentID, cardID string) (*MemoryRecord, error) {
	t := c.builder().Table(tableMemoryStates)
	b := c.builder().Select(memoryColumns...).
		From(t).
		Where(entsql.EQ(t.C("key"), MemoryKey(studentID, cardID)))
	rows, err := c.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("query memory state: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, notFound(rows.Err(), "memory state", MemoryKey(studentID, cardID))
	}
	var rec MemoryRecord
	if err := scanMemory(rows, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// PutMemory writes rec if its version still matches the stored one; a
// record with version 0 must not exist yet. On success rec.Version is
// advanced. A lost race returns ErrConflict.
func (c conn) PutMemory(ctx context.Context, rec *MemoryRecord) error {
	st := rec.State
	if rec.Version == 0 {
		err := c.insertOnce(ctx, tableMemoryStates, "key",
			append([]string{"key", "lifecycle_rank"}, memoryColumns...),
			[]any{
				rec.Key(), st.Lifecycle.Priority(),
				rec.StudentID, rec.CardID, int64(1), toMillis(st.DueAt), int(st.Lifecycle), st.Stability, st.Difficulty,
				st.ElapsedDays, st.ScheduledDays, st.Reps, st.Lapses, toNullMillis(st.LastReviewAt),
			})
		if err != nil {
			return fmt.Errorf("put memory state %s: %w", rec.Key(), err)
		}
		rec.Version = 1
		return nil
	}

	b := c.builder().Update(tableMemoryStates).
		Set("due_at", toMillis(st.DueAt)).
		Set("lifecycle_rank", st.Lifecycle.Priority()).
		Set("lifecycle", int(st.Lifecycle)).
		Set("stability", st.Stability).
		Set("difficulty", st.Difficulty).
		Set("elapsed_days", st.ElapsedDays).
		Set("scheduled_days", st.ScheduledDays).
		Set("reps", st.Reps).
		Set("lapses", st.Lapses).
		Set("last_review_at", toNullMillis(st.LastReviewAt)).
		Add("version", 1).
		Where(entsql.And(
			entsql.EQ("key", rec.Key()),
			entsql.EQ("version", rec.Version),
		))
	res, err := c.exec(ctx, b)
	if err != nil {
		return fmt.Errorf("put memory state %s: %w", rec.Key(), err)
	}
	if err := expectOne(res, tableMemoryStates); err != nil {
		return fmt.Errorf("put memory state %s: %w", rec.Key(), err)
	}
	rec.Version++
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMemory(rows scanner, rec *MemoryRecord) error {
	var (
		st        = &rec.State
		dueAt     int64
		lifecycle int
		last      sql.NullInt64
	)
	err := rows.Scan(&rec.StudentID, &rec.CardID, &rec.Version, &dueAt, &lifecycle, &st.Stability, &st.Difficulty,
		&st.ElapsedDays, &st.ScheduledDays, &st.Reps, &st.Lapses, &last)
	if err != nil {
		return fmt.Errorf("scan memory state: %w", err)
	}
	st.DueAt = fromMillis(dueAt)
	st.Lifecycle = spacedrep.Lifecycle(lifecycle)
	st.LastReviewAt = fromNullMillis(last)
	return nil
}

// DueCursor is the position after the last row of a due page.
type DueCursor struct {
	DueAt  time.Time
	Rank   int
	CardID string
}

// DueRow is a due card joined with its content.
type DueRow struct {
	MemoryRecord
	Kind   reviewlog.ItemKind
	Front  string
	Back   string
	UnitID string
}

// Cursor returns the keyset position of the row.
func (r *DueRow) Cursor() DueCursor {
	return DueCursor{DueAt: r.State.DueAt, Rank: r.State.Lifecycle.Priority(), CardID: r.CardID}
}

// ListDuePage returns up to limit cards of the student due at or before now,
// ordered by due time, lifecycle priority and card id, starting after the
// cursor when one is given.
func (c conn) ListDuePage(ctx context.Context, studentID string, now time.Time, after *DueCursor, limit int) ([]DueRow, error) {
	m := c.builder().Table(tableMemoryStates).As("m")
	i := c.builder().Table(tableItems).As("i")

	cols := make([]string, 0, len(memoryColumns)+4)
	for _, name := range memoryColumns {
		cols = append(cols, m.C(name))
	}
	cols = append(cols, i.C("kind"), i.C("front"), i.C("back"), i.C("unit_id"))

	preds := []*entsql.Predicate{
		entsql.EQ(m.C("student_id"), studentID),
		entsql.LTE(m.C("due_at"), toMillis(now)),
	}
	if after != nil {
		due := toMillis(after.DueAt)
		preds = append(preds, entsql.Or(
			entsql.GT(m.C("due_at"), due),
			entsql.And(entsql.EQ(m.C("due_at"), due), entsql.GT(m.C("lifecycle_rank"), after.Rank)),
			entsql.And(entsql.EQ(m.C("due_at"), due), entsql.EQ(m.C("lifecycle_rank"), after.Rank), entsql.GT(m.C("card_id"), after.CardID)),
		))
	}

	b := c.builder().Select(cols...).
		From(m).
		Join(i).On(m.C("card_id"), i.C("id")).
		Where(entsql.And(preds...)).
		OrderBy(m.C("due_at"), m.C("lifecycle_rank"), m.C("card_id")).
		Limit(limit)
	rows, err := c.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("query due cards: %w", err)
	}
	defer rows.Close()

	var out []DueRow
	for rows.Next() {
		var (
			row    DueRow
			st     = &row.State
			dueAt  int64
			lc     int
			last   sql.NullInt64
			kind   string
			unitID sql.NullString
		)
		err := rows.Scan(&row.StudentID, &row.CardID, &row.Version, &dueAt, &lc, &st.Stability, &st.Difficulty,
			&st.ElapsedDays, &st.ScheduledDays, &st.Reps, &st.Lapses, &last,
			&kind, &row.Front, &row.Back, &unitID)
		if err != nil {
			return nil, fmt.Errorf("scan due card: %w", err)
		}
		st.DueAt = fromMillis(dueAt)
		st.Lifecycle = spacedrep.Lifecycle(lc)
		st.LastReviewAt = fromNullMillis(last)
		row.Kind = reviewlog.ItemKind(kind)
		row.UnitID = unitID.String
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due cards: %w", err)
	}
	return out, nil
}

// CountMemory returns how many of the student's cards are in each
// lifecycle stage.
func (c conn) CountMemory(ctx context.Context, studentID string) (map[spacedrep.Lifecycle]int, error) {
	t := c.builder().Table(tableMemoryStates)
	b := c.builder().Select(t.C("lifecycle"), entsql.Count("*")).
		From(t).
		Where(entsql.EQ(t.C("student_id"), studentID)).
		GroupBy(t.C("lifecycle"))
	rows, err := c.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("count memory states: %w", err)
	}
	defer rows.Close()

	out := make(map[spacedrep.Lifecycle]int)
	for rows.Next() {
		var lc, n int
		if err := rows.Scan(&lc, &n); err != nil {
			return nil, fmt.Errorf("scan memory count: %w", err)
		}
		out[spacedrep.Lifecycle(lc)] = n
	}
	return out, rows.Err()
}
