package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/mnemo/internal/mastery"
	"github.com/abhisek/mnemo/internal/reviewlog"
	"github.com/abhisek/mnemo/internal/spacedrep"
)

// LogQuery filters review log reads. Zero values disable a filter.
type LogQuery struct {
	Limit     int       // max results (0 = unlimited)
	After     int64     // sequence > After
	From      time.Time // reviewed_at >= From
	To        time.Time // reviewed_at < To
	SessionID string
}

var reviewLogColumns = []string{
	"id", "sequence", "student_id", "item_id", "session_id", "kind", "grade", "correct",
	"lifecycle_before", "prev_due_at", "prev_stability", "prev_difficulty", "elapsed_days",
	"scheduled_days", "reviewed_at", "response_time_ms", "unit_id", "p_know_before",
	"p_know_after", "color_before", "color_after",
}

// AppendReviewLog stamps e with the transaction's reserved sequence number
// and inserts it. A transaction appends at most one entry; an existing
// review id is ErrConflict.
func (tx *Tx) AppendReviewLog(ctx context.Context, e *reviewlog.Entry) error {
	if tx.appended {
		return errors.New("append review log: transaction already holds an entry")
	}
	e.Sequence = tx.seq

	var pBefore, pAfter sql.NullFloat64
	if e.PKnowBefore != nil {
		pBefore = sql.NullFloat64{Float64: *e.PKnowBefore, Valid: true}
	}
	if e.PKnowAfter != nil {
		pAfter = sql.NullFloat64{Float64: *e.PKnowAfter, Valid: true}
	}
	var rt sql.NullInt64
	if e.ResponseTimeMs != nil {
		rt = sql.NullInt64{Int64: *e.ResponseTimeMs, Valid: true}
	}

	err := tx.insertOnce(ctx, tableReviewLogs, "key",
		append([]string{"key"}, reviewLogColumns...),
		[]any{
			e.Key(),
			e.ID, e.Sequence, e.StudentID, e.ItemID, e.SessionID, string(e.Kind), int(e.Grade), e.Correct,
			int(e.LifecycleBefore), toMillis(e.PrevDueAt), e.PrevStability, e.PrevDifficulty, e.ElapsedDays,
			e.ScheduledDays, toMillis(e.ReviewedAt), rt, nullString(e.UnitID), pBefore,
			pAfter, nullString(string(e.ColorBefore)), nullString(string(e.ColorAfter)),
		})
	if err != nil {
		return fmt.Errorf("append review log %s: %w", e.ID, err)
	}
	tx.appended = true
	return nil
}

// ListReviewLogs returns the student's review log entries in sequence order.
func (c conn) ListReviewLogs(ctx context.Context, studentID string, opts LogQuery) ([]reviewlog.Entry, error) {
	t := c.builder().Table(tableReviewLogs)
	preds := []*entsql.Predicate{entsql.EQ(t.C("student_id"), studentID)}
	if opts.After > 0 {
		preds = append(preds, entsql.GT(t.C("sequence"), opts.After))
	}
	if !opts.From.IsZero() {
		preds = append(preds, entsql.GTE(t.C("reviewed_at"), toMillis(opts.From)))
	}
	if !opts.To.IsZero() {
		preds = append(preds, entsql.LT(t.C("reviewed_at"), toMillis(opts.To)))
	}
	if opts.SessionID != "" {
		preds = append(preds, entsql.EQ(t.C("session_id"), opts.SessionID))
	}

	b := c.builder().Select(reviewLogColumns...).
		From(t).
		Where(entsql.And(preds...)).
		OrderBy(t.C("sequence"))
	if opts.Limit > 0 {
		b.Limit(opts.Limit)
	}
	return c.queryReviewLogs(ctx, b)
}

// ListCardLogs returns every entry for one of the student's cards in
// sequence order; replaying them reproduces the card's memory state.
func (c conn) ListCardLogs(ctx context.Context, studentID, itemID string) ([]reviewlog.Entry, error) {
	t := c.builder().Table(tableReviewLogs)
	b := c.builder().Select(reviewLogColumns...).
		From(t).
		Where(entsql.And(
			entsql.EQ(t.C("student_id"), studentID),
			entsql.EQ(t.C("item_id"), itemID),
		)).
		OrderBy(t.C("sequence"))
	return c.queryReviewLogs(ctx, b)
}

// GetReviewLog returns the entry with the given review id, or ErrNotFound.
func (c conn) GetReviewLog(ctx context.Context, reviewID string) (*reviewlog.Entry, error) {
	t := c.builder().Table(tableReviewLogs)
	b := c.builder().Select(reviewLogColumns...).
		From(t).
		Where(entsql.EQ(t.C("key"), reviewlog.Key(reviewID)))
	entries, err := c.queryReviewLogs(ctx, b)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("review log %s: %w", reviewID, ErrNotFound)
	}
	return &entries[0], nil
}

func (c conn) queryReviewLogs(ctx context.Context, b *entsql.Selector) ([]reviewlog.Entry, error) {
	rows, err := c.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("query review logs: %w", err)
	}
	defer rows.Close()

	var out []reviewlog.Entry
	for rows.Next() {
		var (
			e                     reviewlog.Entry
			kind                  string
			grade, lifecycle      int
			prevDueAt, reviewedAt int64
			rt                    sql.NullInt64
			unitID                sql.NullString
			pBefore, pAfter       sql.NullFloat64
			cBefore, cAfter       sql.NullString
		)
		err := rows.Scan(&e.ID, &e.Sequence, &e.StudentID, &e.ItemID, &e.SessionID, &kind, &grade, &e.Correct,
			&lifecycle, &prevDueAt, &e.PrevStability, &e.PrevDifficulty, &e.ElapsedDays,
			&e.ScheduledDays, &reviewedAt, &rt, &unitID, &pBefore,
			&pAfter, &cBefore, &cAfter)
		if err != nil {
			return nil, fmt.Errorf("scan review log: %w", err)
		}
		e.Kind = reviewlog.ItemKind(kind)
		e.Grade = spacedrep.Grade(grade)
		e.LifecycleBefore = spacedrep.Lifecycle(lifecycle)
		e.PrevDueAt = fromMillis(prevDueAt)
		e.ReviewedAt = fromMillis(reviewedAt)
		if rt.Valid {
			e.ResponseTimeMs = &rt.Int64
		}
		e.UnitID = unitID.String
		if pBefore.Valid {
			e.PKnowBefore = &pBefore.Float64
		}
		if pAfter.Valid {
			e.PKnowAfter = &pAfter.Float64
		}
		e.ColorBefore = mastery.Color(cBefore.String)
		e.ColorAfter = mastery.Color(cAfter.String)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review logs: %w", err)
	}
	return out, nil
}
