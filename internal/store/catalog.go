package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/mnemo/internal/mastery"
	"github.com/abhisek/mnemo/internal/reviewlog"
)

// Unit is a knowledge unit together with the BKT parameters new mastery
// states are seeded with.
type Unit struct {
	ID        string
	Name      string
	Params    mastery.Params
	CreatedAt time.Time
}

// Item is a flashcard or quiz question. UnitID is empty when the item does
// not feed a mastery estimate.
type Item struct {
	ID        string
	Kind      reviewlog.ItemKind
	Front     string
	Back      string
	UnitID    string
	CreatedAt time.Time
}

// Session maps a review session to the student taking it.
type Session struct {
	ID        string
	StudentID string
	StartedAt time.Time
}

// UpsertUnit creates the unit or replaces its name and parameters.
func (c conn) UpsertUnit(ctx context.Context, u *Unit) error {
	b := c.builder().Insert(tableUnits).
		Columns("id", "name", "p_init", "p_slip", "p_guess", "p_transit", "created_at").
		Values(u.ID, u.Name, u.Params.PInit, u.Params.PSlip, u.Params.PGuess, u.Params.PTransit, toMillis(u.CreatedAt)).
		OnConflict(
			entsql.ConflictColumns("id"),
			entsql.ResolveWith(func(s *entsql.UpdateSet) {
				s.SetExcluded("name")
				s.SetExcluded("p_init")
				s.SetExcluded("p_slip")
				s.SetExcluded("p_guess")
				s.SetExcluded("p_transit")
			}),
		)
	if _, err := c.exec(ctx, b); err != nil {
		return fmt.Errorf("upsert unit %s: %w", u.ID, err)
	}
	return nil
}

// GetUnit returns the unit with the given id, or ErrNotFound.
func (c conn) GetUnit(ctx context.Context, id string) (*Unit, error) {
	t := c.builder().Table(tableUnits)
	b := c.builder().Select("id", "name", "p_init", "p_slip", "p_guess", "p_transit", "created_at").
		From(t).
		Where(entsql.EQ(t.C("id"), id))
	rows, err := c.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("query unit %s: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, notFound(rows.Err(), "unit", id)
	}
	var (
		u         Unit
		createdAt int64
	)
	if err := rows.Scan(&u.ID, &u.Name, &u.Params.PInit, &u.Params.PSlip, &u.Params.PGuess, &u.Params.PTransit, &createdAt); err != nil {
		return nil, fmt.Errorf("scan unit %s: %w", id, err)
	}
	u.CreatedAt = fromMillis(createdAt)
	return &u, nil
}

// UpsertItem creates the item or replaces its content.
func (c conn) UpsertItem(ctx context.Context, it *Item) error {
	b := c.builder().Insert(tableItems).
		Columns("id", "kind", "front", "back", "unit_id", "created_at").
		Values(it.ID, string(it.Kind), it.Front, it.Back, nullString(it.UnitID), toMillis(it.CreatedAt)).
		OnConflict(
			entsql.ConflictColumns("id"),
			entsql.ResolveWith(func(s *entsql.UpdateSet) {
				s.SetExcluded("kind")
				s.SetExcluded("front")
				s.SetExcluded("back")
				s.SetExcluded("unit_id")
			}),
		)
	if _, err := c.exec(ctx, b); err != nil {
		return fmt.Errorf("upsert item %s: %w", it.ID, err)
	}
	return nil
}

// GetItem returns the item with the given id, or ErrNotFound.
func (c conn) GetItem(ctx context.Context, id string) (*Item, error) {
	t := c.builder().Table(tableItems)
	b := c.builder().Select("id", "kind", "front", "back", "unit_id", "created_at").
		From(t).
		Where(entsql.EQ(t.C("id"), id))
	rows, err := c.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("query item %s: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, notFound(rows.Err(), "item", id)
	}
	var (
		it        Item
		kind      string
		unitID    sql.NullString
		createdAt int64
	)
	if err := rows.Scan(&it.ID, &kind, &it.Front, &it.Back, &unitID, &createdAt); err != nil {
		return nil, fmt.Errorf("scan item %s: %w", id, err)
	}
	it.Kind = reviewlog.ItemKind(kind)
	it.UnitID = unitID.String
	it.CreatedAt = fromMillis(createdAt)
	return &it, nil
}

// CreateSession records a new session. An existing id is ErrConflict.
func (c conn) CreateSession(ctx context.Context, s *Session) error {
	err := c.insertOnce(ctx, tableSessions, "id",
		[]string{"id", "student_id", "started_at"},
		[]any{s.ID, s.StudentID, toMillis(s.StartedAt)})
	if err != nil {
		return fmt.Errorf("create session %s: %w", s.ID, err)
	}
	return nil
}

// GetSession returns the session with the given id, or ErrNotFound.
func (c conn) GetSession(ctx context.Context, id string) (*Session, error) {
	t := c.builder().Table(tableSessions)
	b := c.builder().Select("id", "student_id", "started_at").
		From(t).
		Where(entsql.EQ(t.C("id"), id))
	rows, err := c.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("query session %s: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, notFound(rows.Err(), "session", id)
	}
	var (
		s         Session
		startedAt int64
	)
	if err := rows.Scan(&s.ID, &s.StudentID, &startedAt); err != nil {
		return nil, fmt.Errorf("scan session %s: %w", id, err)
	}
	s.StartedAt = fromMillis(startedAt)
	return &s, nil
}

// studentTables holds every table with rows owned by a student.
var studentTables = []string{tableSessions, tableMemoryStates, tableMasteryStates, tableReviewLogs, tableDailyActivity}

// DeleteStudent removes every row owned by the student: sessions, memory
// and mastery states, review logs and daily activity. The catalog is kept.
// All tables are cleared in one transaction, so a failure deletes nothing.
func (s *Store) DeleteStudent(ctx context.Context, studentID string) (int64, error) {
	var total int64
	err := s.withTx(ctx, func(c conn) error {
		total = 0
		for _, table := range studentTables {
			res, err := c.exec(ctx, c.builder().Delete(table).Where(entsql.EQ("student_id", studentID)))
			if err != nil {
				return fmt.Errorf("delete %s for %s: %w", table, studentID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("delete %s rows affected: %w", table, err)
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// notFound turns an exhausted single-row result into ErrNotFound, keeping
// an iteration error if there was one.
func notFound(rowsErr error, what, id string) error {
	if rowsErr != nil {
		return fmt.Errorf("query %s %s: %w", what, id, rowsErr)
	}
	return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
}
