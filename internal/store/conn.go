package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

// conn runs builder queries against either the driver or an open
// transaction. Every repository method is defined on it.
type conn struct {
	q       dialect.ExecQuerier
	dialect string
}

func (c conn) builder() *entsql.DialectBuilder {
	return entsql.Dialect(c.dialect)
}

// querier is satisfied by every ent statement builder.
type querier interface {
	Query() (string, []any)
}

func (c conn) exec(ctx context.Context, b querier) (sql.Result, error) {
	query, args := b.Query()
	var res sql.Result
	if err := c.q.Exec(ctx, query, args, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c conn) query(ctx context.Context, b querier) (*entsql.Rows, error) {
	query, args := b.Query()
	rows := &entsql.Rows{}
	if err := c.q.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// insertOnce inserts a row unless its primary key already exists, in which
// case it reports ErrConflict.
func (c conn) insertOnce(ctx context.Context, table string, pk string, cols []string, vals []any) error {
	b := c.builder().Insert(table).
		Columns(cols...).
		Values(vals...).
		OnConflict(entsql.ConflictColumns(pk), entsql.DoNothing())
	res, err := c.exec(ctx, b)
	if err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return expectOne(res, table)
}

func expectOne(res sql.Result, table string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", table, err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func toNullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
