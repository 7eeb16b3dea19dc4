package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	// Postgres driver, selected with the "postgres" driver name.
	_ "github.com/lib/pq"
	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// Supported driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when a versioned write lost a race: the row
	// changed (or appeared) since it was read.
	ErrConflict = errors.New("store: version conflict")
)

// Store owns the database handle. Its embedded conn runs statements in
// autocommit mode; InTx runs them inside a transaction.
type Store struct {
	conn
	db  *sql.DB
	drv *entsql.Driver
	seq *sequenceCounter
}

// Open connects to the SQLite database at dsn.
func Open(dsn string) (*Store, error) {
	return OpenDriver(context.Background(), DriverSQLite, dsn)
}

// OpenDriver connects with the named driver, applies driver specific
// settings and runs auto-migration.
func OpenDriver(ctx context.Context, driver, dsn string) (*Store, error) {
	var dialectName string
	switch driver {
	case DriverSQLite, "":
		driver, dialectName = DriverSQLite, dialect.SQLite
	case DriverPostgres:
		dialectName = dialect.Postgres
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dialectName == dialect.SQLite {
		// SQLite allows one writer; a single connection also keeps the
		// pragmas and in-memory databases on one handle.
		db.SetMaxOpenConns(1)
		if err := applyPragmas(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragmas: %w", err)
		}
	}

	drv := entsql.OpenDB(dialectName, db)
	if err := migrate(ctx, drv); err != nil {
		drv.Close()
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}

	seq, err := newSequenceCounter(ctx, drv)
	if err != nil {
		drv.Close()
		return nil, err
	}

	return &Store{
		conn: conn{q: drv, dialect: dialectName},
		db:   db,
		drv:  drv,
		seq:  seq,
	}, nil
}

// DB returns the underlying *sql.DB for raw queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the ent dialect name of the connection.
func (s *Store) Dialect() string {
	return s.dialect
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.drv.Close()
}

// Tx is a unit of work. It exposes the same reads and writes as Store and
// carries the sequence number reserved for the review log it may append.
type Tx struct {
	conn
	seq      int64
	appended bool
}

// Sequence returns the global sequence number reserved for this
// transaction.
func (tx *Tx) Sequence() int64 {
	return tx.seq
}

// InTx reserves the next global sequence number, then runs fn inside a
// transaction. The transaction commits when fn returns nil and rolls back
// otherwise, so no partial write survives a failure.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	// The counter uses its own statement: with SQLite's single connection
	// it cannot run while the transaction holds it.
	seq, err := s.seq.Next(ctx)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(c conn) error {
		return fn(&Tx{conn: c, seq: seq})
	})
}

// withTx runs fn inside a transaction without reserving a sequence number.
func (s *Store) withTx(ctx context.Context, fn func(c conn) error) error {
	t, err := s.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(conn{q: t, dialect: s.dialect}); err != nil {
		if rerr := t.Rollback(); rerr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rerr)
		}
		return err
	}
	if err := t.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// applyPragmas configures SQLite for a single-process service.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// DefaultDBPath resolves the database file path in priority order:
// 1. MNEMO_DB environment variable
// 2. $XDG_DATA_HOME/mnemo/mnemo.db
// 3. ~/.local/share/mnemo/mnemo.db
func DefaultDBPath() (string, error) {
	if p := os.Getenv("MNEMO_DB"); p != "" {
		return p, ensureDir(p)
	}

	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dataHome = filepath.Join(home, ".local", "share")
	}

	p := filepath.Join(dataHome, "mnemo", "mnemo.db")
	return p, ensureDir(p)
}

// ensureDir creates the parent directory of path if it doesn't exist.
func ensureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0o755)
}
