package review

import (
	"context"
	"time"

	"github.com/abhisek/mnemo/internal/reviewlog"
	"github.com/abhisek/mnemo/internal/store"
)

// Tx is the transactional view of storage used for one review attempt.
type Tx interface {
	GetSession(ctx context.Context, id string) (*store.Session, error)
	GetMemory(ctx context.Context, studentID, cardID string) (*store.MemoryRecord, error)
	PutMemory(ctx context.Context, rec *store.MemoryRecord) error
	GetMastery(ctx context.Context, studentID, unitID string) (*store.MasteryRecord, error)
	PutMastery(ctx context.Context, rec *store.MasteryRecord) error
	AppendReviewLog(ctx context.Context, e *reviewlog.Entry) error
	BumpDailyActivity(ctx context.Context, studentID string, day time.Time, correct bool, responseMs int64) error
}

// Repository is the storage the pipeline reads and writes.
type Repository interface {
	GetSession(ctx context.Context, id string) (*store.Session, error)
	CreateSession(ctx context.Context, s *store.Session) error
	GetItem(ctx context.Context, id string) (*store.Item, error)
	GetUnit(ctx context.Context, id string) (*store.Unit, error)
	GetMemory(ctx context.Context, studentID, cardID string) (*store.MemoryRecord, error)
	GetMastery(ctx context.Context, studentID, unitID string) (*store.MasteryRecord, error)
	ListCardLogs(ctx context.Context, studentID, itemID string) ([]reviewlog.Entry, error)

	// Atomic runs fn in one transaction; either every write of fn commits
	// or none does.
	Atomic(ctx context.Context, fn func(tx Tx) error) error
}

type storeRepository struct {
	*store.Store
}

// NewRepository adapts a store to the pipeline.
func NewRepository(s *store.Store) Repository {
	return storeRepository{Store: s}
}

func (r storeRepository) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	return r.InTx(ctx, func(tx *store.Tx) error { return fn(tx) })
}
