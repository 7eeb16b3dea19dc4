package review

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/abhisek/mnemo/internal/store"
)

// Error classes. Check them with errors.Is.
var (
	// ErrValidation marks malformed input, rejected before any state is
	// read or written.
	ErrValidation = errors.New("invalid review")

	ErrInvalidGrade     = fmt.Errorf("%w: grade must be between 1 and 4", ErrValidation)
	ErrInvalidItemKind  = fmt.Errorf("%w: item kind", ErrValidation)
	ErrInvalidTimestamp = fmt.Errorf("%w: timestamp", ErrValidation)

	// ErrNotFound marks an unknown session, item or unit.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned once every retry of a read-modify-write lost
	// its compare-and-swap.
	ErrConflict = errors.New("concurrent update conflict")

	// ErrPersistence marks a storage failure. Nothing was committed.
	ErrPersistence = errors.New("persistence failure")
)

// ConflictError reports the keys that stayed contended and how many
// attempts were made.
type ConflictError struct {
	Keys     []string
	Attempts int
	Err      error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%v on %s after %d attempts: %v", ErrConflict, strings.Join(e.Keys, ","), e.Attempts, e.Err)
}

func (e *ConflictError) Unwrap() []error { return []error{ErrConflict, e.Err} }

// classify maps a store error onto the error classes above. Context errors
// pass through untouched.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict), errors.Is(err, ErrPersistence):
		return err
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	default:
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
}

// Reason returns a short label for err, used in logs and metrics.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "persistence"
	}
}
