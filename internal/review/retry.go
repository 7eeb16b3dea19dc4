package review

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/abhisek/mnemo/internal/store"
)

// RetryConfig bounds how often a conflicting read-modify-write is repeated.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	InitialWait time.Duration `mapstructure:"initial_wait"`
	MaxWait     time.Duration `mapstructure:"max_wait"`
	Multiplier  float64       `mapstructure:"multiplier"`
}

// DefaultRetryConfig returns three attempts starting at 10ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		InitialWait: 10 * time.Millisecond,
		MaxWait:     200 * time.Millisecond,
		Multiplier:  2,
	}
}

// retry runs fn until it succeeds, fails with anything other than a store
// conflict, or runs out of attempts. It returns the number of attempts.
func (p *Pipeline) retry(ctx context.Context, fn func() error) (int, error) {
	attempts := max(p.retryCfg.MaxAttempts, 1)
	var lastErr error

	for attempt := range attempts {
		err := fn()
		if err == nil {
			return attempt + 1, nil
		}
		lastErr = err

		if !errors.Is(err, store.ErrConflict) {
			return attempt + 1, err
		}
		p.metrics.Conflict()

		// Last attempt: return without sleeping.
		if attempt == attempts-1 {
			break
		}
		p.metrics.Retry()

		select {
		case <-ctx.Done():
			return attempt + 1, ctx.Err()
		case <-time.After(p.backoff(attempt)):
		}
	}
	return attempts, lastErr
}

// backoff computes the wait duration for the given attempt.
func (p *Pipeline) backoff(attempt int) time.Duration {
	cfg := p.retryCfg
	wait := float64(cfg.InitialWait) * math.Pow(cfg.Multiplier, float64(attempt))
	if wait > float64(cfg.MaxWait) {
		wait = float64(cfg.MaxWait)
	}

	// Add ±20% jitter.
	jitter := wait * 0.2 * (2*rand.Float64() - 1)
	wait += jitter

	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait)
}
