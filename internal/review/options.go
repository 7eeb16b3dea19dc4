package review

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abhisek/mnemo/internal/lock"
	"github.com/abhisek/mnemo/internal/metrics"
)

// DefaultClockSkew is how far in the future a client-reported review time
// may lie.
const DefaultClockSkew = 5 * time.Minute

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLocker replaces the in-process keyed mutex, e.g. with a Redis
// locker shared by several replicas.
func WithLocker(l lock.Locker) Option {
	return func(p *Pipeline) { p.locker = l }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithIDGenerator sets how review and session ids are created.
func WithIDGenerator(gen func() string) Option {
	return func(p *Pipeline) { p.newID = gen }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithRetry sets the conflict retry policy.
func WithRetry(cfg RetryConfig) Option {
	return func(p *Pipeline) { p.retryCfg = cfg }
}

// WithClockSkew sets the tolerance for client-reported review times.
func WithClockSkew(d time.Duration) Option {
	return func(p *Pipeline) { p.skew = d }
}

// WithLocation sets the time zone whose calendar days daily activity is
// counted in.
func WithLocation(loc *time.Location) Option {
	return func(p *Pipeline) { p.loc = loc }
}

func defaults(p *Pipeline) {
	p.locker = lock.NewKeyedMutex()
	p.now = time.Now
	p.newID = uuid.NewString
	p.log = zap.NewNop()
	p.retryCfg = DefaultRetryConfig()
	p.skew = DefaultClockSkew
	p.loc = time.UTC
}
