package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/abhisek/mnemo/internal/config"
	"github.com/abhisek/mnemo/internal/due"
	"github.com/abhisek/mnemo/internal/lock"
	"github.com/abhisek/mnemo/internal/logging"
	"github.com/abhisek/mnemo/internal/mastery"
	"github.com/abhisek/mnemo/internal/metrics"
	"github.com/abhisek/mnemo/internal/review"
	"github.com/abhisek/mnemo/internal/session"
	"github.com/abhisek/mnemo/internal/spacedrep"
	"github.com/abhisek/mnemo/internal/store"
)

// deps holds everything a command may need, built from the loaded config.
type deps struct {
	log      *zap.Logger
	store    *store.Store
	locker   lock.Locker
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	pipeline *review.Pipeline
	queue    *due.Queue
	stats    *session.Aggregator

	closers []func() error
}

// openDeps opens the store and wires the pipeline and read paths. The
// caller must call close.
func openDeps(ctx context.Context, c *config.Config) (_ *deps, err error) {
	d := &deps{}
	defer func() {
		if err != nil {
			d.close()
		}
	}()

	d.log, err = logging.New(c.Log)
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, func() error { _ = d.log.Sync(); return nil })

	dsn, err := c.DSN()
	if err != nil {
		return nil, fmt.Errorf("resolve database: %w", err)
	}
	d.store, err = store.OpenDriver(ctx, c.Database.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	d.closers = append(d.closers, d.store.Close)

	switch c.Lock.Backend {
	case config.LockRedis:
		rl, err := lock.NewRedisLocker(ctx, c.Lock.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect lock backend: %w", err)
		}
		d.locker = rl
		d.closers = append(d.closers, rl.Close)
	default:
		d.locker = lock.NewKeyedMutex()
	}

	params, err := c.MemoryParams()
	if err != nil {
		return nil, err
	}
	sched, err := spacedrep.NewScheduler(params)
	if err != nil {
		return nil, err
	}
	model, err := mastery.NewModel(c.MasteryConfig())
	if err != nil {
		return nil, err
	}

	d.registry = prometheus.NewRegistry()
	d.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d.metrics = metrics.New(d.registry)

	d.pipeline = review.NewPipeline(review.NewRepository(d.store), sched, model,
		review.WithLocker(d.locker),
		review.WithLogger(d.log),
		review.WithMetrics(d.metrics),
		review.WithRetry(c.Review.Retry),
		review.WithClockSkew(c.Review.ClockSkew),
		review.WithLocation(c.Location()),
	)
	d.queue = due.NewQueue(d.store)
	d.stats = session.NewAggregator(d.store, session.WithLocation(c.Location()))
	return d, nil
}

func (d *deps) close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	d.closers = nil
	return errors.Join(errs...)
}
