package exqscheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/SavickyAnt/exq-scheduler/backoff"
	"github.com/SavickyAnt/exq-scheduler/job"
	redisgw "github.com/SavickyAnt/exq-scheduler/redis"
	"github.com/SavickyAnt/exq-scheduler/schedule"
	"github.com/SavickyAnt/exq-scheduler/scheduler"
	"github.com/SavickyAnt/exq-scheduler/storage"
)

// BootstrapOption configures Bootstrap beyond what Config itself
// expresses: runtime concerns like the clock, logger, and observability
// hooks that don't belong in a serialized config file.
type BootstrapOption func(*bootstrapOptions)

type bootstrapOptions struct {
	clock       scheduler.Clock
	logger      *slog.Logger
	metrics     *scheduler.Metrics
	tracer      trace.Tracer
	concurrency int
}

// WithClock overrides the production wall clock. Tests pass a FakeClock.
func WithClock(c scheduler.Clock) BootstrapOption {
	return func(o *bootstrapOptions) { o.clock = c }
}

// WithLogger sets the logger threaded through the gateway, storage layer,
// and scheduler loop.
func WithLogger(l *slog.Logger) BootstrapOption {
	return func(o *bootstrapOptions) { o.logger = l }
}

// WithMetrics attaches Prometheus instruments to the returned Loop.
func WithMetrics(m *scheduler.Metrics) BootstrapOption {
	return func(o *bootstrapOptions) { o.metrics = m }
}

// WithTracer overrides the OpenTelemetry tracer used by the returned Loop.
func WithTracer(t trace.Tracer) BootstrapOption {
	return func(o *bootstrapOptions) { o.tracer = t }
}

// WithConcurrency bounds how many schedules the returned Loop processes in
// parallel within a single tick.
func WithConcurrency(n int) BootstrapOption {
	return func(o *bootstrapOptions) { o.concurrency = n }
}

// Bootstrap validates cfg, persists its schedules to Redis (reconciling —
// existing Redis definitions absent from cfg are left untouched per §4.7),
// and returns a *scheduler.Loop ready for Run. Configuration errors (bad
// cron, unparseable timezone, missing required fields) abort before
// anything touches Redis; they're all wrapped in ErrConfigInvalid.
func Bootstrap(ctx context.Context, cfg *Config, client goredis.Cmdable, opts ...BootstrapOption) (*scheduler.Loop, error) {
	o := &bootstrapOptions{
		clock:       SystemClock{},
		logger:      slog.Default(),
		concurrency: 8,
	}
	for _, opt := range opts {
		opt(o)
	}

	schedules, err := buildSchedules(cfg)
	if err != nil {
		return nil, err
	}

	gw := redisgw.New(client,
		redisgw.WithLogger(o.logger),
		redisgw.WithBackoff(backoff.NewExponentialWithJitter(
			time.Duration(cfg.Redis.Spec.Backoff.InitialMS)*time.Millisecond,
			time.Duration(cfg.Redis.Spec.Backoff.MaxMS)*time.Millisecond,
		)),
	)
	layer := storage.New(gw, cfg.StorageOpts.Namespace, cfg.StorageOpts.ExqNamespace,
		storage.WithLogger(o.logger),
	)

	for _, s := range schedules {
		if err := layer.PersistSchedule(ctx, s); err != nil {
			return nil, fmt.Errorf("exqscheduler: bootstrap: persist schedule %q: %w", s.Name(), err)
		}
	}

	// Load from Redis rather than handing the loop cfg's in-memory list:
	// other replicas, or a prior deploy with a different config, may have
	// persisted schedules this process's cfg doesn't mention. The
	// scheduler never garbage-collects, so the loop must tick over the
	// union (§4.7).
	allSchedules, err := layer.LoadSchedules(ctx)
	if err != nil {
		return nil, fmt.Errorf("exqscheduler: bootstrap: load schedules: %w", err)
	}

	loopOpts := []scheduler.Option{
		scheduler.WithMissWindow(cfg.MissWindow()),
		scheduler.WithConcurrency(o.concurrency),
		scheduler.WithLogger(o.logger),
	}
	if o.metrics != nil {
		loopOpts = append(loopOpts, scheduler.WithMetrics(o.metrics))
	}
	if o.tracer != nil {
		loopOpts = append(loopOpts, scheduler.WithTracer(o.tracer))
	}

	return scheduler.New(o.clock, layer, allSchedules, loopOpts...), nil
}

// buildSchedules constructs every schedule in cfg.Schedules before
// anything touches Redis, so a single malformed entry aborts bootstrap
// cleanly (§4.7: "Malformed cron... abort with a wrapped ErrConfigInvalid
// before anything touches Redis").
func buildSchedules(cfg *Config) ([]*schedule.Schedule, error) {
	out := make([]*schedule.Schedule, 0, len(cfg.Schedules))
	for name, sc := range cfg.Schedules {
		tzSource := sc.Timezone
		if tzSource == "" {
			tzSource = cfg.ServerOpts.TimeZone
		}
		offset, err := ParseTZOffset(tzSource)
		if err != nil {
			return nil, fmt.Errorf("%w: schedules.%s: %v", ErrConfigInvalid, name, err)
		}

		enabled := true
		if sc.Enabled != nil {
			enabled = *sc.Enabled
		}

		tmpl := job.New(sc.Class, job.WithArgs(sc.Args...), job.WithQueue(sc.Queue))
		s, err := schedule.New(name, sc.Description, sc.Cron, tmpl,
			schedule.WithEnabled(enabled),
			schedule.WithIncludeMetadata(sc.IncludeMetadata),
			schedule.WithTZOffset(offset),
			schedule.WithQueue(sc.Queue),
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
		}
		out = append(out, s)
	}
	return out, nil
}
