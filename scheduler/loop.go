package scheduler

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/SavickyAnt/exq-scheduler/schedule"
	"github.com/SavickyAnt/exq-scheduler/storage"
)

// tracerName is the instrumentation scope name for scheduler tracing.
const tracerName = "github.com/SavickyAnt/exq-scheduler/scheduler"

// Clock returns the current instant. Defined locally so this package never
// needs to import the root package that constructs it — the root's
// SystemClock and FakeClock satisfy this interface structurally.
type Clock interface {
	Now() time.Time
}

// Option configures a Loop.
type Option func(*Loop)

// WithTickInterval sets the period between ticks. Default 1s, per §4.6.
func WithTickInterval(d time.Duration) Option {
	return func(l *Loop) { l.tickInterval = d }
}

// WithMissWindow sets the duration subtracted from now to form each tick's
// evaluation range (server_opts.missed_jobs_threshold_duration, §6).
// Default 100s.
func WithMissWindow(d time.Duration) Option {
	return func(l *Loop) { l.missWindow = d }
}

// WithConcurrency bounds how many schedules are processed in parallel
// within a single tick. Default 8. Zero or negative means unbounded.
func WithConcurrency(n int) Option {
	return func(l *Loop) { l.concurrency = n }
}

// WithLogger sets the logger used for per-tick and per-schedule diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// WithMetrics attaches Prometheus instruments. If omitted, ticks run
// without recording metrics.
func WithMetrics(m *Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

// WithTracer overrides the OpenTelemetry tracer. Defaults to
// otel.Tracer(tracerName), which is a noop unless a TracerProvider is
// configured globally.
func WithTracer(t trace.Tracer) Option {
	return func(l *Loop) { l.tracer = t }
}

// Loop is the scheduler's tick loop (§4.6). Every replica runs its own
// Loop independently; there is no leader election — the storage layer's
// CAS lock is the only thing preventing duplicate enqueues across
// replicas.
type Loop struct {
	clock     Clock
	storage   *storage.Layer
	schedules []*schedule.Schedule

	tickInterval time.Duration
	missWindow   time.Duration
	concurrency  int

	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// New builds a Loop over the given schedules, loaded once at bootstrap.
// Schedules are not reloaded while the Loop runs; a config change requires
// a fresh Bootstrap.
func New(clock Clock, layer *storage.Layer, schedules []*schedule.Schedule, opts ...Option) *Loop {
	l := &Loop{
		clock:        clock,
		storage:      layer,
		schedules:    schedules,
		tickInterval: 1 * time.Second,
		missWindow:   100 * time.Second,
		concurrency:  8,
		logger:       slog.Default(),
		tracer:       otel.Tracer(tracerName),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Run drives the tick loop until ctx is cancelled. A tick already in
// flight when ctx is cancelled runs to completion — every per-schedule
// Redis operation it issued is allowed to finish — rather than being torn
// down mid-enqueue; only the inter-tick sleep is interruptible.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := l.Tick(context.WithoutCancel(ctx)); err != nil {
				l.logger.Error("scheduler: tick failed", "error", err)
			}
		}
	}
}

// Tick runs exactly one pass of the loop: read now, and for every schedule
// enqueue its firings within the miss window. Schedules are processed
// concurrently, bounded by WithConcurrency; a failure on one schedule is
// logged and never aborts the others or the tick itself.
func (l *Loop) Tick(ctx context.Context) error {
	ctx, span := l.tracer.Start(ctx, "scheduler.tick", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	start := time.Now()
	now := l.clock.Now()
	span.SetAttributes(attribute.String("scheduler.tick.now", now.Format(time.RFC3339)))

	group, gctx := errgroup.WithContext(ctx)
	if l.concurrency > 0 {
		group.SetLimit(l.concurrency)
	}

	for _, s := range l.schedules {
		s := s
		group.Go(func() error {
			l.processSchedule(gctx, s, now)
			return nil
		})
	}
	// group.Wait's error is always nil: processSchedule never returns one,
	// by design, so a single schedule's failure can't cancel gctx and
	// starve the others.
	_ = group.Wait()

	if l.metrics != nil {
		l.metrics.ticksTotal.Inc()
		l.metrics.tickDuration.Observe(time.Since(start).Seconds())
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func (l *Loop) processSchedule(ctx context.Context, s *schedule.Schedule, now time.Time) {
	ctx, span := l.tracer.Start(ctx, "scheduler.schedule",
		trace.WithAttributes(attribute.String("scheduler.schedule.name", s.Name())),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	enabled, err := l.storage.IsEnabled(ctx, s.Name())
	if err != nil {
		l.recordStorageError(span, s, "is_enabled", err)
		return
	}
	if !enabled {
		return
	}

	tr := schedule.TimeRange{Start: now.Add(-l.missWindow), End: now}
	enqueued, contended, err := l.storage.EnqueueRange(ctx, s, tr, now)
	if err != nil {
		l.recordStorageError(span, s, "enqueue_range", err)
		return
	}

	span.SetAttributes(
		attribute.Int("scheduler.schedule.enqueued", enqueued),
		attribute.Int("scheduler.schedule.lock_contended", contended),
	)
	if l.metrics != nil {
		if enqueued > 0 {
			l.metrics.firingsEnqueuedTotal.Add(float64(enqueued))
		}
		if contended > 0 {
			l.metrics.lockContendedTotal.Add(float64(contended))
		}
	}
}

func (l *Loop) recordStorageError(span trace.Span, s *schedule.Schedule, op string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	l.logger.Warn("scheduler: schedule tick failed, will retry next tick",
		"schedule", s.Name(), "op", op, "error", err)
	if l.metrics != nil {
		l.metrics.storageErrorsTotal.Inc()
	}
}
