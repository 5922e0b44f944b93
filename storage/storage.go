package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/SavickyAnt/exq-scheduler/job"
	redisgw "github.com/SavickyAnt/exq-scheduler/redis"
	"github.com/SavickyAnt/exq-scheduler/schedule"
)

// definitionDTO is the JSON shape persisted in the scheduler namespace's
// "schedules" hash — everything schedule.New needs to reconstruct a
// Schedule, plus enough of the job template to rebuild it.
type definitionDTO struct {
	Description     string `json:"description"`
	Cron            string `json:"cron"`
	Enabled         bool   `json:"enabled"`
	IncludeMetadata bool   `json:"include_metadata"`
	TZOffsetSeconds int    `json:"tz_offset_seconds"`
	Queue           string `json:"queue"`
	JobClass        string `json:"job_class"`
	JobArgs         []any  `json:"job_args,omitempty"`
}

// stateDTO is the JSON shape persisted in the "states" hash.
type stateDTO struct {
	Enabled bool `json:"enabled"`
}

// Option configures a Layer.
type Option func(*Layer)

// WithLogger sets the logger used for per-operation diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(ly *Layer) { ly.logger = l }
}

// WithReplayRateLimit bounds how fast EnqueueRange replays a backlog of
// missed firings, so a long outage followed by restart doesn't burst
// hundreds of LPUSH/CAS calls at Redis in a single tick. Default 50/s,
// burst 10.
func WithReplayRateLimit(perSecond float64, burst int) Option {
	return func(ly *Layer) { ly.replayLimiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// Layer implements the storage operations of spec §4.5 on top of a
// redis.Gateway. schedulerNS prefixes schedule metadata (definitions,
// enabled state, firing times); workerNS prefixes queues and the
// enqueued-jobs lock set, shared with the downstream worker ecosystem.
type Layer struct {
	gateway       *redisgw.Gateway
	schedulerNS   string
	workerNS      string
	logger        *slog.Logger
	replayLimiter *rate.Limiter
}

// New builds a Layer. schedulerNS and workerNS correspond to
// storage_opts.namespace and storage_opts.exq_namespace respectively (§6).
func New(gateway *redisgw.Gateway, schedulerNS, workerNS string, opts ...Option) *Layer {
	ly := &Layer{
		gateway:       gateway,
		schedulerNS:   schedulerNS,
		workerNS:      workerNS,
		logger:        slog.Default(),
		replayLimiter: rate.NewLimiter(50, 10),
	}
	for _, o := range opts {
		o(ly)
	}
	return ly
}

func (ly *Layer) definitionsKey() string { return redisgw.Join(ly.schedulerNS, "schedules") }
func (ly *Layer) statesKey() string      { return redisgw.Join(ly.schedulerNS, "states") }
func (ly *Layer) lastTimesKey() string   { return redisgw.Join(ly.schedulerNS, "last_times") }
func (ly *Layer) nextTimesKey() string   { return redisgw.Join(ly.schedulerNS, "next_times") }
func (ly *Layer) firstRunsKey() string   { return redisgw.Join(ly.schedulerNS, "first_runs") }
func (ly *Layer) lastRunsKey() string    { return redisgw.Join(ly.schedulerNS, "last_runs") }
func (ly *Layer) queuesKey() string      { return redisgw.Join(ly.workerNS, "queues") }
func (ly *Layer) queueKey(q string) string {
	return redisgw.Join(ly.workerNS, "queue:"+q)
}
func (ly *Layer) lockKey(encodedJob, firingISO string) string {
	return redisgw.Join(ly.workerNS, "enqueued_jobs:"+encodedJob+":"+firingISO)
}

// PersistSchedule writes s's definition and state unconditionally. This is
// the reconciliation point at bootstrap (§4.7): running it twice with the
// same Schedule leaves Redis bit-identical (P4).
func (ly *Layer) PersistSchedule(ctx context.Context, s *schedule.Schedule) error {
	tmpl := s.Template()
	def := definitionDTO{
		Description:     s.Description(),
		Cron:            s.Cron(),
		Enabled:         s.Enabled(),
		IncludeMetadata: s.IncludeMetadata(),
		TZOffsetSeconds: int(s.TZOffset().Seconds()),
		Queue:           s.Queue(),
		JobClass:        tmpl.Class,
		JobArgs:         tmpl.Args,
	}
	defBytes, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("storage: persist schedule %q: marshal definition: %w", s.Name(), err)
	}
	if err := ly.gateway.HashSet(ctx, ly.definitionsKey(), s.Name(), string(defBytes)); err != nil {
		return fmt.Errorf("storage: persist schedule %q: %w", s.Name(), err)
	}

	state := stateDTO{Enabled: s.Enabled()}
	stateBytes, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("storage: persist schedule %q: marshal state: %w", s.Name(), err)
	}
	if err := ly.gateway.HashSet(ctx, ly.statesKey(), s.Name(), string(stateBytes)); err != nil {
		return fmt.Errorf("storage: persist schedule %q: %w", s.Name(), err)
	}
	return nil
}

// LoadSchedules enumerates every definition in the scheduler namespace and
// reconstructs it. A definition that fails to parse is logged and skipped
// rather than aborting the whole load — one corrupt entry should not take
// down every other schedule.
func (ly *Layer) LoadSchedules(ctx context.Context) ([]*schedule.Schedule, error) {
	names, err := ly.gateway.HashKeys(ctx, ly.definitionsKey())
	if err != nil {
		return nil, fmt.Errorf("storage: load schedules: %w", err)
	}

	out := make([]*schedule.Schedule, 0, len(names))
	for _, name := range names {
		raw, ok, err := ly.gateway.HashGet(ctx, ly.definitionsKey(), name)
		if err != nil {
			return nil, fmt.Errorf("storage: load schedule %q: %w", name, err)
		}
		if !ok {
			continue
		}
		var def definitionDTO
		if err := json.Unmarshal([]byte(raw), &def); err != nil {
			ly.logger.Error("storage: skipping malformed schedule definition", "name", name, "error", err)
			continue
		}

		tmpl := job.New(def.JobClass, job.WithArgs(def.JobArgs...), job.WithQueue(def.Queue))
		s, err := schedule.New(name, def.Description, def.Cron, tmpl,
			schedule.WithEnabled(def.Enabled),
			schedule.WithIncludeMetadata(def.IncludeMetadata),
			schedule.WithTZOffset(time.Duration(def.TZOffsetSeconds)*time.Second),
			schedule.WithQueue(def.Queue),
		)
		if err != nil {
			ly.logger.Error("storage: skipping invalid schedule definition", "name", name, "error", err)
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// IsEnabled reports the enabled state for name, consulting the states hash.
// A missing entry is enabled-by-default (P2).
func (ly *Layer) IsEnabled(ctx context.Context, name string) (bool, error) {
	raw, ok, err := ly.gateway.HashGet(ctx, ly.statesKey(), name)
	if err != nil {
		return false, fmt.Errorf("storage: is_enabled %q: %w", name, err)
	}
	if !ok {
		return true, nil
	}
	var st stateDTO
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		ly.logger.Error("storage: malformed state, treating as enabled", "name", name, "error", err)
		return true, nil
	}
	return st.Enabled, nil
}

// RecordTimes computes the one previous and one next firing relative to
// now and writes last_times/next_times, writing first_runs only if
// currently absent and always overwriting last_runs. It is safe to call
// more than once per tick (P5) — every call computes from the same now.
func (ly *Layer) RecordTimes(ctx context.Context, s *schedule.Schedule, now time.Time) error {
	prev := s.Evaluator().PreviousFirings(now, 1)
	next := s.Evaluator().NextFirings(now, 1)

	if len(prev) == 1 {
		if err := ly.setTimeField(ctx, ly.lastTimesKey(), s.Name(), prev[0]); err != nil {
			return err
		}
	}
	if len(next) == 1 {
		if err := ly.setTimeField(ctx, ly.nextTimesKey(), s.Name(), next[0]); err != nil {
			return err
		}
	}

	_, exists, err := ly.gateway.HashGet(ctx, ly.firstRunsKey(), s.Name())
	if err != nil {
		return fmt.Errorf("storage: record_times %q: %w", s.Name(), err)
	}
	if !exists {
		if err := ly.setTimeField(ctx, ly.firstRunsKey(), s.Name(), now); err != nil {
			return err
		}
	}

	return ly.setTimeField(ctx, ly.lastRunsKey(), s.Name(), now)
}

func (ly *Layer) setTimeField(ctx context.Context, key, field string, t time.Time) error {
	b, err := json.Marshal(t.UTC())
	if err != nil {
		return fmt.Errorf("storage: marshal time: %w", err)
	}
	if err := ly.gateway.HashSet(ctx, key, field, string(b)); err != nil {
		return fmt.Errorf("storage: set %s/%s: %w", key, field, err)
	}
	return nil
}

// Enqueue performs the guarded-enqueue protocol of §4.5 for a single
// scheduled job: resolve its queue, compute the content-addressed lock
// key, CAS it into existence, and unconditionally record times. The
// returned bool reports whether this call newly enqueued the job — false
// means another replica or an earlier tick already claimed it
// (LockContended, not an error per §7).
func (ly *Layer) Enqueue(ctx context.Context, s *schedule.Schedule, sj schedule.ScheduledJob, now time.Time) (enqueued bool, err error) {
	encoded, encErr := sj.Job.Encode()
	if encErr != nil {
		return false, fmt.Errorf("storage: enqueue %q: %w", s.Name(), encErr)
	}

	queue := sj.Job.Queue
	if queue == "" {
		queue = job.DefaultQueue
	}
	firingISO := sj.FiringTime.UTC().Format(time.RFC3339)
	lock := ly.lockKey(string(encoded), firingISO)

	acquired, casErr := ly.gateway.CAS(ctx, lock, func(pipe goredis.Pipeliner) {
		pipe.SAdd(ctx, ly.queuesKey(), queue)
		pipe.LPush(ctx, ly.queueKey(queue), string(encoded))
	})

	if recErr := ly.RecordTimes(ctx, s, now); recErr != nil {
		if casErr != nil {
			return acquired, fmt.Errorf("storage: enqueue %q: cas: %v; record_times: %w", s.Name(), casErr, recErr)
		}
		return acquired, fmt.Errorf("storage: enqueue %q: %w", s.Name(), recErr)
	}
	if casErr != nil {
		return false, fmt.Errorf("storage: enqueue %q: %w", s.Name(), casErr)
	}
	return acquired, nil
}

// EnqueueRange expands s's firings within tr and enqueues each in
// ascending firing-time order, throttled by the Layer's replay rate
// limiter so a large missed-firing backlog doesn't burst Redis. Returns
// the count of calls that newly enqueued a job and the count that lost
// the lock to another replica or an earlier tick. A failure on any
// firing aborts the remaining firings for this schedule this tick — the
// next tick's miss window will pick up where this one left off.
func (ly *Layer) EnqueueRange(ctx context.Context, s *schedule.Schedule, tr schedule.TimeRange, now time.Time) (enqueuedCount, contendedCount int, err error) {
	jobs := s.GetJobs(tr)
	for _, sj := range jobs {
		if err := ly.replayLimiter.Wait(ctx); err != nil {
			return enqueuedCount, contendedCount, fmt.Errorf("storage: enqueue_range %q: %w", s.Name(), err)
		}
		acquired, err := ly.Enqueue(ctx, s, sj, now)
		if err != nil {
			return enqueuedCount, contendedCount, err
		}
		if acquired {
			enqueuedCount++
		} else {
			contendedCount++
		}
	}
	return enqueuedCount, contendedCount, nil
}
