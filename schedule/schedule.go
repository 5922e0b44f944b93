package schedule

import (
	"fmt"
	"time"

	"github.com/SavickyAnt/exq-scheduler/cron"
	"github.com/SavickyAnt/exq-scheduler/job"
)

// TimeRange is a half-open instant range [Start, End) over which firings
// are expanded.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// ScheduledJob pairs a materialized job with the firing instant it was
// produced for. The firing instant, not wall-clock enqueue time, is what
// the storage layer's lock key is content-addressed on.
type ScheduledJob struct {
	Job        *job.Job
	FiringTime time.Time
}

// Schedule is an immutable description of a recurring job: a name, a cron
// expression, a job template, and options. Construct with New; nothing
// about a Schedule changes afterward.
type Schedule struct {
	name        string
	description string
	cronExpr    string
	template    *job.Job
	opts        Options
	evaluator   *cron.Evaluator
}

// New builds a Schedule. cronExpr must be a valid 5-field cron expression;
// template is the job enqueued on each firing (its Args are not mutated —
// GetJobs clones before applying include_metadata).
func New(name, description, cronExpr string, template *job.Job, opts ...Option) (*Schedule, error) {
	if name == "" {
		return nil, fmt.Errorf("schedule: name is required")
	}
	if template == nil {
		return nil, fmt.Errorf("schedule %q: job template is required", name)
	}

	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	evaluator, err := cron.NewEvaluator(cronExpr, o.TZOffset)
	if err != nil {
		return nil, fmt.Errorf("schedule %q: %w", name, err)
	}

	tmpl := template.Clone()
	if o.Queue != "" {
		tmpl.Queue = o.Queue
	}

	return &Schedule{
		name:        name,
		description: description,
		cronExpr:    cronExpr,
		template:    tmpl,
		opts:        o,
		evaluator:   evaluator,
	}, nil
}

// Name returns the schedule's unique identifier.
func (s *Schedule) Name() string { return s.name }

// Description returns the opaque human-readable description.
func (s *Schedule) Description() string { return s.description }

// Cron returns the 5-field cron expression.
func (s *Schedule) Cron() string { return s.cronExpr }

// Queue returns the queue firings are enqueued to (job template's queue,
// possibly overridden by Options.Queue).
func (s *Schedule) Queue() string { return s.template.Queue }

// Enabled returns the configured enabled flag. Note: the scheduler loop
// consults storage.Layer.IsEnabled at tick time, not this — Options.Enabled
// is only the value bootstrap persists as the initial state.
func (s *Schedule) Enabled() bool { return s.opts.Enabled }

// IncludeMetadata reports whether scheduled_at is appended to job args.
func (s *Schedule) IncludeMetadata() bool { return s.opts.IncludeMetadata }

// TZOffset returns the fixed UTC offset the cron expression is evaluated in.
func (s *Schedule) TZOffset() time.Duration { return s.opts.TZOffset }

// Evaluator returns the schedule's cron evaluator, for callers (storage's
// RecordTimes) that need previous/next firings directly.
func (s *Schedule) Evaluator() *cron.Evaluator { return s.evaluator }

// Template returns a clone of the job template, for callers (storage's
// PersistSchedule) that need to serialize its class and args without
// risking mutation of the Schedule's own copy.
func (s *Schedule) Template() *job.Job { return s.template.Clone() }

// GetJobs expands firings within tr and returns the job to enqueue for
// each, ascending by firing time. include_metadata, when set, appends
// {"scheduled_at": "<firing time, ISO8601, in the schedule's timezone>"}
// to each job's args.
//
// Each returned job's JID is deterministically derived from this
// schedule's name and the firing instant, not the template's own JID —
// independently-bootstrapped replicas must encode byte-identical jobs for
// the same (schedule, firing) pair, since storage.Enqueue's lock key is
// content-addressed over those bytes.
func (s *Schedule) GetJobs(tr TimeRange) []ScheduledJob {
	firings := s.evaluator.FiringsWithin(tr.Start, tr.End)
	out := make([]ScheduledJob, 0, len(firings))
	for _, firing := range firings {
		j := s.template.Clone()
		if s.opts.IncludeMetadata {
			local := firing.In(s.evaluator.Location())
			j.Args = append(j.Args, map[string]string{
				"scheduled_at": local.Format(time.RFC3339),
			})
		}
		j.JID = job.DeterministicJID(s.name + "|" + firing.UTC().Format(time.RFC3339))
		out = append(out, ScheduledJob{Job: j, FiringTime: firing})
	}
	return out
}
