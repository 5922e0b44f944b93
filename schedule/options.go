package schedule

import "time"

// Options holds the recognized schedule configuration keys from §3 of the
// scheduler's data model.
type Options struct {
	// Enabled gates whether the scheduler loop fires this schedule at all.
	// Defaults to true.
	Enabled bool

	// IncludeMetadata appends {scheduled_at: <firing-time>} to the job's
	// args list when true. Defaults to false.
	IncludeMetadata bool

	// TZOffset is the fixed offset from UTC this schedule's cron
	// expression is evaluated in, and scheduled_at is formatted in.
	// Defaults to zero (UTC).
	TZOffset time.Duration

	// Queue overrides the job template's queue when non-empty.
	Queue string
}

// DefaultOptions returns the documented defaults: enabled, no metadata,
// UTC, no queue override.
func DefaultOptions() Options {
	return Options{Enabled: true}
}

// Option is a functional option for configuring a Schedule.
type Option func(*Options)

// WithEnabled sets the enabled flag.
func WithEnabled(enabled bool) Option {
	return func(o *Options) { o.Enabled = enabled }
}

// WithIncludeMetadata toggles appending {scheduled_at: ...} to enqueued args.
func WithIncludeMetadata(include bool) Option {
	return func(o *Options) { o.IncludeMetadata = include }
}

// WithTZOffset sets the fixed UTC offset the cron expression is evaluated
// in.
func WithTZOffset(offset time.Duration) Option {
	return func(o *Options) { o.TZOffset = offset }
}

// WithQueue overrides the job template's queue.
func WithQueue(queue string) Option {
	return func(o *Options) { o.Queue = queue }
}
