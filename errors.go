package exqscheduler

import "errors"

// ErrConfigInvalid marks a malformed or incomplete configuration: missing
// required fields, an unparseable cron expression, or an unknown timezone
// offset. Fatal at bootstrap — it aborts startup before anything touches
// Redis.
//
// The scheduler's other two error kinds live closer to where they occur
// rather than in this root package, so callers can check them without an
// import cycle back into bootstrap: redis.ErrUnavailable (any Redis I/O
// failure — the tick logs and moves on, the miss window absorbs the lost
// firing) and job.ErrEncoding (a single schedule's job failed to
// serialize — that schedule is skipped for the current tick only).
//
// A fourth outcome, lock contention, is deliberately not an error at all:
// storage.Layer.Enqueue reports it as a bool, because the spec treats a
// losing CAS as the normal dedup outcome, not a failure (§7).
var ErrConfigInvalid = errors.New("exqscheduler: invalid configuration")
