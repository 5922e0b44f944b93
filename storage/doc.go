// Package storage implements the storage layer (spec §4.5): schedule
// definitions and enabled/disabled state live in the scheduler namespace;
// queues and the enqueued-jobs lock set live in the worker namespace, so
// downstream Sidekiq-compatible workers can consume them without knowing
// anything about this project's own metadata.
//
// Layer is the only component that talks to redis.Gateway directly.
// Bootstrap calls PersistSchedule once per configured schedule during
// reconciliation and then LoadSchedules once; the scheduler loop calls
// IsEnabled and EnqueueRange on every tick.
package storage
