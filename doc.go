// Package exqscheduler implements a distributed cron-style job scheduler.
// It periodically materializes jobs defined by cron expressions and
// enqueues them into a shared Redis-backed work queue compatible with a
// Sidekiq-style worker ecosystem.
//
// The package evaluates cron expressions in arbitrary fixed-offset time
// zones against a monotonically advancing clock, discovers missed firings
// after downtime and replays them within a bounded window, and guarantees
// that across any number of concurrent scheduler replicas each
// (schedule, firing-time) pair is enqueued at most once.
//
// # Quick Start
//
//	data, err := os.ReadFile("scheduler.yaml")
//	cfg, err := exqscheduler.LoadConfig(data)
//	loop, err := exqscheduler.Bootstrap(ctx, cfg, redisClient)
//	go loop.Run(ctx)
//
// # Architecture
//
// Six collaborating components, each its own package:
//
//   - cron:      pure cron expression evaluation (previous/next/within).
//   - job:       the Sidekiq-style job value object enqueued to workers.
//   - schedule:  the immutable schedule definition and job materialization.
//   - redis:     a thin typed gateway over the Redis primitives in use.
//   - storage:   schedule persistence, runtime state, and guarded enqueue.
//   - scheduler: the tick loop that ties the above together.
//
// This package itself only holds the clock capability, configuration
// loading, and the bootstrap sequence that wires the others together.
package exqscheduler
