// Package scheduler implements the tick loop (spec §4.6): on every tick it
// reads the clock, and for every enabled schedule expands firings within
// the miss window and enqueues each through the storage layer.
//
// Unlike the teacher's cron.Scheduler, Loop runs on every replica
// independently — there is no leader election. Deduplication across
// replicas is entirely the storage layer's compare-and-set lock (§4.4);
// a replica that loses a race simply does nothing further for that firing.
package scheduler
