// Package job defines the Sidekiq-compatible job value object enqueued by
// the scheduler.
//
// A [Job] is the wire payload pushed onto a worker queue: a class name,
// positional arguments, a target queue, and a generated job ID. It carries
// no execution state — the scheduler only materializes and enqueues jobs,
// it never runs them (that's the downstream worker's job).
//
//	j := job.New("SendReportJob", job.WithArgs(reportID), job.WithQueue("reports"))
//	payload, err := j.Encode()
package job
