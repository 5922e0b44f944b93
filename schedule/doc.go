// Package schedule holds the immutable description of a recurring job and
// turns firings into jobs ready for the storage layer to enqueue.
//
// A [Schedule] is built once, from a name, a cron expression, a job
// template, and a set of [Options] (enabled, include-metadata, a fixed
// timezone offset, a queue override). Nothing about a Schedule changes
// after construction — per-schedule runtime state (enabled flag, last/next
// firing, first/last tick) lives in the storage layer instead, keyed by
// name.
//
//	tmpl := job.New("GenerateReportJob", job.WithArgs("pdf"))
//	s, err := schedule.New("daily-report", "generate the daily PDF report",
//	    "0 9 * * *", tmpl, schedule.WithTZOffset(5*time.Hour+30*time.Minute))
//
//	jobs := s.GetJobs(schedule.TimeRange{Start: start, End: end})
package schedule
