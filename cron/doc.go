// Package cron evaluates 5-field cron expressions against instants in a
// fixed UTC offset.
//
// # Evaluator
//
// An [Evaluator] wraps a parsed schedule and offset and answers three
// questions, each a pure function of its arguments:
//
//   - PreviousFirings: the n most recent firings at or before an instant.
//   - NextFirings: the n next firings strictly after an instant.
//   - FiringsWithin: every firing in a half-open instant range.
//
// Equality of cron expressions that match the same set of minutes yields
// identical firing sets — the evaluator never depends on anything but the
// expression, the offset, and the instants it is asked about. It holds no
// state that would make a restart or a second replica behave differently.
//
// # Timezones
//
// Schedules are evaluated in a fixed offset from UTC (e.g. "+05:30"), not
// an IANA timezone name, matching the scheduler's data model: a firing at
// local 09:00 with offset +05:30 occurs at 03:30 UTC every day, with no DST
// adjustment.
package cron
