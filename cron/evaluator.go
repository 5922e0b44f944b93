package cron

import (
	"fmt"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// parser accepts standard 5-field cron expressions only — no seconds field,
// no "@every"/"@daily" descriptors. The scheduler's data model (§3) is a
// plain 5-field expression; descriptors would let a schedule definition
// express things the rest of the model (fixed offsets, miss-window replay)
// isn't built to reason about.
var parser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// maxLookback bounds how far PreviousFirings will search into the past
// before giving up. The search window starts at one hour and doubles until
// it holds n firings or reaches at least maxLookback, so the widest window
// searched is between maxLookback and twice it. Cron expressions that fire
// fewer than n times in that window (e.g. "0 0 29 2 *", leap days) get
// fewer than n results rather than search forever.
const maxLookback = 10 * 366 * 24 * time.Hour

// Evaluator evaluates a single 5-field cron expression in a fixed offset
// from UTC. It holds no mutable state; the same expression and offset
// always yield the same firings for the same instants, on any replica.
type Evaluator struct {
	expr   string
	offset time.Duration
	loc    *time.Location
	sched  cronlib.Schedule
}

// NewEvaluator parses expr and binds it to a fixed UTC offset (e.g.
// 5*time.Hour+30*time.Minute for "+05:30"). Returns an error wrapping the
// parser's error if expr is not a valid 5-field expression; bootstrap wraps
// it in ErrConfigInvalid.
func NewEvaluator(expr string, offset time.Duration) (*Evaluator, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("cron: parse %q: %w", expr, err)
	}
	return &Evaluator{
		expr:   expr,
		offset: offset,
		loc:    time.FixedZone(offsetName(offset), int(offset.Seconds())),
		sched:  sched,
	}, nil
}

// Expr returns the cron expression the Evaluator was built from.
func (e *Evaluator) Expr() string { return e.expr }

// Offset returns the fixed UTC offset firings are evaluated in.
func (e *Evaluator) Offset() time.Duration { return e.offset }

// Location returns the fixed-offset *time.Location firings are evaluated
// in, for callers that need to format an instant in the schedule's local
// time (e.g. the include_metadata scheduled_at field).
func (e *Evaluator) Location() *time.Location { return e.loc }

// NextFirings returns the n next firings strictly after from, ascending,
// normalized to UTC.
func (e *Evaluator) NextFirings(from time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	out := make([]time.Time, 0, n)
	cursor := from.In(e.loc)
	for len(out) < n {
		next := e.sched.Next(cursor)
		out = append(out, next.UTC())
		cursor = next
	}
	return out
}

// PreviousFirings returns the n most recent firings at or before from,
// descending, normalized to UTC. Returns fewer than n if the expression
// has not fired n times within maxLookback of from.
func (e *Evaluator) PreviousFirings(from time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	end := from.Add(time.Nanosecond)
	lookback := time.Hour
	var firings []time.Time
	for {
		firings = e.FiringsWithin(from.Add(-lookback), end)
		if len(firings) >= n || lookback >= maxLookback {
			break
		}
		lookback *= 2
	}
	if len(firings) > n {
		firings = firings[len(firings)-n:]
	}
	out := make([]time.Time, len(firings))
	for i, t := range firings {
		out[len(firings)-1-i] = t
	}
	return out
}

// FiringsWithin returns every firing in the half-open instant range
// [start, end), ascending, normalized to UTC. Equal start/end, or start
// after end, yields an empty slice.
func (e *Evaluator) FiringsWithin(start, end time.Time) []time.Time {
	if !end.After(start) {
		return nil
	}
	localStart := start.In(e.loc)
	localEnd := end.In(e.loc)

	var out []time.Time
	cursor := localStart.Add(-time.Minute)
	for {
		next := e.sched.Next(cursor)
		if !next.Before(localEnd) {
			return out
		}
		if !next.Before(localStart) {
			out = append(out, next.UTC())
		}
		cursor = next
	}
}

// offsetName formats a fixed offset as a zone name like "UTC+05:30".
func offsetName(offset time.Duration) string {
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	h := int(offset / time.Hour)
	m := int((offset % time.Hour) / time.Minute)
	return fmt.Sprintf("UTC%s%02d:%02d", sign, h, m)
}
