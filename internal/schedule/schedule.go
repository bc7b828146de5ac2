// Package schedule computes when the next automated snapshot is due.
package schedule

import (
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultInterval applies when a VM has no usable cron expression.
const DefaultInterval = 24 * time.Hour

// Next returns the first occurrence of expr strictly after now, evaluated in
// loc. An empty or unparseable expression yields now + DefaultInterval.
func Next(expr string, now time.Time, loc *time.Location) time.Time {
	if expr == "" {
		return now.Add(DefaultInterval)
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return now.Add(DefaultInterval)
	}
	if loc == nil {
		loc = time.UTC
	}
	next := sched.Next(now.In(loc))
	if next.IsZero() {
		return now.Add(DefaultInterval)
	}
	return next
}

// Valid reports whether expr parses as a standard five-field cron expression.
func Valid(expr string) bool {
	_, err := cron.ParseStandard(expr)
	return err == nil
}
