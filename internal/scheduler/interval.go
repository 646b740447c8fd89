package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
)

// FirstExecution is the job start, or now for jobs that already started.
func FirstExecution(start, now time.Time) time.Time {
	if start.After(now) {
		return start
	}
	return now
}

// NextExecution advances prev on the job cadence, skipping slots missed while
// the poller was down. ok is false once the next slot passes end.
func NextExecution(prev, now, end time.Time, interval time.Duration) (next time.Time, ok bool) {
	schedule := cron.Every(interval)
	next = schedule.Next(prev)
	for !next.After(now) {
		next = schedule.Next(next)
	}
	if next.After(end) {
		return time.Time{}, false
	}
	return next, true
}
