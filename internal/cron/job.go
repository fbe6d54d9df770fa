// Package cron is the scheduled-job subsystem: recurring jobs with
// day/hour/minute granularity, a registry keyed by opaque IDs, and a fixed
// cadence poll loop that dispatches due jobs concurrently.
package cron

import (
	"context"
	"sync"
	"time"

	cronv3 "github.com/robfig/cron/v3"
)

// Action is the deferred unit of work a job executes. Bind arguments by
// closing over them when the job is added.
type Action func(ctx context.Context) error

type Kind int

const (
	KindDaily Kind = iota
	KindWeekly
	KindCron
)

// Job is one scheduled job. ShouldRun is read-only and safe to call from
// the poll loop on every tick; only Run advances lastRun.
//
// Ranges are not validated here: callers must supply hour in [0,23] and
// minute in [0,59].
type Job struct {
	kind   Kind
	day    time.Weekday
	hour   int
	minute int

	sched cronv3.Schedule // cron kind only
	added time.Time

	action Action

	mu      sync.Mutex
	lastRun time.Time
	hasRun  bool
}

func newDaily(hour, minute int, action Action) *Job {
	return &Job{kind: KindDaily, hour: hour, minute: minute, action: action, added: time.Now()}
}

func newWeekly(day time.Weekday, hour, minute int, action Action) *Job {
	return &Job{kind: KindWeekly, day: day, hour: hour, minute: minute, action: action, added: time.Now()}
}

func newCron(sched cronv3.Schedule, action Action) *Job {
	return &Job{kind: KindCron, sched: sched, action: action, added: time.Now()}
}

func (j *Job) Kind() Kind { return j.kind }

// LastRun returns the last run time and whether the job has ever run.
func (j *Job) LastRun() (time.Time, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastRun, j.hasRun
}

// ShouldRun reports whether the job is due at now.
//
// Daily and weekly jobs are suppressed for the rest of the calendar date
// they last ran on (date equality, not elapsed time: a run that is days
// late still fires on the next matching tick, and a second run on the same
// date is always suppressed). The time comparison is non-strict, so a job
// due exactly on the boundary fires.
func (j *Job) ShouldRun(now time.Time) bool {
	j.mu.Lock()
	lastRun, hasRun := j.lastRun, j.hasRun
	j.mu.Unlock()

	switch j.kind {
	case KindDaily, KindWeekly:
		if hasRun && sameDate(lastRun, now) {
			return false
		}
		if j.kind == KindWeekly && now.Weekday() != j.day {
			return false
		}
		at := time.Date(now.Year(), now.Month(), now.Day(), j.hour, j.minute, 0, 0, now.Location())
		return !now.Before(at)
	case KindCron:
		base := j.added
		if hasRun {
			base = lastRun
		}
		// cron schedules carry their own period; dedup falls out of Next
		// being strictly after the last run.
		return !j.sched.Next(base).After(now)
	default:
		return false
	}
}

// Run marks the job as run at now, then executes the action. lastRun is
// advanced BEFORE the action so a slow or failing action can never cause a
// double fire on the next poll tick; it is not rolled back on failure.
func (j *Job) Run(ctx context.Context, now time.Time) error {
	j.mu.Lock()
	j.lastRun = now
	j.hasRun = true
	j.mu.Unlock()

	if j.action == nil {
		return nil
	}
	return j.action(ctx)
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
