package cron

import (
	"context"
	"errors"
	"testing"
	"time"
)

// mustTime builds a local time for a given weekday by walking forward from
// a known Monday (2024-01-01 was a Monday).
func weekdayTime(t *testing.T, day time.Weekday, hour, minute int) time.Time {
	t.Helper()
	base := time.Date(2024, 1, 1, hour, minute, 0, 0, time.Local) // Monday
	for base.Weekday() != day {
		base = base.AddDate(0, 0, 1)
	}
	return base
}

func TestDailyShouldRun(t *testing.T) {
	t.Parallel()
	j := newDaily(9, 0, nil)

	day := time.Date(2024, 3, 14, 0, 0, 0, 0, time.Local)

	if j.ShouldRun(day.Add(8*time.Hour + 59*time.Minute)) {
		t.Fatal("due before scheduled time")
	}
	// Non-strict boundary: exactly 09:00 fires.
	if !j.ShouldRun(day.Add(9 * time.Hour)) {
		t.Fatal("not due at exact boundary")
	}
	if !j.ShouldRun(day.Add(15 * time.Hour)) {
		t.Fatal("not due when overdue")
	}
}

func TestDailyNoDoubleFirePerDate(t *testing.T) {
	t.Parallel()
	j := newDaily(9, 0, nil)
	now := time.Date(2024, 3, 14, 9, 0, 0, 0, time.Local)

	if !j.ShouldRun(now) {
		t.Fatal("not due")
	}
	if err := j.Run(context.Background(), now); err != nil {
		t.Fatal(err)
	}

	// Every later tick on the same date stays suppressed.
	for _, d := range []time.Duration{time.Minute, time.Hour, 14 * time.Hour} {
		if j.ShouldRun(now.Add(d)) {
			t.Fatalf("due again %v after run on same date", d)
		}
	}
	// Next day it fires again.
	if !j.ShouldRun(now.AddDate(0, 0, 1)) {
		t.Fatal("not due the next day")
	}
}

func TestWeeklyScenario(t *testing.T) {
	t.Parallel()
	j := newWeekly(time.Monday, 9, 0, nil)

	monday0859 := weekdayTime(t, time.Monday, 8, 59)
	if j.ShouldRun(monday0859) {
		t.Fatal("due Monday 08:59")
	}

	monday0900 := weekdayTime(t, time.Monday, 9, 0)
	if !j.ShouldRun(monday0900) {
		t.Fatal("not due Monday 09:00")
	}

	if err := j.Run(context.Background(), monday0900); err != nil {
		t.Fatal(err)
	}

	// Rest of Monday: suppressed.
	if j.ShouldRun(monday0900.Add(5 * time.Hour)) {
		t.Fatal("due again later on Monday")
	}
	// Wrong weekday: never due.
	if j.ShouldRun(monday0900.AddDate(0, 0, 2)) {
		t.Fatal("due on Wednesday")
	}
	// Following Monday before 09:00: not yet.
	if j.ShouldRun(monday0900.AddDate(0, 0, 7).Add(-time.Minute)) {
		t.Fatal("due next Monday 08:59")
	}
	// Following Monday at 09:00: due again.
	if !j.ShouldRun(monday0900.AddDate(0, 0, 7)) {
		t.Fatal("not due next Monday 09:00")
	}
}

func TestWeeklyNeverRunFiresOnMatchingDay(t *testing.T) {
	t.Parallel()
	j := newWeekly(time.Friday, 18, 30, nil)

	if j.ShouldRun(weekdayTime(t, time.Thursday, 23, 59)) {
		t.Fatal("due on Thursday")
	}
	if j.ShouldRun(weekdayTime(t, time.Friday, 18, 29)) {
		t.Fatal("due before time-of-day")
	}
	if !j.ShouldRun(weekdayTime(t, time.Friday, 18, 30)) {
		t.Fatal("not due on first matching tick")
	}
}

func TestWeeklyLateRunIsNotSkipped(t *testing.T) {
	t.Parallel()
	j := newWeekly(time.Monday, 9, 0, nil)
	monday := weekdayTime(t, time.Monday, 9, 0)

	if err := j.Run(context.Background(), monday); err != nil {
		t.Fatal(err)
	}

	// Suppression is date equality, not "within 7 days": after downtime
	// across several weeks the job fires on the next matching tick.
	threeWeeksLater := monday.AddDate(0, 0, 21)
	if !j.ShouldRun(threeWeeksLater) {
		t.Fatal("not due after multi-week gap")
	}
}

func TestRunSetsLastRunBeforeAction(t *testing.T) {
	t.Parallel()
	var duringAction bool
	j := newDaily(9, 0, nil)
	now := time.Date(2024, 3, 14, 9, 0, 0, 0, time.Local)
	j.action = func(ctx context.Context) error {
		// The job must already be marked as run: a concurrent poll tick
		// during a slow action may not double-schedule.
		duringAction = j.ShouldRun(now.Add(time.Minute))
		return errors.New("action failed")
	}

	if err := j.Run(context.Background(), now); err == nil {
		t.Fatal("expected action error")
	}
	if duringAction {
		t.Fatal("job still due while action was running")
	}

	// Failure does not roll back lastRun.
	if last, ok := j.LastRun(); !ok || !last.Equal(now) {
		t.Fatalf("LastRun = (%v, %v)", last, ok)
	}
}

func TestCronRecurrence(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	id, err := reg.AddCron("*/15 * * * *", nil)
	if err != nil {
		t.Fatalf("AddCron error: %v", err)
	}
	var job *Job
	for _, e := range reg.Snapshot() {
		if e.ID == id {
			job = e.Job
		}
	}
	if job == nil {
		t.Fatal("job not in snapshot")
	}

	start := time.Now()
	// Next occurrence strictly after creation; one period later it is due.
	if !job.ShouldRun(start.Add(16 * time.Minute)) {
		t.Fatal("cron job not due one period after creation")
	}
	now := start.Add(16 * time.Minute)
	if err := job.Run(context.Background(), now); err != nil {
		t.Fatal(err)
	}
	if job.ShouldRun(now.Add(time.Minute)) {
		t.Fatal("cron job due again right after running")
	}
	if !job.ShouldRun(now.Add(16 * time.Minute)) {
		t.Fatal("cron job not due next period")
	}
}

func TestCronInvalidSpec(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	if _, err := reg.AddCron("not a cron spec", nil); err == nil {
		t.Fatal("expected parse error")
	}
	if reg.Len() != 0 {
		t.Fatalf("registry size = %d after failed add", reg.Len())
	}
}
