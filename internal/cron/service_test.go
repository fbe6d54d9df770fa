package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"rosterbot/pkg/logx"
)

func TestLoopDispatchesDueJobs(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	svc := New(Config{PollInterval: 10 * time.Millisecond}, reg, logx.Nop(), nil)

	var ran atomic.Int32
	// A daily job scheduled at midnight is immediately overdue.
	reg.AddDaily(0, 0, func(ctx context.Context) error {
		ran.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)
	defer func() {
		cancel()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
		defer stopCancel()
		svc.Stop(stopCtx)
	}()

	deadline := time.After(2 * time.Second)
	for ran.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("job never dispatched")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Dedup: with many more ticks elapsed, the job ran exactly once today.
	time.Sleep(50 * time.Millisecond)
	if got := ran.Load(); got != 1 {
		t.Fatalf("job ran %d times, want 1", got)
	}
}

func TestFailingJobDoesNotBlockOthers(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	svc := New(Config{PollInterval: 10 * time.Millisecond}, reg, logx.Nop(), nil)

	blocked := make(chan struct{})
	var okRan atomic.Bool

	reg.AddDaily(0, 0, func(ctx context.Context) error {
		<-blocked // stuck job
		return nil
	})
	reg.AddDaily(0, 0, func(ctx context.Context) error {
		return errors.New("boom")
	})
	reg.AddDaily(0, 0, func(ctx context.Context) error {
		okRan.Store(true)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)

	deadline := time.After(2 * time.Second)
	for !okRan.Load() {
		select {
		case <-deadline:
			t.Fatal("healthy job starved by stuck/failing siblings")
		case <-time.After(5 * time.Millisecond):
		}
	}

	close(blocked)
	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	svc.Stop(stopCtx)
}

func TestStartIsIdempotentPerService(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	svc := New(Config{PollInterval: 10 * time.Millisecond}, reg, logx.Nop(), nil)

	var ran atomic.Int32
	reg.AddDaily(0, 0, func(ctx context.Context) error {
		ran.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	svc.Start(ctx) // second Start must not spawn a second loop

	deadline := time.After(2 * time.Second)
	for ran.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("job never dispatched")
		case <-time.After(5 * time.Millisecond):
		}
	}
	time.Sleep(50 * time.Millisecond)
	if got := ran.Load(); got != 1 {
		t.Fatalf("job ran %d times; double-started loop?", got)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	svc.Stop(stopCtx)
}
