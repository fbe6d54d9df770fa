package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGoRecordsFirstError(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	want := errors.New("boom")
	s.Go("failing", func(ctx context.Context) error { return want })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.Wait(ctx)
	if err == nil || !errors.Is(err, want) {
		t.Fatalf("Wait() = %v, want wrapped %v", err, want)
	}
}

func TestPanicIsContained(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go("panicky", func(ctx context.Context) error { panic("oops") })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Wait(ctx); err == nil {
		t.Fatal("expected panic to surface as error")
	}
}

func TestCancelOnError(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithCancelOnError(true))
	s.Go("failing", func(ctx context.Context) error { return errors.New("boom") })

	select {
	case <-s.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("context not canceled after goroutine error")
	}
}

func TestGoRestartStopsOnCancel(t *testing.T) {
	t.Parallel()
	s := New(context.Background())

	runs := make(chan struct{}, 16)
	s.GoRestart("flaky", func(ctx context.Context) error {
		runs <- struct{}{}
		return errors.New("exit")
	}, time.Millisecond, 4*time.Millisecond)

	// Expect at least two runs (i.e. a restart happened).
	for i := 0; i < 2; i++ {
		select {
		case <-runs:
		case <-time.After(time.Second):
			t.Fatalf("run %d never happened", i)
		}
	}

	s.Cancel()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = s.Wait(ctx)
	if s.Active() != 0 {
		t.Fatalf("Active() = %d after Wait", s.Active())
	}
}
