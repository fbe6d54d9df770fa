// Package supervisor manages named goroutines tied to a shared context:
// panic recovery, optional cancel-on-first-error, restart with backoff, and
// timeout-aware waiting on shutdown.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"rosterbot/pkg/logx"
)

type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	// Best-effort operational counters.
	started uint64
	active  int64

	log         logx.Logger
	cancelOnErr bool
	errOnce     sync.Once
	firstErr    atomic.Value // error
	wg          sync.WaitGroup
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithCancelOnError cancels the supervisor context on the first non-nil
// error or panic from any goroutine.
func WithCancelOnError(enabled bool) Option {
	return func(s *Supervisor) { s.cancelOnErr = enabled }
}

func New(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{ctx: ctx, cancel: cancel}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel cancels the supervisor context without waiting for goroutines.
func (s *Supervisor) Cancel() { s.cancel() }

func (s *Supervisor) Err() error {
	v := s.firstErr.Load()
	if err, ok := v.(error); ok {
		return err
	}
	return nil
}

// Active returns the number of goroutines currently running.
func (s *Supervisor) Active() int64 { return atomic.LoadInt64(&s.active) }

func (s *Supervisor) setErr(err error) {
	if err == nil {
		return
	}
	s.errOnce.Do(func() { s.firstErr.Store(err) })
}

// Go runs fn on a new goroutine under the supervisor context.
// Panics are recovered and recorded as errors.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	atomic.AddUint64(&s.started, 1)
	atomic.AddInt64(&s.active, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer atomic.AddInt64(&s.active, -1)
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("panic in %s: %v", name, r)
				if !s.log.IsZero() {
					s.log.Error("goroutine panicked",
						logx.String("name", name),
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
				}
				s.setErr(err)
				if s.cancelOnErr {
					s.cancel()
				}
			}
		}()

		if !s.log.IsZero() {
			s.log.Debug("goroutine started", logx.String("name", name))
		}
		err := fn(s.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.setErr(fmt.Errorf("%s: %w", name, err))
			if s.cancelOnErr {
				s.cancel()
			}
		}
		if !s.log.IsZero() {
			s.log.Debug("goroutine stopped", logx.String("name", name))
		}
	}()
}

// Go0 is Go for functions without an error result.
func (s *Supervisor) Go0(name string, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	s.Go(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// GoRestart runs fn in a restart loop with exponential backoff until the
// supervisor context is canceled. Used for long-running loops that may exit
// unexpectedly (e.g. a platform poller) and should self-heal.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, minBackoff, maxBackoff time.Duration) {
	if fn == nil {
		return
	}
	if minBackoff <= 0 {
		minBackoff = 500 * time.Millisecond
	}
	if maxBackoff < minBackoff {
		maxBackoff = 10 * time.Second
	}
	s.Go(name, func(ctx context.Context) error {
		backoff := minBackoff
		for {
			start := time.Now()
			err := runRecovered(ctx, name, fn)
			if ctx.Err() != nil {
				return nil
			}
			if err != nil && !s.log.IsZero() {
				s.log.Warn("goroutine exited, restarting",
					logx.String("name", name), logx.Err(err), logx.Duration("backoff", backoff))
			}
			// A run that survived a while earns a reset backoff.
			if time.Since(start) > maxBackoff {
				backoff = minBackoff
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	})
}

func runRecovered(ctx context.Context, name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", name, r)
		}
	}()
	return fn(ctx)
}

// Wait blocks until all supervised goroutines have exited or ctx is done.
func (s *Supervisor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
