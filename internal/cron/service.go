package cron

import (
	"context"
	"sync"
	"time"

	"rosterbot/internal/eventbus"
	rtsup "rosterbot/internal/runtime/supervisor"
	"rosterbot/pkg/logx"
)

// DefaultPollInterval is the loop cadence. Job granularity is minutes, so
// there is no jitter or backoff; the tick is fixed.
const DefaultPollInterval = 60 * time.Second

type Config struct {
	// PollInterval overrides the tick cadence; 0 means DefaultPollInterval.
	// Only tests should shorten this.
	PollInterval time.Duration
}

// Service owns the poll loop. Start must be called at most once per process
// lifetime; a second loop would double-fire every job.
type Service struct {
	cfg Config
	reg *Registry
	log logx.Logger
	bus eventbus.Bus

	mu  sync.Mutex
	sup *rtsup.Supervisor
}

func New(cfg Config, reg *Registry, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Service{cfg: cfg, reg: reg, log: log, bus: bus}
}

func (s *Service) Registry() *Registry { return s.reg }

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return
	}
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	s.sup.Go0("cron.loop", s.loop)
	s.log.Info("scheduler started", logx.Duration("interval", s.cfg.PollInterval))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	sup.Cancel()
	// Dispatched jobs may outlive the deadline; that only leaks the job's
	// own goroutine, never the loop.
	if err := sup.Wait(ctx); err != nil && ctx.Err() != nil {
		s.log.Warn("scheduler stop timed out", logx.Err(err))
		return
	}
	s.log.Info("scheduler stopped")
}

func (s *Service) loop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.dispatchDue(now)
		}
	}
}

// dispatchDue launches every due job on its own goroutine. The loop never
// waits for job completion: a slow or failing job cannot delay evaluation
// or dispatch of the others, and the tick cadence is unaffected.
func (s *Service) dispatchDue(now time.Time) {
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	if sup == nil {
		return
	}

	for _, e := range s.reg.Snapshot() {
		if !e.Job.ShouldRun(now) {
			continue
		}
		id, job := e.ID, e.Job
		s.log.Info("dispatching job", logx.String("job_id", id))
		sup.Go("cron.job", func(ctx context.Context) error {
			err := job.Run(ctx, now)
			if err != nil {
				// Contained: the job stays registered and will not re-fire
				// until its next natural period.
				s.log.Error("job failed", logx.String("job_id", id), logx.Err(err))
			}
			if s.bus != nil {
				s.bus.Publish(eventbus.Event{Type: "cron.job.ran", Data: map[string]any{
					"job_id": id,
					"ok":     err == nil,
				}})
			}
			// Job errors are contained at the dispatch boundary; never
			// propagate them into the supervisor.
			return nil
		})
	}
}
