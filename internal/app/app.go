// Package app wires the subsystems together and owns their lifecycles.
package app

import (
	"context"
	"fmt"
	"time"

	"rosterbot/internal/config"
	"rosterbot/internal/cron"
	"rosterbot/internal/eventbus"
	"rosterbot/internal/observability/pprof"
	"rosterbot/internal/roster"
	rtsup "rosterbot/internal/runtime/supervisor"
	"rosterbot/internal/storage"
	kit "rosterbot/internal/transport"
	telegram "rosterbot/internal/transport/telegram/adapter"
	"rosterbot/internal/transport/telegram/router"
	"rosterbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter *telegram.Adapter

	rosterSvc *roster.Service
	reminders *roster.Reminders
	surfaces  *roster.Surfaces

	jobs    *cron.Registry
	cronSvc *cron.Service

	router *router.Router
	pprof  *pprof.Service

	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	pollTimeout, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:        cfg.Telegram.Token,
		PollTimeout:  pollTimeout,
		OwnerUserIDs: cfg.Telegram.OwnerUserIDs,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// Bootstrap with chat logging disabled, set the target, then apply the
	// final config, so Apply never warns about a missing target.
	logCfg := mapLogConfig(cfg)
	logCfg.Chat.Enabled = false
	logSvc, log := logx.New(logCfg, ad)
	log = log.With(logx.String("comp", "app"))
	if cfg.Telegram.LogChatID != 0 {
		logSvc.SetChatTarget(cfg.Telegram.LogChatID)
	}
	finalLogCfg := mapLogConfig(cfg)
	logSvc.Apply(finalLogCfg)

	bus := eventbus.New()

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	rosterSvc := roster.NewService(store, log.With(logx.String("comp", "roster")), bus)
	reminders := roster.NewReminders(rosterSvc, ad, ad,
		log.With(logx.String("comp", "reminders")), float64(cfg.Roster.ReminderRatePerSec))
	surfaces := roster.NewSurfaces()

	jobs := cron.NewRegistry()
	pollInterval, err := config.ParseDurationField("cron.poll_interval", cfg.Cron.PollInterval)
	if err != nil {
		return nil, err
	}
	cronSvc := cron.New(cron.Config{PollInterval: pollInterval}, jobs,
		log.With(logx.String("comp", "cron")), bus)

	rt := router.New(ad, &router.Services{
		Roster:    rosterSvc,
		Reminders: reminders,
		Surfaces:  surfaces,
		Jobs:      jobs,
		Dir:       ad,
	}, log.With(logx.String("comp", "router")))

	var pprofSvc *pprof.Service
	if cfg.Pprof != nil {
		pprofSvc = pprof.New(pprof.Config{
			Enabled: cfg.Pprof.Enabled,
			Addr:    cfg.Pprof.Addr,
			Token:   cfg.Pprof.Token,
		}, log)
	}

	return &App{
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		store:     store,
		adapter:   ad,
		rosterSvc: rosterSvc,
		reminders: reminders,
		surfaces:  surfaces,
		jobs:      jobs,
		cronSvc:   cronSvc,
		router:    rt,
		pprof:     pprofSvc,
		updates:   make(chan kit.Update, 256),
	}, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Chat.Enabled,
			ChatID:     cfg.Telegram.LogChatID,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
}

// Done is closed when the app supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(validateConfig)

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	// Reconcile persisted guild state before any update is processed: every
	// surviving roster message becomes a live surface again and every
	// persisted schedule gets a fresh job.
	if err := a.reconcile(a.sup.Context()); err != nil {
		return fmt.Errorf("startup reconciliation: %w", err)
	}

	a.cronSvc.Start(a.sup.Context())
	a.router.Run(a.sup.Context(), a.updates)
	if a.pprof != nil {
		a.pprof.Start(a.sup.Context())
	}

	// Publish the command menu; purely cosmetic, never fatal.
	a.sup.Go0("menu.update", func(c context.Context) {
		mctx, cancel := context.WithTimeout(c, 30*time.Second)
		defer cancel()
		if err := a.adapter.UpdateMenuCommands(mctx, a.router.MenuCommands()); err != nil {
			a.log.Warn("menu update failed", logx.Err(err))
		}
	})

	// Config hot reload: logging changes apply live; everything else needs
	// a restart and is only reported.
	a.sup.Go("config.watch", a.cfgm.Watch)
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				if newCfg.Telegram.LogChatID != 0 {
					a.logs.SetChatTarget(newCfg.Telegram.LogChatID)
				}
				a.logs.Apply(mapLogConfig(newCfg))
				a.log.Info("config reloaded; non-logging changes take effect on restart")
			}
		}
	})

	// Event flow at debug level for troubleshooting.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	a.log.Info("started")
	return nil
}

func validateConfig(ctx context.Context, cfg *config.Config) error {
	if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("cron.poll_interval", cfg.Cron.PollInterval); err != nil {
		return err
	}
	if cfg.Roster.ReminderRatePerSec < 0 {
		return fmt.Errorf("roster.reminder_rate_per_sec must be >= 0")
	}
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")

	// Inbound first so no new work arrives, then the scheduler, then the
	// rest. Each step gets a slice of the deadline.
	a.router.Stop(ctx)
	a.cronSvc.Stop(ctx)
	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("adapter stop", logx.Err(err))
	}
	if a.pprof != nil {
		a.pprof.Stop(ctx)
	}

	if a.sup != nil {
		a.sup.Cancel()
		if err := a.sup.Wait(ctx); err != nil && ctx.Err() != nil {
			a.log.Warn("shutdown timed out", logx.Err(err))
		}
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("store close", logx.Err(err))
	}
	_ = a.logs.Close()
	return nil
}
