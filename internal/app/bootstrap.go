package app

import (
	"context"
	"time"

	"rosterbot/internal/roster"
	"rosterbot/pkg/logx"
)

// reconcile rebuilds in-memory state from the store after a restart.
//
// Job IDs are process-local, so the registry starts empty and every
// persisted schedule is re-registered under a fresh ID, which is written
// back so the stored descriptor always names the live job. Surfaces are
// reattached to their persisted messages; a guild whose message is gone
// (deleted chat, revoked message) simply runs without a surface until
// someone posts a new one.
func (a *App) reconcile(ctx context.Context) error {
	a.jobs.Clear()

	return a.rosterSvc.ForEachGuild(ctx, func(guildID int64, rec roster.GuildRecord) error {
		glog := a.log.With(logx.Int64("guild", guildID))

		if rec.RosterMessage != nil {
			sf := roster.NewSurface(a.rosterSvc, a.adapter, a.adapter, glog, guildID, *rec.RosterMessage)
			if err := sf.Attach(ctx); err != nil {
				glog.Warn("roster surface not reattached", logx.Err(err))
			} else {
				a.surfaces.Put(guildID, sf)
				glog.Info("roster surface reattached")
			}
		}

		if spec := rec.WeeklyReminder; spec != nil {
			id := a.jobs.AddWeekly(time.Weekday(spec.Day), spec.Hour, spec.Minute, a.reminders.Action(guildID))
			fresh := *spec
			fresh.JobID = id
			if err := a.rosterSvc.SetReminderSchedule(ctx, guildID, fresh); err != nil {
				return err
			}
			glog.Info("weekly reminder restored",
				logx.String("day", time.Weekday(spec.Day).String()),
				logx.Int("hour", spec.Hour), logx.Int("minute", spec.Minute))
		}

		if spec := rec.WeeklyReset; spec != nil {
			gid := guildID
			id := a.jobs.AddWeekly(time.Weekday(spec.Day), spec.Hour, spec.Minute, func(ctx context.Context) error {
				return a.rosterSvc.Reset(ctx, gid)
			})
			fresh := *spec
			fresh.JobID = id
			if err := a.rosterSvc.SetResetSchedule(ctx, guildID, fresh); err != nil {
				return err
			}
			glog.Info("weekly reset restored",
				logx.String("day", time.Weekday(spec.Day).String()),
				logx.Int("hour", spec.Hour), logx.Int("minute", spec.Minute))
		}

		return nil
	})
}
