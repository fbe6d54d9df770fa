package router

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"rosterbot/internal/roster"
	kit "rosterbot/internal/transport"
	"rosterbot/pkg/chatui"
	"rosterbot/pkg/logx"
)

func (r *Router) registerCommands() {
	r.Register(Command{
		Name:        "roster",
		Description: "Post a fresh live roster message",
		GroupOnly:   true,
		Handle:      r.cmdRoster,
	})
	r.Register(Command{
		Name:        "available",
		Description: "Mark yourself available",
		GroupOnly:   true,
		Handle:      r.statusHandler(roster.StatusAvailable),
	})
	r.Register(Command{
		Name:        "maybe",
		Description: "Mark yourself as a maybe",
		GroupOnly:   true,
		Handle:      r.statusHandler(roster.StatusMaybe),
	})
	r.Register(Command{
		Name:        "unavailable",
		Description: "Mark yourself unavailable",
		GroupOnly:   true,
		Handle:      r.statusHandler(roster.StatusUnavailable),
	})
	r.Register(Command{
		Name:        "remind",
		Description: "DM everyone who hasn't answered yet",
		Access:      AccessAdminOnly,
		GroupOnly:   true,
		Handle:      r.cmdRemind,
	})
	r.Register(Command{
		Name:        "reminder_set",
		Description: "Schedule the weekly reminder",
		Usage:       "/reminder_set <day> <HH:MM>",
		Access:      AccessAdminOnly,
		GroupOnly:   true,
		Handle:      r.cmdReminderSet,
	})
	r.Register(Command{
		Name:        "reminder_off",
		Description: "Cancel the weekly reminder",
		Access:      AccessAdminOnly,
		GroupOnly:   true,
		Handle:      r.cmdReminderOff,
	})
	r.Register(Command{
		Name:        "reset_set",
		Description: "Schedule the weekly roster reset",
		Usage:       "/reset_set <day> <HH:MM>",
		Access:      AccessAdminOnly,
		GroupOnly:   true,
		Handle:      r.cmdResetSet,
	})
	r.Register(Command{
		Name:        "reset_off",
		Description: "Cancel the weekly roster reset",
		Access:      AccessAdminOnly,
		GroupOnly:   true,
		Handle:      r.cmdResetOff,
	})
	r.Register(Command{
		Name:        "reset_now",
		Description: "Clear the roster immediately",
		Access:      AccessAdminOnly,
		GroupOnly:   true,
		Handle:      r.cmdResetNow,
	})
	r.Register(Command{
		Name:        "staticrole",
		Description: "Show or set the roster role",
		Usage:       "/staticrole [role_id]",
		Access:      AccessAdminOnly,
		GroupOnly:   true,
		Handle:      r.cmdStaticRole,
	})
	r.Register(Command{
		Name:        "adminrole",
		Description: "Show or set the admin role",
		Usage:       "/adminrole [role_id]",
		Access:      AccessAdminOnly,
		GroupOnly:   true,
		Handle:      r.cmdAdminRole,
	})
	r.Register(Command{
		Name:        "help",
		Description: "List commands",
		Handle:      r.cmdHelp,
	})
}

func (r *Router) cmdRoster(ctx context.Context, req *Request) error {
	guild := req.Chat.ChatID

	rec, err := r.serv.Roster.Record(ctx, guild)
	if err != nil {
		return err
	}

	// Detach the superseded surface first so it stops redrawing a message
	// that is about to be deleted.
	if _, ok := r.serv.Surfaces.Get(guild); ok {
		r.serv.Roster.RemoveObserver(guild)
		r.serv.Surfaces.Remove(guild)
	}

	opt := &kit.SendOptions{
		ParseMode:          "HTML",
		DisablePreview:     true,
		ReplyMarkupAdapter: roster.Keyboard(),
	}
	ref, err := r.ad.SendText(ctx, req.Chat, chatui.B("Availability roster").String(), opt)
	if err != nil {
		return err
	}

	// The old message, if any, is superseded; losing it is harmless.
	if rec.RosterMessage != nil {
		if err := r.ad.DeleteMessage(ctx, *rec.RosterMessage); err != nil {
			r.log.Debug("old roster message not deleted", logx.Int64("guild", guild), logx.Err(err))
		}
	}

	if err := r.serv.Roster.SetRosterMessage(ctx, guild, ref); err != nil {
		return err
	}

	sf := roster.NewSurface(r.serv.Roster, r.ad, r.serv.Dir, r.log, guild, ref)
	if err := sf.Attach(ctx); err != nil {
		return err
	}
	r.serv.Surfaces.Put(guild, sf)
	return nil
}

func (r *Router) statusHandler(status roster.Status) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		return r.serv.Roster.UpdateStatus(ctx, req.Chat.ChatID, roster.MemberKey(req.FromID), status, false)
	}
}

func (r *Router) cmdRemind(ctx context.Context, req *Request) error {
	sent, err := r.serv.Reminders.Send(ctx, req.Chat.ChatID)
	if err != nil {
		// Usually members who never opened a DM with the bot.
		r.log.Warn("some reminders failed", logx.Int64("guild", req.Chat.ChatID), logx.Err(err))
	}
	r.reply(ctx, req, chatui.Esc(fmt.Sprintf("Sent %d reminder(s).", len(sent))).String())
	return nil
}

func (r *Router) cmdReminderSet(ctx context.Context, req *Request) error {
	return r.scheduleWeekly(ctx, req, "reminder")
}

func (r *Router) cmdResetSet(ctx context.Context, req *Request) error {
	return r.scheduleWeekly(ctx, req, "reset")
}

// scheduleWeekly is the shared set-path for both weekly jobs: parse the
// day and time, replace the registered job, persist the new descriptor.
func (r *Router) scheduleWeekly(ctx context.Context, req *Request, kind string) error {
	if len(req.Args) < 2 {
		r.reply(ctx, req, chatui.Esc(fmt.Sprintf("Usage: /%s_set <day> <HH:MM>", kind)).String())
		return nil
	}
	day, err := parseWeekday(req.Args[0])
	if err != nil {
		r.reply(ctx, req, chatui.Esc("I don't know that weekday. Try e.g. mon or thursday.").String())
		return nil
	}
	hour, minute, err := parseHHMM(req.Args[1])
	if err != nil {
		r.reply(ctx, req, chatui.Esc("Time must be HH:MM, e.g. 19:30.").String())
		return nil
	}

	guild := req.Chat.ChatID
	rec, err := r.serv.Roster.Record(ctx, guild)
	if err != nil {
		return err
	}

	var (
		old    *roster.JobSpec
		action func(ctx context.Context) error
	)
	switch kind {
	case "reminder":
		old = rec.WeeklyReminder
		action = r.serv.Reminders.Action(guild)
	default:
		old = rec.WeeklyReset
		action = r.resetAction(guild)
	}
	if old != nil {
		r.serv.Jobs.Remove(old.JobID)
	}

	id := r.serv.Jobs.AddWeekly(day, hour, minute, action)
	spec := roster.JobSpec{JobID: id, Day: int(day), Hour: hour, Minute: minute}

	if kind == "reminder" {
		err = r.serv.Roster.SetReminderSchedule(ctx, guild, spec)
	} else {
		err = r.serv.Roster.SetResetSchedule(ctx, guild, spec)
	}
	if err != nil {
		// Keep registry and store consistent when persistence fails.
		r.serv.Jobs.Remove(id)
		return err
	}

	r.reply(ctx, req, chatui.Esc(fmt.Sprintf(
		"Weekly %s set for %s at %02d:%02d.", kind, day, hour, minute)).String())
	return nil
}

func (r *Router) cmdReminderOff(ctx context.Context, req *Request) error {
	removed, err := r.serv.Roster.DeleteReminderSchedule(ctx, req.Chat.ChatID)
	if err != nil {
		return err
	}
	if removed == nil {
		r.reply(ctx, req, chatui.Esc("No weekly reminder was set.").String())
		return nil
	}
	r.serv.Jobs.Remove(removed.JobID)
	r.reply(ctx, req, chatui.Esc("Weekly reminder cancelled.").String())
	return nil
}

func (r *Router) cmdResetOff(ctx context.Context, req *Request) error {
	removed, err := r.serv.Roster.DeleteResetSchedule(ctx, req.Chat.ChatID)
	if err != nil {
		return err
	}
	if removed == nil {
		r.reply(ctx, req, chatui.Esc("No weekly reset was set.").String())
		return nil
	}
	r.serv.Jobs.Remove(removed.JobID)
	r.reply(ctx, req, chatui.Esc("Weekly reset cancelled.").String())
	return nil
}

func (r *Router) cmdResetNow(ctx context.Context, req *Request) error {
	if err := r.serv.Roster.Reset(ctx, req.Chat.ChatID); err != nil {
		return err
	}
	r.reply(ctx, req, chatui.Esc("Roster cleared.").String())
	return nil
}

func (r *Router) resetAction(guildID int64) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return r.serv.Roster.Reset(ctx, guildID)
	}
}

func (r *Router) cmdStaticRole(ctx context.Context, req *Request) error {
	guild := req.Chat.ChatID
	if len(req.Args) == 0 {
		rec, err := r.serv.Roster.Record(ctx, guild)
		if err != nil {
			return err
		}
		if rec.StaticRoleID == 0 {
			r.reply(ctx, req, chatui.Esc("No roster role set.").String())
		} else {
			r.reply(ctx, req, chatui.JoinH(" ",
				chatui.Esc("Roster role:"), chatui.Code(strconv.FormatInt(rec.StaticRoleID, 10))).String())
		}
		return nil
	}

	roleID, err := strconv.ParseInt(req.Args[0], 10, 64)
	if err != nil {
		r.reply(ctx, req, chatui.Esc("Role must be a numeric ID.").String())
		return nil
	}
	if err := r.serv.Roster.SetStaticRole(ctx, guild, roleID); err != nil {
		return err
	}
	// The role defines the member set; a new role starts a clean roster.
	if sf, ok := r.serv.Surfaces.Get(guild); ok {
		if err := sf.Attach(ctx); err != nil {
			r.log.Warn("surface refresh after role change failed", logx.Int64("guild", guild), logx.Err(err))
		}
	}
	r.reply(ctx, req, chatui.Esc("Roster role updated. All statuses were reset.").String())
	return nil
}

func (r *Router) cmdAdminRole(ctx context.Context, req *Request) error {
	guild := req.Chat.ChatID
	if len(req.Args) == 0 {
		rec, err := r.serv.Roster.Record(ctx, guild)
		if err != nil {
			return err
		}
		if rec.AdminRoleID == 0 {
			r.reply(ctx, req, chatui.Esc("No admin role set.").String())
		} else {
			r.reply(ctx, req, chatui.JoinH(" ",
				chatui.Esc("Admin role:"), chatui.Code(strconv.FormatInt(rec.AdminRoleID, 10))).String())
		}
		return nil
	}

	roleID, err := strconv.ParseInt(req.Args[0], 10, 64)
	if err != nil {
		r.reply(ctx, req, chatui.Esc("Role must be a numeric ID.").String())
		return nil
	}
	if err := r.serv.Roster.SetAdminRole(ctx, guild, roleID); err != nil {
		return err
	}
	if sf, ok := r.serv.Surfaces.Get(guild); ok {
		if err := sf.Attach(ctx); err != nil {
			r.log.Warn("surface refresh after role change failed", logx.Int64("guild", guild), logx.Err(err))
		}
	}
	r.reply(ctx, req, chatui.Esc("Admin role updated. All statuses were reset.").String())
	return nil
}

func (r *Router) cmdHelp(ctx context.Context, req *Request) error {
	r.mu.RLock()
	var b strings.Builder
	b.WriteString(chatui.B("Commands").String())
	b.WriteString("\n")
	for _, name := range r.order {
		cmd := r.commands[name]
		b.WriteString("\n/")
		b.WriteString(chatui.Esc(name).String())
		if cmd.Description != "" {
			b.WriteString(" - ")
			b.WriteString(chatui.Esc(cmd.Description).String())
		}
		if cmd.Usage != "" {
			b.WriteString("\n  ")
			b.WriteString(chatui.Code(cmd.Usage).String())
		}
	}
	r.mu.RUnlock()
	r.reply(ctx, req, b.String())
	return nil
}

func (r *Router) registerCallbacks() {
	for _, action := range []string{roster.ActionAvailable, roster.ActionMaybe, roster.ActionUnavailable} {
		r.RegisterCallback(CallbackRoute{
			Namespace: roster.CallbackNS,
			Action:    action,
			Handle:    r.handleRosterCallback,
		})
		r.RegisterCallback(CallbackRoute{
			Namespace: roster.ReminderNS,
			Action:    action,
			Handle:    r.handleReminderCallback,
		})
	}
}

// handleRosterCallback serves the buttons under the live roster message.
func (r *Router) handleRosterCallback(ctx context.Context, req *Request, payload string) error {
	cb := req.Update.Callback
	_, action, _ := chatui.Split(cb.Data)
	status, ok := roster.StatusForAction(action)
	if !ok {
		return r.ad.AnswerCallback(ctx, cb.ID, "")
	}
	if err := r.serv.Roster.UpdateStatus(ctx, req.Chat.ChatID, roster.MemberKey(req.FromID), status, false); err != nil {
		return err
	}
	return r.ad.AnswerCallback(ctx, cb.ID, "You're marked "+status.Label()+".")
}

// handleReminderCallback serves the buttons in reminder DMs. The guild is
// in the payload; the member is the sender.
func (r *Router) handleReminderCallback(ctx context.Context, req *Request, payload string) error {
	cb := req.Update.Callback
	guildID, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return r.ad.AnswerCallback(ctx, cb.ID, "This button has expired.")
	}
	_, action, _ := chatui.Split(cb.Data)
	status, ok := roster.StatusForAction(action)
	if !ok {
		return r.ad.AnswerCallback(ctx, cb.ID, "")
	}
	if err := r.serv.Roster.UpdateStatus(ctx, guildID, roster.MemberKey(req.FromID), status, false); err != nil {
		return err
	}
	// Swap the DM's buttons for a confirmation so it can't be re-answered
	// by accident.
	done := chatui.JoinH(" ", chatui.Esc("Thanks, you're marked"), chatui.B(status.Label()+".")).String()
	if err := r.ad.EditText(ctx, kit.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}, done,
		&kit.SendOptions{ParseMode: "HTML", DisablePreview: true}); err != nil {
		r.log.Debug("reminder DM edit failed", logx.Int64("member", req.FromID), logx.Err(err))
	}
	return r.ad.AnswerCallback(ctx, cb.ID, "Got it!")
}
