package roster

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"rosterbot/internal/transport"
	"rosterbot/pkg/chatui"
	"rosterbot/pkg/logx"
)

// Reminders DMs every static-role member who has not picked a status yet.
// Sends are paced with a rate limiter so a large guild does not trip the
// platform's flood limits.
type Reminders struct {
	svc     *Service
	ad      transport.Adapter
	dir     transport.Directory
	log     logx.Logger
	limiter *rate.Limiter
}

func NewReminders(svc *Service, ad transport.Adapter, dir transport.Directory, log logx.Logger, perSec float64) *Reminders {
	if log.IsZero() {
		log = logx.Nop()
	}
	if perSec <= 0 {
		perSec = 1
	}
	return &Reminders{
		svc:     svc,
		ad:      ad,
		dir:     dir,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(perSec), 1),
	}
}

// Send delivers a reminder DM to every undecided member and returns the
// members actually reminded. Per-member failures (members who never opened
// a DM with the bot, mostly) are collected and do not stop the sweep.
func (r *Reminders) Send(ctx context.Context, guildID int64) ([]int64, error) {
	rec, err := r.svc.Record(ctx, guildID)
	if err != nil {
		return nil, err
	}
	members, err := r.dir.StaticMembers(ctx, guildID, rec.StaticRoleID)
	if err != nil {
		return nil, err
	}

	var (
		sent []int64
		errs []error
	)
	for _, m := range members {
		key := MemberKey(m)
		if st, ok := rec.MemberStatuses[key]; ok && st != StatusDefault {
			continue
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return sent, err
		}
		opt := &transport.SendOptions{
			ParseMode:          "HTML",
			DisablePreview:     true,
			ReplyMarkupAdapter: reminderKeyboard(guildID),
		}
		if _, err := r.ad.SendDM(ctx, m, reminderText(), opt); err != nil {
			errs = append(errs, fmt.Errorf("member %d: %w", m, err))
			continue
		}
		sent = append(sent, m)
	}
	r.log.Info("reminders sent",
		logx.Int64("guild", guildID),
		logx.Int("sent", len(sent)),
		logx.Int("failed", len(errs)))
	return sent, errors.Join(errs...)
}

// Action adapts Send into a scheduled job action for one guild.
func (r *Reminders) Action(guildID int64) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := r.Send(ctx, guildID)
		return err
	}
}

func reminderText() string {
	var b strings.Builder
	b.WriteString(chatui.B("Availability check").String())
	b.WriteString("\n\n")
	b.WriteString(chatui.Esc("You haven't set your availability for this week yet. Pick one:").String())
	return b.String()
}

// reminderKeyboard carries the guild in the payload: the buttons live in a
// DM, so the callback's chat ID is not the guild. The member is always the
// callback sender.
func reminderKeyboard(guildID int64) any {
	payload := strconv.FormatInt(guildID, 10)
	return chatui.NewInline().Row(
		chatui.Btn("✅ Available", chatui.Data(ReminderNS, ActionAvailable, payload)),
		chatui.Btn("❔ Maybe", chatui.Data(ReminderNS, ActionMaybe, payload)),
		chatui.Btn("❌ Unavailable", chatui.Data(ReminderNS, ActionUnavailable, payload)),
	).Markup()
}
