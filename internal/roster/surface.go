package roster

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"rosterbot/internal/transport"
	"rosterbot/pkg/chatui"
	"rosterbot/pkg/logx"
)

// Callback namespaces and actions shared between the surfaces and the
// command router.
const (
	CallbackNS = "roster"
	ReminderNS = "remind"

	ActionAvailable   = "avail"
	ActionMaybe       = "maybe"
	ActionUnavailable = "unavail"
)

// StatusForAction maps a callback action back to a status.
func StatusForAction(action string) (Status, bool) {
	switch action {
	case ActionAvailable:
		return StatusAvailable, true
	case ActionMaybe:
		return StatusMaybe, true
	case ActionUnavailable:
		return StatusUnavailable, true
	}
	return "", false
}

// Surface owns one guild's live roster message. Once attached it is the
// guild's observer: every status mutation redraws the message in place.
type Surface struct {
	guildID int64
	ref     transport.MessageRef
	svc     *Service
	ad      transport.Adapter
	dir     transport.Directory
	log     logx.Logger
}

func NewSurface(svc *Service, ad transport.Adapter, dir transport.Directory, log logx.Logger, guildID int64, ref transport.MessageRef) *Surface {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Surface{
		guildID: guildID,
		ref:     ref,
		svc:     svc,
		ad:      ad,
		dir:     dir,
		log:     log,
	}
}

func (s *Surface) Ref() transport.MessageRef { return s.ref }

// Attach backfills default statuses for static-role members not yet in the
// map, installs the surface as the guild's observer, and renders once.
// Backfill writes are quiet; the single render at the end covers them.
func (s *Surface) Attach(ctx context.Context) error {
	if err := s.backfillDefaults(ctx); err != nil {
		return err
	}
	s.svc.RegisterObserver(s.guildID, s.Render)
	statuses, err := s.svc.Statuses(ctx, s.guildID)
	if err != nil {
		return err
	}
	return s.Render(ctx, statuses)
}

func (s *Surface) backfillDefaults(ctx context.Context) error {
	rec, err := s.svc.Record(ctx, s.guildID)
	if err != nil {
		return err
	}
	members, err := s.dir.StaticMembers(ctx, s.guildID, rec.StaticRoleID)
	if err != nil {
		return err
	}
	for _, m := range members {
		key := MemberKey(m)
		if _, ok := rec.MemberStatuses[key]; ok {
			continue
		}
		if err := s.svc.UpdateStatus(ctx, s.guildID, key, StatusDefault, true); err != nil {
			return err
		}
	}
	return nil
}

// Render redraws the roster message from the full status map. This is the
// Observer installed by Attach.
func (s *Surface) Render(ctx context.Context, statuses map[string]Status) error {
	text := s.renderText(ctx, statuses)
	opt := &transport.SendOptions{
		ParseMode:          "HTML",
		DisablePreview:     true,
		ReplyMarkupAdapter: Keyboard(),
	}
	return s.ad.EditText(ctx, s.ref, text, opt)
}

func (s *Surface) renderText(ctx context.Context, statuses map[string]Status) string {
	type line struct {
		name   string
		status Status
	}
	lines := make([]line, 0, len(statuses))
	for key, st := range statuses {
		name := s.dir.MemberName(ctx, s.guildID, memberID(key))
		if name == "" {
			name = key
		}
		lines = append(lines, line{name: name, status: st})
	}
	sort.Slice(lines, func(i, j int) bool {
		return strings.ToLower(lines[i].name) < strings.ToLower(lines[j].name)
	})

	var b strings.Builder
	b.WriteString(chatui.B("Availability roster").String())
	b.WriteString("\n\n")
	if len(lines) == 0 {
		b.WriteString(chatui.I("Nobody on the roster yet.").String())
	}
	for _, l := range lines {
		b.WriteString(l.status.Emoji())
		b.WriteString(" ")
		b.WriteString(chatui.Esc(l.name).String())
		b.WriteString("\n")
	}
	return b.String()
}

func memberID(key string) int64 {
	id, _ := strconv.ParseInt(key, 10, 64)
	return id
}

// Keyboard builds the three status buttons shown under the roster message.
func Keyboard() any {
	return chatui.NewInline().Row(
		chatui.Btn("✅ Available", chatui.Data(CallbackNS, ActionAvailable, "")),
		chatui.Btn("❔ Maybe", chatui.Data(CallbackNS, ActionMaybe, "")),
		chatui.Btn("❌ Unavailable", chatui.Data(CallbackNS, ActionUnavailable, "")),
	).Markup()
}
