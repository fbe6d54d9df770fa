package adapter

import (
	"context"
	"strings"

	tele "gopkg.in/telebot.v4"

	"rosterbot/pkg/logx"
)

// Directory implementation.
//
// Telegram has no server-side roles and no "list all members" call, so the
// mapping is:
//   - static members (roleID ignored): chat administrators plus every
//     member the adapter has seen interact, minus bots
//   - admin (roleID ignored): chat administrator, or a configured owner

func (a *Adapter) noteMember(guildID int64, u *tele.User) {
	if u == nil || u.IsBot {
		return
	}
	a.seenMu.Lock()
	defer a.seenMu.Unlock()
	g, ok := a.seen[guildID]
	if !ok {
		g = map[int64]string{}
		a.seen[guildID] = g
	}
	g[u.ID] = displayName(u)
}

func (a *Adapter) forgetMember(guildID, memberID int64) {
	a.seenMu.Lock()
	defer a.seenMu.Unlock()
	delete(a.seen[guildID], memberID)
}

func displayName(u *tele.User) string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" {
		name = u.Username
	}
	return name
}

func (a *Adapter) MemberName(ctx context.Context, guildID, memberID int64) string {
	a.seenMu.RLock()
	name := a.seen[guildID][memberID]
	a.seenMu.RUnlock()
	if name != "" {
		return name
	}

	member, err := a.bot.ChatMemberOf(&tele.Chat{ID: guildID}, &tele.User{ID: memberID})
	if err != nil || member.User == nil {
		a.log.Debug("member name lookup failed",
			logx.Int64("guild", guildID), logx.Int64("member", memberID), logx.Err(err))
		return ""
	}
	a.noteMember(guildID, member.User)
	return displayName(member.User)
}

func (a *Adapter) IsAdmin(ctx context.Context, guildID, memberID int64, roleID int64) (bool, error) {
	for _, id := range a.cfg.OwnerUserIDs {
		if id == memberID {
			return true, nil
		}
	}
	admins, err := a.bot.AdminsOf(&tele.Chat{ID: guildID})
	if err != nil {
		return false, err
	}
	for _, m := range admins {
		if m.User != nil && m.User.ID == memberID {
			return true, nil
		}
	}
	return false, nil
}

func (a *Adapter) StaticMembers(ctx context.Context, guildID int64, roleID int64) ([]int64, error) {
	ids := map[int64]bool{}

	admins, err := a.bot.AdminsOf(&tele.Chat{ID: guildID})
	if err != nil {
		return nil, err
	}
	for _, m := range admins {
		if m.User == nil || m.User.IsBot {
			continue
		}
		ids[m.User.ID] = true
		a.noteMember(guildID, m.User)
	}

	a.seenMu.RLock()
	for id := range a.seen[guildID] {
		ids[id] = true
	}
	a.seenMu.RUnlock()

	out := make([]int64, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	return out, nil
}
