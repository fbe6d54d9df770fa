// Package router turns inbound transport updates into command and callback
// handler invocations, with a middleware chain for recovery, logging and
// timeouts.
package router

import (
	"context"
	"strings"
	"sync"
	"time"

	"rosterbot/internal/cron"
	"rosterbot/internal/roster"
	rtsup "rosterbot/internal/runtime/supervisor"
	kit "rosterbot/internal/transport"
	"rosterbot/pkg/chatui"
	"rosterbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessAdminOnly
)

type Command struct {
	Name        string // without the leading slash
	Description string
	Usage       string
	Access      Access
	// GroupOnly commands are refused in private chats; all roster state is
	// guild-scoped.
	GroupOnly bool
	Handle    HandlerFunc
}

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

type CallbackRoute struct {
	Namespace string
	Action    string
	Handle    CallbackHandlerFunc
}

type Request struct {
	Update       kit.Update
	Chat         kit.ChatTarget
	FromID       int64
	FromUsername string
	Command      string
	Args         []string
	IsGroup      bool
}

// Services are the subsystems command handlers operate on.
type Services struct {
	Roster    *roster.Service
	Reminders *roster.Reminders
	Surfaces  *roster.Surfaces
	Jobs      *cron.Registry
	Dir       kit.Directory
}

type Router struct {
	ad   kit.Adapter
	serv *Services
	log  logx.Logger
	mw   []Middleware

	mu        sync.RWMutex
	commands  map[string]*Command
	order     []string
	callbacks map[string]map[string]CallbackRoute

	runMu sync.Mutex
	sup   *rtsup.Supervisor
}

func New(ad kit.Adapter, serv *Services, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		ad:        ad,
		serv:      serv,
		log:       log,
		commands:  map[string]*Command{},
		callbacks: map[string]map[string]CallbackRoute{},
	}
	r.mw = []Middleware{
		MWPanicRecover(log),
		MWRequestLog(log),
		MWTimeout(30 * time.Second),
	}
	r.registerCommands()
	r.registerCallbacks()
	return r
}

func (r *Router) Register(cmd Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.commands[cmd.Name]; !ok {
		r.order = append(r.order, cmd.Name)
	}
	c := cmd
	r.commands[cmd.Name] = &c
}

func (r *Router) RegisterCallback(route CallbackRoute) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.callbacks[route.Namespace]
	if !ok {
		m = map[string]CallbackRoute{}
		r.callbacks[route.Namespace] = m
	}
	m[route.Action] = route
}

// MenuCommands returns the registered commands in registration order for
// the platform command menu.
func (r *Router) MenuCommands() []kit.BotCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]kit.BotCommand, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, kit.BotCommand{
			Command:     name,
			Description: r.commands[name].Description,
		})
	}
	return out
}

// Run consumes updates until ctx is done. Each update is handled on its own
// goroutine so one slow handler never stalls the stream.
func (r *Router) Run(ctx context.Context, updates <-chan kit.Update) {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.sup != nil {
		return
	}
	r.sup = rtsup.New(ctx, rtsup.WithLogger(r.log.With(logx.String("comp", "router"))))
	sup := r.sup
	sup.Go0("router.dispatch", func(c context.Context) {
		for {
			select {
			case <-c.Done():
				return
			case up, ok := <-updates:
				if !ok {
					return
				}
				sup.Go0("router.handle", func(hc context.Context) {
					r.dispatch(hc, up)
				})
			}
		}
	})
}

func (r *Router) Stop(ctx context.Context) {
	r.runMu.Lock()
	sup := r.sup
	r.sup = nil
	r.runMu.Unlock()
	if sup == nil {
		return
	}
	sup.Cancel()
	if err := sup.Wait(ctx); err != nil && ctx.Err() != nil {
		r.log.Warn("router stop timed out", logx.Err(err))
	}
}

func (r *Router) dispatch(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		r.dispatchMessage(ctx, up)
	case kit.UpdateCallback:
		r.dispatchCallback(ctx, up)
	case kit.UpdateMembership:
		r.dispatchMembership(ctx, up)
	}
}

// dispatchMembership keeps the roster in step with the member list: leavers
// drop off the roster, joiners show up as undecided.
func (r *Router) dispatchMembership(ctx context.Context, up kit.Update) {
	mb := up.Membership
	if mb == nil {
		return
	}
	guild := mb.ChatID
	if mb.Left != 0 {
		if err := r.serv.Roster.RemoveMember(ctx, guild, roster.MemberKey(mb.Left)); err != nil {
			r.log.Warn("member removal failed",
				logx.Int64("guild", guild), logx.Int64("member", mb.Left), logx.Err(err))
		}
		return
	}
	if len(mb.Joined) == 0 {
		return
	}
	statuses, err := r.serv.Roster.Statuses(ctx, guild)
	if err != nil {
		r.log.Warn("join lookup failed", logx.Int64("guild", guild), logx.Err(err))
		return
	}
	for _, id := range mb.Joined {
		key := roster.MemberKey(id)
		// A rejoining member keeps whatever status they already had.
		if _, ok := statuses[key]; ok {
			continue
		}
		if err := r.serv.Roster.UpdateStatus(ctx, guild, key, roster.StatusDefault, true); err != nil {
			r.log.Warn("join backfill failed",
				logx.Int64("guild", guild), logx.Int64("member", id), logx.Err(err))
		}
	}
	if err := r.serv.Roster.ForceRefresh(ctx, guild); err != nil {
		r.log.Warn("roster refresh failed", logx.Int64("guild", guild), logx.Err(err))
	}
}

func (r *Router) dispatchMessage(ctx context.Context, up kit.Update) {
	m := up.Message
	if m == nil || !strings.HasPrefix(m.Text, "/") {
		return
	}
	fields := strings.Fields(m.Text)
	name := strings.TrimPrefix(fields[0], "/")
	// Group chats address commands as /cmd@botname.
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}

	r.mu.RLock()
	cmd, ok := r.commands[name]
	r.mu.RUnlock()
	if !ok {
		return
	}

	req := &Request{
		Update:       up,
		Chat:         kit.ChatTarget{ChatID: m.ChatID},
		FromID:       m.FromID,
		FromUsername: m.FromUsername,
		Command:      name,
		Args:         fields[1:],
		IsGroup:      m.IsGroup,
	}

	if cmd.GroupOnly && !m.IsGroup {
		r.reply(ctx, req, chatui.Esc("This command only works in a group chat.").String())
		return
	}
	if cmd.Access == AccessAdminOnly {
		admin, err := r.isAdmin(ctx, m.ChatID, m.FromID)
		if err != nil {
			r.log.Warn("admin check failed",
				logx.Int64("guild", m.ChatID), logx.Int64("member", m.FromID), logx.Err(err))
			r.reply(ctx, req, chatui.Esc("Couldn't verify permissions, try again.").String())
			return
		}
		if !admin {
			r.reply(ctx, req, chatui.Esc("This command is for admins.").String())
			return
		}
	}

	if err := Chain(cmd.Handle, r.mw...)(ctx, req); err != nil {
		r.reply(ctx, req, chatui.Esc("Something went wrong.").String())
	}
}

func (r *Router) dispatchCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	ns, action, payload := chatui.Split(cb.Data)

	r.mu.RLock()
	route, ok := r.callbacks[ns][action]
	r.mu.RUnlock()
	if !ok {
		// Buttons from a previous incarnation; dismiss the spinner.
		_ = r.ad.AnswerCallback(ctx, cb.ID, "")
		return
	}

	req := &Request{
		Update:  up,
		Chat:    kit.ChatTarget{ChatID: cb.ChatID},
		FromID:  cb.FromID,
		Command: ns + ":" + action,
		IsGroup: cb.IsGroup,
	}

	h := func(ctx context.Context, r2 *Request) error { return route.Handle(ctx, r2, payload) }
	if err := Chain(h, r.mw...)(ctx, req); err != nil {
		_ = r.ad.AnswerCallback(ctx, cb.ID, "Something went wrong.")
	}
}

func (r *Router) isAdmin(ctx context.Context, guildID, memberID int64) (bool, error) {
	rec, err := r.serv.Roster.Record(ctx, guildID)
	if err != nil {
		return false, err
	}
	return r.serv.Dir.IsAdmin(ctx, guildID, memberID, rec.AdminRoleID)
}

func (r *Router) reply(ctx context.Context, req *Request, html string) {
	opt := &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}
	if _, err := r.ad.SendText(ctx, req.Chat, html, opt); err != nil {
		r.log.Warn("reply failed", logx.Int64("chat_id", req.Chat.ChatID), logx.Err(err))
	}
}
