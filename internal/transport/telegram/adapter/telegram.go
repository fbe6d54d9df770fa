// Package adapter implements the transport boundary for Telegram using
// telebot long polling. A guild is a Telegram group chat; the chat ID is
// the guild ID.
package adapter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "rosterbot/internal/runtime/supervisor"
	kit "rosterbot/internal/transport"
	"rosterbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// OwnerUserIDs always pass admin checks, in any guild.
	OwnerUserIDs []int64
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	out     atomic.Value // stores (chan<- kit.Update)
	runMu   sync.Mutex
	running bool

	// sup owns adapter internal goroutines (poll loop, drop logger, stop
	// watcher). Created on Start(), cancelled on Stop().
	sup *rtsup.Supervisor

	// droppedUpdates counts updates dropped because the consumer was slower
	// than the poll loop; reported periodically instead of per update.
	droppedUpdates uint64

	// seen caches guild -> member -> display name, filled from inbound
	// updates. Telegram has no "list all members" API; this cache is how
	// non-admin members become visible to the Directory.
	seenMu sync.RWMutex
	seen   map[int64]map[int64]string

	menuMu   sync.Mutex
	menuHash uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{
		cfg:  cfg,
		log:  log,
		bot:  b,
		seen: map[int64]map[int64]string{},
	}
	// Ensure atomic.Value is initialized with a stable dynamic type.
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func isGroupChat(c *tele.Chat) bool {
	return c != nil && (c.Type == tele.ChatGroup || c.Type == tele.ChatSuperGroup)
}

func (a *Adapter) registerHandlers() {
	// Handlers forward to the CURRENT output channel. Start() may swap it.
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		if isGroupChat(m.Chat) {
			a.noteMember(m.Chat.ID, m.Sender)
		}
		a.sendUpdate(kit.Update{
			Kind: kit.UpdateMessage,
			Message: &kit.Message{
				ID:           m.ID,
				ChatID:       m.Chat.ID,
				FromID:       m.Sender.ID,
				FromUsername: m.Sender.Username,
				Text:         m.Text,
				IsGroup:      isGroupChat(m.Chat),
			},
		})
		return nil
	})

	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		m := c.Message()
		if cb == nil || m == nil {
			return nil
		}
		if isGroupChat(m.Chat) {
			a.noteMember(m.Chat.ID, cb.Sender)
		}
		// telebot prefixes callback data with "\f".
		a.sendUpdate(kit.Update{
			Kind: kit.UpdateCallback,
			Callback: &kit.Callback{
				ID:        cb.ID,
				ChatID:    m.Chat.ID,
				MessageID: m.ID,
				FromID:    cb.Sender.ID,
				IsGroup:   isGroupChat(m.Chat),
				Data:      strings.TrimPrefix(cb.Data, "\f"),
			},
		})
		return nil
	})

	// Joins and leaves keep the member cache warm and flow downstream as
	// membership updates so the roster tracks the member list.
	a.bot.Handle(tele.OnUserJoined, func(c tele.Context) error {
		m := c.Message()
		if m == nil || !isGroupChat(m.Chat) {
			return nil
		}
		joined := make([]int64, 0, len(m.UsersJoined))
		for i := range m.UsersJoined {
			u := &m.UsersJoined[i]
			a.noteMember(m.Chat.ID, u)
			if !u.IsBot {
				joined = append(joined, u.ID)
			}
		}
		if len(joined) > 0 {
			a.sendUpdate(kit.Update{
				Kind:       kit.UpdateMembership,
				Membership: &kit.Membership{ChatID: m.Chat.ID, Joined: joined},
			})
		}
		return nil
	})
	a.bot.Handle(tele.OnUserLeft, func(c tele.Context) error {
		m := c.Message()
		if m == nil || !isGroupChat(m.Chat) || m.UserLeft == nil {
			return nil
		}
		a.forgetMember(m.Chat.ID, m.UserLeft.ID)
		a.sendUpdate(kit.Update{
			Kind:       kit.UpdateMembership,
			Membership: &kit.Membership{ChatID: m.Chat.ID, Left: m.UserLeft.ID},
		})
		return nil
	})
}

func (a *Adapter) sendUpdate(up kit.Update) {
	v := a.out.Load()
	out, _ := v.(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "telegram.adapter"))),
	)
	sup := a.sup
	a.runMu.Unlock()

	// Periodic summary for dropped updates.
	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		report := func() {
			if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
				a.log.Warn("incoming updates dropped (channel full)",
					logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
			}
		}
		for {
			select {
			case <-c.Done():
				report()
				return
			case <-ticker.C:
				report()
			}
		}
	})

	// Stop telebot when the adapter context is cancelled.
	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// Telebot's Start() blocks until Stop(). In some failure modes it can
	// exit unexpectedly; restart so the adapter self-heals.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		return nil
	}, 500*time.Millisecond, 10*time.Second)

	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if sup != nil {
		sup.Cancel()
	}
	// telebot Stop is expected to be fast; run it async just in case.
	go a.bot.Stop()

	if sup == nil {
		return nil
	}

	// Grace window: keep shutdown snappy even when getUpdates long-poll is
	// still waiting out its timeout.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Warn("telegram stop error", logx.Err(err))
	}
	return nil
}

func (a *Adapter) sendOptions(opt *kit.SendOptions) *tele.SendOptions {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	so := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
	}
	if rm, ok := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup); ok {
		so.ReplyMarkup = rm
	}
	return so
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return kit.MessageRef{}, err
	}
	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, text, a.sendOptions(opt))
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}, nil
}

func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	_, err := a.bot.Edit(m, text, a.sendOptions(opt))
	// Redrawing identical content is routine for a live surface, not an error.
	if errors.Is(err, tele.ErrSameMessageContent) {
		return nil
	}
	return err
}

func (a *Adapter) DeleteMessage(ctx context.Context, ref kit.MessageRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.bot.Delete(&tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}})
}

func (a *Adapter) SendDM(ctx context.Context, memberID int64, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return kit.MessageRef{}, err
	}
	msg, err := a.bot.Send(&tele.User{ID: memberID}, text, a.sendOptions(opt))
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: memberID, MessageID: msg.ID}, nil
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}

// SendLog delivers one log line to a chat. Implements the logging chat sink
// without pulling transport types into the logging package.
func (a *Adapter) SendLog(ctx context.Context, chatID int64, text string) error {
	_, err := a.SendText(ctx, kit.ChatTarget{ChatID: chatID}, text, &kit.SendOptions{DisablePreview: true})
	return err
}
