// Package transport defines the platform-neutral boundary between the bot
// core and the chat platform. The core only sees these types; the concrete
// platform lives in a subpackage.
package transport

import "context"

type UpdateKind string

const (
	UpdateMessage    UpdateKind = "message"
	UpdateCallback   UpdateKind = "callback"
	UpdateMembership UpdateKind = "membership"
)

// Update is a single inbound event from the platform.
type Update struct {
	Kind       UpdateKind
	Message    *Message
	Callback   *Callback
	Membership *Membership
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

// Membership reports members joining or leaving a guild. Leavers arrive
// one at a time; joins may come in a batch.
type Membership struct {
	ChatID int64
	Joined []int64
	Left   int64
}

// Callback is an inline-button press.
type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	MessageID int
	IsGroup   bool
	Data      string
}

type ChatTarget struct {
	ChatID int64
}

// MessageRef identifies one editable message, e.g. a guild's live roster.
type MessageRef struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int   `json:"message_id"`
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// ReplyMarkupAdapter carries adapter-specific button markup
	// (Telegram: *telebot.ReplyMarkup).
	ReplyMarkupAdapter any
}

// Adapter is the outbound side of the platform boundary.
//
// Failure semantics: errors are returned to the caller; the adapter never
// retries on its own.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	DeleteMessage(ctx context.Context, ref MessageRef) error
	// SendDM delivers a direct message to one member.
	SendDM(ctx context.Context, memberID int64, text string, opt *SendOptions) (MessageRef, error)
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// Directory answers membership questions about a guild. What a "role" means
// is platform-specific; implementations document their mapping.
type Directory interface {
	// MemberName returns a human-readable display name for a member.
	MemberName(ctx context.Context, guildID, memberID int64) string
	// IsAdmin reports whether the member may run admin commands in the
	// guild. roleID is the guild's configured admin role (0 if unset).
	IsAdmin(ctx context.Context, guildID, memberID int64, roleID int64) (bool, error)
	// StaticMembers lists the members covered by the guild's roster.
	// roleID is the guild's configured static role (0 if unset).
	StaticMembers(ctx context.Context, guildID int64, roleID int64) ([]int64, error)
}

// BotCommand is one entry of the platform's command menu.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is optionally implemented by adapters that can publish
// a command menu (Telegram setMyCommands).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
