package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the full bot configuration. YAML and JSON are both accepted;
// unknown fields are rejected so typos fail loudly at load time.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Cron     CronConfig     `json:"cron,omitempty"`
	Roster   RosterConfig   `json:"roster,omitempty"`
	Pprof    *PprofConfig   `json:"pprof,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// PollTimeout is the long-poll timeout as a Go duration string.
	PollTimeout string `json:"poll_timeout,omitempty"`

	// OwnerUserIDs always pass the admin check, regardless of guild roles.
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`

	// LogChatID receives mirrored warn/error log lines when logging.chat
	// is enabled.
	LogChatID int64 `json:"log_chat_id,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"`
	Console bool          `json:"console"`
	File    FileLogConfig `json:"file,omitempty"`
	Chat    ChatLogConfig `json:"chat,omitempty"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type ChatLogConfig struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig selects the guild-document store backend.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "file":   single JSON document file
type StorageConfig struct {
	Driver string `json:"driver,omitempty"`
	Path   string `json:"path,omitempty"`

	// BusyTimeout is a Go duration string; sqlite only, 0 means default.
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type CronConfig struct {
	// PollInterval overrides the scheduler tick cadence. Empty means the
	// 60-second default; only tests should shorten this.
	PollInterval string `json:"poll_interval,omitempty"`
}

type RosterConfig struct {
	// ReminderRatePerSec paces reminder DMs. 0 means the default of 1/s.
	ReminderRatePerSec int `json:"reminder_rate_per_sec,omitempty"`
}

type PprofConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Token   string `json:"token,omitempty"`
}

// ParseDurationField parses a Go duration string from a named config field.
// Empty input returns 0 with no error.
func ParseDurationField(field, s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", field)
	}
	return d, nil
}
