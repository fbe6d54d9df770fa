// Package roster holds the guild availability state: the per-guild status
// map with durable persistence, the observer fan-out that keeps the live
// roster message in sync, and the reminder fan-out.
package roster

import (
	"context"

	"rosterbot/internal/transport"
)

// Status is one member's availability marker.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusMaybe       Status = "maybe"
	StatusUnavailable Status = "unavailable"
	// StatusDefault marks a member covered by the static role who has not
	// responded yet.
	StatusDefault Status = "default"
)

func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusMaybe, StatusUnavailable, StatusDefault:
		return true
	}
	return false
}

// Emoji returns the marker rendered on the roster surface.
func (s Status) Emoji() string {
	switch s {
	case StatusAvailable:
		return "✅"
	case StatusMaybe:
		return "❔"
	case StatusUnavailable:
		return "❌"
	default:
		return "➖"
	}
}

// Label returns the human-readable form used in replies.
func (s Status) Label() string {
	switch s {
	case StatusAvailable:
		return "available"
	case StatusMaybe:
		return "maybe"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "undecided"
	}
}

// JobSpec is the persisted description of a recurring guild job. JobID is
// process-local: it is only meaningful for the current incarnation of the
// job registry and is re-generated (and re-persisted) at every startup.
type JobSpec struct {
	JobID  string `json:"job_id"`
	Day    int    `json:"day"` // time.Weekday numbering (Sunday = 0)
	Hour   int    `json:"hour"`
	Minute int    `json:"minute"`
}

// GuildRecord is the whole persisted state of one guild. Member status keys
// are decimal member IDs.
type GuildRecord struct {
	MemberStatuses map[string]Status     `json:"member_statuses,omitempty"`
	RosterMessage  *transport.MessageRef `json:"roster_message,omitempty"`
	StaticRoleID   int64                 `json:"static_role_id,omitempty"`
	AdminRoleID    int64                 `json:"admin_role_id,omitempty"`
	WeeklyReminder *JobSpec              `json:"weekly_reminder,omitempty"`
	WeeklyReset    *JobSpec              `json:"weekly_reset,omitempty"`
}

// Observer receives the full current status map after every mutation of a
// guild's statuses. The contract is always "here is the complete state",
// never a delta. At most one observer is registered per guild.
type Observer func(ctx context.Context, statuses map[string]Status) error
