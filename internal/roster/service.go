package roster

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"rosterbot/internal/eventbus"
	"rosterbot/internal/storage"
	"rosterbot/internal/transport"
	"rosterbot/pkg/logx"
)

// Service is the authority over guild records. Every mutation is an atomic
// per-guild read-modify-write committed to the store before the call
// returns; status mutations additionally notify the guild's observer with
// the full resulting map.
type Service struct {
	store storage.Store
	log   logx.Logger
	bus   eventbus.Bus

	mu    sync.Mutex
	locks map[int64]*sync.Mutex

	obsMu     sync.RWMutex
	observers map[int64]Observer
}

func NewService(store storage.Store, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store:     store,
		log:       log,
		bus:       bus,
		locks:     map[int64]*sync.Mutex{},
		observers: map[int64]Observer{},
	}
}

func guildKey(guildID int64) string { return strconv.FormatInt(guildID, 10) }

// MemberKey is the status-map key for a member ID.
func MemberKey(memberID int64) string { return strconv.FormatInt(memberID, 10) }

func (s *Service) guildLock(guildID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[guildID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[guildID] = l
	}
	return l
}

func (s *Service) load(ctx context.Context, guildID int64) (*GuildRecord, error) {
	doc, ok, err := s.store.LoadDoc(ctx, guildKey(guildID))
	if err != nil {
		return nil, fmt.Errorf("load guild %d: %w", guildID, err)
	}
	rec := &GuildRecord{}
	if ok {
		if err := json.Unmarshal(doc, rec); err != nil {
			return nil, fmt.Errorf("decode guild %d: %w", guildID, err)
		}
	}
	if rec.MemberStatuses == nil {
		rec.MemberStatuses = map[string]Status{}
	}
	return rec, nil
}

func (s *Service) save(ctx context.Context, guildID int64, rec *GuildRecord) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode guild %d: %w", guildID, err)
	}
	if err := s.store.SaveDoc(ctx, guildKey(guildID), doc); err != nil {
		return fmt.Errorf("save guild %d: %w", guildID, err)
	}
	return nil
}

// mutate runs fn against the guild record under the guild lock and persists
// the result. fn reports whether anything changed; an unchanged record is
// not rewritten.
func (s *Service) mutate(ctx context.Context, guildID int64, fn func(*GuildRecord) bool) (*GuildRecord, error) {
	l := s.guildLock(guildID)
	l.Lock()
	defer l.Unlock()

	rec, err := s.load(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if !fn(rec) {
		return rec, nil
	}
	if err := s.save(ctx, guildID, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Record returns a copy of the full guild record.
func (s *Service) Record(ctx context.Context, guildID int64) (GuildRecord, error) {
	l := s.guildLock(guildID)
	l.Lock()
	defer l.Unlock()

	rec, err := s.load(ctx, guildID)
	if err != nil {
		return GuildRecord{}, err
	}
	out := *rec
	out.MemberStatuses = copyStatuses(rec.MemberStatuses)
	return out, nil
}

// Statuses returns a copy of the guild's status map.
func (s *Service) Statuses(ctx context.Context, guildID int64) (map[string]Status, error) {
	rec, err := s.Record(ctx, guildID)
	if err != nil {
		return nil, err
	}
	return rec.MemberStatuses, nil
}

// UpdateStatus sets one member's status. The write is durable before the
// call returns. Unless quiet is set, the guild's observer is invoked with
// the full resulting map; quiet updates are for backfilling defaults where
// the caller renders once afterwards.
func (s *Service) UpdateStatus(ctx context.Context, guildID int64, memberKey string, status Status, quiet bool) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}
	rec, err := s.mutate(ctx, guildID, func(r *GuildRecord) bool {
		r.MemberStatuses[memberKey] = status
		return true
	})
	if err != nil {
		return err
	}
	s.publish("roster.status.updated", guildID, map[string]any{
		"member": memberKey,
		"status": string(status),
	})
	if quiet {
		return nil
	}
	s.notify(ctx, guildID, copyStatuses(rec.MemberStatuses))
	return nil
}

// RemoveMember drops a member from the status map. Removing an absent
// member is a no-op that still notifies with the current map.
func (s *Service) RemoveMember(ctx context.Context, guildID int64, memberKey string) error {
	rec, err := s.mutate(ctx, guildID, func(r *GuildRecord) bool {
		if _, ok := r.MemberStatuses[memberKey]; !ok {
			return false
		}
		delete(r.MemberStatuses, memberKey)
		return true
	})
	if err != nil {
		return err
	}
	s.notify(ctx, guildID, copyStatuses(rec.MemberStatuses))
	return nil
}

// Reset clears every status in the guild. Idempotent; the observer is
// notified with the empty map either way.
func (s *Service) Reset(ctx context.Context, guildID int64) error {
	_, err := s.mutate(ctx, guildID, func(r *GuildRecord) bool {
		if len(r.MemberStatuses) == 0 {
			return false
		}
		r.MemberStatuses = map[string]Status{}
		return true
	})
	if err != nil {
		return err
	}
	s.publish("roster.reset", guildID, nil)
	s.notify(ctx, guildID, map[string]Status{})
	return nil
}

// RegisterObserver installs the guild's single observer, replacing any
// previous one.
func (s *Service) RegisterObserver(guildID int64, obs Observer) {
	s.obsMu.Lock()
	s.observers[guildID] = obs
	s.obsMu.Unlock()
}

// RemoveObserver detaches the guild's observer if one is registered.
func (s *Service) RemoveObserver(guildID int64) {
	s.obsMu.Lock()
	delete(s.observers, guildID)
	s.obsMu.Unlock()
}

// ForceRefresh pushes the current map to the guild's observer without
// mutating anything.
func (s *Service) ForceRefresh(ctx context.Context, guildID int64) error {
	statuses, err := s.Statuses(ctx, guildID)
	if err != nil {
		return err
	}
	s.notify(ctx, guildID, statuses)
	return nil
}

// notify delivers the map to the guild's observer. A guild without an
// observer (roster message never created, or deleted out from under the
// bot) is normal: state mutations proceed, rendering silently does not.
func (s *Service) notify(ctx context.Context, guildID int64, statuses map[string]Status) {
	s.obsMu.RLock()
	obs := s.observers[guildID]
	s.obsMu.RUnlock()
	if obs == nil {
		s.log.Debug("no observer for guild", logx.Int64("guild", guildID))
		return
	}
	if err := obs(ctx, statuses); err != nil {
		// Rendering is best effort; the durable state already moved on.
		s.log.Warn("observer failed", logx.Int64("guild", guildID), logx.Err(err))
	}
}

func (s *Service) publish(typ string, guildID int64, data map[string]any) {
	if s.bus == nil {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	data["guild"] = guildID
	s.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

// SetStaticRole points the guild at the role whose members pre-populate the
// roster. Changing it clears all recorded statuses: the old member set no
// longer applies.
func (s *Service) SetStaticRole(ctx context.Context, guildID, roleID int64) error {
	_, err := s.mutate(ctx, guildID, func(r *GuildRecord) bool {
		r.StaticRoleID = roleID
		r.MemberStatuses = map[string]Status{}
		return true
	})
	return err
}

// SetAdminRole records the role gating admin commands. Like the static
// role, changing it starts the guild over with a clean status map.
func (s *Service) SetAdminRole(ctx context.Context, guildID, roleID int64) error {
	_, err := s.mutate(ctx, guildID, func(r *GuildRecord) bool {
		r.AdminRoleID = roleID
		r.MemberStatuses = map[string]Status{}
		return true
	})
	return err
}

// SetRosterMessage records where the guild's live roster lives.
func (s *Service) SetRosterMessage(ctx context.Context, guildID int64, ref transport.MessageRef) error {
	_, err := s.mutate(ctx, guildID, func(r *GuildRecord) bool {
		r.RosterMessage = &ref
		return true
	})
	return err
}

// SetReminderSchedule persists the weekly reminder descriptor, replacing
// any previous one.
func (s *Service) SetReminderSchedule(ctx context.Context, guildID int64, spec JobSpec) error {
	_, err := s.mutate(ctx, guildID, func(r *GuildRecord) bool {
		r.WeeklyReminder = &spec
		return true
	})
	return err
}

// DeleteReminderSchedule removes the persisted reminder descriptor and
// returns the removed spec, if any.
func (s *Service) DeleteReminderSchedule(ctx context.Context, guildID int64) (*JobSpec, error) {
	var removed *JobSpec
	_, err := s.mutate(ctx, guildID, func(r *GuildRecord) bool {
		removed = r.WeeklyReminder
		r.WeeklyReminder = nil
		return removed != nil
	})
	return removed, err
}

// SetResetSchedule persists the weekly reset descriptor, replacing any
// previous one.
func (s *Service) SetResetSchedule(ctx context.Context, guildID int64, spec JobSpec) error {
	_, err := s.mutate(ctx, guildID, func(r *GuildRecord) bool {
		r.WeeklyReset = &spec
		return true
	})
	return err
}

// DeleteResetSchedule removes the persisted reset descriptor and returns
// the removed spec, if any.
func (s *Service) DeleteResetSchedule(ctx context.Context, guildID int64) (*JobSpec, error) {
	var removed *JobSpec
	_, err := s.mutate(ctx, guildID, func(r *GuildRecord) bool {
		removed = r.WeeklyReset
		r.WeeklyReset = nil
		return removed != nil
	})
	return removed, err
}

// ForEachGuild visits every persisted guild record. Used at startup to
// reattach surfaces and re-register scheduled jobs.
func (s *Service) ForEachGuild(ctx context.Context, fn func(guildID int64, rec GuildRecord) error) error {
	return s.store.ForEachDoc(ctx, func(key string, doc []byte) error {
		guildID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			s.log.Warn("skipping malformed guild key", logx.String("key", key))
			return nil
		}
		rec := GuildRecord{}
		if err := json.Unmarshal(doc, &rec); err != nil {
			s.log.Warn("skipping undecodable guild record", logx.String("key", key), logx.Err(err))
			return nil
		}
		if rec.MemberStatuses == nil {
			rec.MemberStatuses = map[string]Status{}
		}
		return fn(guildID, rec)
	})
}

func copyStatuses(in map[string]Status) map[string]Status {
	out := make(map[string]Status, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
