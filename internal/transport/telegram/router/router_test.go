package router

import (
	"context"
	"strings"
	"sync"
	"testing"

	"rosterbot/internal/cron"
	"rosterbot/internal/roster"
	kit "rosterbot/internal/transport"
	"rosterbot/pkg/logx"
)

type memStore struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func newMemStore() *memStore { return &memStore{docs: map[string][]byte{}} }

func (s *memStore) LoadDoc(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[key]
	return d, ok, nil
}

func (s *memStore) SaveDoc(ctx context.Context, key string, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[key] = append([]byte(nil), doc...)
	return nil
}

func (s *memStore) ForEachDoc(ctx context.Context, fn func(key string, doc []byte) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.docs {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *memStore) Close() error { return nil }

type stubAdapter struct {
	mu      sync.Mutex
	sent    []string
	edits   []string
	answers []string
	deleted []kit.MessageRef
	nextID  int
}

func (a *stubAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (a *stubAdapter) Stop(ctx context.Context) error                         { return nil }

func (a *stubAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, text)
	a.nextID++
	return kit.MessageRef{ChatID: to.ChatID, MessageID: a.nextID}, nil
}

func (a *stubAdapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.edits = append(a.edits, text)
	return nil
}

func (a *stubAdapter) DeleteMessage(ctx context.Context, ref kit.MessageRef) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deleted = append(a.deleted, ref)
	return nil
}

func (a *stubAdapter) SendDM(ctx context.Context, memberID int64, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{ChatID: memberID, MessageID: 1}, nil
}

func (a *stubAdapter) AnswerCallback(ctx context.Context, callbackID, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.answers = append(a.answers, text)
	return nil
}

func (a *stubAdapter) editCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.edits)
}

func (a *stubAdapter) lastSent() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.sent) == 0 {
		return ""
	}
	return a.sent[len(a.sent)-1]
}

type stubDir struct {
	admins map[int64]bool
}

func (d *stubDir) MemberName(ctx context.Context, guildID, memberID int64) string { return "member" }

func (d *stubDir) IsAdmin(ctx context.Context, guildID, memberID, roleID int64) (bool, error) {
	return d.admins[memberID], nil
}

func (d *stubDir) StaticMembers(ctx context.Context, guildID, roleID int64) ([]int64, error) {
	return nil, nil
}

func newTestRouter(t *testing.T) (*Router, *stubAdapter, *Services) {
	t.Helper()
	ad := &stubAdapter{}
	dir := &stubDir{admins: map[int64]bool{1: true}}
	svc := roster.NewService(newMemStore(), logx.Nop(), nil)
	serv := &Services{
		Roster:    svc,
		Reminders: roster.NewReminders(svc, ad, dir, logx.Nop(), 100),
		Surfaces:  roster.NewSurfaces(),
		Jobs:      cron.NewRegistry(),
		Dir:       dir,
	}
	return New(ad, serv, logx.Nop()), ad, serv
}

func groupMsg(fromID int64, text string) kit.Update {
	return kit.Update{
		Kind: kit.UpdateMessage,
		Message: &kit.Message{
			ID:      1,
			ChatID:  -100,
			FromID:  fromID,
			Text:    text,
			IsGroup: true,
		},
	}
}

func TestCommandNameStripsBotSuffix(t *testing.T) {
	t.Parallel()
	r, ad, _ := newTestRouter(t)
	r.dispatch(context.Background(), groupMsg(1, "/help@some_bot"))
	if !strings.Contains(ad.lastSent(), "Commands") {
		t.Fatalf("help not dispatched, last reply %q", ad.lastSent())
	}
}

func TestGroupOnlyRefusedInPrivate(t *testing.T) {
	t.Parallel()
	r, ad, serv := newTestRouter(t)
	up := kit.Update{
		Kind: kit.UpdateMessage,
		Message: &kit.Message{
			ID: 1, ChatID: 1, FromID: 1, Text: "/available", IsGroup: false,
		},
	}
	r.dispatch(context.Background(), up)
	if !strings.Contains(ad.lastSent(), "group chat") {
		t.Fatalf("expected group-only refusal, got %q", ad.lastSent())
	}
	statuses, _ := serv.Roster.Statuses(context.Background(), 1)
	if len(statuses) != 0 {
		t.Fatalf("private /available mutated state: %v", statuses)
	}
}

func TestAdminOnlyRefusedForNonAdmin(t *testing.T) {
	t.Parallel()
	r, ad, serv := newTestRouter(t)
	r.dispatch(context.Background(), groupMsg(2, "/reset_now"))
	if !strings.Contains(ad.lastSent(), "admins") {
		t.Fatalf("expected admin refusal, got %q", ad.lastSent())
	}

	// The admin gets through.
	if err := serv.Roster.UpdateStatus(context.Background(), -100, "2", roster.StatusAvailable, false); err != nil {
		t.Fatal(err)
	}
	r.dispatch(context.Background(), groupMsg(1, "/reset_now"))
	if !strings.Contains(ad.lastSent(), "cleared") {
		t.Fatalf("admin reset refused: %q", ad.lastSent())
	}
	statuses, _ := serv.Roster.Statuses(context.Background(), -100)
	if len(statuses) != 0 {
		t.Fatalf("statuses after reset: %v", statuses)
	}
}

func TestStatusCommandUpdatesRoster(t *testing.T) {
	t.Parallel()
	r, _, serv := newTestRouter(t)
	r.dispatch(context.Background(), groupMsg(5, "/maybe"))
	statuses, err := serv.Roster.Statuses(context.Background(), -100)
	if err != nil {
		t.Fatal(err)
	}
	if statuses["5"] != roster.StatusMaybe {
		t.Fatalf("status = %q", statuses["5"])
	}
}

func TestUnknownCommandIgnored(t *testing.T) {
	t.Parallel()
	r, ad, _ := newTestRouter(t)
	r.dispatch(context.Background(), groupMsg(1, "/frobnicate"))
	if got := ad.lastSent(); got != "" {
		t.Fatalf("unknown command replied %q", got)
	}
}

func TestScheduleSetReplacesJob(t *testing.T) {
	t.Parallel()
	r, ad, serv := newTestRouter(t)
	ctx := context.Background()

	r.dispatch(ctx, groupMsg(1, "/reminder_set mon 09:00"))
	if serv.Jobs.Len() != 1 {
		t.Fatalf("jobs = %d after first set", serv.Jobs.Len())
	}
	rec, _ := serv.Roster.Record(ctx, -100)
	if rec.WeeklyReminder == nil || rec.WeeklyReminder.Day != 1 || rec.WeeklyReminder.Hour != 9 {
		t.Fatalf("persisted spec = %+v", rec.WeeklyReminder)
	}
	firstID := rec.WeeklyReminder.JobID

	// Replacing keeps exactly one job and a new descriptor.
	r.dispatch(ctx, groupMsg(1, "/reminder_set fri 18:30"))
	if serv.Jobs.Len() != 1 {
		t.Fatalf("jobs = %d after replace", serv.Jobs.Len())
	}
	rec, _ = serv.Roster.Record(ctx, -100)
	if rec.WeeklyReminder == nil || rec.WeeklyReminder.JobID == firstID {
		t.Fatalf("descriptor not replaced: %+v", rec.WeeklyReminder)
	}
	if rec.WeeklyReminder.Day != 5 || rec.WeeklyReminder.Hour != 18 || rec.WeeklyReminder.Minute != 30 {
		t.Fatalf("descriptor = %+v", rec.WeeklyReminder)
	}
	if !strings.Contains(ad.lastSent(), "Friday") {
		t.Fatalf("confirmation = %q", ad.lastSent())
	}
}

func TestScheduleOffRemovesJob(t *testing.T) {
	t.Parallel()
	r, ad, serv := newTestRouter(t)
	ctx := context.Background()

	r.dispatch(ctx, groupMsg(1, "/reset_set sun 12:00"))
	if serv.Jobs.Len() != 1 {
		t.Fatalf("jobs = %d", serv.Jobs.Len())
	}
	r.dispatch(ctx, groupMsg(1, "/reset_off"))
	if serv.Jobs.Len() != 0 {
		t.Fatalf("jobs = %d after off", serv.Jobs.Len())
	}
	rec, _ := serv.Roster.Record(ctx, -100)
	if rec.WeeklyReset != nil {
		t.Fatalf("descriptor survived: %+v", rec.WeeklyReset)
	}

	// Turning it off twice is harmless.
	r.dispatch(ctx, groupMsg(1, "/reset_off"))
	if !strings.Contains(ad.lastSent(), "No weekly reset") {
		t.Fatalf("second off reply = %q", ad.lastSent())
	}
}

func TestBadScheduleArgsReplyUsage(t *testing.T) {
	t.Parallel()
	r, ad, serv := newTestRouter(t)
	ctx := context.Background()

	r.dispatch(ctx, groupMsg(1, "/reminder_set"))
	if !strings.Contains(ad.lastSent(), "Usage") {
		t.Fatalf("reply = %q", ad.lastSent())
	}
	r.dispatch(ctx, groupMsg(1, "/reminder_set someday 09:00"))
	if !strings.Contains(ad.lastSent(), "weekday") {
		t.Fatalf("reply = %q", ad.lastSent())
	}
	r.dispatch(ctx, groupMsg(1, "/reminder_set mon 25:00"))
	if !strings.Contains(ad.lastSent(), "HH:MM") {
		t.Fatalf("reply = %q", ad.lastSent())
	}
	if serv.Jobs.Len() != 0 {
		t.Fatalf("bad args registered %d jobs", serv.Jobs.Len())
	}
}

func TestRosterCallbackUpdatesStatus(t *testing.T) {
	t.Parallel()
	r, ad, serv := newTestRouter(t)
	up := kit.Update{
		Kind: kit.UpdateCallback,
		Callback: &kit.Callback{
			ID: "cb1", ChatID: -100, MessageID: 9, FromID: 7, IsGroup: true,
			Data: "roster:unavail",
		},
	}
	r.dispatch(context.Background(), up)

	statuses, _ := serv.Roster.Statuses(context.Background(), -100)
	if statuses["7"] != roster.StatusUnavailable {
		t.Fatalf("status = %q", statuses["7"])
	}
	ad.mu.Lock()
	defer ad.mu.Unlock()
	if len(ad.answers) != 1 || !strings.Contains(ad.answers[0], "unavailable") {
		t.Fatalf("answers = %v", ad.answers)
	}
}

func TestReminderCallbackUsesGuildPayload(t *testing.T) {
	t.Parallel()
	r, _, serv := newTestRouter(t)
	// Button pressed in a DM: chat is the member's private chat, the guild
	// rides in the payload.
	up := kit.Update{
		Kind: kit.UpdateCallback,
		Callback: &kit.Callback{
			ID: "cb2", ChatID: 7, MessageID: 3, FromID: 7, IsGroup: false,
			Data: "remind:avail:-100",
		},
	}
	r.dispatch(context.Background(), up)

	statuses, _ := serv.Roster.Statuses(context.Background(), -100)
	if statuses["7"] != roster.StatusAvailable {
		t.Fatalf("status = %q", statuses["7"])
	}
}

func TestRosterReplaceDetachesOldSurface(t *testing.T) {
	t.Parallel()
	r, ad, serv := newTestRouter(t)
	ctx := context.Background()

	r.dispatch(ctx, groupMsg(1, "/roster"))
	first, ok := serv.Surfaces.Get(-100)
	if !ok {
		t.Fatal("no surface after /roster")
	}

	r.dispatch(ctx, groupMsg(1, "/roster"))
	second, ok := serv.Surfaces.Get(-100)
	if !ok {
		t.Fatal("no surface after second /roster")
	}
	if second.Ref() == first.Ref() {
		t.Fatalf("surface not replaced: %+v", second.Ref())
	}

	// The superseded message is deleted best-effort.
	ad.mu.Lock()
	deleted := append([]kit.MessageRef(nil), ad.deleted...)
	ad.mu.Unlock()
	if len(deleted) != 1 || deleted[0] != first.Ref() {
		t.Fatalf("deleted = %v, want [%+v]", deleted, first.Ref())
	}

	// Only the new surface redraws on updates.
	before := ad.editCount()
	if err := serv.Roster.UpdateStatus(ctx, -100, "3", roster.StatusMaybe, false); err != nil {
		t.Fatal(err)
	}
	if got := ad.editCount(); got != before+1 {
		t.Fatalf("edits = %d, want %d", got, before+1)
	}
}

func TestMemberLeftDropsStatus(t *testing.T) {
	t.Parallel()
	r, _, serv := newTestRouter(t)
	ctx := context.Background()

	if err := serv.Roster.UpdateStatus(ctx, -100, "5", roster.StatusAvailable, false); err != nil {
		t.Fatal(err)
	}
	r.dispatch(ctx, kit.Update{
		Kind:       kit.UpdateMembership,
		Membership: &kit.Membership{ChatID: -100, Left: 5},
	})

	statuses, err := serv.Roster.Statuses(ctx, -100)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := statuses["5"]; ok {
		t.Fatalf("leaver still on roster: %v", statuses)
	}
}

func TestMemberJoinBackfillsAndRedraws(t *testing.T) {
	t.Parallel()
	r, ad, serv := newTestRouter(t)
	ctx := context.Background()

	if err := serv.Roster.UpdateStatus(ctx, -100, "5", roster.StatusAvailable, false); err != nil {
		t.Fatal(err)
	}
	sf := roster.NewSurface(serv.Roster, ad, serv.Dir, logx.Nop(), -100, kit.MessageRef{ChatID: -100, MessageID: 1})
	if err := sf.Attach(ctx); err != nil {
		t.Fatal(err)
	}
	serv.Surfaces.Put(-100, sf)
	before := ad.editCount()

	// 5 rejoins, 9 is new; backfill is quiet with one redraw at the end.
	r.dispatch(ctx, kit.Update{
		Kind:       kit.UpdateMembership,
		Membership: &kit.Membership{ChatID: -100, Joined: []int64{5, 9}},
	})

	statuses, err := serv.Roster.Statuses(ctx, -100)
	if err != nil {
		t.Fatal(err)
	}
	if statuses["9"] != roster.StatusDefault {
		t.Fatalf("joiner status = %q", statuses["9"])
	}
	if statuses["5"] != roster.StatusAvailable {
		t.Fatalf("rejoiner status clobbered: %q", statuses["5"])
	}
	if got := ad.editCount(); got != before+1 {
		t.Fatalf("edits = %d, want %d", got, before+1)
	}
}

func TestUnknownCallbackAnswered(t *testing.T) {
	t.Parallel()
	r, ad, _ := newTestRouter(t)
	up := kit.Update{
		Kind: kit.UpdateCallback,
		Callback: &kit.Callback{
			ID: "cb3", ChatID: -100, FromID: 1, IsGroup: true, Data: "oldui:click",
		},
	}
	r.dispatch(context.Background(), up)
	ad.mu.Lock()
	defer ad.mu.Unlock()
	if len(ad.answers) != 1 {
		t.Fatalf("answers = %v", ad.answers)
	}
}
