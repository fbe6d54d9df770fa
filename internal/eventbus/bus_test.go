package eventbus

import (
	"testing"
	"time"
)

func TestPublishFanout(t *testing.T) {
	t.Parallel()
	b := New()

	ch1, unsub1 := b.Subscribe(4)
	defer unsub1()
	ch2, unsub2 := b.Subscribe(4)
	defer unsub2()

	b.Publish(Event{Type: "roster.updated"})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case e := <-ch:
			if e.Type != "roster.updated" {
				t.Fatalf("subscriber %d got type %q", i, e.Type)
			}
			if e.Time.IsZero() {
				t.Fatalf("subscriber %d got zero time", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d got no event", i)
		}
	}
}

func TestSubscribeTypeFilter(t *testing.T) {
	t.Parallel()
	b := New()

	ch, unsub := b.Subscribe(4, "cron.fired")
	defer unsub()

	b.Publish(Event{Type: "roster.updated"})
	b.Publish(Event{Type: "cron.fired"})

	select {
	case e := <-ch:
		if e.Type != "cron.fired" {
			t.Fatalf("filter passed %q", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("filtered subscriber got no event")
	}

	select {
	case e := <-ch:
		t.Fatalf("unexpected extra event %q", e.Type)
	default:
	}
}

func TestFullSubscriberDoesNotBlockOthers(t *testing.T) {
	t.Parallel()
	b := New()

	slow, unsubSlow := b.Subscribe(1)
	defer unsubSlow()
	fast, unsubFast := b.Subscribe(8)
	defer unsubFast()

	// Overflow the slow subscriber; the fast one must still see everything.
	for i := 0; i < 5; i++ {
		b.Publish(Event{Type: "tick"})
	}

	got := 0
	for {
		select {
		case <-fast:
			got++
			if got == 5 {
				_ = slow
				return
			}
		case <-time.After(time.Second):
			t.Fatalf("fast subscriber got %d of 5 events", got)
		}
	}
}

func TestUnsubscribeDuringPublish(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()

	// Must not panic on closed channel.
	b.Publish(Event{Type: "tick"})

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
}
