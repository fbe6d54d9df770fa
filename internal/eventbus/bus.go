package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is a lightweight in-memory signal used to decouple components.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers MUST use buffered channels.
//   - Slow subscribers may drop events (bounded backpressure).
//
// Data should be small and ideally JSON-serializable.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// Bus fans events out to every matching subscriber. Dispatch never
// short-circuits: one slow or departed subscriber cannot prevent delivery
// to the others.
type Bus interface {
	Publish(e Event)
	// Subscribe registers a subscriber. If types are given, only events with
	// a matching Type are delivered; otherwise the subscriber sees everything.
	Subscribe(buffer int, types ...string) (ch <-chan Event, unsubscribe func())
}

// New returns a simple in-memory fanout bus.
// It does not own any background goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]*subscriber{}}
}

type subscriber struct {
	ch    chan Event
	types map[string]struct{} // nil means all
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]*subscriber
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Snapshot subscribers so Publish doesn't hold locks while sending.
	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		if s.types != nil {
			if _, ok := s.types[e.Type]; !ok {
				continue
			}
		}
		// Non-blocking delivery; drop on full buffer. If the subscriber
		// unsubscribes concurrently and the channel closes, recover from the
		// send panic.
		func() {
			defer func() { _ = recover() }()
			select {
			case s.ch <- e:
			default:
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int, types ...string) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	s := &subscriber{ch: make(chan Event, buffer)}
	if len(types) > 0 {
		s.types = make(map[string]struct{}, len(types))
		for _, t := range types {
			s.types[t] = struct{}{}
		}
	}
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(s.ch)
		})
	}
	return s.ch, unsub
}
