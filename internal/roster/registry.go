package roster

import "sync"

// Surfaces tracks the live surface per guild. Callers replacing a guild's
// surface (a fresh /roster message) Remove the old one and detach its
// observer before the new surface attaches.
type Surfaces struct {
	mu sync.RWMutex
	m  map[int64]*Surface
}

func NewSurfaces() *Surfaces {
	return &Surfaces{m: map[int64]*Surface{}}
}

func (s *Surfaces) Get(guildID int64) (*Surface, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sf, ok := s.m[guildID]
	return sf, ok
}

func (s *Surfaces) Put(guildID int64, sf *Surface) {
	s.mu.Lock()
	s.m[guildID] = sf
	s.mu.Unlock()
}

func (s *Surfaces) Remove(guildID int64) {
	s.mu.Lock()
	delete(s.m, guildID)
	s.mu.Unlock()
}
