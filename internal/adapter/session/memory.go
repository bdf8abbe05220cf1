package session

import (
	"sync"
	"time"

	"flowrelay/internal/domain"
)

// MemoryStore keeps session bindings in a mutex-guarded map. Bindings
// older than ttl are evicted lazily on access; ttl 0 keeps them for the
// process lifetime.
type MemoryStore struct {
	mu       sync.Mutex
	bindings map[string]binding
	ttl      time.Duration
	now      func() time.Time
}

type binding struct {
	targetKey string
	touchedAt time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		bindings: make(map[string]binding),
		ttl:      ttl,
		now:      time.Now,
	}
}

var _ domain.SessionStore = (*MemoryStore)(nil)

func (s *MemoryStore) Get(sessionID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bindings[sessionID]
	if !ok {
		return "", false
	}
	if s.expired(b) {
		delete(s.bindings, sessionID)
		return "", false
	}
	return b.targetKey, true
}

func (s *MemoryStore) Set(sessionID, targetKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings[sessionID] = binding{targetKey: targetKey, touchedAt: s.now()}
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, b := range s.bindings {
		if s.expired(b) {
			delete(s.bindings, id)
		}
	}
	return len(s.bindings)
}

func (s *MemoryStore) expired(b binding) bool {
	return s.ttl > 0 && s.now().Sub(b.touchedAt) > s.ttl
}
