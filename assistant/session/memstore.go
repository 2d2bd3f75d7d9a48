package session

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemStore keeps session memory in process. Entries are evicted lazily on
// read; Sweep can be called periodically to reclaim abandoned sessions.
type MemStore struct {
	mu      sync.Mutex
	entries map[string]*Memory
	ttl     time.Duration
	now     func() time.Time
}

var _ Store = (*MemStore)(nil)

// MemOption customizes MemStore.
type MemOption func(*MemStore)

func WithTTL(ttl time.Duration) MemOption {
	return func(s *MemStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithNow(now func() time.Time) MemOption {
	return func(s *MemStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewMemStore(opts ...MemOption) *MemStore {
	s := &MemStore{
		entries: make(map[string]*Memory),
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *MemStore) Load(ctx context.Context, sessionID string) (*Memory, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.entries[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if m.Expired(s.now().UTC()) {
		delete(s.entries, sessionID)
		return nil, ErrNotFound
	}

	copied := *m
	return &copied, nil
}

func (s *MemStore) Save(ctx context.Context, m *Memory) error {
	if err := m.validate(); err != nil {
		return err
	}

	now := s.now().UTC()
	copied := *m
	copied.UpdatedAt = now
	copied.ExpiresAt = now.Add(s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[copied.SessionID] = &copied
	return nil
}

func (s *MemStore) Delete(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrInvalidSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID)
	return nil
}

// Sweep removes every expired entry and reports how many were evicted.
func (s *MemStore) Sweep() int {
	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, m := range s.entries {
		if m.Expired(now) {
			delete(s.entries, id)
			evicted++
		}
	}
	return evicted
}
