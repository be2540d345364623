package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the dev/test fallback. Single instance only: state
// does not survive a restart and is invisible to other replicas.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	nowFn   func() time.Time
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: map[string]memoryEntry{},
		nowFn:   time.Now,
	}
}

func (s *MemoryStore) memKey(sessionID, key string) string {
	return sessionID + ":" + key
}

func (s *MemoryStore) Set(_ context.Context, sessionID, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = s.nowFn().Add(ttl)
	}
	s.entries[s.memKey(sessionID, key)] = entry
	return nil
}

func (s *MemoryStore) Get(_ context.Context, sessionID, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[s.memKey(sessionID, key)]
	if !ok {
		return "", ErrNotFound
	}
	if !entry.expiresAt.IsZero() && s.nowFn().After(entry.expiresAt) {
		delete(s.entries, s.memKey(sessionID, key))
		return "", ErrNotFound
	}
	return entry.value, nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.entries, s.memKey(sessionID, key))
	}
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context, sessionID string) error {
	return s.Delete(ctx, sessionID, AllKeys...)
}
