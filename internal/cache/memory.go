package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is a process-local Store for single-node setups and tests.
type MemoryStore struct {
	mu         sync.Mutex
	items      map[string]memoryEntry
	defaultTTL time.Duration
	now        func() time.Time
}

// NewMemoryStore creates an empty store. A zero defaultTTL means entries
// without an explicit TTL never expire.
func NewMemoryStore(defaultTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		items:      make(map[string]memoryEntry),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.items[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		delete(s.items, key)
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), entry.value...), nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errors.New("cache key is required")
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	s.items[key] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}
