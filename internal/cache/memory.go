package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the default in-process backend. Eviction is purely
// time-based; the key space is bounded by the symbol universe, not by an
// explicit capacity.
type MemoryStore struct {
	mu      sync.RWMutex
	items   map[string]memoryItem
	now     func() time.Time
	lastGC  time.Time
	gcEvery time.Duration
}

type memoryItem struct {
	entry  Entry
	dropAt time.Time
}

// NewMemoryStore creates an empty in-memory backend.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:   make(map[string]memoryItem),
		now:     time.Now,
		gcEvery: time.Minute,
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	s.mu.RLock()
	it, ok := s.items[key]
	s.mu.RUnlock()
	if !ok || s.now().After(it.dropAt) {
		return Entry{}, false, nil
	}
	return it.entry, true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, e Entry, retention time.Duration) error {
	now := s.now()
	s.mu.Lock()
	s.items[key] = memoryItem{entry: e, dropAt: now.Add(retention)}
	if now.Sub(s.lastGC) > s.gcEvery {
		for k, it := range s.items {
			if now.After(it.dropAt) {
				delete(s.items, k)
			}
		}
		s.lastGC = now
	}
	s.mu.Unlock()
	return nil
}

// Len reports live entries, for tests.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// SetNow overrides the clock, for tests.
func (s *MemoryStore) SetNow(now func() time.Time) { s.now = now }
