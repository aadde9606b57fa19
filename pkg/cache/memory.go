package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const backendMemory = "memory"

// MemoryStore is an in-process Store. Expired entries are removed lazily
// when they are read; there is no background eviction.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	clock   clockwork.Clock
}

// NewMemoryStore creates an empty in-memory store using the real clock.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(clockwork.NewRealClock())
}

// NewMemoryStoreWithClock creates an in-memory store driven by clock.
func NewMemoryStoreWithClock(clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		entries: make(map[string]*Entry),
		clock:   clock,
	}
}

// Set stores value under key, replacing any previous entry.
func (s *MemoryStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	entry, err := newEntry(value, ttl, s.clock.Now())
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return err
	}

	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()

	return nil
}

// Get returns the raw JSON value for key.
func (s *MemoryStore) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	entry, ok := s.live(key)
	if !ok {
		CacheMisses.WithLabelValues(backendMemory).Inc()
		return nil, false, nil
	}

	CacheHits.WithLabelValues(backendMemory).Inc()
	return append(json.RawMessage(nil), entry.Value...), true, nil
}

// Exists reports whether a live entry is stored under key.
func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := s.live(key)
	return ok, nil
}

// Delete removes key and reports whether a live entry was removed.
func (s *MemoryStore) Delete(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	delete(s.entries, key)

	return !entry.IsExpired(s.clock.Now()), nil
}

// Len returns the number of stored entries, including expired ones not yet read.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear drops every entry.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	s.entries = make(map[string]*Entry)
	s.mu.Unlock()
}

// Close clears the store. The store stays usable afterwards.
func (s *MemoryStore) Close() error {
	s.Clear()
	return nil
}

// live returns the entry for key, deleting it first if it has expired.
func (s *MemoryStore) live(key string) (*Entry, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if !entry.IsExpired(s.clock.Now()) {
		return entry, true
	}

	s.mu.Lock()
	// Re-check under the write lock; a concurrent Set may have replaced it.
	if current, ok := s.entries[key]; ok && current == entry {
		delete(s.entries, key)
	}
	s.mu.Unlock()

	return nil, false
}
