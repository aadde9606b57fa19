package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCacheUnavailable indicates the backing store could not be reached.
	// Callers on the request path treat it as a miss on read and ignore it on write.
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store is the key/value contract shared by every cache backend.
//
// Values are JSON encoded by the store, so a Set followed by a Get returns
// an equivalent structure regardless of backend. A ttl <= 0 stores the
// value without expiry.
type Store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) (bool, error)
	Close() error
}

// Entry is the stored envelope around a JSON value.
type Entry struct {
	// Value is the JSON encoded payload
	Value json.RawMessage `json:"value"`

	// ExpiresAt is nil for entries without TTL
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// CachedAt is when the entry was written
	CachedAt time.Time `json:"cached_at"`
}

// newEntry encodes value and stamps the expiry relative to now.
func newEntry(value any, ttl time.Duration, now time.Time) (*Entry, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal value: %v", ErrInvalidEntry, err)
	}

	entry := &Entry{
		Value:    data,
		CachedAt: now,
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		entry.ExpiresAt = &expires
	}
	return entry, nil
}

// IsExpired reports whether the entry is past its expiry at the given time.
// Entries without expiry never expire.
func (e *Entry) IsExpired(now time.Time) bool {
	if e.ExpiresAt == nil {
		return false
	}
	return !now.Before(*e.ExpiresAt)
}

// TTL returns the time until expiration.
// Returns 0 for entries without expiry or already expired.
func (e *Entry) TTL(now time.Time) time.Duration {
	if e.ExpiresAt == nil {
		return 0
	}
	ttl := e.ExpiresAt.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// GetJSON reads key from store and decodes it into dest.
func GetJSON(ctx context.Context, store Store, key string, dest any) (bool, error) {
	data, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return true, nil
}

// TTLFromSeconds converts a whole-second TTL into a duration. Zero or
// negative seconds mean no expiry.
func TTLFromSeconds(seconds int) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
