package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const backendRedis = "redis"

// RedisStore is a Store backed by Redis. Redis expires keys natively; the
// embedded expiry is checked on read as well so a key that outlives its
// entry (clock skew, PERSIST) is deleted and reported as absent.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a new cache store with Redis backend.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis: redisClient,
	}
}

// NewRedisStoreFromURL parses a redis:// or rediss:// URL and connects.
func NewRedisStoreFromURL(ctx context.Context, rawURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping: %v", ErrCacheUnavailable, err)
	}

	return NewRedisStore(client), nil
}

// Set stores value with the given TTL; ttl <= 0 keeps it until deleted.
func (s *RedisStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	entry, err := newEntry(value, ttl, time.Now())
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if ttl < 0 {
		ttl = 0
	}
	if err := s.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("%w: redis set: %v", ErrCacheUnavailable, err)
	}

	return nil
}

// Get retrieves the JSON value stored under key.
func (s *RedisStore) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	entry, ok, err := s.load(ctx, key, "get")
	if err != nil || !ok {
		if err == nil {
			CacheMisses.WithLabelValues(backendRedis).Inc()
		}
		return nil, false, err
	}

	CacheHits.WithLabelValues(backendRedis).Inc()
	return entry.Value, true, nil
}

// Exists reports whether key holds a live entry, with the same expiry rules
// as Get.
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.load(ctx, key, "exists")
	return ok, err
}

// load reads and decodes the entry under key. An entry past its embedded
// expiry is deleted and reported as absent.
func (s *RedisStore) load(ctx context.Context, key, op string) (*Entry, bool, error) {
	data, err := s.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		CacheErrors.WithLabelValues(op).Inc()
		return nil, false, fmt.Errorf("%w: redis %s: %v", ErrCacheUnavailable, op, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues(op).Inc()
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired(time.Now()) {
		_, _ = s.Delete(ctx, key)
		return nil, false, nil
	}

	return &entry, true, nil
}

// Delete removes a cache entry and reports whether one existed.
func (s *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.redis.Del(ctx, key).Result()
	if err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return false, fmt.Errorf("%w: redis del: %v", ErrCacheUnavailable, err)
	}
	return n > 0, nil
}

// Ping checks connectivity to Redis.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.redis.Close()
}
