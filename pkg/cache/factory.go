package cache

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Backend names accepted by New.
const (
	BackendMemory   = backendMemory
	BackendRedis    = backendRedis
	BackendDatabase = backendDatabase
)

// Options selects and configures a Store backend.
type Options struct {
	// Backend is "memory", "redis" or "database" (default memory)
	Backend string

	// RedisURL is required for the redis backend, e.g. redis://localhost:6379/0
	RedisURL string

	// DB is required for the database backend
	DB *gorm.DB
}

// New builds the Store named by opts.Backend.
func New(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendRedis:
		if opts.RedisURL == "" {
			return nil, fmt.Errorf("redis backend requires a redis url")
		}
		store, err := NewRedisStoreFromURL(ctx, opts.RedisURL)
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendDatabase:
		store, err := NewDatabaseStore(opts.DB)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", opts.Backend)
	}
}
