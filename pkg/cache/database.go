package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const backendDatabase = "database"

// DatabaseEntry is the row layout of DatabaseStore.
type DatabaseEntry struct {
	Key       string     `gorm:"primaryKey;size:256"`
	Value     string     `gorm:"type:text;not null"`
	ExpiresAt *time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName overrides the gorm default.
func (DatabaseEntry) TableName() string { return "cache_entries" }

// DatabaseStore is a Store kept in the relational database, for deployments
// that share a database but run no Redis. Expired rows are deleted when read.
type DatabaseStore struct {
	db    *gorm.DB
	clock clockwork.Clock
}

// NewDatabaseStore creates a store on db and migrates its table.
func NewDatabaseStore(db *gorm.DB) (*DatabaseStore, error) {
	return NewDatabaseStoreWithClock(db, clockwork.NewRealClock())
}

// NewDatabaseStoreWithClock is NewDatabaseStore with an injectable clock.
func NewDatabaseStoreWithClock(db *gorm.DB, clock clockwork.Clock) (*DatabaseStore, error) {
	if db == nil {
		return nil, errors.New("cache: database store requires a db handle")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if err := db.AutoMigrate(&DatabaseEntry{}); err != nil {
		return nil, fmt.Errorf("cache: migrate cache_entries: %w", err)
	}
	return &DatabaseStore{db: db, clock: clock}, nil
}

// Set upserts value under key.
func (s *DatabaseStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	entry, err := newEntry(value, ttl, s.clock.Now())
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return err
	}

	row := DatabaseEntry{
		Key:   key,
		Value: string(entry.Value),
	}
	if entry.ExpiresAt != nil {
		expires := entry.ExpiresAt.UTC()
		row.ExpiresAt = &expires
	}

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
		}).Create(&row).Error
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("%w: set: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Get returns the raw JSON value for key.
func (s *DatabaseStore) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	row, ok, err := s.live(ctx, key, "get")
	if err != nil {
		return nil, false, err
	}
	if !ok {
		CacheMisses.WithLabelValues(backendDatabase).Inc()
		return nil, false, nil
	}

	CacheHits.WithLabelValues(backendDatabase).Inc()
	return json.RawMessage(row.Value), true, nil
}

// Exists reports whether a live entry is stored under key.
func (s *DatabaseStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.live(ctx, key, "exists")
	return ok, err
}

// Delete removes key and reports whether a live entry was removed.
func (s *DatabaseStore) Delete(ctx context.Context, key string) (bool, error) {
	now := s.clock.Now().UTC()

	result := s.db.WithContext(ctx).
		Where("key = ? AND (expires_at IS NULL OR expires_at > ?)", key, now).
		Delete(&DatabaseEntry{})
	if result.Error != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return false, fmt.Errorf("%w: delete: %v", ErrCacheUnavailable, result.Error)
	}

	// expired leftovers are not reported as removed
	if result.RowsAffected == 0 {
		if err := s.db.WithContext(ctx).Where("key = ?", key).Delete(&DatabaseEntry{}).Error; err != nil {
			CacheErrors.WithLabelValues("delete").Inc()
		}
	}
	return result.RowsAffected > 0, nil
}

// Ping checks the database connection.
func (s *DatabaseStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close is a no-op; the database handle belongs to the caller.
func (s *DatabaseStore) Close() error {
	return nil
}

func (s *DatabaseStore) live(ctx context.Context, key, op string) (*DatabaseEntry, bool, error) {
	var row DatabaseEntry
	err := s.db.WithContext(ctx).Take(&row, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		CacheErrors.WithLabelValues(op).Inc()
		return nil, false, fmt.Errorf("%w: %s: %v", ErrCacheUnavailable, op, err)
	}

	now := s.clock.Now().UTC()
	if row.ExpiresAt != nil && !now.Before(*row.ExpiresAt) {
		if err := s.db.WithContext(ctx).
			Where("key = ? AND expires_at <= ?", key, now).
			Delete(&DatabaseEntry{}).Error; err != nil {
			CacheErrors.WithLabelValues("delete").Inc()
		}
		return nil, false, nil
	}

	return &row, true, nil
}
