package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	dbtestutil "github.com/Sternrassler/dog-photo-cache/pkg/database/testutil"
)

func newTestDatabaseStore(t *testing.T) (*DatabaseStore, clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	store, err := NewDatabaseStoreWithClock(dbtestutil.MustOpenTestDB(t), clock)
	require.NoError(t, err)
	return store, clock
}

func TestDatabaseStore_SetAndGet(t *testing.T) {
	store, _ := newTestDatabaseStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", map[string]string{"status": "success"}, time.Minute))

	data, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"status":"success"}`, string(data))

	exists, err := store.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDatabaseStore_Overwrite(t *testing.T) {
	store, _ := newTestDatabaseStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "first", time.Minute))
	require.NoError(t, store.Set(ctx, "k", "second", 0))

	var got string
	ok, err := GetJSON(ctx, store, "k", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", got)
}

func TestDatabaseStore_TTLExpiry(t *testing.T) {
	store, clock := newTestDatabaseStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "short", "v", 2*time.Second))
	require.NoError(t, store.Set(ctx, "forever", "v", 0))

	clock.Advance(time.Second)
	_, ok, err := store.Get(ctx, "short")
	require.NoError(t, err)
	assert.True(t, ok, "entry should be live before its TTL")

	clock.Advance(time.Second)
	_, ok, err = store.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok, "entry should expire exactly at its TTL")

	var rows int64
	require.NoError(t, store.db.Model(&DatabaseEntry{}).Where("key = ?", "short").Count(&rows).Error)
	assert.Zero(t, rows, "expired row should be deleted on read")

	clock.Advance(24 * time.Hour)
	exists, err := store.Exists(ctx, "forever")
	require.NoError(t, err)
	assert.True(t, exists, "entries without TTL never expire")
}

func TestDatabaseStore_Delete(t *testing.T) {
	store, clock := newTestDatabaseStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "live", "v", time.Minute))
	require.NoError(t, store.Set(ctx, "stale", "v", time.Second))
	clock.Advance(2 * time.Second)

	deleted, err := store.Delete(ctx, "live")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.Delete(ctx, "stale")
	require.NoError(t, err)
	assert.False(t, deleted, "expired entries are not reported as removed")

	deleted, err = store.Delete(ctx, "never-set")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, ok, _ := store.Get(ctx, "live")
	assert.False(t, ok)
}

func TestDatabaseStore_DeleteCountsCleanupFailure(t *testing.T) {
	store, clock := newTestDatabaseStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "stale", "v", time.Second))
	clock.Advance(2 * time.Second)

	// Let the live-row delete through and fail the leftover cleanup.
	deletes := 0
	require.NoError(t, store.db.Callback().Delete().Before("gorm:delete").
		Register("test:fail_cleanup", func(tx *gorm.DB) {
			deletes++
			if deletes == 2 {
				tx.AddError(errors.New("database is locked"))
			}
		}))

	before := promtestutil.ToFloat64(CacheErrors.WithLabelValues("delete"))

	deleted, err := store.Delete(ctx, "stale")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Equal(t, 2, deletes)
	assert.Equal(t, before+1, promtestutil.ToFloat64(CacheErrors.WithLabelValues("delete")))
}

func TestDatabaseStore_Unavailable(t *testing.T) {
	store, _ := newTestDatabaseStore(t)
	ctx := context.Background()

	sqlDB, err := store.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, _, err = store.Get(ctx, "k")
	assert.True(t, errors.Is(err, ErrCacheUnavailable), "got %v", err)

	err = store.Set(ctx, "k", "v", time.Minute)
	assert.True(t, errors.Is(err, ErrCacheUnavailable), "got %v", err)

	assert.Error(t, store.Ping(ctx))
}

func TestNewDatabaseStore_RequiresDB(t *testing.T) {
	_, err := NewDatabaseStore(nil)
	assert.Error(t, err)

	_, err = New(context.Background(), Options{Backend: BackendDatabase})
	assert.Error(t, err)
}
