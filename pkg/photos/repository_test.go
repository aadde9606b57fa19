package photos

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	dbtestutil "github.com/Sternrassler/dog-photo-cache/pkg/database/testutil"
)

func strPtr(s string) *string { return &s }

func newTestRepository(t *testing.T) (*Repository, *gorm.DB, clockwork.FakeClock) {
	t.Helper()

	db := dbtestutil.MustOpenTestDB(t, Models()...)
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	return NewRepositoryWithClock(db, clock), db, clock
}

func TestCreateWithStats(t *testing.T) {
	repo, db, _ := newTestRepository(t)
	ctx := context.Background()

	photo, err := repo.CreateWithStats(ctx, "https://images.dog.ceo/breeds/beagle/n1.jpg", strPtr("beagle"), nil)
	require.NoError(t, err)
	require.NotZero(t, photo.ID)
	require.NotNil(t, photo.Stats)
	assert.Equal(t, photo.ID, photo.Stats.PhotoID)
	assert.Zero(t, photo.Stats.Views)
	assert.Nil(t, photo.Stats.LastViewedAt)

	stats, err := repo.GetStats(ctx, photo.ID)
	require.NoError(t, err)
	assert.Zero(t, stats.Views)

	var count int64
	require.NoError(t, db.Model(&PhotoStats{}).Where("photo_id = ?", photo.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestCreateWithStats_RollsBackOnStatsFailure(t *testing.T) {
	repo, db, _ := newTestRepository(t)
	ctx := context.Background()

	injected := errors.New("stats insert failed")
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_stats", func(tx *gorm.DB) {
		if tx.Statement.Schema != nil && tx.Statement.Schema.Table == "dog_photo_stats" {
			_ = tx.AddError(injected)
		}
	}))

	_, err := repo.CreateWithStats(ctx, "https://images.dog.ceo/breeds/pug/n1.jpg", strPtr("pug"), nil)
	require.Error(t, err)

	var pErr *PersistenceError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, "create photo", pErr.Op)
	assert.ErrorIs(t, err, injected)

	var photos, stats int64
	require.NoError(t, db.Model(&Photo{}).Count(&photos).Error)
	require.NoError(t, db.Model(&PhotoStats{}).Count(&stats).Error)
	assert.Zero(t, photos, "photo insert must be rolled back")
	assert.Zero(t, stats)
}

func TestIncrementViews(t *testing.T) {
	repo, _, clock := newTestRepository(t)
	ctx := context.Background()

	photo, err := repo.CreateWithStats(ctx, "https://images.dog.ceo/breeds/beagle/n1.jpg", strPtr("beagle"), nil)
	require.NoError(t, err)

	before := testutil.ToFloat64(photoViewsTotal)

	stats, err := repo.IncrementViews(ctx, photo.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Views)
	require.NotNil(t, stats.LastViewedAt)
	assert.True(t, stats.LastViewedAt.Equal(clock.Now()), "lastViewedAt = %v", stats.LastViewedAt)

	clock.Advance(time.Minute)
	stats, err = repo.IncrementViews(ctx, photo.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Views)
	assert.True(t, stats.LastViewedAt.Equal(clock.Now()))

	assert.Equal(t, before+2, testutil.ToFloat64(photoViewsTotal))
}

func TestIncrementViews_MissingStats(t *testing.T) {
	repo, db, _ := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.IncrementViews(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	var count int64
	require.NoError(t, db.Model(&PhotoStats{}).Count(&count).Error)
	assert.Zero(t, count, "no stats row may be fabricated")
}

func TestIncrementViews_Concurrent(t *testing.T) {
	repo, _, _ := newTestRepository(t)
	ctx := context.Background()

	photo, err := repo.CreateWithStats(ctx, "https://images.dog.ceo/breeds/pug/n1.jpg", strPtr("pug"), nil)
	require.NoError(t, err)

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.IncrementViews(ctx, photo.ID); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("IncrementViews failed: %v", err)
	}

	stats, err := repo.GetStats(ctx, photo.ID)
	require.NoError(t, err)
	assert.EqualValues(t, n, stats.Views)
}

func TestListPhotos(t *testing.T) {
	repo, db, _ := newTestRepository(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []uint
	for i := 0; i < 5; i++ {
		photo, err := repo.CreateWithStats(ctx, "https://images.dog.ceo/breeds/pug/n1.jpg", strPtr("pug"), nil)
		require.NoError(t, err)
		require.NoError(t, db.Model(&Photo{}).Where("id = ?", photo.ID).
			UpdateColumn("created_at", base.Add(time.Duration(i)*time.Hour)).Error)
		ids = append(ids, photo.ID)
	}

	photos, err := repo.ListPhotos(ctx, 3)
	require.NoError(t, err)
	require.Len(t, photos, 3)
	assert.Equal(t, []uint{ids[4], ids[3], ids[2]}, []uint{photos[0].ID, photos[1].ID, photos[2].ID})
	for _, p := range photos {
		require.NotNil(t, p.Stats)
		assert.Equal(t, p.ID, p.Stats.PhotoID)
	}

	all, err := repo.ListPhotos(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestGetByID(t *testing.T) {
	repo, _, _ := newTestRepository(t)
	ctx := context.Background()

	created, err := repo.CreateWithStats(ctx, "https://images.dog.ceo/breeds/hound-afghan/n1.jpg", strPtr("hound"), strPtr("afghan"))
	require.NoError(t, err)

	withStats, err := repo.GetByID(ctx, created.ID, true)
	require.NoError(t, err)
	assert.Equal(t, "afghan", *withStats.SubBreed)
	require.NotNil(t, withStats.Stats)

	bare, err := repo.GetByID(ctx, created.ID, false)
	require.NoError(t, err)
	assert.Nil(t, bare.Stats)

	_, err = repo.GetByID(ctx, created.ID+100, true)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.GetStats(ctx, created.ID+100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPersistenceError(t *testing.T) {
	inner := errors.New("disk full")
	err := persistenceError("list photos", inner)

	assert.Equal(t, "photos: list photos: disk full", err.Error())
	assert.ErrorIs(t, err, inner)
}
