// Package photos persists saved dog images together with their view
// statistics.
//
// Every Photo row is created in the same transaction as its PhotoStats row,
// so a photo never exists without stats. View counters are incremented with
// a single UPDATE statement, which the database serializes per row.
package photos

import (
	"context"
	"errors"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

var photoViewsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "dogproxy_photo_views_total",
	Help: "Total photo views recorded",
})

// Repository is the gorm-backed photo store.
type Repository struct {
	db    *gorm.DB
	clock clockwork.Clock
}

// NewRepository creates a repository on db. The schema must already be
// migrated (see Models).
func NewRepository(db *gorm.DB) *Repository {
	return NewRepositoryWithClock(db, clockwork.NewRealClock())
}

// NewRepositoryWithClock creates a repository that stamps view times from clock.
func NewRepositoryWithClock(db *gorm.DB, clock clockwork.Clock) *Repository {
	if db == nil {
		panic("photos: db cannot be nil")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Repository{db: db, clock: clock}
}

// CreateWithStats inserts a photo and its zeroed stats row atomically.
func (r *Repository) CreateWithStats(ctx context.Context, imageURL string, breed, subBreed *string) (*Photo, error) {
	photo := &Photo{
		ImageURL: imageURL,
		Breed:    breed,
		SubBreed: subBreed,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Stats").Create(photo).Error; err != nil {
			return err
		}

		stats := &PhotoStats{PhotoID: photo.ID}
		if err := tx.Create(stats).Error; err != nil {
			return err
		}
		photo.Stats = stats
		return nil
	})
	if err != nil {
		return nil, persistenceError("create photo", err)
	}

	return photo, nil
}

// ListPhotos returns up to limit photos, newest first, with their stats.
func (r *Repository) ListPhotos(ctx context.Context, limit int) ([]Photo, error) {
	var photos []Photo
	err := r.db.WithContext(ctx).
		Preload("Stats").
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&photos).Error
	if err != nil {
		return nil, persistenceError("list photos", err)
	}
	return photos, nil
}

// GetByID returns the photo with id, with stats loaded when withStats is set.
func (r *Repository) GetByID(ctx context.Context, id uint, withStats bool) (*Photo, error) {
	query := r.db.WithContext(ctx)
	if withStats {
		query = query.Preload("Stats")
	}

	var photo Photo
	if err := query.Take(&photo, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, persistenceError("get photo", err)
	}
	return &photo, nil
}

// GetStats returns the stats row of photoID.
func (r *Repository) GetStats(ctx context.Context, photoID uint) (*PhotoStats, error) {
	var stats PhotoStats
	err := r.db.WithContext(ctx).Take(&stats, "photo_id = ?", photoID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, persistenceError("get stats", err)
	}
	return &stats, nil
}

// IncrementViews adds one view to photoID and returns the updated row.
// It returns ErrNotFound when the photo has no stats row; none is created.
func (r *Repository) IncrementViews(ctx context.Context, photoID uint) (*PhotoStats, error) {
	now := r.clock.Now().UTC()

	var stats PhotoStats
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&PhotoStats{}).
			Where("photo_id = ?", photoID).
			Updates(map[string]any{
				"views":          gorm.Expr("views + ?", 1),
				"last_viewed_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}

		return tx.Take(&stats, "photo_id = ?", photoID).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, persistenceError("increment views", err)
	}

	photoViewsTotal.Inc()
	return &stats, nil
}
