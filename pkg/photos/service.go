package photos

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/dog-photo-cache/pkg/cache"
	"github.com/Sternrassler/dog-photo-cache/pkg/images"
	"github.com/Sternrassler/dog-photo-cache/pkg/validator"
)

const (
	// DefaultListLimit is used when ListPhotos is called with limit 0.
	DefaultListLimit = 50

	// MaxListLimit is the largest accepted list limit.
	MaxListLimit = 100
)

// ImageSource provides dog images. *images.Service implements it.
type ImageSource interface {
	RandomImage(ctx context.Context) (*images.ImageResponse, error)
	ImageByBreed(ctx context.Context, breed string) (*images.ImageResponse, bool, error)
}

// Service saves upstream images and serves them with their stats.
type Service struct {
	repo   *Repository
	images ImageSource
	logger zerolog.Logger
}

// NewService creates a photo service.
func NewService(repo *Repository, source ImageSource) *Service {
	return &Service{
		repo:   repo,
		images: source,
		logger: log.With().Str("component", "photo-service").Logger(),
	}
}

// SaveRandomPhoto fetches an image, of breed when it is not blank, and
// persists it with fresh stats. It returns ErrBreedNotFound when the
// upstream does not know breed.
func (s *Service) SaveRandomPhoto(ctx context.Context, breed string) (*Photo, error) {
	var (
		img        *images.ImageResponse
		breedPart  *string
		subPart    *string
		normalized = cache.NormalizeBreed(breed)
	)

	if normalized != "" {
		var (
			found bool
			err   error
		)
		img, found, err = s.images.ImageByBreed(ctx, normalized)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrBreedNotFound, normalized)
		}
		breedPart, subPart = splitBreed(normalized)
	} else {
		var err error
		img, err = s.images.RandomImage(ctx)
		if err != nil {
			return nil, err
		}
		breedPart, subPart = breedFromImageURL(img.Message)
	}

	candidate := Photo{ImageURL: img.Message, Breed: breedPart, SubBreed: subPart}
	if err := validator.ValidateStruct(candidate); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPhoto, err)
	}

	created, err := s.repo.CreateWithStats(ctx, candidate.ImageURL, candidate.Breed, candidate.SubBreed)
	if err != nil {
		return nil, err
	}

	photo, err := s.repo.GetByID(ctx, created.ID, true)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Uint("photo_id", photo.ID).
		Str("breed", normalized).
		Msg("Saved dog photo")

	return photo, nil
}

// ListPhotos returns the newest photos. A limit of 0 selects DefaultListLimit.
func (s *Service) ListPhotos(ctx context.Context, limit int) ([]Photo, error) {
	if limit == 0 {
		limit = DefaultListLimit
	}
	if limit < 1 || limit > MaxListLimit {
		return nil, fmt.Errorf("%w: %d (must be 1-%d)", ErrInvalidLimit, limit, MaxListLimit)
	}
	return s.repo.ListPhotos(ctx, limit)
}

// GetPhotoWithStats returns the photo with id and its stats. With increment
// set, reading the photo counts as a view and the returned stats include it.
func (s *Service) GetPhotoWithStats(ctx context.Context, id uint, increment bool) (*Photo, error) {
	photo, err := s.repo.GetByID(ctx, id, !increment)
	if err != nil {
		return nil, err
	}

	if !increment {
		return photo, nil
	}

	stats, err := s.repo.IncrementViews(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Warn().Uint("photo_id", id).Msg("Photo has no stats row")
			return photo, nil
		}
		return nil, err
	}
	photo.Stats = stats

	return photo, nil
}

// splitBreed splits a normalized "master/sub" breed.
func splitBreed(normalized string) (*string, *string) {
	master, sub, hasSub := strings.Cut(normalized, "/")
	if !hasSub || sub == "" {
		return &master, nil
	}
	sub = strings.ReplaceAll(sub, "/", "-")
	return &master, &sub
}

// breedFromImageURL extracts the breed from a dog.ceo image URL such as
// https://images.dog.ceo/breeds/hound-afghan/n02088094_1003.jpg.
func breedFromImageURL(imageURL string) (*string, *string) {
	u, err := url.Parse(imageURL)
	if err != nil {
		return nil, nil
	}

	segments := strings.Split(strings.Trim(path.Clean(u.Path), "/"), "/")
	for i := 0; i+1 < len(segments); i++ {
		if segments[i] != "breeds" {
			continue
		}
		dir := strings.ToLower(segments[i+1])
		if dir == "" || i+2 >= len(segments) {
			return nil, nil
		}
		return splitBreed(strings.Replace(dir, "-", "/", 1))
	}
	return nil, nil
}
