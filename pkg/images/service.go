// Package images serves dog API responses through a cache-aside layer.
//
// Every request derives a cache key, tries the store, and only on a miss
// calls the upstream API and writes the result back. The cache is an
// optimization: store failures are logged and the request is served from
// upstream instead.
package images

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/dog-photo-cache/pkg/cache"
	"github.com/Sternrassler/dog-photo-cache/pkg/client"
	"github.com/Sternrassler/dog-photo-cache/pkg/validator"
)

// ErrInvalidBreed is returned for a breed that is empty after normalization.
var ErrInvalidBreed = errors.New("invalid breed")

// Fetcher performs a single upstream GET and returns the raw JSON body.
// *client.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string) (json.RawMessage, error)
}

// Service is the cached view of the dog API.
type Service struct {
	store    cache.Store
	upstream Fetcher
	ttl      time.Duration
	logger   zerolog.Logger
}

// NewService creates a Service. A ttl <= 0 caches entries without expiry.
func NewService(store cache.Store, upstream Fetcher, ttl time.Duration) *Service {
	if store == nil {
		panic("images: store cannot be nil")
	}
	if upstream == nil {
		panic("images: upstream cannot be nil")
	}

	return &Service{
		store:    store,
		upstream: upstream,
		ttl:      ttl,
		logger:   log.With().Str("component", "image-service").Logger(),
	}
}

// TTL returns the lifetime applied to cached responses.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// RandomImage returns a random dog image.
func (s *Service) RandomImage(ctx context.Context) (*ImageResponse, error) {
	return cached[ImageResponse](ctx, s, cache.RandomImageKey().String(), client.EndpointRandomImage)
}

// ImageByBreed returns a random image of breed ("hound afghan" or
// "hound/afghan" for a sub-breed). The boolean is false when the upstream
// does not know the breed; failures to reach the upstream are returned as
// errors instead.
func (s *Service) ImageByBreed(ctx context.Context, breed string) (*ImageResponse, bool, error) {
	normalized := cache.NormalizeBreed(breed)
	if normalized == "" {
		return nil, false, ErrInvalidBreed
	}

	resp, err := cached[ImageResponse](ctx, s, cache.BreedImageKey(normalized).String(), client.BreedImageEndpoint(escapeBreed(normalized)))
	if err != nil {
		if client.IsNotFound(err) {
			s.logger.Debug().Str("breed", normalized).Msg("Breed not found upstream")
			return nil, false, nil
		}
		return nil, false, err
	}
	return resp, true, nil
}

// BreedList returns every breed with its sub-breeds.
func (s *Service) BreedList(ctx context.Context) (*BreedListResponse, error) {
	return cached[BreedListResponse](ctx, s, cache.BreedListKey().String(), client.EndpointBreedList)
}

// cached implements the cache-aside read for one key. Every decode targets a
// fresh value, so a rejected cache entry never leaks into the result.
func cached[T any](ctx context.Context, s *Service, key, endpoint string) (*T, error) {
	if hit, ok := lookup[T](ctx, s, key); ok {
		return hit, nil
	}

	raw, err := s.upstream.Fetch(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	resp, err := decodeValid[T](raw)
	if err != nil {
		return nil, &client.UpstreamError{
			Endpoint:   endpoint,
			StatusCode: 200,
			ErrorClass: client.ErrorClassInvalidPayload,
			Message:    "response failed validation",
			Err:        err,
		}
	}

	if err := s.store.Set(ctx, key, raw, s.ttl); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	} else {
		s.logger.Debug().Str("key", key).Dur("ttl", s.ttl).Msg("Cached upstream response")
	}

	return resp, nil
}

// lookup returns the cached value for key when it decodes and validates.
// Unreadable entries are removed so the next request refreshes them.
func lookup[T any](ctx context.Context, s *Service, key string) (*T, bool) {
	raw, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Cache read failed, falling back to upstream")
		return nil, false
	}
	if !ok {
		s.logger.Debug().Str("key", key).Msg("Cache miss")
		return nil, false
	}

	value, err := decodeValid[T](raw)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Discarding unreadable cache entry")
		if _, delErr := s.store.Delete(ctx, key); delErr != nil {
			s.logger.Warn().Err(delErr).Str("key", key).Msg("Cache delete failed")
		}
		return nil, false
	}

	s.logger.Debug().Str("key", key).Msg("Cache hit")
	return value, true
}

func decodeValid[T any](raw json.RawMessage) (*T, error) {
	value := new(T)
	if err := json.Unmarshal(raw, value); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := validator.ValidateStruct(value); err != nil {
		return nil, err
	}
	return value, nil
}

// escapeBreed escapes each path segment of a normalized breed.
func escapeBreed(breed string) string {
	parts := strings.Split(breed, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
