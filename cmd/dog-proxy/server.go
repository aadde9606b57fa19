package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/Sternrassler/dog-photo-cache/pkg/cache"
	"github.com/Sternrassler/dog-photo-cache/pkg/database"
	"github.com/Sternrassler/dog-photo-cache/pkg/images"
	"github.com/Sternrassler/dog-photo-cache/pkg/metrics"
	"github.com/Sternrassler/dog-photo-cache/pkg/photos"
)

const requestTimeout = 30 * time.Second

// readinessCheck reports whether a dependency can serve requests.
type readinessCheck struct {
	name  string
	check func(ctx context.Context) error
}

// server holds the dependencies shared by all handlers.
type server struct {
	store  cache.Store
	images *images.Service
	photos *photos.Service
	ttl    time.Duration
	checks []readinessCheck
}

func newRouter(s *server) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(accessLog)

	r.Get("/health", healthHandler)
	r.Get("/ready", s.readyHandler)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(chiMiddleware.Timeout(requestTimeout))

		r.Route("/external/dog", func(r chi.Router) {
			r.Get("/random-image", s.randomImage)
			r.Get("/image-by-breed/{breed}", s.imageByBreed)
			r.Get("/image-by-breed/{breed}/{subBreed}", s.imageByBreed)
			r.Get("/breeds", s.breedList)
			r.Get("/html", s.imagePage)
		})

		r.Route("/dog-photos", func(r chi.Router) {
			r.Post("/save", s.savePhoto)
			r.Get("/", s.listPhotos)
			r.Get("/{id}", s.getPhoto)
		})

		r.Route("/cache", func(r chi.Router) {
			r.Get("/exists/*", s.cacheExists)
			r.Get("/get/*", s.cacheGet)
			r.Post("/set", s.cacheSet)
			r.Delete("/delete/*", s.cacheDelete)
		})
	})

	return r
}

// readinessChecks builds the probes used by /ready.
func readinessChecks(db *gorm.DB, store cache.Store) []readinessCheck {
	checks := []readinessCheck{{
		name:  "database",
		check: func(ctx context.Context) error { return database.Ping(db) },
	}}

	if p, ok := store.(interface{ Ping(context.Context) error }); ok {
		checks = append(checks, readinessCheck{name: "cache", check: p.Ping})
	}

	return checks
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		log.Debug().
			Str("component", "http").
			Str("request_id", chiMiddleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("Request served")
	})
}
