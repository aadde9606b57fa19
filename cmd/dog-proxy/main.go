package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/dog-photo-cache/pkg/cache"
	"github.com/Sternrassler/dog-photo-cache/pkg/client"
	"github.com/Sternrassler/dog-photo-cache/pkg/config"
	"github.com/Sternrassler/dog-photo-cache/pkg/database"
	"github.com/Sternrassler/dog-photo-cache/pkg/images"
	"github.com/Sternrassler/dog-photo-cache/pkg/logging"
	"github.com/Sternrassler/dog-photo-cache/pkg/photos"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatal().Err(err).Msg("dog-proxy stopped")
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Setup(logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: os.Stderr,
	})
	logger := logging.NewLogger("dog-proxy")

	db, err := database.Open(database.Config{
		Driver: cfg.Database.Driver,
		Path:   cfg.Database.Path,
		DSN:    cfg.Database.DSN,
	})
	if err != nil {
		return err
	}
	defer database.Close(db)

	if err := database.AutoMigrate(db, photos.Models()...); err != nil {
		return err
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("Database ready")

	store, err := cache.New(ctx, cache.Options{
		Backend:  cfg.Cache.Backend,
		RedisURL: cfg.Cache.Redis.URL,
		DB:       db,
	})
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer store.Close()
	logger.Info().
		Str("backend", cfg.Cache.Backend).
		Dur("ttl", cfg.Cache.TTL()).
		Msg("Cache ready")

	clientCfg := client.DefaultConfig()
	clientCfg.BaseURL = cfg.Upstream.BaseURL
	clientCfg.Timeout = cfg.Upstream.Timeout
	upstream, err := client.New(clientCfg)
	if err != nil {
		return err
	}
	defer upstream.Close()

	imageService := images.NewService(store, upstream, cfg.Cache.TTL())
	photoService := photos.NewService(photos.NewRepository(db), imageService)

	srv := &http.Server{
		Addr: ":" + strconv.Itoa(cfg.Server.Port),
		Handler: newRouter(&server{
			store:  store,
			images: imageService,
			photos: photoService,
			ttl:    cfg.Cache.TTL(),
			checks: readinessChecks(db, store),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("upstream", clientCfg.BaseURL).Msg("Starting dog proxy server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
