// Main entrypoint for the feed service. Handles config loading, dependency
// injection, and starting the application.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tinywideclouds/go-feed-service/cmd"
	"github.com/tinywideclouds/go-feed-service/feedservice"
	"github.com/tinywideclouds/go-feed-service/feedservice/config"
	"github.com/tinywideclouds/go-feed-service/internal/app"
	"github.com/tinywideclouds/go-feed-service/internal/auth"
	"github.com/tinywideclouds/go-feed-service/internal/platform/persistence"
	"github.com/tinywideclouds/go-feed-service/internal/platform/storage"
	"github.com/tinywideclouds/go-feed-service/pkg/feed"
)

func main() {
	// 1. Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := log.With().Str("service", "go-feed-service").Logger()

	// .env is optional; in deployed environments the variables are set directly.
	_ = godotenv.Load()

	// 2. Load config.yaml plus environment overrides
	cfg, err := cmd.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// 3. Create dependencies
	ctx := context.Background()
	deps, cleanup, err := newDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize dependencies")
	}
	defer cleanup()

	// 4. Create the service
	service, err := feedservice.New(cfg, deps, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create feed service")
	}

	// 5. Run the application
	app.Run(ctx, logger, service)
}

// newDependencies builds the service dependency container. The returned
// cleanup func releases any connection pools.
func newDependencies(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) (*feed.ServiceDependencies, func(), error) {
	noop := func() {}

	if cfg.RunMode == "local" {
		deps, err := cmd.NewFakeDependencies(cfg, logger)
		return deps, noop, err
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, noop, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, noop, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	db := persistence.NewPostgres(pool, logger)
	if err = db.Migrate(ctx); err != nil {
		pool.Close()
		return nil, noop, fmt.Errorf("failed to run migrations: %w", err)
	}

	images, err := storage.NewLocalImageStore(cfg.ImageDir)
	if err != nil {
		pool.Close()
		return nil, noop, fmt.Errorf("failed to create image store: %w", err)
	}

	tokens, err := auth.NewTokenService(
		[]byte(cfg.JWTSecret),
		time.Duration(cfg.TokenTTLMinutes)*time.Minute,
	)
	if err != nil {
		pool.Close()
		return nil, noop, fmt.Errorf("failed to create token service: %w", err)
	}

	deps := &feed.ServiceDependencies{
		Users:    db,
		Posts:    db,
		Images:   images,
		Verifier: tokens,
		Issuer:   tokens,
	}
	return deps, pool.Close, nil
}
