// Package app contains the shared logic for starting and stopping the service.
package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tinywideclouds/go-feed-service/feedservice"
)

// Run executes the main application lifecycle for the feed service. It starts
// the service, listens for OS signals, and performs a graceful shutdown.
func Run(
	ctx context.Context,
	logger zerolog.Logger,
	service *feedservice.Wrapper,
) {
	var wg sync.WaitGroup
	wg.Add(1)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		defer wg.Done()
		logger.Info().Msg("Starting Feed Service...")
		err := service.Start(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("Feed Service failed")
			cancel()
		}
	}()

	// Wait for a shutdown signal.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal.")
	case <-ctx.Done():
		logger.Info().Msg("Context cancelled, initiating shutdown.")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	logger.Info().Msg("Shutting down Feed Service...")
	if err := service.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Feed Service shutdown failed.")
	}

	wg.Wait()
	logger.Info().Msg("Service shut down gracefully.")
}
