// Package feedservice wires the REST API, the realtime websocket server, and
// the broadcast hub into one runnable service.
package feedservice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/tinywideclouds/go-feed-service/feedservice/config"
	"github.com/tinywideclouds/go-feed-service/internal/api"
	"github.com/tinywideclouds/go-feed-service/internal/auth"
	"github.com/tinywideclouds/go-feed-service/internal/realtime"
	"github.com/tinywideclouds/go-feed-service/pkg/feed"
)

// Wrapper owns the two servers of the feed service: the stateless REST API
// and the long-lived websocket server. The broadcast hub is the only bridge
// between them besides the session registry, and it is bound exactly once,
// before the REST listener accepts its first request.
type Wrapper struct {
	restServer *http.Server
	realtime   *realtime.Server
	hub        *realtime.Hub
	registry   *realtime.SessionRegistry
	logger     zerolog.Logger
}

// New creates and wires up the entire feed service.
func New(cfg *config.AppConfig, deps *feed.ServiceDependencies, logger zerolog.Logger) (*Wrapper, error) {
	if deps == nil {
		return nil, errors.New("feedservice: dependencies cannot be nil")
	}

	registry := realtime.NewSessionRegistry()
	rt := realtime.NewServer(
		":"+cfg.WebSocketPort,
		deps.Verifier,
		registry,
		time.Duration(cfg.VerifyTimeoutSeconds)*time.Second,
		logger,
	)
	hub := realtime.NewHub()

	apiHandler := api.NewAPI(*deps, hub, cfg.PublicBaseURL, cfg.FeedPageSize, logger)
	authMiddleware := auth.Middleware(deps.Verifier, logger)

	restServer := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: apiHandler.Router(authMiddleware, cfg.Cors.AllowedOrigins),
	}

	return &Wrapper{
		restServer: restServer,
		realtime:   rt,
		hub:        hub,
		registry:   registry,
		logger:     logger.With().Str("component", "FeedService").Logger(),
	}, nil
}

// Realtime exposes the websocket server, mainly for tests and entrypoints.
func (w *Wrapper) Realtime() *realtime.Server {
	return w.realtime
}

// Start binds the broadcast hub and runs both servers. It blocks until both
// have stopped; a startup failure of either triggers shutdown of the other.
func (w *Wrapper) Start(ctx context.Context) error {
	// The hub must be live before any REST request can reach a handler
	// that broadcasts.
	w.hub.Bind(w.realtime)

	serverErr := make(chan error, 2)

	go func() {
		serverErr <- w.realtime.Start(ctx)
	}()
	go func() {
		w.logger.Info().Str("addr", w.restServer.Addr).Msg("REST server starting...")
		if err := w.restServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("rest server failed: %w", err)
			return
		}
		serverErr <- nil
	}()

	var finalErr error
	for i := 0; i < 2; i++ {
		err := <-serverErr
		if err != nil && finalErr == nil {
			finalErr = err
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = w.Shutdown(shutdownCtx)
			cancel()
		}
	}
	return finalErr
}

// Shutdown gracefully stops both servers.
func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info().Msg("Shutting down service components...")
	var finalErr error

	if err := w.restServer.Shutdown(ctx); err != nil {
		w.logger.Error().Err(err).Msg("REST server shutdown failed.")
		finalErr = err
	}
	if err := w.realtime.Shutdown(ctx); err != nil {
		w.logger.Error().Err(err).Msg("WebSocket server shutdown failed.")
		finalErr = err
	}

	w.logger.Info().Msg("All components shut down.")
	return finalErr
}
