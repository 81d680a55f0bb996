package cmd

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/tinywideclouds/go-feed-service/feedservice/config"
	"github.com/tinywideclouds/go-feed-service/internal/auth"
	"github.com/tinywideclouds/go-feed-service/internal/test/fakes"
	"github.com/tinywideclouds/go-feed-service/pkg/feed"
)

// NewFakeDependencies creates in-memory stores for local development. The
// token service is always real; only persistence is faked.
func NewFakeDependencies(cfg *config.AppConfig, logger zerolog.Logger) (*feed.ServiceDependencies, error) {
	logger.Warn().Msg("Running in 'local' mode. All persistence is in-memory and lost on restart.")

	tokens, err := auth.NewTokenService(
		[]byte(cfg.JWTSecret),
		time.Duration(cfg.TokenTTLMinutes)*time.Minute,
	)
	if err != nil {
		return nil, err
	}

	users := fakes.NewInMemoryUserStore()
	return &feed.ServiceDependencies{
		Users:    users,
		Posts:    fakes.NewInMemoryPostStore(users),
		Images:   fakes.NewInMemoryImageStore(),
		Verifier: tokens,
		Issuer:   tokens,
	}, nil
}
