// Package api implements the REST surface of the feed service: account
// signup and login, the authenticated post CRUD endpoints, and image serving.
// Post mutations fan out to connected realtime clients through the injected
// broadcaster once the database write has succeeded.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/tinywideclouds/go-feed-service/pkg/feed"
)

// API holds the dependencies for the stateless HTTP handlers.
type API struct {
	users       feed.UserStore
	posts       feed.PostStore
	images      feed.ImageStore
	issuer      feed.TokenIssuer
	broadcaster feed.Broadcaster

	publicBaseURL string
	pageSize      int
	logger        zerolog.Logger
}

// NewAPI creates the handler set. The broadcaster is the only state shared
// with the realtime layer; handlers never touch the session registry.
func NewAPI(
	deps feed.ServiceDependencies,
	broadcaster feed.Broadcaster,
	publicBaseURL string,
	pageSize int,
	logger zerolog.Logger,
) *API {
	if pageSize < 1 {
		pageSize = 2
	}
	return &API{
		users:         deps.Users,
		posts:         deps.Posts,
		images:        deps.Images,
		issuer:        deps.Issuer,
		broadcaster:   broadcaster,
		publicBaseURL: publicBaseURL,
		pageSize:      pageSize,
		logger:        logger.With().Str("component", "API").Logger(),
	}
}

// Router assembles the REST routes. authMiddleware gates everything under
// /feed and the status endpoints; signup, login, and image serving stay
// public.
func (a *API) Router(authMiddleware func(http.Handler) http.Handler, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(allowedOrigins))
	r.Use(a.requestLogger)
	r.Use(middleware.Heartbeat("/healthz"))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", a.handleSignup)
		r.Post("/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Get("/status", a.handleGetStatus)
			r.Patch("/status", a.handleUpdateStatus)
		})
	})

	r.Route("/feed", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/posts", a.handleListPosts)
		r.Post("/posts", a.handleCreatePost)
		r.Get("/posts/{postID}", a.handleGetPost)
		r.Put("/posts/{postID}", a.handleUpdatePost)
		r.Delete("/posts/{postID}", a.handleDeletePost)
	})

	r.Get("/images/{imageKey}", a.handleGetImage)

	return r
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("req_id", middleware.GetReqID(r.Context())).
			Msg("Request received.")
		next.ServeHTTP(w, r)
	})
}
