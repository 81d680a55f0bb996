// Package realtime provides the long-lived websocket layer of the feed
// service: the per-identity session registry, the connection server, the
// broadcast hub used by REST handlers, and the point-to-point message router.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tinywideclouds/go-feed-service/internal/auth"
	"github.com/tinywideclouds/go-feed-service/pkg/feed"
)

// defaultVerifyTimeout bounds the handshake's token verification.
const defaultVerifyTimeout = 5 * time.Second

// Server accepts websocket connections, authenticates each handshake against
// the shared token verifier, and owns the lifecycle of every active
// connection. It runs its own dedicated HTTP server.
type Server struct {
	server   *http.Server
	upgrader websocket.Upgrader

	verifier feed.TokenVerifier
	registry *SessionRegistry
	router   *MessageRouter

	conns sync.Map // connection ID -> *connection

	verifyTimeout time.Duration
	logger        zerolog.Logger
}

// NewServer wires up a websocket server listening on addr. The verifier is
// the same one backing the REST middleware, so both surfaces accept the same
// bearer tokens.
func NewServer(
	addr string,
	verifier feed.TokenVerifier,
	registry *SessionRegistry,
	verifyTimeout time.Duration,
	logger zerolog.Logger,
) *Server {
	if verifyTimeout <= 0 {
		verifyTimeout = defaultVerifyTimeout
	}

	s := &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browsers cannot set headers on websocket dials, so origin
			// enforcement belongs to the reverse proxy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		verifier:      verifier,
		registry:      registry,
		verifyTimeout: verifyTimeout,
		logger:        logger.With().Str("component", "RealtimeServer").Logger(),
	}
	s.router = NewMessageRouter(registry, s.connByID, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.connectHandler)
	s.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	return s
}

// Handler exposes the server's HTTP handler for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Router returns the point-to-point message router backed by this server's
// session registry.
func (s *Server) Router() *MessageRouter {
	return s.router
}

// Start runs the HTTP server for websocket connections. It blocks until the
// server stops.
func (s *Server) Start(_ context.Context) error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("WebSocket server starting...")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("websocket server failed: %w", err)
	}
	return nil
}

// Shutdown stops the listener and closes every active connection.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down websocket server...")

	err := s.server.Shutdown(ctx)

	s.conns.Range(func(_, v any) bool {
		v.(*connection).shutdown()
		return true
	})

	if err != nil {
		return fmt.Errorf("websocket server shutdown failed: %w", err)
	}
	return nil
}

// Broadcast fans an event out to every active connection. Delivery is
// best-effort: a client whose send buffer is full is dropped rather than
// allowed to stall the rest.
func (s *Server) Broadcast(event feed.BroadcastEvent) {
	data, err := marshalEnvelope(ChannelPosts, event)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to marshal broadcast event.")
		return
	}

	s.conns.Range(func(_, v any) bool {
		c := v.(*connection)
		if err := c.deliver(data); err != nil {
			s.logger.Warn().Err(err).Str("conn", c.id).Str("user", c.identity.Email).
				Msg("Broadcast delivery failed, dropping connection.")
			c.shutdown()
		}
		return true
	})
}

// connectHandler authenticates and upgrades a new connection, then blocks on
// its read loop until the client goes away.
//
// A connection moves Connecting -> Authenticated -> Active -> Closed. A
// missing or invalid token ends it before upgrade: no session entry is ever
// created for a connection that failed the handshake, and it never sees an
// application frame.
func (s *Server) connectHandler(w http.ResponseWriter, r *http.Request) {
	token := auth.BearerToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	verifyCtx, cancel := context.WithTimeout(r.Context(), s.verifyTimeout)
	identity, err := s.verifier.Verify(verifyCtx, token)
	cancel()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Handshake authentication failed.")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection.")
		return
	}

	c := newConnection(identity, ws)
	s.conns.Store(c.id, c)
	s.registry.Register(identity.Email, c.id)
	go c.writePump(s.logger)

	s.logger.Info().Str("user", identity.Email).Str("conn", c.id).Msg("User connected via WebSocket.")

	s.readLoop(c)
	s.drop(c)
}

// drop removes a closed connection. Unregister is conditional on the
// connection still being the current handle for its email, so a slow
// disconnect never clears a newer session.
func (s *Server) drop(c *connection) {
	s.conns.Delete(c.id)
	s.registry.Unregister(c.id)
	c.shutdown()
	s.logger.Info().Str("user", c.identity.Email).Str("conn", c.id).Msg("User disconnected.")
}

func (s *Server) readLoop(c *connection) {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Debug().Err(err).Str("conn", c.id).Msg("Read failed.")
			}
			return
		}
		s.handleInbound(c, data)
	}
}

// handleInbound dispatches one application frame from an active connection.
// Anything unparseable earns the sender a malformed-payload notice instead of
// being silently dropped.
func (s *Server) handleInbound(c *connection, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.router.notify(c, "", reasonMalformedPayload)
		return
	}

	switch env.Channel {
	case ChannelMessage:
		var in inboundMessage
		if err := json.Unmarshal(env.Data, &in); err != nil || in.To == "" || in.Body == "" {
			s.router.notify(c, in.To, reasonMalformedPayload)
			return
		}
		// The sender field is taken from the authenticated handshake, not
		// from the payload, so a client cannot impersonate another user.
		msg := feed.DirectMessage{To: in.To, From: c.identity.Email, Body: in.Body}
		if err := s.router.Route(msg); err != nil {
			s.logger.Debug().Err(err).Str("from", msg.From).Str("to", msg.To).Msg("Direct message not delivered.")
		}
	default:
		s.logger.Debug().Str("channel", env.Channel).Str("conn", c.id).Msg("Ignoring frame on unknown channel.")
	}
}

func (s *Server) connByID(id string) (*connection, bool) {
	v, ok := s.conns.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*connection), true
}
