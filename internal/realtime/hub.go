package realtime

import (
	"errors"
	"sync/atomic"

	"github.com/tinywideclouds/go-feed-service/pkg/feed"
)

// ErrNotBound is the panic value when Broadcast is called before Bind.
var ErrNotBound = errors.New("realtime: broadcast hub not bound to a server")

// Hub is the well-known access point REST handlers use to reach the live
// realtime server. It is constructed once at startup and injected into every
// handler group that broadcasts; there is no package-level instance.
//
// The lifecycle contract is bind once, use many: Bind must be called exactly
// once, after the websocket listener is up and before any request can reach a
// handler that broadcasts. Using the hub out of order is a programming error
// and panics rather than silently dropping events.
type Hub struct {
	server atomic.Pointer[Server]
}

// NewHub creates an unbound hub.
func NewHub() *Hub {
	return &Hub{}
}

// Bind attaches the hub to the live realtime server. Calling it twice, or
// with a nil server, panics.
func (h *Hub) Bind(s *Server) {
	if s == nil {
		panic("realtime: cannot bind hub to a nil server")
	}
	if !h.server.CompareAndSwap(nil, s) {
		panic("realtime: broadcast hub already bound")
	}
}

// Broadcast fans the event out to every active connection. Panics with
// ErrNotBound when called before Bind.
func (h *Hub) Broadcast(event feed.BroadcastEvent) {
	s := h.server.Load()
	if s == nil {
		panic(ErrNotBound)
	}
	s.Broadcast(event)
}
