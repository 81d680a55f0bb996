package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tinywideclouds/go-feed-service/pkg/feed"
)

const (
	// writeWait is the deadline for a single write to a client.
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often ping frames are sent. Must be less
	// than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
	sendBufferSize = 256
)

var (
	errSendBufferFull   = errors.New("realtime: send buffer full")
	errConnectionClosed = errors.New("realtime: connection closed")
)

// connection is one live websocket with an authenticated identity attached.
// The ID is assigned at upgrade time and never reused; a reconnect always
// produces a fresh connection with a fresh ID.
type connection struct {
	id       string
	identity feed.Identity
	ws       *websocket.Conn

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newConnection(identity feed.Identity, ws *websocket.Conn) *connection {
	return &connection{
		id:       uuid.NewString(),
		identity: identity,
		ws:       ws,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
	}
}

// deliver queues data for the write pump without blocking. A full buffer is
// an error: the caller decides whether the slow client gets dropped.
func (c *connection) deliver(data []byte) error {
	select {
	case <-c.done:
		return errConnectionClosed
	case c.send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

// shutdown marks the connection closed and tears down the transport. Safe to
// call from any goroutine, any number of times.
func (c *connection) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// writePump drains the send channel onto the websocket and keeps the
// connection alive with periodic pings. Runs in its own goroutine per
// connection; exits when the connection shuts down or a write fails.
func (c *connection) writePump(logger zerolog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()

	for {
		select {
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debug().Err(err).Str("conn", c.id).Msg("Write failed, dropping connection.")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
