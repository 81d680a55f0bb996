package realtime

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tinywideclouds/go-feed-service/pkg/feed"
)

// ErrRecipientOffline is returned by Route when the recipient has no session
// entry. The sender has already been notified by the time Route returns it.
var ErrRecipientOffline = errors.New("realtime: recipient not connected")

// MessageRouter delivers direct messages between two identified users. It
// resolves both ends through the session registry and forwards to exactly one
// connection, in contrast to the hub's one-to-all broadcast.
type MessageRouter struct {
	registry *SessionRegistry
	connByID func(id string) (*connection, bool)
	logger   zerolog.Logger
}

// NewMessageRouter builds a router over the given registry. connByID resolves
// a registered connection ID to its live connection.
func NewMessageRouter(
	registry *SessionRegistry,
	connByID func(id string) (*connection, bool),
	logger zerolog.Logger,
) *MessageRouter {
	return &MessageRouter{
		registry: registry,
		connByID: connByID,
		logger:   logger.With().Str("component", "MessageRouter").Logger(),
	}
}

// Route forwards msg.Body to the recipient's current connection as a
// ChannelMessage event. When the recipient cannot be resolved, the sender
// receives a delivery-failed notice and no event reaches anyone else. Lookup
// is by exact, case-sensitive email.
func (mr *MessageRouter) Route(msg feed.DirectMessage) error {
	connID, ok := mr.registry.Lookup(msg.To)
	if !ok {
		mr.failSender(msg.From, msg.To, reasonRecipientOffline)
		return fmt.Errorf("%w: %s", ErrRecipientOffline, msg.To)
	}

	target, ok := mr.connByID(connID)
	if !ok {
		// The registry entry outlived the connection by a hair; treat it
		// the same as an offline recipient.
		mr.failSender(msg.From, msg.To, reasonRecipientOffline)
		return fmt.Errorf("%w: %s", ErrRecipientOffline, msg.To)
	}

	data, err := marshalEnvelope(ChannelMessage, outboundMessage{From: msg.From, Body: msg.Body})
	if err != nil {
		return err
	}

	if err := target.deliver(data); err != nil {
		mr.failSender(msg.From, msg.To, reasonRecipientOffline)
		return fmt.Errorf("realtime: delivery to %s failed: %w", msg.To, err)
	}

	mr.logger.Debug().Str("from", msg.From).Str("to", msg.To).Msg("Direct message delivered.")
	return nil
}

// failSender routes a delivery-failed notice back to the sender's current
// connection, if it still has one.
func (mr *MessageRouter) failSender(fromEmail, to, reason string) {
	connID, ok := mr.registry.Lookup(fromEmail)
	if !ok {
		return
	}
	c, ok := mr.connByID(connID)
	if !ok {
		return
	}
	mr.notify(c, to, reason)
}

// notify sends a delivery-failed notice directly to a connection.
func (mr *MessageRouter) notify(c *connection, to, reason string) {
	data, err := marshalEnvelope(ChannelMessageFailed, deliveryFailure{To: to, Reason: reason})
	if err != nil {
		mr.logger.Error().Err(err).Msg("Failed to marshal failure notice.")
		return
	}
	if err := c.deliver(data); err != nil {
		mr.logger.Debug().Err(err).Str("conn", c.id).Msg("Could not deliver failure notice.")
	}
}
