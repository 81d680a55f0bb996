package realtime

import (
	"encoding/json"
	"fmt"
)

// Channel names for server/client events. Clients use the channel to tell a
// feed update apart from a targeted message.
const (
	// ChannelPosts carries feed fan-out events to every active connection.
	ChannelPosts = "posts"
	// ChannelMessage carries a point-to-point message, both inbound from a
	// client and outbound to the recipient.
	ChannelMessage = "message"
	// ChannelMessageFailed carries a delivery-failed notice back to the
	// sender of a direct message.
	ChannelMessageFailed = "message:failed"
)

// Failure reasons carried by ChannelMessageFailed notices.
const (
	reasonRecipientOffline = "recipient offline"
	reasonMalformedPayload = "malformed payload"
)

// Envelope is the wire frame for every websocket message in both directions.
type Envelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// inboundMessage mirrors the client's direct-message payload.
type inboundMessage struct {
	To   string `json:"to"`
	From string `json:"from"`
	Body string `json:"body"`
}

// outboundMessage is what the recipient of a direct message sees. The sender
// field is the authenticated identity of the sending connection, never the
// client-supplied value.
type outboundMessage struct {
	From string `json:"from"`
	Body string `json:"body"`
}

// deliveryFailure is the payload of a ChannelMessageFailed notice.
type deliveryFailure struct {
	To     string `json:"to,omitempty"`
	Reason string `json:"reason"`
}

func marshalEnvelope(channel string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %q payload: %w", channel, err)
	}
	return json.Marshal(Envelope{Channel: channel, Data: data})
}
