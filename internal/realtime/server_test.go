package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-feed-service/pkg/feed"
)

// stubVerifier resolves pre-baked tokens to identities.
type stubVerifier struct {
	identities map[string]feed.Identity
}

func (v *stubVerifier) Verify(_ context.Context, token string) (feed.Identity, error) {
	identity, ok := v.identities[token]
	if !ok {
		return feed.Identity{}, errors.New("invalid token")
	}
	return identity, nil
}

// testFixture holds the server under test and its backing httptest listener.
type testFixture struct {
	server   *Server
	registry *SessionRegistry
	wsServer *httptest.Server
}

func setup(t *testing.T) *testFixture {
	t.Helper()
	logger := zerolog.Nop()

	verifier := &stubVerifier{identities: map[string]feed.Identity{
		"alice-token": {UserID: "u1", Email: "alice@example.com"},
		"bob-token":   {UserID: "u2", Email: "bob@example.com"},
	}}

	registry := NewSessionRegistry()
	s := NewServer("127.0.0.1:0", verifier, registry, 0, logger)

	wsServer := httptest.NewServer(s.Handler())
	t.Cleanup(wsServer.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})

	return &testFixture{
		server:   s,
		registry: registry,
		wsServer: wsServer,
	}
}

// connect dials the test server with the given token and waits until the
// session is registered.
func (fx *testFixture) connect(t *testing.T, token, email string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(fx.wsServer.URL, "http") + "/ws?token=" + token

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err, "Failed to dial test WebSocket server")
	t.Cleanup(func() { _ = conn.Close() })

	// Registration happens just after the upgrade response, so poll for it.
	require.Eventually(t, func() bool {
		_, ok := fx.registry.Lookup(email)
		return ok
	}, 2*time.Second, 10*time.Millisecond, "Session was not registered")

	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env), "Expected a frame before the read deadline")
	return env
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, channel string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Envelope{Channel: channel, Data: data}))
}

func TestServer_ConnectRegistersSession(t *testing.T) {
	fx := setup(t)

	fx.connect(t, "alice-token", "alice@example.com")

	assert.Equal(t, 1, fx.registry.Len())
}

func TestServer_HandshakeRejectsInvalidToken(t *testing.T) {
	fx := setup(t)
	wsURL := "ws" + strings.TrimPrefix(fx.wsServer.URL, "http") + "/ws"

	t.Run("missing token", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("invalid token", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL+"?token=garbage", nil)
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	// A failed handshake must leave no trace.
	assert.Equal(t, 0, fx.registry.Len())
}

func TestServer_BroadcastReachesAllClients(t *testing.T) {
	fx := setup(t)
	alice := fx.connect(t, "alice-token", "alice@example.com")
	bob := fx.connect(t, "bob-token", "bob@example.com")

	event := feed.BroadcastEvent{
		Action: feed.ActionCreate,
		Post:   feed.Post{ID: "p1", Title: "First post"},
	}
	fx.server.Broadcast(event)

	for _, conn := range []*websocket.Conn{alice, bob} {
		env := readEnvelope(t, conn)
		assert.Equal(t, ChannelPosts, env.Channel)

		var got feed.BroadcastEvent
		require.NoError(t, json.Unmarshal(env.Data, &got))
		assert.Equal(t, feed.ActionCreate, got.Action)
		assert.Equal(t, "p1", got.Post.ID)
	}
}

func TestServer_ReconnectReplacesSession(t *testing.T) {
	fx := setup(t)

	first := fx.connect(t, "alice-token", "alice@example.com")
	firstID, ok := fx.registry.Lookup("alice@example.com")
	require.True(t, ok)

	// A second login from the same identity takes over the session.
	second := fx.connect(t, "alice-token", "alice@example.com")
	require.Eventually(t, func() bool {
		id, ok := fx.registry.Lookup("alice@example.com")
		return ok && id != firstID
	}, 2*time.Second, 10*time.Millisecond, "Second connection did not take over the session")

	secondID, _ := fx.registry.Lookup("alice@example.com")

	// The late disconnect of the replaced connection must not evict the
	// newer session.
	require.NoError(t, first.Close())
	require.Eventually(t, func() bool {
		_, alive := fx.server.connByID(firstID)
		return !alive
	}, 2*time.Second, 10*time.Millisecond, "First connection was not dropped")

	id, ok := fx.registry.Lookup("alice@example.com")
	require.True(t, ok)
	assert.Equal(t, secondID, id)

	// The surviving connection still receives broadcasts.
	fx.server.Broadcast(feed.BroadcastEvent{Action: feed.ActionDelete, Post: feed.Post{ID: "p2"}})
	env := readEnvelope(t, second)
	assert.Equal(t, ChannelPosts, env.Channel)
}

func TestServer_DirectMessageDelivery(t *testing.T) {
	fx := setup(t)
	alice := fx.connect(t, "alice-token", "alice@example.com")
	bob := fx.connect(t, "bob-token", "bob@example.com")

	// The client-supplied sender is a lie; the server must replace it with
	// the authenticated identity.
	sendEnvelope(t, alice, ChannelMessage, map[string]string{
		"to":   "bob@example.com",
		"from": "mallory@example.com",
		"body": "hello bob",
	})

	env := readEnvelope(t, bob)
	require.Equal(t, ChannelMessage, env.Channel)

	var msg struct {
		From string `json:"from"`
		Body string `json:"body"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	assert.Equal(t, "alice@example.com", msg.From)
	assert.Equal(t, "hello bob", msg.Body)
}

func TestServer_DirectMessageToOfflineRecipient(t *testing.T) {
	fx := setup(t)
	alice := fx.connect(t, "alice-token", "alice@example.com")
	bob := fx.connect(t, "bob-token", "bob@example.com")

	sendEnvelope(t, alice, ChannelMessage, map[string]string{
		"to":   "carol@example.com",
		"body": "anyone there?",
	})

	// Only the sender hears about the failure.
	env := readEnvelope(t, alice)
	require.Equal(t, ChannelMessageFailed, env.Channel)

	var failure struct {
		To     string `json:"to"`
		Reason string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &failure))
	assert.Equal(t, "carol@example.com", failure.To)
	assert.Equal(t, "recipient offline", failure.Reason)

	require.NoError(t, bob.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := bob.ReadMessage()
	assert.Error(t, err, "An undeliverable message must not leak to other clients")
}

func TestServer_MalformedFramesNotifySender(t *testing.T) {
	fx := setup(t)
	alice := fx.connect(t, "alice-token", "alice@example.com")

	t.Run("unparseable frame", func(t *testing.T) {
		require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("not json")))

		env := readEnvelope(t, alice)
		require.Equal(t, ChannelMessageFailed, env.Channel)

		var failure struct {
			Reason string `json:"reason"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &failure))
		assert.Equal(t, "malformed payload", failure.Reason)
	})

	t.Run("message without a body", func(t *testing.T) {
		sendEnvelope(t, alice, ChannelMessage, map[string]string{"to": "bob@example.com"})

		env := readEnvelope(t, alice)
		require.Equal(t, ChannelMessageFailed, env.Channel)

		var failure struct {
			Reason string `json:"reason"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &failure))
		assert.Equal(t, "malformed payload", failure.Reason)
	})
}
