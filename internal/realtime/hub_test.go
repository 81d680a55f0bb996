package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-feed-service/pkg/feed"
)

func TestHub_BroadcastBeforeBindPanics(t *testing.T) {
	hub := NewHub()

	defer func() {
		r := recover()
		require.NotNil(t, r, "Broadcast on an unbound hub must panic")
		assert.Equal(t, ErrNotBound, r)
	}()
	hub.Broadcast(feed.BroadcastEvent{Action: feed.ActionCreate})
}

func TestHub_BindTwicePanics(t *testing.T) {
	fx := setup(t)
	hub := NewHub()
	hub.Bind(fx.server)

	assert.Panics(t, func() { hub.Bind(fx.server) })
}

func TestHub_BindNilPanics(t *testing.T) {
	hub := NewHub()
	assert.Panics(t, func() { hub.Bind(nil) })
}

func TestHub_BroadcastAfterBind(t *testing.T) {
	fx := setup(t)
	hub := NewHub()
	hub.Bind(fx.server)

	alice := fx.connect(t, "alice-token", "alice@example.com")

	hub.Broadcast(feed.BroadcastEvent{
		Action: feed.ActionUpdate,
		Post:   feed.Post{ID: "p9", Title: "Edited"},
	})

	env := readEnvelope(t, alice)
	require.Equal(t, ChannelPosts, env.Channel)

	var got feed.BroadcastEvent
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, feed.ActionUpdate, got.Action)
	assert.Equal(t, "p9", got.Post.ID)
}
