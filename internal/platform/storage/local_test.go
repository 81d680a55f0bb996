package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-feed-service/internal/platform/storage"
	"github.com/tinywideclouds/go-feed-service/pkg/feed"
)

func TestLocalImageStore_RoundTrip(t *testing.T) {
	store, err := storage.NewLocalImageStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	payload := []byte("fake image data")
	require.NoError(t, store.PutObject(ctx, "photo.png", "image/png", payload))

	got, err := store.GetObject(ctx, "photo.png")
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	require.NoError(t, store.DeleteObject(ctx, "photo.png"))
	_, err = store.GetObject(ctx, "photo.png")
	assert.ErrorIs(t, err, feed.ErrNotFound)
}

func TestLocalImageStore_MissingObject(t *testing.T) {
	store, err := storage.NewLocalImageStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.GetObject(context.Background(), "never-stored.png")
	assert.ErrorIs(t, err, feed.ErrNotFound)

	// Deleting something that is not there is not an error.
	assert.NoError(t, store.DeleteObject(context.Background(), "never-stored.png"))
}

func TestLocalImageStore_RejectsUnsafeKeys(t *testing.T) {
	root := t.TempDir()
	store, err := storage.NewLocalImageStore(root)
	require.NoError(t, err)
	ctx := context.Background()

	// Place a file outside the root that a traversal would reach.
	outside := filepath.Join(root, "..", "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("do not serve"), 0o600))
	t.Cleanup(func() { _ = os.Remove(outside) })

	for _, key := range []string{"", "..", "../secret.txt", "a/b.png", `a\b.png`} {
		err := store.PutObject(ctx, key, "image/png", []byte("x"))
		assert.ErrorIs(t, err, storage.ErrInvalidKey, "key %q", key)

		_, err = store.GetObject(ctx, key)
		assert.ErrorIs(t, err, storage.ErrInvalidKey, "key %q", key)
	}
}

func TestLocalImageStore_CreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "images")

	_, err := storage.NewLocalImageStore(root)
	require.NoError(t, err)

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
