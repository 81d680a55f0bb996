// Package storage provides the image stores backing post attachments.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tinywideclouds/go-feed-service/pkg/feed"
)

// ErrInvalidKey is returned for keys that could escape the store's root.
var ErrInvalidKey = errors.New("storage: invalid object key")

// LocalImageStore keeps uploaded images as flat files under a single root
// directory. Keys are opaque file names chosen by the caller; anything
// resembling a path is rejected.
type LocalImageStore struct {
	root string
}

// NewLocalImageStore creates the root directory if needed and returns a
// store over it.
func NewLocalImageStore(root string) (*LocalImageStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage: image directory cannot be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: failed to create image directory: %w", err)
	}
	return &LocalImageStore{root: root}, nil
}

// PutObject writes body to disk under key. An existing object with the same
// key is overwritten.
func (s *LocalImageStore) PutObject(_ context.Context, key string, _ string, body []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("storage: failed to write object %q: %w", key, err)
	}
	return nil
}

// GetObject reads the object stored under key. Returns feed.ErrNotFound for
// unknown keys.
func (s *LocalImageStore) GetObject(_ context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, feed.ErrNotFound
		}
		return nil, fmt.Errorf("storage: failed to read object %q: %w", key, err)
	}
	return data, nil
}

// DeleteObject removes the object stored under key. Deleting an absent key
// is a no-op.
func (s *LocalImageStore) DeleteObject(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: failed to delete object %q: %w", key, err)
	}
	return nil
}

func (s *LocalImageStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.root, key), nil
}
