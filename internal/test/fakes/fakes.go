// Package fakes provides in-memory test doubles for the service's stores and
// the broadcaster. They are used by the handler tests and by local
// development without a database.
package fakes

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tinywideclouds/go-feed-service/pkg/feed"
)

// --- UserStore ---

type InMemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]feed.User // keyed by ID
}

func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{users: make(map[string]feed.User)}
}

func (s *InMemoryUserStore) CreateUser(_ context.Context, user feed.User) (feed.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == user.Email {
			return feed.User{}, feed.ErrDuplicateEmail
		}
	}

	user.ID = uuid.NewString()
	if user.Status == "" {
		user.Status = "New user"
	}
	user.CreatedAt = time.Now()
	s.users[user.ID] = user
	return user, nil
}

func (s *InMemoryUserStore) GetUserByEmail(_ context.Context, email string) (feed.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return feed.User{}, feed.ErrNotFound
}

func (s *InMemoryUserStore) GetUserByID(_ context.Context, id string) (feed.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return feed.User{}, feed.ErrNotFound
	}
	return user, nil
}

func (s *InMemoryUserStore) UpdateUserStatus(_ context.Context, id string, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return feed.ErrNotFound
	}
	user.Status = status
	s.users[id] = user
	return nil
}

// --- PostStore ---

type InMemoryPostStore struct {
	mu    sync.RWMutex
	posts map[string]feed.Post
	users *InMemoryUserStore
}

// NewInMemoryPostStore shares the user store so creator projections resolve.
func NewInMemoryPostStore(users *InMemoryUserStore) *InMemoryPostStore {
	return &InMemoryPostStore{posts: make(map[string]feed.Post), users: users}
}

func (s *InMemoryPostStore) CreatePost(ctx context.Context, post feed.Post, creatorID string) (feed.Post, error) {
	creator, err := s.users.GetUserByID(ctx, creatorID)
	if err != nil {
		return feed.Post{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	post.ID = uuid.NewString()
	post.Creator = feed.Creator{ID: creator.ID, Name: creator.Name, Email: creator.Email}
	post.CreatedAt = time.Now()
	post.UpdatedAt = post.CreatedAt
	s.posts[post.ID] = post
	return post, nil
}

func (s *InMemoryPostStore) GetPost(_ context.Context, id string) (feed.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, ok := s.posts[id]
	if !ok {
		return feed.Post{}, feed.ErrNotFound
	}
	return post, nil
}

func (s *InMemoryPostStore) ListPosts(_ context.Context, page, perPage int) ([]feed.Post, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]feed.Post, 0, len(s.posts))
	for _, post := range s.posts {
		all = append(all, post)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if page < 1 {
		page = 1
	}
	start := (page - 1) * perPage
	if start >= len(all) {
		return []feed.Post{}, len(all), nil
	}
	end := start + perPage
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (s *InMemoryPostStore) UpdatePost(_ context.Context, post feed.Post) (feed.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.posts[post.ID]
	if !ok {
		return feed.Post{}, feed.ErrNotFound
	}
	existing.Title = post.Title
	existing.Content = post.Content
	existing.ImageURL = post.ImageURL
	existing.UpdatedAt = time.Now()
	s.posts[post.ID] = existing
	return existing, nil
}

func (s *InMemoryPostStore) DeletePost(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[id]; !ok {
		return feed.ErrNotFound
	}
	delete(s.posts, id)
	return nil
}

// --- Broadcaster ---

// RecordingBroadcaster captures broadcast events for assertions.
type RecordingBroadcaster struct {
	mu     sync.Mutex
	events []feed.BroadcastEvent
}

func NewRecordingBroadcaster() *RecordingBroadcaster {
	return &RecordingBroadcaster{}
}

func (b *RecordingBroadcaster) Broadcast(event feed.BroadcastEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *RecordingBroadcaster) Events() []feed.BroadcastEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]feed.BroadcastEvent, len(b.events))
	copy(out, b.events)
	return out
}

// --- ImageStore ---

// InMemoryImageStore keeps objects in a map.
type InMemoryImageStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewInMemoryImageStore() *InMemoryImageStore {
	return &InMemoryImageStore{objects: make(map[string][]byte)}
}

func (s *InMemoryImageStore) PutObject(_ context.Context, key string, _ string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(body))
	copy(buf, body)
	s.objects[key] = buf
	return nil
}

func (s *InMemoryImageStore) GetObject(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, feed.ErrNotFound
	}
	return data, nil
}

func (s *InMemoryImageStore) DeleteObject(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

// Len reports the number of stored objects.
func (s *InMemoryImageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
