package feed

import "context"

// TokenVerifier validates a bearer token and yields the identity it carries.
// It is shared between the REST auth middleware and the realtime handshake so
// both surfaces accept the same tokens. Implementations classify failures as
// malformed, expired, or bad signature.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// TokenIssuer mints a signed bearer token for an authenticated identity.
type TokenIssuer interface {
	Issue(identity Identity) (string, error)
}

// Broadcaster is the one-to-all delivery capability handed to REST handlers.
// Broadcast is fire-and-forget: there is no acknowledgment and no guarantee
// an individual client received the event.
type Broadcaster interface {
	Broadcast(event BroadcastEvent)
}

// UserStore persists registered accounts.
type UserStore interface {
	// CreateUser inserts a new account. Returns ErrDuplicateEmail when the
	// email is already registered.
	CreateUser(ctx context.Context, user User) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	UpdateUserStatus(ctx context.Context, id string, status string) error
}

// PostStore persists feed entries. All reads populate the Creator projection.
type PostStore interface {
	CreatePost(ctx context.Context, post Post, creatorID string) (Post, error)
	GetPost(ctx context.Context, id string) (Post, error)
	// ListPosts returns one page of posts, newest first, plus the total
	// number of posts across all pages. Pages are 1-based.
	ListPosts(ctx context.Context, page, perPage int) ([]Post, int, error)
	UpdatePost(ctx context.Context, post Post) (Post, error)
	DeletePost(ctx context.Context, id string) error
}

// ImageStore holds uploaded post images under opaque keys.
type ImageStore interface {
	PutObject(ctx context.Context, key string, contentType string, body []byte) error
	GetObject(ctx context.Context, key string) ([]byte, error)
	DeleteObject(ctx context.Context, key string) error
}
