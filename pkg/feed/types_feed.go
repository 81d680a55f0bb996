// Package feed contains the public domain models, interfaces, and dependency
// definitions for the feed service. It defines the contract for interacting
// with the service.
package feed

import (
	"errors"
	"time"
)

// ErrNotFound is returned by stores when the requested record does not exist.
var ErrNotFound = errors.New("feed: not found")

// ErrDuplicateEmail is returned when creating a user with an email that is
// already registered.
var ErrDuplicateEmail = errors.New("feed: email already in use")

// Identity is the durable user reference carried by a verified token. It is
// the routing key for realtime delivery and is never mutated after the
// handshake that produced it.
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// User is a registered account. PasswordHash is a bcrypt digest and never
// leaves the persistence boundary.
type User struct {
	ID           string    `json:"userId"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Creator is the author projection embedded in post payloads.
type Creator struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Post is a single feed entry. ImageURL is the public path of the attached
// image, served under /images.
type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	ImageURL  string    `json:"imageUrl"`
	Creator   Creator   `json:"creator"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Action identifies the mutation that triggered a broadcast event.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// BroadcastEvent is the fan-out payload emitted to every active realtime
// connection after a post mutation is durably saved. It is transient and
// never stored.
type BroadcastEvent struct {
	Action Action `json:"action"`
	Post   Post   `json:"post"`
}

// DirectMessage is a point-to-point payload between two identities. Routing
// is by email; the message itself is never persisted.
type DirectMessage struct {
	To   string `json:"to"`
	From string `json:"from"`
	Body string `json:"body"`
}
