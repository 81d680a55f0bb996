// Package auth implements the identity layer shared by the REST API and the
// realtime server: HS256 bearer tokens, password hashing, and the HTTP
// middleware that gates authenticated routes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/tinywideclouds/go-feed-service/pkg/feed"
)

// Token failure taxonomy. Callers branch with errors.Is; the handshake and
// the REST middleware both treat every kind as a rejected credential.
var (
	ErrTokenMalformed = errors.New("auth: malformed token")
	ErrTokenExpired   = errors.New("auth: token expired")
	ErrTokenSignature = errors.New("auth: invalid token signature")
)

const (
	emailClaim  = "email"
	userIDClaim = "userId"
)

// TokenService issues and verifies the service's bearer tokens. One instance
// backs both the REST login endpoint and the realtime handshake, so a token
// minted for the API is always accepted by the websocket server.
type TokenService struct {
	key jwk.Key
	ttl time.Duration
}

// NewTokenService builds a TokenService around a shared HS256 secret.
func NewTokenService(secret []byte, ttl time.Duration) (*TokenService, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: signing secret cannot be empty")
	}
	key, err := jwk.FromRaw(secret)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to build signing key: %w", err)
	}
	return &TokenService{key: key, ttl: ttl}, nil
}

// Issue mints a signed token carrying the identity's email and user ID.
func (ts *TokenService) Issue(identity feed.Identity) (string, error) {
	now := time.Now()
	tok, err := jwt.NewBuilder().
		Claim(emailClaim, identity.Email).
		Claim(userIDClaim, identity.UserID).
		IssuedAt(now).
		Expiration(now.Add(ts.ttl)).
		Build()
	if err != nil {
		return "", fmt.Errorf("auth: failed to build token: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, ts.key))
	if err != nil {
		return "", fmt.Errorf("auth: failed to sign token: %w", err)
	}
	return string(signed), nil
}

// Verify validates a bearer token and extracts the identity it carries.
// The returned error wraps one of ErrTokenMalformed, ErrTokenExpired, or
// ErrTokenSignature.
func (ts *TokenService) Verify(_ context.Context, token string) (feed.Identity, error) {
	// Structural parse without verification first, so garbage input is
	// reported as malformed rather than as a signature failure.
	if _, err := jwt.ParseString(token, jwt.WithVerify(false), jwt.WithValidate(false)); err != nil {
		return feed.Identity{}, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	tok, err := jwt.ParseString(token, jwt.WithKey(jwa.HS256, ts.key), jwt.WithValidate(true))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired()) {
			return feed.Identity{}, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return feed.Identity{}, fmt.Errorf("%w: %v", ErrTokenSignature, err)
	}

	identity, err := identityFromToken(tok)
	if err != nil {
		return feed.Identity{}, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	return identity, nil
}

func identityFromToken(tok jwt.Token) (feed.Identity, error) {
	email, ok := tok.Get(emailClaim)
	if !ok {
		return feed.Identity{}, errors.New("missing email claim")
	}
	userID, ok := tok.Get(userIDClaim)
	if !ok {
		return feed.Identity{}, errors.New("missing userId claim")
	}

	emailStr, ok := email.(string)
	if !ok || emailStr == "" {
		return feed.Identity{}, errors.New("email claim is not a string")
	}
	userIDStr, ok := userID.(string)
	if !ok || userIDStr == "" {
		return feed.Identity{}, errors.New("userId claim is not a string")
	}

	return feed.Identity{UserID: userIDStr, Email: emailStr}, nil
}
