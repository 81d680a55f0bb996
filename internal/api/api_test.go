package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-feed-service/internal/api"
	"github.com/tinywideclouds/go-feed-service/internal/auth"
	"github.com/tinywideclouds/go-feed-service/internal/test/fakes"
	"github.com/tinywideclouds/go-feed-service/pkg/feed"
)

// pngBytes is a minimal payload that sniffs as image/png.
var pngBytes = []byte("\x89PNG\r\n\x1a\n0000000000")

// apiFixture holds the router under test plus the fakes behind it.
type apiFixture struct {
	handler     http.Handler
	users       *fakes.InMemoryUserStore
	posts       *fakes.InMemoryPostStore
	images      *fakes.InMemoryImageStore
	broadcaster *fakes.RecordingBroadcaster
	tokens      *auth.TokenService
}

func newFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := zerolog.Nop()

	tokens, err := auth.NewTokenService([]byte("a-string-secret-at-least-256-bits-long"), time.Hour)
	require.NoError(t, err)

	users := fakes.NewInMemoryUserStore()
	posts := fakes.NewInMemoryPostStore(users)
	images := fakes.NewInMemoryImageStore()
	broadcaster := fakes.NewRecordingBroadcaster()

	deps := feed.ServiceDependencies{
		Users:    users,
		Posts:    posts,
		Images:   images,
		Verifier: tokens,
		Issuer:   tokens,
	}

	a := api.NewAPI(deps, broadcaster, "http://localhost:8080", 2, logger)
	handler := a.Router(auth.Middleware(tokens, logger), nil)

	return &apiFixture{
		handler:     handler,
		users:       users,
		posts:       posts,
		images:      images,
		broadcaster: broadcaster,
		tokens:      tokens,
	}
}

// createUser seeds a user directly in the store and returns it with a valid
// bearer token.
func (fx *apiFixture) createUser(t *testing.T, email, name, password string) (feed.User, string) {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)

	user, err := fx.users.CreateUser(context.Background(), feed.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
	})
	require.NoError(t, err)

	token, err := fx.tokens.Issue(feed.Identity{UserID: user.ID, Email: user.Email})
	require.NoError(t, err)
	return user, token
}

func (fx *apiFixture) doJSON(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, req)
	return rec
}

// doMultipart submits a post form. A nil image omits the file part.
func (fx *apiFixture) doMultipart(t *testing.T, method, target, token, title, content string, image []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("title", title))
	require.NoError(t, mw.WriteField("content", content))
	if image != nil {
		part, err := mw.CreateFormFile("image", "upload.png")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}
