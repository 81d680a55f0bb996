package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tinywideclouds/go-feed-service/internal/auth"
	"github.com/tinywideclouds/go-feed-service/pkg/feed"
)

const (
	// maxImageBytes caps a single upload at 5 MiB, matching the limit the
	// web client advertises.
	maxImageBytes = 5 << 20

	minTitleLength   = 5
	minContentLength = 5
)

var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
}

func (a *API) handleListPosts(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val < 1 {
			writeError(w, http.StatusBadRequest, "invalid 'page' parameter")
			return
		}
		page = val
	}

	posts, total, err := a.posts.ListPosts(r.Context(), page, a.pageSize)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to list posts.")
		writeError(w, http.StatusInternalServerError, "Failed to fetch the posts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Posts successfully fetched",
		"posts":      posts,
		"totalItems": total,
	})
}

func (a *API) handleGetPost(w http.ResponseWriter, r *http.Request) {
	post, err := a.posts.GetPost(r.Context(), chi.URLParam(r, "postID"))
	if errors.Is(err, feed.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Post not found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to fetch post.")
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Post fetched",
		"post":    post,
	})
}

func (a *API) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authentication token")
		return
	}

	title, content, errs := postFields(r)
	if len(errs) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": "Validation failed",
			"errors":  errs,
		})
		return
	}

	key, err := a.storeImage(r)
	if err != nil {
		a.imageUploadError(w, err)
		return
	}

	post, err := a.posts.CreatePost(r.Context(), feed.Post{
		Title:    title,
		Content:  content,
		ImageURL: a.imageURL(key),
	}, identity.UserID)
	if err != nil {
		// The image is already on disk; clean it up so a failed save does
		// not leak orphaned files.
		if delErr := a.images.DeleteObject(r.Context(), key); delErr != nil {
			a.logger.Warn().Err(delErr).Str("key", key).Msg("Failed to remove orphaned image.")
		}
		a.logger.Error().Err(err).Msg("Failed to create post.")
		writeError(w, http.StatusInternalServerError, "Failed to create the post")
		return
	}

	// Fan-out strictly after the durable save. Best-effort: the response
	// reflects database success only.
	a.broadcaster.Broadcast(feed.BroadcastEvent{Action: feed.ActionCreate, Post: post})

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Post created successfully",
		"post":    post,
	})
}

func (a *API) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authentication token")
		return
	}

	post, err := a.posts.GetPost(r.Context(), chi.URLParam(r, "postID"))
	if errors.Is(err, feed.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Post not found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to fetch post.")
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	if post.Creator.ID != identity.UserID {
		writeError(w, http.StatusForbidden, "Not authorized")
		return
	}

	title, content, errs := postFields(r)
	if len(errs) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": "Validation failed",
			"errors":  errs,
		})
		return
	}

	oldKey := imageKey(post.ImageURL)
	post.Title = title
	post.Content = content

	newKey, err := a.storeImage(r)
	switch {
	case err == nil:
		post.ImageURL = a.imageURL(newKey)
	case errors.Is(err, errNoImage):
		// Keeping the existing image is fine on update.
	default:
		a.imageUploadError(w, err)
		return
	}

	updated, err := a.posts.UpdatePost(r.Context(), post)
	if err != nil {
		if newKey != "" {
			if delErr := a.images.DeleteObject(r.Context(), newKey); delErr != nil {
				a.logger.Warn().Err(delErr).Str("key", newKey).Msg("Failed to remove orphaned image.")
			}
		}
		a.logger.Error().Err(err).Msg("Failed to update post.")
		writeError(w, http.StatusInternalServerError, "Failed to update the post")
		return
	}

	if newKey != "" && oldKey != newKey {
		if delErr := a.images.DeleteObject(r.Context(), oldKey); delErr != nil {
			a.logger.Warn().Err(delErr).Str("key", oldKey).Msg("Failed to remove replaced image.")
		}
	}

	a.broadcaster.Broadcast(feed.BroadcastEvent{Action: feed.ActionUpdate, Post: updated})

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Post updated successfully",
		"post":    updated,
	})
}

func (a *API) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authentication token")
		return
	}

	post, err := a.posts.GetPost(r.Context(), chi.URLParam(r, "postID"))
	if errors.Is(err, feed.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Post not found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to fetch post.")
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	if post.Creator.ID != identity.UserID {
		writeError(w, http.StatusForbidden, "Not authorized")
		return
	}

	if err := a.posts.DeletePost(r.Context(), post.ID); err != nil {
		a.logger.Error().Err(err).Msg("Failed to delete post.")
		writeError(w, http.StatusInternalServerError, "Failed to delete the post")
		return
	}

	if delErr := a.images.DeleteObject(r.Context(), imageKey(post.ImageURL)); delErr != nil {
		a.logger.Warn().Err(delErr).Str("post", post.ID).Msg("Failed to remove post image.")
	}

	a.broadcaster.Broadcast(feed.BroadcastEvent{Action: feed.ActionDelete, Post: post})

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Post deleted successfully",
	})
}

func (a *API) handleGetImage(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "imageKey")
	data, err := a.images.GetObject(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusNotFound, "Image not found")
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	_, _ = w.Write(data)
}

// --- helpers ---

var errNoImage = errors.New("api: no image in request")

type imageError struct {
	status  int
	message string
}

func (e *imageError) Error() string { return e.message }

func postFields(r *http.Request) (title, content string, errs []string) {
	// ParseMultipartForm also populates r.Form for the non-file fields.
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		return "", "", []string{"Request must be multipart form data"}
	}
	title = strings.TrimSpace(r.FormValue("title"))
	content = strings.TrimSpace(r.FormValue("content"))

	if len(title) < minTitleLength {
		errs = append(errs, fmt.Sprintf("Title must be at least %d characters", minTitleLength))
	}
	if len(content) < minContentLength {
		errs = append(errs, fmt.Sprintf("Content must be at least %d characters", minContentLength))
	}
	return title, content, errs
}

// storeImage extracts the uploaded image from the request, enforces the type
// and size limits, and writes it to the image store under a fresh key.
func (a *API) storeImage(r *http.Request) (string, error) {
	file, _, err := r.FormFile("image")
	if err != nil {
		return "", errNoImage
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
	if err != nil {
		return "", &imageError{http.StatusInternalServerError, "Failed to read image"}
	}
	if len(data) > maxImageBytes {
		return "", &imageError{http.StatusUnprocessableEntity, "Image exceeds the 5MB limit"}
	}

	contentType := http.DetectContentType(data)
	ext, ok := imageExtensions[contentType]
	if !ok {
		return "", &imageError{http.StatusUnprocessableEntity, "Only PNG and JPEG images are allowed"}
	}

	key := uuid.NewString() + ext
	if err := a.images.PutObject(r.Context(), key, contentType, data); err != nil {
		a.logger.Error().Err(err).Msg("Failed to store image.")
		return "", &imageError{http.StatusInternalServerError, "Failed to store image"}
	}
	return key, nil
}

func (a *API) imageUploadError(w http.ResponseWriter, err error) {
	if errors.Is(err, errNoImage) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": "Validation failed",
			"errors":  []string{"No image provided"},
		})
		return
	}
	var imgErr *imageError
	if errors.As(err, &imgErr) {
		writeError(w, imgErr.status, imgErr.message)
		return
	}
	writeError(w, http.StatusInternalServerError, "Internal Server Error")
}

func (a *API) imageURL(key string) string {
	return strings.TrimRight(a.publicBaseURL, "/") + "/images/" + key
}

// imageKey recovers the storage key from a public image URL.
func imageKey(imageURL string) string {
	return path.Base(imageURL)
}
