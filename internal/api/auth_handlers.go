package api

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/tinywideclouds/go-feed-service/internal/auth"
	"github.com/tinywideclouds/go-feed-service/pkg/feed"
)

const minPasswordLength = 8

type signupRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)

	if errs := validateSignup(req); len(errs) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": "Validation failed",
			"errors":  errs,
		})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to hash password.")
		writeError(w, http.StatusInternalServerError, "User failed to create")
		return
	}

	user, err := a.users.CreateUser(r.Context(), feed.User{
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: hash,
	})
	if errors.Is(err, feed.ErrDuplicateEmail) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": "Validation failed",
			"errors":  []string{"Email already in use"},
		})
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to create user.")
		writeError(w, http.StatusInternalServerError, "User failed to create")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message": "User created successfully",
		"userId":  user.ID,
	})
}

func validateSignup(req signupRequest) []string {
	var errs []string
	if req.Email == "" {
		errs = append(errs, "Email can't be empty")
	} else if _, err := mail.ParseAddress(req.Email); err != nil {
		errs = append(errs, "Use a valid email")
	}
	if req.Name == "" {
		errs = append(errs, "Name can't be empty")
	}
	switch {
	case req.Password == "":
		errs = append(errs, "Password can't be empty")
	case strings.ContainsAny(req.Password, " \t"):
		errs = append(errs, "Password can't include spaces")
	case len(req.Password) < minPasswordLength:
		errs = append(errs, "Password at least 8 characters")
	}
	return errs
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, err := a.users.GetUserByEmail(r.Context(), strings.TrimSpace(req.Email))
	if errors.Is(err, feed.ErrNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("Login lookup failed.")
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		if errors.Is(err, auth.ErrWrongPassword) {
			writeError(w, http.StatusUnauthorized, "Wrong password")
			return
		}
		a.logger.Error().Err(err).Msg("Password check failed.")
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	token, err := a.issuer.Issue(feed.Identity{UserID: user.ID, Email: user.Email})
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to issue token.")
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"token":  token,
		"userId": user.ID,
	})
}

func (a *API) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authentication token")
		return
	}

	user, err := a.users.GetUserByID(r.Context(), identity.UserID)
	if errors.Is(err, feed.ErrNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("Status lookup failed.")
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Status fetched successfully",
		"status":  user.Status,
	})
}

func (a *API) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authentication token")
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	err := a.users.UpdateUserStatus(r.Context(), identity.UserID, req.Status)
	if errors.Is(err, feed.ErrNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("Status update failed.")
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Status updated",
		"status":  req.Status,
	})
}
