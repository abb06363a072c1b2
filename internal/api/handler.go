// Package api provides HTTP handlers for the Regulation Buddy API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/regbuddy/internal/domain"
	"github.com/ashureev/regbuddy/internal/identity"
	"github.com/ashureev/regbuddy/internal/store"
	"github.com/go-chi/chi/v5"
)

const defaultMaxBody = 1 << 20

// Handler provides common handler utilities.
type Handler struct {
	repo    store.Repository
	maxBody int64
	logger  *slog.Logger
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, maxBody int64, logger *slog.Logger) *Handler {
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{repo: repo, maxBody: maxBody, logger: logger}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decode reads a JSON body into v. It writes a 400 and returns false when
// the body is missing, too large or malformed.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// ownedSession loads the {id} session and checks it belongs to the caller.
func (h *Handler) ownedSession(w http.ResponseWriter, r *http.Request) (*domain.Session, bool) {
	return h.sessionFor(w, r, chi.URLParam(r, "id"))
}

// sessionFor loads a session owned by the caller. Sessions of other users
// are reported as not found.
func (h *Handler) sessionFor(w http.ResponseWriter, r *http.Request, sessionID string) (*domain.Session, bool) {
	userID := identity.UserIDFromContext(r.Context())
	sess, err := h.repo.GetSession(r.Context(), sessionID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && sess.UserID != userID) {
		Error(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("failed to load session", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return nil, false
	}
	return sess, true
}
