package api

import (
	"errors"
	"net/http"

	"github.com/ashureev/regbuddy/internal/chat"
	"github.com/ashureev/regbuddy/internal/domain"
	"github.com/ashureev/regbuddy/internal/identity"
	"github.com/go-chi/chi/v5"
)

// ChatHandler handles check-in sessions and their text chat.
type ChatHandler struct {
	*Handler
	registry *chat.Registry
	limiter  *RateLimiter
}

// NewChatHandler creates a chat handler. limiter may be nil.
func NewChatHandler(base *Handler, registry *chat.Registry, limiter *RateLimiter) *ChatHandler {
	return &ChatHandler{Handler: base, registry: registry, limiter: limiter}
}

// RegisterRoutes registers session and chat routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/moods", h.ListMoods)
	r.Group(func(r chi.Router) {
		r.Use(identity.Require)
		r.Post("/api/sessions", h.CreateSession)
		r.Get("/api/sessions/{id}", h.GetSession)
		r.Get("/api/sessions/{id}/messages", h.ListMessages)
		r.Post("/api/sessions/{id}/messages", h.SendMessage)
		r.Delete("/api/sessions/{id}/suggestion", h.DismissSuggestion)
	})
}

type moodResponse struct {
	Mood  domain.Mood `json:"mood"`
	Label string      `json:"label"`
}

// ListMoods returns the selectable check-in moods.
func (h *ChatHandler) ListMoods(w http.ResponseWriter, _ *http.Request) {
	out := make([]moodResponse, 0, len(domain.Moods))
	for _, m := range domain.Moods {
		out = append(out, moodResponse{Mood: m, Label: m.Label()})
	}
	JSON(w, http.StatusOK, out)
}

type createSessionRequest struct {
	Mood domain.Mood `json:"mood"`
}

// CreateSession starts a check-in with the selected mood.
func (h *ChatHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !req.Mood.Valid() {
		Error(w, http.StatusBadRequest, "unknown mood")
		return
	}

	userID := identity.UserIDFromContext(r.Context())
	sess, err := h.repo.CreateSession(r.Context(), userID, req.Mood)
	if err != nil {
		h.logger.Error("failed to create session", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	JSON(w, http.StatusCreated, sess)
}

// GetSession returns one of the caller's sessions.
func (h *ChatHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.ownedSession(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, sess)
}

type messagesResponse struct {
	Messages   []domain.ChatMessage   `json:"messages"`
	Suggestion *domain.ToolSuggestion `json:"tool_suggestion,omitempty"`
	Pending    bool                   `json:"pending"`
}

// ListMessages returns the chat history of a session.
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, messagesResponse{
		Messages:   ctrl.Messages(),
		Suggestion: ctrl.Suggestion(),
		Pending:    ctrl.Pending(),
	})
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessage sends one user turn and returns the assistant reply.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if h.limiter != nil && !h.limiter.Allow(userID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded, please slow down")
		return
	}

	var req sendMessageRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}

	reply, err := ctrl.Send(r.Context(), req.Content)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		Error(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, chat.ErrBusy):
		Error(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		Error(w, http.StatusBadGateway, chat.SendFailedMessage)
		return
	}

	JSON(w, http.StatusOK, reply)
}

// DismissSuggestion clears the current exercise suggestion.
func (h *ChatHandler) DismissSuggestion(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	ctrl.ClearSuggestion()
	w.WriteHeader(http.StatusNoContent)
}

func (h *ChatHandler) controller(w http.ResponseWriter, r *http.Request) (*chat.Controller, bool) {
	sess, ok := h.ownedSession(w, r)
	if !ok {
		return nil, false
	}
	ctrl, err := h.registry.Get(r.Context(), *sess)
	if err != nil {
		h.logger.Error("failed to load chat", "session_id", sess.ID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load chat history")
		return nil, false
	}
	return ctrl, true
}
