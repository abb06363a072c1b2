package api

import (
	"net/http"
	"time"

	"github.com/ashureev/regbuddy/internal/domain"
	"github.com/ashureev/regbuddy/internal/exercise"
	"github.com/ashureev/regbuddy/internal/identity"
	"github.com/ashureev/regbuddy/internal/rewards"
	"github.com/go-chi/chi/v5"
)

// ExerciseHandler serves exercise plans and records completions.
type ExerciseHandler struct {
	*Handler
	content *exercise.Content
	ledger  *rewards.Ledger
}

// NewExerciseHandler creates an exercise handler.
func NewExerciseHandler(base *Handler, content *exercise.Content, ledger *rewards.Ledger) *ExerciseHandler {
	return &ExerciseHandler{Handler: base, content: content, ledger: ledger}
}

// RegisterRoutes registers exercise routes.
func (h *ExerciseHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/exercises/{tool}", h.GetPlan)
	r.With(identity.Require).Post("/api/exercises/{tool}/complete", h.Complete)
}

func toolParam(w http.ResponseWriter, r *http.Request) (domain.Tool, bool) {
	tool := domain.Tool(chi.URLParam(r, "tool"))
	if !tool.Valid() {
		Error(w, http.StatusNotFound, exercise.ErrUnknownTool.Error())
		return "", false
	}
	return tool, true
}

// GetPlan returns the steps and timings of an exercise. Affirmations are
// sampled afresh on every call.
func (h *ExerciseHandler) GetPlan(w http.ResponseWriter, r *http.Request) {
	tool, ok := toolParam(w, r)
	if !ok {
		return
	}

	p, err := exercise.New(tool, h.content, nil)
	if err != nil {
		Error(w, http.StatusNotFound, err.Error())
		return
	}
	plan, err := h.content.Plan(tool, p)
	if err != nil {
		Error(w, http.StatusNotFound, err.Error())
		return
	}
	JSON(w, http.StatusOK, plan)
}

// maxExerciseSeconds bounds a reported exercise duration to one day.
const maxExerciseSeconds = 24 * 60 * 60

type completeRequest struct {
	SessionID       string `json:"session_id,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
}

type completeResponse struct {
	Tool    domain.Tool     `json:"tool"`
	Stars   int             `json:"stars_awarded"`
	Rewards *domain.Rewards `json:"rewards"`
}

// Complete awards the completion stars and, when a session is given,
// records the exercise on it.
func (h *ExerciseHandler) Complete(w http.ResponseWriter, r *http.Request) {
	tool, ok := toolParam(w, r)
	if !ok {
		return
	}

	var req completeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.DurationSeconds < 0 || req.DurationSeconds > maxExerciseSeconds {
		Error(w, http.StatusBadRequest, "duration_seconds must be between 0 and 86400")
		return
	}

	userID := identity.UserIDFromContext(r.Context())
	if req.SessionID != "" {
		sess, ok := h.sessionFor(w, r, req.SessionID)
		if !ok {
			return
		}
		duration := time.Duration(req.DurationSeconds) * time.Second
		if err := h.repo.CompleteSession(r.Context(), sess.ID, tool, duration); err != nil {
			h.logger.Error("failed to complete session", "user_id", userID, "session_id", sess.ID, "error", err)
			Error(w, http.StatusInternalServerError, "failed to record exercise")
			return
		}
	}

	stars := h.content.StarsPerCompletion
	balance, err := h.ledger.Add(r.Context(), userID, stars, 0)
	if err != nil {
		Error(w, http.StatusInternalServerError, rewards.UpdateFailedMessage)
		return
	}

	JSON(w, http.StatusOK, completeResponse{Tool: tool, Stars: stars, Rewards: balance})
}
