package api

import (
	"errors"
	"net/http"

	"github.com/ashureev/regbuddy/internal/identity"
	"github.com/ashureev/regbuddy/internal/rewards"
	"github.com/go-chi/chi/v5"
)

// RewardsHandler exposes the caller's star and coin balance.
type RewardsHandler struct {
	*Handler
	ledger *rewards.Ledger
}

// NewRewardsHandler creates a rewards handler.
func NewRewardsHandler(base *Handler, ledger *rewards.Ledger) *RewardsHandler {
	return &RewardsHandler{Handler: base, ledger: ledger}
}

// RegisterRoutes registers rewards routes.
func (h *RewardsHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(identity.Require)
		r.Get("/api/rewards", h.Get)
		r.Post("/api/rewards", h.Add)
	})
}

// Get returns the balance.
func (h *RewardsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	balance, err := h.ledger.Get(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to get rewards", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load rewards")
		return
	}
	JSON(w, http.StatusOK, balance)
}

type addRewardsRequest struct {
	Stars int `json:"stars"`
	Coins int `json:"coins"`
}

// Add increases the balance.
func (h *RewardsHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req addRewardsRequest
	if !h.decode(w, r, &req) {
		return
	}

	userID := identity.UserIDFromContext(r.Context())
	balance, err := h.ledger.Add(r.Context(), userID, req.Stars, req.Coins)
	if errors.Is(err, rewards.ErrNegativeAmount) {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		Error(w, http.StatusInternalServerError, rewards.UpdateFailedMessage)
		return
	}
	JSON(w, http.StatusOK, balance)
}
