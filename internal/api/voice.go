package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/ashureev/regbuddy/internal/domain"
	"github.com/ashureev/regbuddy/internal/identity"
	"github.com/ashureev/regbuddy/internal/voice"
	"github.com/go-chi/chi/v5"
)

// TokenMinter issues ephemeral realtime credentials.
type TokenMinter interface {
	MintToken(ctx context.Context, voiceName string) (*voice.EphemeralToken, error)
}

// VoiceHandler issues ephemeral realtime tokens so browsers can talk to the
// voice vendor directly without seeing the API key.
type VoiceHandler struct {
	*Handler
	minter TokenMinter
}

// NewVoiceHandler creates a voice handler. minter may be nil when the
// configured vendor does not use ephemeral tokens.
func NewVoiceHandler(base *Handler, minter TokenMinter) *VoiceHandler {
	return &VoiceHandler{Handler: base, minter: minter}
}

// RegisterRoutes registers voice routes.
func (h *VoiceHandler) RegisterRoutes(r chi.Router) {
	r.With(identity.Require).Post("/api/voice/token", h.Token)
}

type tokenRequest struct {
	Voice string `json:"voice,omitempty"`
}

// Token mints an ephemeral token.
func (h *VoiceHandler) Token(w http.ResponseWriter, r *http.Request) {
	if h.minter == nil {
		Error(w, http.StatusServiceUnavailable, voice.CredentialsErrorText)
		return
	}

	var req tokenRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}

	userID := identity.UserIDFromContext(r.Context())
	tok, err := h.minter.MintToken(r.Context(), req.Voice)
	switch {
	case errors.Is(err, domain.ErrCredentialsMissing):
		h.logger.Error("voice credentials missing", "user_id", userID, "error", err)
		Error(w, http.StatusServiceUnavailable, voice.CredentialsErrorText)
		return
	case err != nil:
		h.logger.Error("failed to mint voice token", "user_id", userID, "error", err)
		Error(w, http.StatusBadGateway, "Connection failed. Please try again.")
		return
	}

	JSON(w, http.StatusOK, tok)
}
