package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/ashureev/regbuddy/internal/auth"
	"github.com/ashureev/regbuddy/internal/identity"
	"github.com/go-chi/chi/v5"
)

// AuthHandler handles sign-up, sign-in, sign-out and the current profile.
type AuthHandler struct {
	*Handler
	svc          *auth.Service
	profiles     *auth.ProfileLoader
	secureCookie bool
}

// NewAuthHandler creates an auth handler. secureCookie should be true
// outside development.
func NewAuthHandler(base *Handler, svc *auth.Service, profiles *auth.ProfileLoader, secureCookie bool) *AuthHandler {
	return &AuthHandler{Handler: base, svc: svc, profiles: profiles, secureCookie: secureCookie}
}

// RegisterRoutes registers auth routes.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/auth/signup", h.SignUp)
	r.Post("/api/auth/signin", h.SignIn)
	r.Post("/api/auth/signout", h.SignOut)
	r.Get("/api/auth/callback-error", h.CallbackError)
	r.With(identity.Require).Get("/api/me", h.GetMe)
}

// SignUp creates an account. The profile is provisioned in the background.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req auth.SignUpRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.svc.SignUp(r.Context(), req)
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		Error(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, auth.ErrEmailTaken):
		Error(w, http.StatusConflict, "an account with this email already exists")
		return
	case err != nil:
		h.logger.Error("sign-up failed", "error", err)
		Error(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	JSON(w, http.StatusCreated, user)
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignIn issues an access token and sets it as a cookie.
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !h.decode(w, r, &req) {
		return
	}

	sess, err := h.svc.SignIn(r.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		Error(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("sign-in failed", "error", err)
		Error(w, http.StatusInternalServerError, "failed to sign in")
		return
	}

	h.setTokenCookie(w, sess.AccessToken, sess.ExpiresAt)
	JSON(w, http.StatusOK, sess)
}

// SignOut revokes the presented token and clears the cookie.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	token := identity.TokenFromRequest(r)
	if token == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.svc.SignOut(r.Context(), token); err != nil {
		if auth.IsAuthError(err) {
			h.setTokenCookie(w, "", time.Unix(0, 0))
			Error(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		h.logger.Error("sign-out failed", "error", err)
		Error(w, http.StatusInternalServerError, "failed to sign out")
		return
	}

	h.setTokenCookie(w, "", time.Unix(0, 0))
	w.WriteHeader(http.StatusNoContent)
}

// CallbackError turns identity provider error parameters into a message.
func (h *AuthHandler) CallbackError(w http.ResponseWriter, r *http.Request) {
	e := auth.ParseCallbackError(r.URL.Query())
	if e == nil {
		Error(w, http.StatusBadRequest, "no error present")
		return
	}
	JSON(w, http.StatusOK, map[string]string{
		"error":   e.Error,
		"code":    e.Code,
		"message": e.Message(),
	})
}

// GetMe returns the caller's profile. A profile that has not been
// provisioned yet is reported as null rather than as an error.
func (h *AuthHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	profile, err := h.profiles.Load(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to load profile", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load profile")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"profile": profile,
	})
}

func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, value string, expires time.Time) {
	c := &http.Cookie{
		Name:     identity.TokenCookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	if value == "" {
		c.MaxAge = -1
	}
	http.SetCookie(w, c)
}
