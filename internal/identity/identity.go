// Package identity resolves the signed-in user for each request.
package identity

import (
	"context"
	"net/http"
	"strings"
)

const (
	// TokenCookieName carries the access token for browser clients.
	TokenCookieName = "regbuddy_token"
	// tokenQueryParam is accepted for EventSource and WebSocket clients,
	// which cannot set an Authorization header.
	tokenQueryParam = "access_token"
)

type contextKey int

const (
	userIDKey contextKey = iota
	tokenIDKey
)

// Claims is the verified identity carried by an access token.
type Claims struct {
	UserID  string
	TokenID string
}

// Verifier validates an access token.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// TokenIDFromContext extracts the access token ID from the request context.
func TokenIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(tokenIDKey).(string); ok {
		return v
	}
	return ""
}

// WithClaims returns a context carrying the given identity.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	ctx = context.WithValue(ctx, userIDKey, c.UserID)
	return context.WithValue(ctx, tokenIDKey, c.TokenID)
}

// TokenFromRequest returns the bearer token, falling back to the query
// parameter and then the cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if token := r.URL.Query().Get(tokenQueryParam); token != "" {
		return token
	}
	if c, err := r.Cookie(TokenCookieName); err == nil {
		return c.Value
	}
	return ""
}

// Middleware attaches the verified identity to the request context when a
// valid token is present. Requests without one pass through anonymously;
// use Require on routes that need a user. An invalid bearer token is
// rejected, while a stale cookie is ignored so the client can sign in again.
func Middleware(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := v.Verify(r.Context(), token)
			if err != nil && r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// Require rejects requests that carry no verified user.
func Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserIDFromContext(r.Context()) == "" {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
