package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubVerifier struct {
	claims *Claims
	err    error
}

func (s stubVerifier) Verify(_ context.Context, _ string) (*Claims, error) {
	return s.claims, s.err
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?access_token=q", nil)
	if got := TokenFromRequest(r); got != "q" {
		t.Errorf("query token=%q, want q", got)
	}

	r.Header.Set("Authorization", "Bearer h")
	if got := TokenFromRequest(r); got != "h" {
		t.Errorf("header token=%q, want h", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: TokenCookieName, Value: "c"})
	if got := TokenFromRequest(r); got != "c" {
		t.Errorf("cookie token=%q, want c", got)
	}
}

func TestMiddlewareAttachesClaims(t *testing.T) {
	var gotUser, gotToken string
	h := Middleware(stubVerifier{claims: &Claims{UserID: "u1", TokenID: "t1"}})(
		Require(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			gotUser = UserIDFromContext(r.Context())
			gotToken = TokenIDFromContext(r.Context())
		})),
	)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer abc")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", w.Code)
	}
	if gotUser != "u1" || gotToken != "t1" {
		t.Fatalf("claims=%q/%q, want u1/t1", gotUser, gotToken)
	}
}

func TestMiddlewareRejectsBadToken(t *testing.T) {
	h := Middleware(stubVerifier{err: errors.New("expired")})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer abc")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d, want 401", w.Code)
	}
}

func TestMiddlewareIgnoresStaleCookie(t *testing.T) {
	var gotUser string
	h := Middleware(stubVerifier{err: errors.New("revoked")})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	r := httptest.NewRequest(http.MethodPost, "/api/auth/signin", nil)
	r.AddCookie(&http.Cookie{Name: TokenCookieName, Value: "old"})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status=%d, want 204", w.Code)
	}
	if gotUser != "" {
		t.Fatalf("user=%q, want anonymous", gotUser)
	}
}

func TestRequireWithoutUser(t *testing.T) {
	h := Middleware(stubVerifier{})(Require(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	})))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d, want 401", w.Code)
	}
}
