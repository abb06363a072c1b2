package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func serve(origins []string, method, origin string) (*httptest.ResponseRecorder, bool) {
	called := false
	h := CORS(origins)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	}))
	req := httptest.NewRequest(method, "/api/rewards", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w, called
}

func TestCORSExplicitOriginAllowsCredentials(t *testing.T) {
	w, called := serve([]string{"https://app.example.com"}, http.MethodGet, "https://app.example.com")
	if !called {
		t.Fatal("expected next handler to run")
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("Allow-Origin=%q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("Allow-Credentials=%q, want true", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); got != allowedHeaders {
		t.Fatalf("Allow-Headers=%q", got)
	}
}

func TestCORSWildcardWithoutCredentials(t *testing.T) {
	w, _ := serve([]string{"*"}, http.MethodGet, "http://localhost:5173")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("Allow-Origin=%q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Fatalf("Allow-Credentials=%q, want empty", got)
	}
}

func TestCORSUnknownOrigin(t *testing.T) {
	w, called := serve([]string{"https://app.example.com"}, http.MethodGet, "https://evil.example.com")
	if !called {
		t.Fatal("expected next handler to run")
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("Allow-Origin=%q, want empty", got)
	}
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	w, called := serve([]string{"*"}, http.MethodOptions, "http://localhost:5173")
	if called {
		t.Fatal("preflight should not reach next handler")
	}
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", w.Code)
	}
}
