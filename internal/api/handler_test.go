//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/regbuddy/internal/auth"
	"github.com/ashureev/regbuddy/internal/chat"
	"github.com/ashureev/regbuddy/internal/completion"
	"github.com/ashureev/regbuddy/internal/domain"
	"github.com/ashureev/regbuddy/internal/exercise"
	"github.com/ashureev/regbuddy/internal/identity"
	"github.com/ashureev/regbuddy/internal/rewards"
	"github.com/ashureev/regbuddy/internal/store"
	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

type testEnv struct {
	repo   *store.SQLStore
	router chi.Router
	auth   *auth.Service
}

// asUser injects an identity without a token, the way identity.Middleware
// would after verifying one.
func asUser(userID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID != "" {
				r = r.WithContext(identity.WithClaims(r.Context(), &identity.Claims{UserID: userID, TokenID: "t"}))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func newTestEnv(t *testing.T, reply completion.Func, limiter *RateLimiter, mw func(http.Handler) http.Handler) *testEnv {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	if reply == nil {
		reply = func(context.Context, string, []completion.Turn) (string, error) {
			return "Let's try some deep breathing together.", nil
		}
	}

	authSvc := auth.NewService(repo, "test-secret", time.Hour, auth.WithBcryptCost(bcrypt.MinCost))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	authSvc.StartProvisioner(ctx)

	base := NewHandler(repo, 0, nil)
	ledger := rewards.NewLedger(repo, nil, nil)
	registry := chat.NewRegistry(chat.Deps{Completer: reply, Store: repo})

	r := chi.NewRouter()
	if mw == nil {
		mw = identity.Middleware(authSvc)
	}
	r.Use(mw)
	NewHealthHandler(repo).RegisterRoutes(r)
	NewAuthHandler(base, authSvc, auth.NewProfileLoader(repo, 5, 10*time.Millisecond, nil), false).RegisterRoutes(r)
	NewRewardsHandler(base, ledger).RegisterRoutes(r)
	NewChatHandler(base, registry, limiter).RegisterRoutes(r)
	NewExerciseHandler(base, exercise.DefaultContent(), ledger).RegisterRoutes(r)

	return &testEnv{repo: repo, router: r, auth: authSvc}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil, nil, asUser(""))
	w := env.do(t, http.MethodGet, "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", w.Code)
	}

	_ = env.repo.Close()
	w = env.do(t, http.MethodGet, "/api/health", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status after close=%d, want 503", w.Code)
	}
}

func TestRequiresUser(t *testing.T) {
	env := newTestEnv(t, nil, nil, asUser(""))
	for _, path := range []string{"/api/rewards", "/api/me"} {
		if w := env.do(t, http.MethodGet, path, nil); w.Code != http.StatusUnauthorized {
			t.Fatalf("%s status=%d, want 401", path, w.Code)
		}
	}
}

func TestListMoods(t *testing.T) {
	env := newTestEnv(t, nil, nil, asUser(""))
	w := env.do(t, http.MethodGet, "/api/moods", nil)
	moods := decodeBody[[]moodResponse](t, w)
	if len(moods) != len(domain.Moods) {
		t.Fatalf("got %d moods, want %d", len(moods), len(domain.Moods))
	}
	if moods[3].Mood != domain.MoodWorried || moods[3].Label != "Worried" {
		t.Fatalf("unexpected mood entry: %+v", moods[3])
	}
}

func TestRewardsAddAndGet(t *testing.T) {
	env := newTestEnv(t, nil, nil, asUser("u1"))

	w := env.do(t, http.MethodPost, "/api/rewards", map[string]int{"stars": 5, "coins": 2})
	if w.Code != http.StatusOK {
		t.Fatalf("add status=%d body=%s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/api/rewards", nil)
	got := decodeBody[domain.Rewards](t, w)
	if got.Stars != 5 || got.Coins != 2 {
		t.Fatalf("rewards=%+v, want 5 stars 2 coins", got)
	}

	w = env.do(t, http.MethodPost, "/api/rewards", map[string]int{"stars": -1})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("negative status=%d, want 400", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/rewards", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty body status=%d, want 400", w.Code)
	}
}

func TestCallbackError(t *testing.T) {
	env := newTestEnv(t, nil, nil, asUser(""))
	w := env.do(t, http.MethodGet, "/api/auth/callback-error?error=access_denied&error_code=otp_expired", nil)
	got := decodeBody[map[string]string](t, w)
	if !strings.Contains(got["message"], "expired") {
		t.Fatalf("message=%q", got["message"])
	}

	if w := env.do(t, http.MethodGet, "/api/auth/callback-error", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", w.Code)
	}
}
