package auth

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/regbuddy/internal/domain"
	"github.com/ashureev/regbuddy/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memStore struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	profiles map[string]*domain.Profile
	revoked  map[string]time.Time
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[string]*domain.User{},
		profiles: map[string]*domain.Profile{},
		revoked:  map[string]time.Time{},
	}
}

func (m *memStore) CreateUser(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.Email]; ok {
		return store.ErrConflict
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	cp := *u
	m.users[u.Email] = &cp
	return nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) CreateProfile(_ context.Context, p *domain.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[p.ID]; !ok {
		cp := *p
		m.profiles[p.ID] = &cp
	}
	return nil
}

func (m *memStore) profile(id string) *domain.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profiles[id]
}

func (m *memStore) RevokeToken(_ context.Context, id string, exp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[id] = exp
	return nil
}

func (m *memStore) IsTokenRevoked(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[id]
	return ok, nil
}

func newTestService(t *testing.T, st Store, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithBcryptCost(bcrypt.MinCost)}, opts...)
	return NewService(st, "test-secret", time.Hour, opts...)
}

func TestSignUpSignInVerify(t *testing.T) {
	st := newMemStore()
	svc := newTestService(t, st)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.StartProvisioner(ctx)

	user, err := svc.SignUp(ctx, SignUpRequest{Email: " Kid@Example.com ", Password: "secret1", Name: "Sam", Age: 8})
	require.NoError(t, err)
	assert.Equal(t, "kid@example.com", user.Email)

	require.Eventually(t, func() bool { return st.profile(user.ID) != nil }, time.Second, 5*time.Millisecond)
	p := st.profile(user.ID)
	assert.Equal(t, domain.RoleChild, p.Role)
	assert.Equal(t, "Sam", p.Name)

	sess, err := svc.SignIn(ctx, "kid@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "bearer", sess.TokenType)

	claims, err := svc.Verify(ctx, sess.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.NotEmpty(t, claims.TokenID)
}

func TestSignUpRejectsDuplicatesAndBadInput(t *testing.T) {
	svc := newTestService(t, newMemStore())
	ctx := context.Background()

	_, err := svc.SignUp(ctx, SignUpRequest{Email: "a@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = svc.SignUp(ctx, SignUpRequest{Email: "A@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = svc.SignUp(ctx, SignUpRequest{Email: "not-an-email", Password: "secret1"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.SignUp(ctx, SignUpRequest{Email: "b@example.com", Password: "123"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.SignUp(ctx, SignUpRequest{Email: "c@example.com", Password: "secret1", Role: "admin"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSignInWrongPassword(t *testing.T) {
	svc := newTestService(t, newMemStore())
	ctx := context.Background()
	_, err := svc.SignUp(ctx, SignUpRequest{Email: "a@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = svc.SignIn(ctx, "a@example.com", "wrong-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.SignIn(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSignOutRevokesAndNotifies(t *testing.T) {
	svc := newTestService(t, newMemStore())
	ctx := context.Background()
	_, err := svc.SignUp(ctx, SignUpRequest{Email: "a@example.com", Password: "secret1"})
	require.NoError(t, err)

	var mu sync.Mutex
	var events []EventKind
	unsubscribe := svc.Subscribe(func(e Event) {
		mu.Lock()
		events = append(events, e.Kind)
		mu.Unlock()
	})

	sess, err := svc.SignIn(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, svc.SignOut(ctx, sess.AccessToken))

	_, err = svc.Verify(ctx, sess.AccessToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)
	assert.True(t, IsAuthError(err))

	unsubscribe()
	unsubscribe()
	_, err = svc.SignIn(ctx, "a@example.com", "secret1")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []EventKind{EventSignedIn, EventSignedOut}, events)
}

func TestVerifyRejectsExpiredAndForeignTokens(t *testing.T) {
	st := newMemStore()
	past := time.Now().Add(-2 * time.Hour)
	old := newTestService(t, st, WithClock(func() time.Time { return past }))
	ctx := context.Background()
	_, err := old.SignUp(ctx, SignUpRequest{Email: "a@example.com", Password: "secret1"})
	require.NoError(t, err)
	sess, err := old.SignIn(ctx, "a@example.com", "secret1")
	require.NoError(t, err)

	current := newTestService(t, st)
	_, err = current.Verify(ctx, sess.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewService(st, "other-secret", time.Hour, WithBcryptCost(bcrypt.MinCost))
	fresh, err := other.SignIn(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	_, err = current.Verify(ctx, fresh.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = current.Verify(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

type flakyProfiles struct {
	failures int
	calls    int
	err      error
}

func (f *flakyProfiles) GetProfile(_ context.Context, userID string) (*domain.Profile, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.calls <= f.failures {
		return nil, store.ErrNotFound
	}
	return &domain.Profile{ID: userID, Role: domain.RoleChild}, nil
}

func TestProfileLoaderRecoversWithinBudget(t *testing.T) {
	src := &flakyProfiles{failures: 2}
	l := NewProfileLoader(src, 3, time.Millisecond, nil)
	var loading []bool
	l.OnLoading = func(v bool) { loading = append(loading, v) }

	p, err := l.Load(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "u1", p.ID)
	assert.Equal(t, 3, src.calls)
	assert.Equal(t, []bool{true, false}, loading)
}

func TestProfileLoaderExhaustedYieldsNoProfile(t *testing.T) {
	src := &flakyProfiles{failures: 100}
	l := NewProfileLoader(src, 3, time.Millisecond, nil)
	var loading []bool
	l.OnLoading = func(v bool) { loading = append(loading, v) }

	p, err := l.Load(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Equal(t, 4, src.calls)
	assert.Equal(t, []bool{true, false}, loading)
}

func TestProfileLoaderDoesNotRetryOtherErrors(t *testing.T) {
	boom := errors.New("db down")
	src := &flakyProfiles{err: boom}
	l := NewProfileLoader(src, 3, time.Millisecond, nil)

	_, err := l.Load(context.Background(), "u1")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, src.calls)
}

func TestCallbackErrorMessage(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"error=access_denied&error_code=otp_expired", "Your email link has expired. Please request a new one."},
		{"error=unauthorized&error_code=email_not_confirmed", "Please check your email and click the confirmation link."},
		{"error=access_denied", "Access denied. Please try signing in again."},
		{"error=server_error&error_description=Something+went+wrong", "Something went wrong"},
		{"error=server_error", "Authentication error. Please try again."},
	}
	for _, tt := range tests {
		values, err := url.ParseQuery(tt.query)
		require.NoError(t, err)
		e := ParseCallbackError(values)
		require.NotNil(t, e, tt.query)
		assert.Equal(t, tt.want, e.Message(), tt.query)
	}

	assert.Nil(t, ParseCallbackError(url.Values{}))
}
