// Package auth signs users up, in and out, and provisions their profiles.
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/regbuddy/internal/domain"
	"github.com/ashureev/regbuddy/internal/store"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 6
	provisionQueue    = 64
)

// Store is the persistence the auth service needs.
type Store interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	CreateProfile(ctx context.Context, profile *domain.Profile) error
	RevokeToken(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)
}

// EventKind distinguishes session changes.
type EventKind string

const (
	EventSignedIn  EventKind = "signed_in"
	EventSignedOut EventKind = "signed_out"
)

// Event is pushed to subscribers when a user signs in or out.
type Event struct {
	Kind   EventKind
	UserID string
}

// SignUpRequest carries the details collected at sign-up.
type SignUpRequest struct {
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Name     string      `json:"name,omitempty"`
	Age      int         `json:"age,omitempty"`
	Role     domain.Role `json:"role,omitempty"`
}

// Session is returned on a successful sign-in.
type Session struct {
	Token
	User domain.User `json:"user"`
}

// Service implements sign-up, sign-in and sign-out with bcrypt password
// hashes and HS256 access tokens. It also satisfies identity.Verifier.
type Service struct {
	store      Store
	secret     []byte
	ttl        time.Duration
	bcryptCost int
	logger     *slog.Logger
	now        func() time.Time

	provision chan *domain.Profile

	subMu  sync.Mutex
	subs   map[int]func(Event)
	nextID int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithBcryptCost overrides the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

// WithClock overrides the time source used for token timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates an auth service. An empty secret is replaced by a
// random one, so tokens do not survive a restart.
func NewService(st Store, secret string, ttl time.Duration, opts ...Option) *Service {
	s := &Service{
		store:      st,
		secret:     []byte(secret),
		ttl:        ttl,
		bcryptCost: bcrypt.DefaultCost,
		logger:     slog.Default(),
		now:        time.Now,
		provision:  make(chan *domain.Profile, provisionQueue),
		subs:       make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.secret) == 0 {
		s.secret = make([]byte, 32)
		_, _ = rand.Read(s.secret)
		s.logger.Warn("JWT_SECRET not set, using an ephemeral signing key")
	}
	return s
}

// StartProvisioner runs the background worker that creates profiles for new
// accounts. It stops when ctx is done.
func (s *Service) StartProvisioner(ctx context.Context) {
	go func() {
		s.logger.Info("profile provisioner started")
		for {
			select {
			case p := <-s.provision:
				s.createProfile(ctx, p)
			case <-ctx.Done():
				s.logger.Info("profile provisioner shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func (s *Service) createProfile(ctx context.Context, p *domain.Profile) {
	if err := s.store.CreateProfile(ctx, p); err != nil {
		s.logger.Error("failed to provision profile", "user_id", p.ID, "error", err)
		return
	}
	s.logger.Info("profile provisioned", "user_id", p.ID)
}

// SignUp creates the account and queues its profile for provisioning. The
// profile becomes readable shortly afterwards.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*domain.User, error) {
	email := normalizeEmail(req.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: email", ErrInvalidInput)
	}
	if len(req.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	role := req.Role
	if role == "" {
		role = domain.RoleChild
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: role", ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{Email: email, PasswordHash: string(hash)}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	profile := &domain.Profile{
		ID:    user.ID,
		Email: email,
		Role:  role,
		Name:  strings.TrimSpace(req.Name),
		Age:   req.Age,
	}
	select {
	case s.provision <- profile:
	default:
		s.logger.Warn("provision queue full, creating profile inline", "user_id", user.ID)
		s.createProfile(ctx, profile)
	}

	s.logger.Info("user signed up", "user_id", user.ID)
	return user, nil
}

// SignIn checks the password and issues an access token.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.issue(user.ID)
	if err != nil {
		return nil, err
	}
	s.publish(Event{Kind: EventSignedIn, UserID: user.ID})
	return &Session{Token: *token, User: *user}, nil
}

// SignOut revokes the token until it would have expired anyway.
func (s *Service) SignOut(ctx context.Context, raw string) error {
	claims, err := s.parse(raw)
	if err != nil {
		return err
	}
	if err := s.store.RevokeToken(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	s.publish(Event{Kind: EventSignedOut, UserID: claims.Subject})
	return nil
}

// Subscribe registers fn for session changes and returns a function that
// removes it.
func (s *Service) Subscribe(fn func(Event)) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Service) publish(e Event) {
	s.subMu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
