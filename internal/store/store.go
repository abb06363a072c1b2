// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/regbuddy/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Repository is the persistence contract used by the services.
type Repository interface {
	// CreateUser stores sign-in credentials. The email must be unique.
	CreateUser(ctx context.Context, user *domain.User) error

	// GetUserByEmail returns ErrNotFound when no account uses email.
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)

	// GetProfile returns ErrNotFound until the profile has been provisioned.
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)

	// CreateProfile inserts a profile; an existing profile is left untouched.
	CreateProfile(ctx context.Context, profile *domain.Profile) error

	// GetRewards returns ErrNotFound when the user has never earned anything.
	GetRewards(ctx context.Context, userID string) (*domain.Rewards, error)

	// UpsertRewards writes the final balance for a user.
	UpsertRewards(ctx context.Context, rewards *domain.Rewards) error

	// CreateSession inserts a chat session and returns its ID.
	CreateSession(ctx context.Context, userID string, mood domain.Mood) (*domain.Session, error)

	// GetSession returns ErrNotFound for unknown IDs.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// CompleteSession records the exercise used and marks the session completed.
	CompleteSession(ctx context.Context, sessionID string, tool domain.Tool, duration time.Duration) error

	// InsertMessage persists a chat turn and returns its ID.
	InsertMessage(ctx context.Context, msg *domain.ChatMessage) (string, error)

	// ListMessages returns up to limit most recent messages, oldest first.
	ListMessages(ctx context.Context, sessionID string, limit int) ([]*domain.ChatMessage, error)

	// InsertAILog records one completion exchange.
	InsertAILog(ctx context.Context, entry *domain.AILog) error

	// RevokeToken marks a token ID as signed out until expiresAt.
	RevokeToken(ctx context.Context, tokenID string, expiresAt time.Time) error

	// IsTokenRevoked reports whether tokenID was signed out.
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)

	// PurgeRevokedTokens removes revocations that expired before cutoff.
	PurgeRevokedTokens(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
