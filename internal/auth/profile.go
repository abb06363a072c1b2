package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ashureev/regbuddy/internal/domain"
	"github.com/ashureev/regbuddy/internal/retry"
	"github.com/ashureev/regbuddy/internal/store"
)

// ProfileStore reads profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
}

// ProfileLoader fetches a profile that may not exist yet because it is
// provisioned after sign-up. Not-found reads are retried on a fixed delay.
type ProfileLoader struct {
	store  ProfileStore
	policy retry.Policy
	logger *slog.Logger

	// OnLoading, if set, is called with true before the first attempt and
	// with false once after the last one.
	OnLoading func(bool)
}

// NewProfileLoader creates a loader that retries up to maxRetries times.
func NewProfileLoader(st ProfileStore, maxRetries int, delay time.Duration, logger *slog.Logger) *ProfileLoader {
	if logger == nil {
		logger = slog.Default()
	}
	p := retry.Fixed(maxRetries, delay, func(err error) bool {
		return errors.Is(err, store.ErrNotFound)
	})
	p.Name = "load_profile"
	return &ProfileLoader{store: st, policy: p, logger: logger}
}

// Load returns the profile. A profile that is still missing after the
// retry budget yields (nil, nil).
func (l *ProfileLoader) Load(ctx context.Context, userID string) (*domain.Profile, error) {
	l.setLoading(true)
	defer l.setLoading(false)

	profile, err := retry.Do(ctx, l.policy, func(ctx context.Context) (*domain.Profile, error) {
		return l.store.GetProfile(ctx, userID)
	})
	if errors.Is(err, store.ErrNotFound) {
		l.logger.Warn("profile not provisioned yet", "user_id", userID, "error", domain.ErrNotFoundYet)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return profile, nil
}

func (l *ProfileLoader) setLoading(v bool) {
	if l.OnLoading != nil {
		l.OnLoading(v)
	}
}
