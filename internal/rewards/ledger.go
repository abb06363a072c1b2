// Package rewards keeps the per-user star and coin balance.
package rewards

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/regbuddy/internal/domain"
	"github.com/ashureev/regbuddy/internal/notify"
	"github.com/ashureev/regbuddy/internal/store"
)

// UpdateFailedMessage is shown when a balance cannot be written.
const UpdateFailedMessage = "Failed to update rewards"

// ErrNegativeAmount is returned for negative additions; balances never shrink.
var ErrNegativeAmount = errors.New("reward amounts must not be negative")

// Store is the persistence the ledger needs.
type Store interface {
	GetRewards(ctx context.Context, userID string) (*domain.Rewards, error)
	UpsertRewards(ctx context.Context, rewards *domain.Rewards) error
}

// Ledger adds rewards. Additions for the same process are serialized so
// that concurrent read-modify-write cycles do not lose updates.
type Ledger struct {
	store    Store
	notifier notify.Notifier
	logger   *slog.Logger

	mu sync.Mutex
}

// NewLedger creates a ledger.
func NewLedger(s Store, n notify.Notifier, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: s, notifier: n, logger: logger}
}

// Get returns the balance, zero when the user has none yet.
func (l *Ledger) Get(ctx context.Context, userID string) (*domain.Rewards, error) {
	r, err := l.store.GetRewards(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return &domain.Rewards{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rewards: %w", err)
	}
	return r, nil
}

// Add increases the balance by stars and coins with a single upsert of the
// new totals and announces what was earned.
func (l *Ledger) Add(ctx context.Context, userID string, stars, coins int) (*domain.Rewards, error) {
	if stars < 0 || coins < 0 {
		return nil, ErrNegativeAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	current, err := l.Get(ctx, userID)
	if err != nil {
		l.failed(userID, err)
		return nil, err
	}

	next := &domain.Rewards{
		UserID:      userID,
		Stars:       current.Stars + stars,
		Coins:       current.Coins + coins,
		LastUpdated: time.Now().UTC(),
	}
	if err := l.store.UpsertRewards(ctx, next); err != nil {
		err = fmt.Errorf("upsert rewards: %w", err)
		l.failed(userID, err)
		return nil, err
	}

	if l.notifier != nil {
		if stars > 0 {
			l.notifier.Notify(userID, notify.KindSuccess, fmt.Sprintf("You earned %d stars!", stars))
		}
		if coins > 0 {
			l.notifier.Notify(userID, notify.KindSuccess, fmt.Sprintf("You earned %d coins!", coins))
		}
	}
	l.logger.Info("rewards added", "user_id", userID, "stars", next.Stars, "coins", next.Coins)
	return next, nil
}

func (l *Ledger) failed(userID string, err error) {
	l.logger.Error("rewards update failed", "user_id", userID, "error", err)
	if l.notifier != nil {
		l.notifier.Notify(userID, notify.KindError, UpdateFailedMessage)
	}
}
