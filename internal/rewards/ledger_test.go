package rewards

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ashureev/regbuddy/internal/domain"
	"github.com/ashureev/regbuddy/internal/notify"
	"github.com/ashureev/regbuddy/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	current map[string]domain.Rewards
	upserts []domain.Rewards
	getErr  error
	putErr  error
}

func (s *fakeStore) GetRewards(_ context.Context, userID string) (*domain.Rewards, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	r, ok := s.current[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (s *fakeStore) UpsertRewards(_ context.Context, r *domain.Rewards) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.upserts = append(s.upserts, *r)
	if s.current == nil {
		s.current = map[string]domain.Rewards{}
	}
	s.current[r.UserID] = *r
	return nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	kinds    []notify.Kind
}

func (n *fakeNotifier) Notify(_ string, kind notify.Kind, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds = append(n.kinds, kind)
	n.messages = append(n.messages, message)
}

func TestAddUpsertsOnceWithFinalValues(t *testing.T) {
	s := &fakeStore{current: map[string]domain.Rewards{"u1": {UserID: "u1", Stars: 10, Coins: 2}}}
	n := &fakeNotifier{}
	l := NewLedger(s, n, nil)

	got, err := l.Add(context.Background(), "u1", 5, 0)
	require.NoError(t, err)
	assert.Equal(t, 15, got.Stars)
	assert.Equal(t, 2, got.Coins)

	require.Len(t, s.upserts, 1)
	assert.Equal(t, 15, s.upserts[0].Stars)
	assert.Equal(t, 2, s.upserts[0].Coins)
	assert.Equal(t, []string{"You earned 5 stars!"}, n.messages)
}

func TestAddStartsFromZero(t *testing.T) {
	s := &fakeStore{}
	n := &fakeNotifier{}
	l := NewLedger(s, n, nil)

	got, err := l.Add(context.Background(), "new", 5, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stars)
	assert.Equal(t, 3, got.Coins)
	assert.Equal(t, []string{"You earned 5 stars!", "You earned 3 coins!"}, n.messages)
}

func TestAddRejectsNegative(t *testing.T) {
	s := &fakeStore{}
	l := NewLedger(s, nil, nil)
	_, err := l.Add(context.Background(), "u1", -1, 0)
	assert.ErrorIs(t, err, ErrNegativeAmount)
	assert.Empty(t, s.upserts)
}

func TestAddFailureNotifies(t *testing.T) {
	s := &fakeStore{putErr: errors.New("db down")}
	n := &fakeNotifier{}
	l := NewLedger(s, n, nil)

	_, err := l.Add(context.Background(), "u1", 5, 0)
	require.Error(t, err)
	assert.Equal(t, []string{UpdateFailedMessage}, n.messages)
	assert.Equal(t, []notify.Kind{notify.KindError}, n.kinds)
}

func TestConcurrentAddsDoNotLoseUpdates(t *testing.T) {
	s := &fakeStore{}
	l := NewLedger(s, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.Add(context.Background(), "u1", 1, 0)
		}()
	}
	wg.Wait()

	got, err := l.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 20, got.Stars)
}
