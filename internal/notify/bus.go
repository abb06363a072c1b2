// Package notify delivers transient user-facing notifications (toasts).
//
// A Bus is created by the application root, passed to the services that
// raise notifications, and closed on shutdown. Subscribers receive the
// toasts addressed to one user; the SSE handler streams them to browsers.
package notify

import (
	"container/list"
	"crypto/rand"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind is the toast severity.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

// DefaultDuration is how long clients show a toast.
const DefaultDuration = 3 * time.Second

const (
	subscriberBuffer = 16
	historyTTL       = 10 * time.Minute
	pruneEvery       = 128
)

// Toast is one notification.
type Toast struct {
	ID         string    `json:"id"`
	EventID    int64     `json:"event_id"`
	UserID     string    `json:"-"`
	Kind       Kind      `json:"type"`
	Message    string    `json:"message"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Notifier raises toasts for a user.
type Notifier interface {
	Notify(userID string, kind Kind, message string)
}

// Bus fans toasts out to per-user subscribers and keeps a short per-user
// history for reconnecting clients.
type Bus struct {
	mu           sync.RWMutex
	subs         map[string]map[int64]chan Toast
	history      map[string]*list.List
	historySize  int
	nextSubID    int64
	eventCounter int64
	entropy      *ulid.MonotonicEntropy
	closed       bool
	logger       *slog.Logger
}

var _ Notifier = (*Bus)(nil)

// NewBus creates a bus that keeps historySize toasts per user for replay.
func NewBus(historySize int, logger *slog.Logger) *Bus {
	if historySize <= 0 {
		historySize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:        make(map[string]map[int64]chan Toast),
		history:     make(map[string]*list.List),
		historySize: historySize,
		entropy:     ulid.Monotonic(rand.Reader, 0),
		logger:      logger,
	}
}

// Notify publishes a toast to every subscriber of userID. Slow subscribers
// lose the toast rather than block the publisher.
func (b *Bus) Notify(userID string, kind Kind, message string) {
	now := time.Now().UTC()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.eventCounter++
	toast := Toast{
		ID:         ulid.MustNew(ulid.Timestamp(now), b.entropy).String(),
		EventID:    b.eventCounter,
		UserID:     userID,
		Kind:       kind,
		Message:    message,
		DurationMS: DefaultDuration.Milliseconds(),
		CreatedAt:  now,
	}

	h, ok := b.history[userID]
	if !ok {
		h = list.New()
		b.history[userID] = h
	}
	h.PushBack(toast)
	for h.Len() > b.historySize {
		h.Remove(h.Front())
	}
	if b.eventCounter%pruneEvery == 0 {
		b.pruneHistoryLocked(now)
	}

	subs := make([]chan Toast, 0, len(b.subs[userID]))
	for _, ch := range b.subs[userID] {
		subs = append(subs, ch)
	}

	// Sends happen under the lock so Close cannot close a channel mid-send.
	for _, ch := range subs {
		select {
		case ch <- toast:
		default:
			b.logger.Warn("dropping toast for slow subscriber", "user_id", userID, "event_id", toast.EventID)
		}
	}
	b.mu.Unlock()

	b.logger.Debug("toast published", "user_id", userID, "type", kind, "event_id", toast.EventID)
}

// Subscribe returns a channel of toasts for userID and a function that
// cancels the subscription. The channel is closed on cancel or Close.
func (b *Bus) Subscribe(userID string) (<-chan Toast, func()) {
	ch := make(chan Toast, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.nextSubID++
	id := b.nextSubID
	if _, ok := b.subs[userID]; !ok {
		b.subs[userID] = make(map[int64]chan Toast)
	}
	b.subs[userID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			userSubs, ok := b.subs[userID]
			if !ok {
				return
			}
			if c, ok := userSubs[id]; ok {
				delete(userSubs, id)
				close(c)
			}
			if len(userSubs) == 0 {
				delete(b.subs, userID)
			}
		})
	}
}

// pruneHistoryLocked drops the history of users whose newest toast is older
// than historyTTL.
func (b *Bus) pruneHistoryLocked(now time.Time) {
	for userID, h := range b.history {
		back := h.Back()
		if back == nil || now.Sub(back.Value.(Toast).CreatedAt) > historyTTL {
			delete(b.history, userID)
		}
	}
}

// Missed returns the buffered toasts for userID with EventID > after.
func (b *Bus) Missed(userID string, after int64) []Toast {
	b.mu.RLock()
	defer b.mu.RUnlock()

	h, ok := b.history[userID]
	if !ok {
		return nil
	}
	var missed []Toast
	for e := h.Front(); e != nil; e = e.Next() {
		t := e.Value.(Toast)
		if t.EventID > after {
			missed = append(missed, t)
		}
	}
	return missed
}

// Close ends every subscription. Later Notify calls are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for userID, userSubs := range b.subs {
		for id, ch := range userSubs {
			close(ch)
			delete(userSubs, id)
		}
		delete(b.subs, userID)
	}
	b.history = make(map[string]*list.List)
}
