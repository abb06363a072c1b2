package chat

import (
	"context"
	"sync"
	"time"

	"github.com/ashureev/regbuddy/internal/domain"
)

// Registry keeps one Controller per chat session.
type Registry struct {
	deps Deps

	mu          sync.Mutex
	controllers map[string]*Controller
}

// NewRegistry creates an empty registry sharing deps across controllers.
func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:        deps.withDefaults(),
		controllers: make(map[string]*Controller),
	}
}

// Get returns the controller for session, creating it and loading its
// persisted history on first use. A returned controller counts as used, so
// EvictIdle will not drop it before the caller gets to it.
func (r *Registry) Get(ctx context.Context, session domain.Session) (*Controller, error) {
	r.mu.Lock()
	c, ok := r.controllers[session.ID]
	if ok {
		c.touch(time.Now())
	}
	r.mu.Unlock()
	if ok {
		return c, nil
	}

	c = NewController(session, r.deps)
	if err := c.LoadHistory(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another request may have won the race while history was loading.
	if existing, ok := r.controllers[session.ID]; ok {
		existing.touch(time.Now())
		return existing, nil
	}
	r.controllers[session.ID] = c
	return c, nil
}

// Len returns the number of live controllers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.controllers)
}

// EvictIdle drops controllers that have not been used for longer than ttl
// and have no send in flight. It returns the number evicted.
func (r *Registry) EvictIdle(now time.Time, ttl time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, c := range r.controllers {
		lastUsed, busy := c.idleSince()
		if busy || now.Sub(lastUsed) < ttl {
			continue
		}
		delete(r.controllers, id)
		evicted++
	}
	if evicted > 0 {
		r.deps.Logger.Debug("evicted idle chat controllers", "count", evicted, "remaining", len(r.controllers))
	}
	return evicted
}
