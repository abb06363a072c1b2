package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a per-user token bucket. The key is the user ID only, not
// user and session, so clients cannot bypass throttling by opening new
// sessions.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows requests per window, refilled evenly.
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Every(window / time.Duration(requests)),
		burst:   requests,
	}
}

// Allow reports whether key may make a request now.
func (r *RateLimiter) Allow(key string) bool {
	return r.allowAt(key, time.Now())
}

func (r *RateLimiter) allowAt(key string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// EvictIdle drops buckets unused for longer than ttl.
func (r *RateLimiter) EvictIdle(now time.Time, ttl time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for key, b := range r.buckets {
		if now.Sub(b.lastSeen) > ttl {
			delete(r.buckets, key)
			evicted++
		}
	}
	return evicted
}
