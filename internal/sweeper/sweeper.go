// Package sweeper runs periodic housekeeping. Idle in-memory state is
// evicted and expired token revocations are purged.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Evictor drops in-memory state that has been idle for longer than ttl.
type Evictor interface {
	EvictIdle(now time.Time, ttl time.Duration) int
}

// RevocationPurger removes revocations for tokens that expired before cutoff.
type RevocationPurger interface {
	PurgeRevokedTokens(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config controls the sweep.
type Config struct {
	Interval time.Duration
	IdleTTL  time.Duration
}

// Start runs a background goroutine that sweeps every cfg.Interval until ctx
// is done. tokens may be nil.
func Start(ctx context.Context, cfg Config, tokens RevocationPurger, evictors ...Evictor) {
	ticker := time.NewTicker(cfg.Interval)
	go func() {
		defer ticker.Stop()
		slog.Info("sweeper started", "interval", cfg.Interval, "idle_ttl", cfg.IdleTTL)

		for {
			select {
			case <-ticker.C:
				Sweep(ctx, time.Now(), cfg.IdleTTL, tokens, evictors...)
			case <-ctx.Done():
				slog.Info("sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep performs one pass.
func Sweep(ctx context.Context, now time.Time, idleTTL time.Duration, tokens RevocationPurger, evictors ...Evictor) {
	for _, e := range evictors {
		if n := e.EvictIdle(now, idleTTL); n > 0 {
			slog.Info("sweeper evicted idle entries", "kind", fmt.Sprintf("%T", e), "count", n)
		}
	}

	if tokens != nil {
		deleted, err := tokens.PurgeRevokedTokens(ctx, now)
		if err != nil {
			// Context cancellation during shutdown is not worth an error line.
			if ctx.Err() != nil {
				slog.Debug("sweeper canceled during token purge", "error", err)
				return
			}
			slog.Error("sweeper failed to purge revoked tokens", "error", err)
			return
		}
		if deleted > 0 {
			slog.Info("sweeper purged expired revocations", "count", deleted)
		}
	}
}
