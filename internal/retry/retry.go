// Package retry provides a bounded retry helper with a retryable-error predicate.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes how many times and how often an operation is retried.
// MaxRetries counts retries after the first attempt, so MaxRetries=3 allows
// four attempts in total.
type Policy struct {
	MaxRetries int
	Delay      time.Duration
	// Exponential doubles Delay after each retry instead of keeping it fixed.
	Exponential bool
	// Retryable reports whether err warrants another attempt. Nil retries
	// every error.
	Retryable func(error) bool
	// Name labels debug logs.
	Name string
}

// Fixed returns a fixed-delay policy.
func Fixed(maxRetries int, delay time.Duration, retryable func(error) bool) Policy {
	return Policy{MaxRetries: maxRetries, Delay: delay, Retryable: retryable}
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff
	if p.Exponential {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = p.Delay
		eb.Multiplier = 2
		eb.RandomizationFactor = 0
		eb.MaxElapsedTime = 0
		b = eb
	} else {
		b = backoff.NewConstantBackOff(p.Delay)
	}
	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx)
}

// Do runs op until it succeeds, fails with a non-retryable error, exhausts the
// retry budget, or ctx is done. The last error is returned unwrapped.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	attempt := 0
	wrapped := func() (T, error) {
		attempt++
		v, err := op(ctx)
		if err != nil && p.Retryable != nil && !p.Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	notify := func(err error, next time.Duration) {
		slog.Debug("retrying operation",
			"operation", p.Name,
			"attempt", attempt,
			"delay", next,
			"error", err,
		)
	}
	return backoff.RetryNotifyWithData(wrapped, p.backOff(ctx), notify)
}

// Run is Do for operations without a result.
func Run(ctx context.Context, p Policy, op func(context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
