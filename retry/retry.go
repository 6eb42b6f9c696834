// Package retry provides exponential-backoff retry for resilient venue calls.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy describes a backoff schedule. It carries no error predicate: which
// errors qualify for retry is decided by IsRetryable for every Policy.
type Policy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
}

// DefaultPolicy matches spec.md §4.1/§7: 1s initial, factor 2, 30s cap, 3 attempts.
var DefaultPolicy = Policy{
	MaxAttempts:     3,
	InitialDelay:    1 * time.Second,
	MaxDelay:        30 * time.Second,
	ExponentialBase: 2.0,
}

// Retryable marks an error as eligible for retry under a Policy.
type Retryable interface {
	Retryable() bool
}

// IsRetryable reports whether err should be retried: either it implements
// Retryable and returns true, or it's a context-independent transient I/O
// error (net errors satisfy this via the Retryable wrapper at the call site).
func IsRetryable(err error) bool {
	var r Retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}

// Do runs fn, retrying on retryable errors per policy with exponential
// backoff. Non-retryable errors return immediately. The context is checked
// between attempts so callers can cancel an in-progress backoff sleep.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	delay := policy.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if !IsRetryable(lastErr) || attempt == policy.MaxAttempts {
			return lastErr
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * policy.ExponentialBase)
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}

	return lastErr
}
