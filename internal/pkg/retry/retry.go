// Package retry runs operations again after transient failures, backing
// off exponentially between attempts.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Policy describes an exponential backoff. MaxAttempts <= 0 retries until
// the context ends.
type Policy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
	MaxAttempts int
}

func ExponentialBackoff(base, max time.Duration, jitter bool, maxAttempts int) Policy {
	return Policy{
		BaseDelay:   base,
		MaxDelay:    max,
		Jitter:      jitter,
		MaxAttempts: maxAttempts,
	}
}

// Delay returns the wait after the given failed attempt, counted from 1
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	// 2^(attempt-1) * base
	delay := time.Duration(float64(p.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.Jitter {
		delay = time.Duration(float64(delay) * (rand.Float64()*0.4 + 0.8)) // [0.8, 1.2)
	}
	return delay
}

// Do calls fn until it succeeds, the attempts run out, retryable rejects
// the error or ctx ends. A nil retryable retries every error.
func Do[T any](ctx context.Context, policy Policy, fn func(context.Context) (T, error), retryable func(error) bool) (T, error) {
	var zero T
	var lastErr error
	for attempt := 1; policy.MaxAttempts <= 0 || attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if retryable != nil && !retryable(err) {
			break
		}
		if policy.MaxAttempts > 0 && attempt == policy.MaxAttempts {
			break
		}

		timer := time.NewTimer(policy.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, lastErr
}

// Run is Do for operations without a result
func Run(ctx context.Context, policy Policy, fn func(context.Context) error, retryable func(error) bool) error {
	_, err := Do(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, retryable)
	return err
}

// Transient reports whether err may go away on its own; context
// cancellation and deadlines never do
func Transient(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
