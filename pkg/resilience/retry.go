// Package resilience provides retry and circuit breaker primitives for
// the pipeline's external calls (embedding, extraction, generation).
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/loreweave/loreweave/pkg/fn"
)

// RetryPolicy is an explicit, named retry schedule. Each external-call
// type (embedding, extraction, generation) carries its own policy
// instead of ad hoc retry loops at call sites.
type RetryPolicy struct {
	// MaxAttempts caps total attempts, including the first.
	MaxAttempts int
	// InitialInterval is the first backoff delay.
	InitialInterval time.Duration
	// MaxInterval caps the delay between attempts.
	MaxInterval time.Duration
}

// DefaultRetryPolicy suits rate-limited external APIs.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:     3,
	InitialInterval: time.Second,
	MaxInterval:     30 * time.Second,
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = DefaultRetryPolicy.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = DefaultRetryPolicy.MaxInterval
	}
	return p
}

func (p RetryPolicy) backoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = 0 // bounded by attempts, not wall time
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1)), ctx)
}

// Retry runs f under the policy's exponential backoff schedule. It
// returns the last error once attempts are exhausted, or ctx's error on
// cancellation. An open circuit breaker stops the schedule immediately:
// the breaker already knows the dependency is down.
func Retry(ctx context.Context, p RetryPolicy, f func(context.Context) error) error {
	p = p.normalized()
	return backoff.Retry(func() error {
		err := f(ctx)
		if errors.Is(err, ErrCircuitOpen) {
			return backoff.Permanent(err)
		}
		return err
	}, p.backoff(ctx))
}

// RetryResult is the fn.Result form of Retry.
func RetryResult[T any](ctx context.Context, p RetryPolicy, f func(context.Context) fn.Result[T]) fn.Result[T] {
	var out fn.Result[T]
	err := Retry(ctx, p, func(ctx context.Context) error {
		out = f(ctx)
		_, err := out.Unwrap()
		return err
	})
	if err != nil && out.IsOk() {
		return fn.Err[T](err)
	}
	return out
}

// RetryStage wraps an fn.Stage with the policy.
func RetryStage[In, Out any](p RetryPolicy, stage fn.Stage[In, Out]) fn.Stage[In, Out] {
	return func(ctx context.Context, in In) fn.Result[Out] {
		return RetryResult(ctx, p, func(ctx context.Context) fn.Result[Out] {
			return stage(ctx, in)
		})
	}
}
