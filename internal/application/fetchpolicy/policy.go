// Package fetchpolicy wraps remote calls with a per-attempt timeout,
// bounded retries with exponential backoff, and a failure-count breaker.
package fetchpolicy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"courtadmin/internal/domain/failure"
)

// Options parameterise one fetch.
type Options struct {
	Timeout    time.Duration // per attempt; <= 0 disables the race
	MaxRetries int           // total attempts; values < 1 mean one attempt
	BaseDelay  time.Duration // delay before the first retry, doubled each time after
}

// Policy is Options plus the sleep hook used between attempts.
type Policy struct {
	Options
	Name  string                                         // for logs, e.g. "dashboard"
	Sleep func(ctx context.Context, d time.Duration) error // nil sleeps on a real timer
}

// Backoff returns BaseDelay * 2^retryIndex.
// PRE: retryIndex >= 0
// POST: Strictly increasing in retryIndex while BaseDelay > 0
func (o Options) Backoff(retryIndex int) time.Duration {
	if retryIndex > 30 {
		retryIndex = 30
	}
	return o.BaseDelay << retryIndex
}

func (o Options) attempts() int {
	if o.MaxRetries < 1 {
		return 1
	}
	return o.MaxRetries
}

// Execute runs op until it succeeds, attempts are exhausted, the error is an
// auth failure, or ctx is done. Each retry calls op from scratch.
//
// An attempt that outlives Timeout is abandoned, not cancelled: it keeps the
// caller's ctx and may still finish, but its result is discarded.
//
// PRE: op is safe to call more than once
// POST: Returns the first success or the last error
func Execute[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	sleep := p.Sleep
	if sleep == nil {
		sleep = timerSleep
	}

	for i := 0; i < p.attempts(); i++ {
		if i > 0 {
			delay := p.Backoff(i - 1)
			slog.Info("fetch_retry", "policy", p.Name, "attempt", i+1, "delay_ms", delay.Milliseconds(), "error", lastErr)
			if err := sleep(ctx, delay); err != nil {
				return zero, lastErr
			}
		}

		v, err := attempt(ctx, p.Timeout, op)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if failure.IsAuthExpired(err) || ctx.Err() != nil {
			break
		}
	}
	return zero, lastErr
}

type result[T any] struct {
	v   T
	err error
}

func attempt[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}

	// buffered so an abandoned attempt can finish without blocking
	ch := make(chan result[T], 1)
	go func() {
		v, err := op(ctx)
		ch <- result[T]{v, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case r := <-ch:
		return r.v, r.err
	case <-timer.C:
		return zero, fmt.Errorf("%w after %s", failure.ErrTimeout, timeout)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func timerSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
