package gate

import (
	"context"
	"time"
)

// RetryPolicy bounds the gate's handling of transient lock errors.
//
// Backoff is pure exponential: BaseDelay before the first retry, doubling
// after each subsequent retry. No jitter is applied - retries are already
// serialized behind the gate, so synchronized thundering-herd retries
// cannot occur within one process. (Jitter remains a hardening option if
// a second process ever shares the store file.)
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt.
	// MaxRetries = 3 means at most 4 total attempts.
	MaxRetries int

	// BaseDelay is the sleep before the first retry.
	BaseDelay time.Duration
}

// DefaultRetryPolicy matches the store's observed contention profile:
// 3 retries (4 attempts) starting at 50ms, doubling each time.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  50 * time.Millisecond,
	}
}

// delayFor returns the backoff delay preceding the given retry
// (retry 1 is the first retry after the initial attempt).
func (p RetryPolicy) delayFor(retry int) time.Duration {
	return p.BaseDelay << uint(retry-1)
}

// sleeper suspends between retry attempts. Injectable so tests can verify
// backoff schedules without wall-clock sleeps.
type sleeper func(ctx context.Context, d time.Duration) error

// realSleep waits for d or until ctx is cancelled.
func realSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
