// Package testutil provides deterministic test doubles shared across
// packages.
package testutil

import (
	"context"
	"sync"
	"time"
)

// SleepRecorder captures backoff sleeps instead of performing them, so
// retry-schedule tests run instantly and can assert the exact delays.
//
// Thread-safety: all methods are safe for concurrent use.
type SleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration

	// Err, when set, is returned by Sleep to simulate cancellation
	// during backoff.
	Err error
}

// NewSleepRecorder creates an empty recorder.
func NewSleepRecorder() *SleepRecorder {
	return &SleepRecorder{}
}

// Sleep records the requested delay and returns immediately.
// Matches the gate's sleeper signature.
func (r *SleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return r.Err
}

// Delays returns a copy of the recorded delays in order.
func (r *SleepRecorder) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Duration, len(r.delays))
	copy(out, r.delays)
	return out
}

// Reset clears the recorded delays.
func (r *SleepRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = nil
}
