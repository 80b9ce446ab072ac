// Package metrics defines the fire-and-forget observability sink used by
// the write gate and repair engine.
//
// Sinks are best-effort by contract: implementations must never return
// errors, block, or panic. Callers record counters and timings without
// checking outcomes.
package metrics

import (
	"log/slog"
	"time"
)

// Sink receives counters and timings from the core.
//
// Implementations must be safe for concurrent use and must never panic -
// observability failures cannot be allowed to fail a write.
type Sink interface {
	// Increment bumps the named counter by one.
	Increment(name string)

	// Timing records one observed duration for the named timer.
	Timing(name string, d time.Duration)
}

// Nop discards all metrics. Useful as a default and in tests.
type Nop struct{}

func (Nop) Increment(string)             {}
func (Nop) Timing(string, time.Duration) {}

// SlogSink emits each metric as a debug-level structured log record.
type SlogSink struct {
	Logger *slog.Logger
}

// NewSlogSink creates a sink logging through logger, or slog.Default()
// when logger is nil.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{Logger: logger}
}

func (s *SlogSink) Increment(name string) {
	s.Logger.Debug("metric increment", "name", name)
}

func (s *SlogSink) Timing(name string, d time.Duration) {
	s.Logger.Debug("metric timing", "name", name, "ms", d.Milliseconds())
}
