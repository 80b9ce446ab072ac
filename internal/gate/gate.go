// Package gate serializes writes against a single store file.
//
// Arbitrary goroutines submit labeled write operations with Enqueue; a
// single worker loop (Run) executes them strictly one at a time in
// submission order, retrying transient lock errors with bounded
// exponential backoff. Each caller observes exactly its own operation's
// outcome - a failed operation never disturbs the ones queued behind it.
package gate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tallyhq/tally/internal/metrics"
)

// Op is one write operation against the store. It runs on the gate's
// worker goroutine with the gate's run context.
type Op func(ctx context.Context) (any, error)

// ErrClosed is returned by Enqueue after the gate has stopped accepting
// operations.
var ErrClosed = errors.New("gate: closed")

// DefaultWarnThreshold is the queue depth above which a contention
// warning is logged.
const DefaultWarnThreshold = 5

// Metric names emitted to the observability sink.
const (
	metricOpDuration     = "queue.op.duration"
	metricOpSuccess      = "queue.op.success"
	metricOpError        = "queue.op.error"
	metricRetrySuccess   = "queue.retry.success"
	metricRetryExhausted = "queue.retry.exhausted"
	metricDepthWarning   = "queue.depth.warning"
)

// Pending is the caller's handle for a queued operation. It settles
// exactly once, with the operation's own result or error.
type Pending struct {
	id    string
	label string

	done chan struct{}
	val  any
	err  error
}

// Wait blocks until the operation settles or ctx is cancelled.
// Safe to call from multiple goroutines; every caller observes the same
// outcome. Cancelling ctx abandons the wait, not the operation - once
// enqueued, an operation always runs.
func (p *Pending) Wait(ctx context.Context) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return p.val, p.err
	}
}

// Done returns a channel closed when the operation has settled.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// settle records the outcome and releases waiters. Called exactly once.
func (p *Pending) settle(val any, err error) {
	p.val = val
	p.err = err
	close(p.done)
}

// QueueStats is a snapshot of gate occupancy.
type QueueStats struct {
	// CurrentDepth is the number of operations enqueued but not yet settled.
	CurrentDepth int
	// MaxDepth is the high-water mark of CurrentDepth since construction.
	MaxDepth int
}

// Gate is an explicitly constructed write-serialization gate.
//
// One Gate guards one store file. Construct with New, start the worker
// with Run (exactly one goroutine), submit with Enqueue from anywhere.
//
// Thread-safety model:
//   - Enqueue(), Stats(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Gate struct {
	queue         *opQueue
	sink          metrics.Sink
	logger        *slog.Logger
	retry         RetryPolicy
	warnThreshold int
	isRetryable   func(error) bool
	sleep         sleeper

	depth    atomic.Int64
	maxDepth atomic.Int64

	stopOnce sync.Once
}

// Option configures a Gate.
type Option func(*Gate)

// WithSink routes gate metrics to sink instead of discarding them.
func WithSink(sink metrics.Sink) Option {
	return func(g *Gate) {
		g.sink = sink
	}
}

// WithLogger sets the gate's logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// WithRetryPolicy overrides the default lock-contention retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(g *Gate) {
		g.retry = p
	}
}

// WithWarnThreshold sets the queue depth that triggers a contention
// warning. Defaults to DefaultWarnThreshold.
func WithWarnThreshold(n int) Option {
	return func(g *Gate) {
		g.warnThreshold = n
	}
}

// WithClassifier overrides the transient-error classifier.
// Defaults to IsRetryable. Intended for tests.
func WithClassifier(fn func(error) bool) Option {
	return func(g *Gate) {
		g.isRetryable = fn
	}
}

// WithSleeper overrides the backoff sleep. Intended for tests.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Gate) {
		g.sleep = fn
	}
}

// New creates a Gate. The gate is inert until Run is called; operations
// enqueued before Run starts are executed once it does.
func New(opts ...Option) *Gate {
	g := &Gate{
		queue:         newOpQueue(),
		sink:          metrics.Nop{},
		logger:        slog.Default(),
		retry:         DefaultRetryPolicy(),
		warnThreshold: DefaultWarnThreshold,
		isRetryable:   IsRetryable,
		sleep:         realSleep,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Enqueue submits a write operation and returns its settlement handle.
// Thread-safe: may be called from any goroutine. The label is used only
// for logging and may be empty.
//
// Returns ErrClosed if the gate has been stopped.
func (g *Gate) Enqueue(op Op, label string) (*Pending, error) {
	p := &Pending{
		id:    uuid.Must(uuid.NewV7()).String(),
		label: label,
		done:  make(chan struct{}),
	}

	it := item{
		id:         p.id,
		label:      label,
		op:         op,
		pending:    p,
		enqueuedAt: time.Now(),
	}

	depth := g.depth.Add(1)
	g.raiseHighWater(depth)

	if !g.queue.Enqueue(it) {
		g.depth.Add(-1)
		return nil, ErrClosed
	}

	if int(depth) > g.warnThreshold {
		g.sink.Increment(metricDepthWarning)
		g.logger.Warn("write queue depth above threshold",
			"depth", depth,
			"threshold", g.warnThreshold,
			"label", label,
		)
	}

	return p, nil
}

// Do enqueues op and blocks until it settles. Convenience wrapper for
// callers that have no use for the intermediate handle.
func (g *Gate) Do(ctx context.Context, op Op, label string) (any, error) {
	p, err := g.Enqueue(op, label)
	if err != nil {
		return nil, err
	}
	return p.Wait(ctx)
}

// Run starts the single-writer loop. Blocks until ctx is cancelled or
// Stop is called. Must be called from exactly ONE goroutine.
//
// Operations still queued when the loop exits are settled with the run
// context's error so no waiter hangs.
func (g *Gate) Run(ctx context.Context) error {
	g.logger.Info("write gate starting")

	for {
		it, ok := g.queue.TryDequeue()
		if ok {
			g.execute(ctx, it)
			continue
		}

		select {
		case <-ctx.Done():
			g.logger.Info("write gate stopping: context cancelled")
			g.queue.Close()
			g.drain(ctx.Err())
			return ctx.Err()

		case <-g.queue.Wait():
			// Signal received - loop back to TryDequeue.
			// The signal channel closes when the queue is closed,
			// which makes this case fire immediately. A buffered
			// signal can also outlive the enqueue that sent it, so
			// an empty queue alone does not mean shutdown.
			if g.queue.Closed() && g.queue.Len() == 0 {
				g.logger.Info("write gate stopping: queue closed")
				g.drain(ErrClosed)
				return nil
			}
		}
	}
}

// Stop gracefully shuts down the gate. Already-queued operations still
// run; subsequent Enqueue calls fail with ErrClosed.
func (g *Gate) Stop() {
	g.stopOnce.Do(func() {
		g.queue.Close()
	})
}

// Stats returns the current queue depth and its high-water mark.
func (g *Gate) Stats() QueueStats {
	return QueueStats{
		CurrentDepth: int(g.depth.Load()),
		MaxDepth:     int(g.maxDepth.Load()),
	}
}

// execute runs one operation with retry, settles its handle, and records
// metrics. The worker never halts on operation failure - the caller's
// error is delivered through the handle and the loop moves on.
func (g *Gate) execute(ctx context.Context, it item) {
	start := time.Now()

	val, err := g.runWithRetry(ctx, it)

	elapsed := time.Since(start)
	g.sink.Timing(metricOpDuration, elapsed)
	g.depth.Add(-1)

	if err != nil {
		g.sink.Increment(metricOpError)
		g.logger.Error("write operation failed",
			"op_id", it.id,
			"label", it.label,
			"error", err,
			"queued_ms", start.Sub(it.enqueuedAt).Milliseconds(),
			"elapsed_ms", elapsed.Milliseconds(),
		)
	} else {
		g.sink.Increment(metricOpSuccess)
		g.logger.Debug("write operation completed",
			"op_id", it.id,
			"label", it.label,
			"elapsed_ms", elapsed.Milliseconds(),
		)
	}

	it.pending.settle(val, err)
}

// runWithRetry attempts the operation, retrying classified lock errors
// with exponential backoff. Non-retryable errors propagate on the first
// failure with zero added delay; exhaustion returns the last observed
// error verbatim.
func (g *Gate) runWithRetry(ctx context.Context, it item) (any, error) {
	var lastErr error

	for attempt := 0; attempt <= g.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := g.retry.delayFor(attempt)
			g.logger.Debug("retrying write after lock contention",
				"op_id", it.id,
				"label", it.label,
				"attempt", attempt+1,
				"delay_ms", delay.Milliseconds(),
			)
			if err := g.sleep(ctx, delay); err != nil {
				// Shutdown during backoff: report the contention error,
				// not the cancellation, so the caller sees what happened
				// to its write.
				return nil, lastErr
			}
		}

		val, err := it.op(ctx)
		if err == nil {
			if attempt > 0 {
				g.sink.Increment(metricRetrySuccess)
			}
			return val, nil
		}

		if !g.isRetryable(err) {
			return nil, err
		}
		lastErr = err
	}

	g.sink.Increment(metricRetryExhausted)
	return nil, lastErr
}

// drain fails every remaining queued operation so no waiter hangs after
// the worker loop exits.
func (g *Gate) drain(cause error) {
	for {
		it, ok := g.queue.TryDequeue()
		if !ok {
			return
		}
		g.depth.Add(-1)
		it.pending.settle(nil, cause)
	}
}

// raiseHighWater lifts the recorded maximum depth to at least depth.
func (g *Gate) raiseHighWater(depth int64) {
	for {
		cur := g.maxDepth.Load()
		if depth <= cur || g.maxDepth.CompareAndSwap(cur, depth) {
			return
		}
	}
}
