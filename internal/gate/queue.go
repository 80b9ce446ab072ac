package gate

import (
	"sync"
	"time"
)

// item is one queued write operation with its settlement handle.
type item struct {
	id         string
	label      string
	op         Op
	pending    *Pending
	enqueuedAt time.Time
}

// opQueue is a thread-safe FIFO queue of write operations.
//
// The queue is unbounded: callers enqueue from arbitrary goroutines and
// must never block behind a slow write. The gate's Run loop is the single
// consumer.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop (prevents goroutine hangs on context cancellation).
type opQueue struct {
	mu     sync.Mutex
	items  []item
	closed bool
	signal chan struct{} // Signals item availability (buffered, size 1)
}

// newOpQueue creates an empty operation queue.
func newOpQueue() *opQueue {
	return &opQueue{
		items:  make([]item, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an operation to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *opQueue) Enqueue(it item) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, it)

	// Signal availability (non-blocking - buffer of 1 coalesces multiple signals)
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (item{}, false) if the queue is empty.
func (q *opQueue) TryDequeue() (item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return item{}, false
	}

	it := q.items[0]

	// Nil out the slot so the closed-over op and its result handle become
	// collectable; the underlying array retains references otherwise.
	q.items[0] = item{}

	if len(q.items) == 1 {
		// Last element - reset to empty slice with original capacity
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	return it, true
}

// Wait returns a channel that signals when items may be available.
// Use with select for context-aware waiting:
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    // Try TryDequeue
//	}
func (q *opQueue) Wait() <-chan struct{} {
	return q.signal
}

// Closed reports whether the queue has stopped accepting operations.
func (q *opQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the current queue length.
func (q *opQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close signals that no more operations will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *opQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return // Already closed
	}

	q.closed = true
	close(q.signal) // Wakes all waiters
}
