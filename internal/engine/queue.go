package engine

import (
	"sync"

	"github.com/roach88/gravindex/internal/ir"
)

// eventQueue is a thread-safe FIFO queue of inbound events.
//
// The queue is unbounded so a data source never blocks on a slow batch.
// It uses a channel for signaling to enable context-aware waiting in the
// Run loop (prevents goroutine hangs on context cancellation).
type eventQueue struct {
	mu     sync.Mutex
	events []ir.Event
	closed bool
	signal chan struct{} // Signals event availability (buffered, size 1)
}

// newEventQueue creates an empty event queue.
func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]ir.Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends events to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(evs ...ir.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if len(evs) == 0 {
		return true
	}

	q.events = append(q.events, evs...)

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes and returns up to n events from the front without
// blocking. Returns nil if the queue is empty.
func (q *eventQueue) TryDequeue(n int) []ir.Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 || n < 1 {
		return nil
	}
	n = min(n, len(q.events))

	out := make([]ir.Event, n)
	copy(out, q.events[:n])

	// Zero the vacated slots so the backing array does not retain params.
	clear(q.events[:n])
	if n == len(q.events) {
		q.events = q.events[:0]
	} else {
		q.events = q.events[n:]
	}
	return out
}

// Wait returns a channel that signals when events may be available. The
// channel is closed when the queue is closed.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Drained reports whether the queue is closed and empty.
func (q *eventQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.events) == 0
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close signals that no more events will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
