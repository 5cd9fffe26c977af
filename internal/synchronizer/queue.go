package synchronizer

import (
	"sync"

	"github.com/roach88/profilesync/internal/identity"
	"github.com/roach88/profilesync/internal/remote"
)

// eventType distinguishes between event kinds.
type eventType int

const (
	// evIdentityChanged carries a new identity, or nil on sign-out.
	evIdentityChanged eventType = iota + 1
	// evRemoteChanged carries a record pushed by the remote feed.
	evRemoteChanged
	// evRemoteFailed reports that the remote feed ended with an error.
	evRemoteFailed
	// evCreateFinished reports the outcome of a lazy record create.
	evCreateFinished
	// evBackfillFinished reports the outcome of an avatar backfill.
	evBackfillFinished
)

func (t eventType) String() string {
	switch t {
	case evIdentityChanged:
		return "identity_changed"
	case evRemoteChanged:
		return "remote_changed"
	case evRemoteFailed:
		return "remote_failed"
	case evCreateFinished:
		return "create_finished"
	case evBackfillFinished:
		return "backfill_finished"
	default:
		return "unknown"
	}
}

// event is one unit of work for the loop.
//
// Everything but evIdentityChanged carries the identity id and subscription
// generation captured when the work was issued, so results for an identity
// or feed that is no longer active can be recognised and dropped.
type event struct {
	typ        eventType
	identity   *identity.Identity
	identityID string
	gen        uint64
	rec        remote.Record
	exists     bool
	err        error
}

// eventQueue is a thread-safe FIFO queue for events.
//
// The queue is unbounded: collaborators enqueue from their own goroutines
// and must never block on the loop.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type eventQueue struct {
	mu     sync.Mutex
	events []event
	closed bool
	signal chan struct{} // Signals event availability (buffered, size 1)
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Non-blocking: the buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (event{}, false) if queue is empty.
func (q *eventQueue) TryDequeue() (event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return event{}, false
	}

	e := q.events[0]
	// Clear the slot so the backing array does not pin records.
	q.events[0] = event{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return e, true
}

// Wait returns a channel that signals when events may be available.
// The channel is closed when the queue is closed.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Closed reports whether Close has been called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
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
