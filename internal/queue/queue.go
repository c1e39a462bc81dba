// Package queue provides the per-task FIFO of stream events: multi-producer
// in shape, single-consumer by contract, with a blocking dequeue.
package queue

import (
	"context"
	"sync"

	"github.com/hamidra/a2alite/internal/protocol"
)

// Queue is an ordered FIFO of stream events. Enqueue never blocks; Dequeue
// suspends until an event arrives, the queue closes, or the context is done.
// Implementations must be safe for concurrent use.
type Queue interface {
	// Enqueue appends an event. It is a silent no-op after Close.
	Enqueue(event protocol.Event)

	// Dequeue returns the next event in FIFO order. It blocks while the
	// queue is open and empty. ok is false when the queue closed with no
	// event to deliver, or when ctx was canceled.
	Dequeue(ctx context.Context) (event protocol.Event, ok bool)

	// Close drains pending waiters with "no event" and drops future
	// enqueues. Closing is idempotent.
	Close()

	// Len returns the number of buffered events.
	Len() int
}

// EventQueue is the in-memory Queue. Buffered events are delivered before
// close is observed, so a producer can enqueue its last events and close
// in one breath without racing the consumer.
type EventQueue struct {
	mu      sync.Mutex
	events  []protocol.Event
	waiters []chan protocol.Event
	closed  bool
}

// New creates an open, empty event queue.
func New() *EventQueue {
	return &EventQueue{}
}

// Enqueue appends an event, waking exactly one waiter if any is parked.
func (q *EventQueue) Enqueue(event protocol.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	// A waiter exists iff the queue was empty at its Dequeue call, so
	// hand the event straight over instead of buffering.
	if len(q.waiters) > 0 {
		w := q.waiters[0]
		q.waiters = q.waiters[1:]
		w <- event
		return
	}

	q.events = append(q.events, event)
}

// Dequeue pops the head event, blocking while the queue is open and empty.
func (q *EventQueue) Dequeue(ctx context.Context) (protocol.Event, bool) {
	q.mu.Lock()

	if len(q.events) > 0 {
		event := q.events[0]
		q.events = q.events[1:]
		q.mu.Unlock()
		return event, true
	}

	if q.closed {
		q.mu.Unlock()
		return nil, false
	}

	w := make(chan protocol.Event, 1)
	q.waiters = append(q.waiters, w)
	q.mu.Unlock()

	select {
	case event, ok := <-w:
		if !ok {
			return nil, false
		}
		return event, true
	case <-ctx.Done():
		q.removeWaiter(w)
		// The producer may have handed us an event in the window before
		// removal; do not lose it.
		select {
		case event, ok := <-w:
			if ok {
				return event, true
			}
		default:
		}
		return nil, false
	}
}

// removeWaiter unregisters a waiter that gave up.
func (q *EventQueue) removeWaiter(w chan protocol.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, existing := range q.waiters {
		if existing == w {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return
		}
	}
}

// Close resolves all pending waiters with "no event" and seals the queue.
func (q *EventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true

	for _, w := range q.waiters {
		close(w)
	}
	q.waiters = nil
}

// Len returns the number of buffered events.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// IsEmpty reports whether no events are buffered.
func (q *EventQueue) IsEmpty() bool {
	return q.Len() == 0
}

// Peek returns the head event without removing it.
func (q *EventQueue) Peek() (protocol.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return nil, false
	}
	return q.events[0], true
}
