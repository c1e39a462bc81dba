// Package stream owns the consumer side of the per-task event pipeline:
// one consumer drains a task's event queue and multiplexes it to any number
// of late subscribers with live-only semantics.
package stream

import (
	"context"
	"sync"

	"github.com/hamidra/a2alite/internal/protocol"
	"github.com/hamidra/a2alite/internal/queue"
)

/*
STREAM CONSUMER — ONE DRAIN, MANY TAPS

Exactly one consumer exists per task. It owns the task's event queue and a
set of tappers:

    EventQueue ──dequeue──> Consumer ──┬──> primary channel (Consume)
                                       ├──> tapper buffer ──> tap channel
                                       └──> tapper buffer ──> tap channel

Semantics:

  - The primary consumer sees every event exactly once, in FIFO order.
  - A tapper sees only events broadcast after its Tap call (live-only,
    no replay), each exactly once, in FIFO order.
  - The end-of-stream sentinel is the consumer's private exit cue; it is
    never forwarded to the primary channel or any tapper.
  - When the consumer exits (sentinel or abort), every tapper drains
    whatever it already buffered and then terminates; channels close as
    the Go rendering of "wake with no event".

Serialization: the consumer's mutex orders tapper registration against
event broadcast, so a tapper either sees an event or provably registered
after it — never a duplicate, never a tear.
*/

// Consumer drains one task's event queue and broadcasts to tappers.
type Consumer struct {
	taskID   string
	queue    queue.Queue
	sentinel func(protocol.Event) bool

	mu       sync.Mutex
	tappers  map[*tapper]struct{}
	running  bool
	finished bool

	onFinish func()
}

// newConsumer is called by the Manager, the single arbiter of
// one-consumer-per-task.
func newConsumer(taskID string, q queue.Queue, sentinel func(protocol.Event) bool, onFinish func()) *Consumer {
	if sentinel == nil {
		sentinel = protocol.IsEndOfStream
	}
	return &Consumer{
		taskID:   taskID,
		queue:    q,
		sentinel: sentinel,
		tappers:  make(map[*tapper]struct{}),
		onFinish: onFinish,
	}
}

// TaskID returns the task this consumer drains.
func (c *Consumer) TaskID() string { return c.taskID }

// Active reports whether the consumer has not yet terminated.
func (c *Consumer) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.finished
}

// Consume starts draining the queue and returns the primary event channel.
// Events arrive in FIFO order; the channel closes on sentinel or abort.
// Calling Consume on a consumer that is already running or finished is a
// no-op and returns a closed channel.
func (c *Consumer) Consume(ctx context.Context) <-chan protocol.Event {
	c.mu.Lock()
	if c.running || c.finished {
		c.mu.Unlock()
		return closedEventChan()
	}
	c.running = true
	c.mu.Unlock()

	out := make(chan protocol.Event)
	go c.run(ctx, out)
	return out
}

// run is the consumer loop: dequeue, exit on sentinel or abort, otherwise
// broadcast then yield to the primary channel.
func (c *Consumer) run(ctx context.Context, out chan<- protocol.Event) {
	defer func() {
		close(out)
		c.finish()
	}()

	for {
		event, ok := c.queue.Dequeue(ctx)
		if !ok {
			return // aborted or queue closed
		}
		if c.sentinel(event) {
			return
		}

		c.broadcast(event)

		select {
		case out <- event:
		case <-ctx.Done():
			return
		}
	}
}

// broadcast hands the event to every registered tapper.
func (c *Consumer) broadcast(event protocol.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for t := range c.tappers {
		t.push(event)
	}
}

// finish wakes all tappers with "no event", clears the set, and notifies
// the manager.
func (c *Consumer) finish() {
	c.mu.Lock()
	c.finished = true
	tappers := c.tappers
	c.tappers = make(map[*tapper]struct{})
	c.mu.Unlock()

	for t := range tappers {
		t.closeInput()
	}

	if c.onFinish != nil {
		c.onFinish()
	}
}

// Tap registers a late subscriber and returns its event channel. The
// subscriber receives only events broadcast after this call; the channel
// closes when the consumer terminates (after the tapper's buffer drains)
// or when ctx is canceled.
func (c *Consumer) Tap(ctx context.Context) <-chan protocol.Event {
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return closedEventChan()
	}
	t := newTapper(c)
	c.tappers[t] = struct{}{}
	c.mu.Unlock()

	go t.run(ctx)
	return t.out
}

// removeTapper drops a tapper that closed its iteration early.
func (c *Consumer) removeTapper(t *tapper) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tappers, t)
}

// closedEventChan returns a pre-closed channel for no-op iteration.
func closedEventChan() <-chan protocol.Event {
	ch := make(chan protocol.Event)
	close(ch)
	return ch
}

// tapper is one late subscriber: a local buffer plus a single waiter slot,
// drained by its own goroutine into out.
type tapper struct {
	consumer *Consumer
	out      chan protocol.Event

	mu     sync.Mutex
	buf    []protocol.Event
	closed bool
	wake   chan struct{}
}

func newTapper(c *Consumer) *tapper {
	return &tapper{
		consumer: c,
		out:      make(chan protocol.Event),
		wake:     make(chan struct{}, 1),
	}
}

// push appends an event to the buffer and fills the waiter slot.
func (t *tapper) push(event protocol.Event) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.buf = append(t.buf, event)
	t.mu.Unlock()

	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// closeInput marks the tapper's input finished; buffered events still drain.
func (t *tapper) closeInput() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// run yields buffered events in order, suspends when empty, and exits when
// the input is closed and drained or the subscriber's context ends.
func (t *tapper) run(ctx context.Context) {
	defer close(t.out)

	for {
		t.mu.Lock()
		if len(t.buf) > 0 {
			event := t.buf[0]
			t.buf = t.buf[1:]
			t.mu.Unlock()

			select {
			case t.out <- event:
				continue
			case <-ctx.Done():
				t.consumer.removeTapper(t)
				return
			}
		}
		closed := t.closed
		t.mu.Unlock()

		if closed {
			return
		}

		select {
		case <-t.wake:
		case <-ctx.Done():
			t.consumer.removeTapper(t)
			return
		}
	}
}
