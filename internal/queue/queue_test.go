package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hamidra/a2alite/internal/protocol"
)

func statusEvent(taskID string) protocol.Event {
	return &protocol.TaskStatusUpdateEvent{
		Kind:      protocol.KindStatusUpdate,
		TaskID:    taskID,
		ContextID: "ctx-1",
	}
}

func TestEventQueue_FIFO(t *testing.T) {
	q := New()

	q.Enqueue(statusEvent("t0"))
	q.Enqueue(statusEvent("t1"))
	q.Enqueue(statusEvent("t2"))

	if q.Len() != 3 {
		t.Fatalf("Len() = %v, want 3", q.Len())
	}

	for i, want := range []string{"t0", "t1", "t2"} {
		event, ok := q.Dequeue(context.Background())
		if !ok {
			t.Fatalf("Dequeue() #%d not ok", i)
		}
		if event.EventTaskID() != want {
			t.Errorf("Dequeue() #%d task = %v, want %v", i, event.EventTaskID(), want)
		}
	}
}

func TestEventQueue_BlockingDequeue(t *testing.T) {
	q := New()

	got := make(chan protocol.Event, 1)
	go func() {
		event, ok := q.Dequeue(context.Background())
		if ok {
			got <- event
		}
		close(got)
	}()

	// Give the consumer a moment to park.
	time.Sleep(10 * time.Millisecond)
	q.Enqueue(statusEvent("t0"))

	select {
	case event := <-got:
		if event.EventTaskID() != "t0" {
			t.Errorf("Dequeue() task = %v, want t0", event.EventTaskID())
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue() did not wake on Enqueue")
	}
}

func TestEventQueue_CloseDrainsWaiters(t *testing.T) {
	q := New()

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Dequeue(context.Background())
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Dequeue() after Close = ok, want no event")
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue() did not wake on Close")
	}
}

func TestEventQueue_EnqueueAfterCloseDropped(t *testing.T) {
	q := New()
	q.Close()
	q.Enqueue(statusEvent("t0"))

	if q.Len() != 0 {
		t.Errorf("Len() after enqueue-on-closed = %v, want 0", q.Len())
	}
	if _, ok := q.Dequeue(context.Background()); ok {
		t.Error("Dequeue() on closed empty queue = ok, want no event")
	}
}

func TestEventQueue_BufferedEventsSurviveClose(t *testing.T) {
	q := New()
	q.Enqueue(statusEvent("t0"))
	q.Close()

	event, ok := q.Dequeue(context.Background())
	if !ok || event.EventTaskID() != "t0" {
		t.Errorf("Dequeue() = %v, %v, want buffered event t0", event, ok)
	}
	if _, ok := q.Dequeue(context.Background()); ok {
		t.Error("second Dequeue() = ok, want no event")
	}
}

func TestEventQueue_CloseIdempotent(t *testing.T) {
	q := New()
	q.Close()
	q.Close()
}

func TestEventQueue_DequeueContextCanceled(t *testing.T) {
	q := New()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Dequeue(ctx)
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case ok := <-done:
		if ok {
			t.Error("Dequeue() after cancel = ok, want no event")
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue() did not wake on cancel")
	}

	// The queue stays usable for other consumers.
	q.Enqueue(statusEvent("t0"))
	if event, ok := q.Dequeue(context.Background()); !ok || event.EventTaskID() != "t0" {
		t.Errorf("Dequeue() after canceled waiter = %v, %v, want t0", event, ok)
	}
}

func TestEventQueue_EachEnqueueWakesOneWaiter(t *testing.T) {
	q := New()

	const waiters = 4
	var wg sync.WaitGroup
	results := make(chan protocol.Event, waiters)

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if event, ok := q.Dequeue(context.Background()); ok {
				results <- event
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	for i := 0; i < waiters; i++ {
		q.Enqueue(statusEvent("t0"))
	}
	wg.Wait()
	close(results)

	count := 0
	for range results {
		count++
	}
	if count != waiters {
		t.Errorf("delivered events = %v, want %v", count, waiters)
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %v, want 0", q.Len())
	}
}
