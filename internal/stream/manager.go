package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hamidra/a2alite/internal/protocol"
	"github.com/hamidra/a2alite/internal/queue"
)

// ErrConsumerExists signals an attempt to create a second consumer for a
// task id. Per task there is at most one producer and one consumer; a
// violation is a programming error surfaced synchronously.
var ErrConsumerExists = errors.New("a consumer already exists for this task")

// Manager maps task ids to their stream consumers and arbitrates the
// at-most-one-consumer invariant. It is safe for concurrent use by
// handlers scheduled in parallel.
type Manager struct {
	mu        sync.Mutex
	consumers map[string]*Consumer
}

// NewManager creates an empty consumer manager.
func NewManager() *Manager {
	return &Manager{consumers: make(map[string]*Consumer)}
}

// CreateConsumer registers a new consumer for the task. It fails when one
// already exists.
func (m *Manager) CreateConsumer(taskID string, q queue.Queue, sentinel func(protocol.Event) bool) (*Consumer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.consumers[taskID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrConsumerExists, taskID)
	}

	c := newConsumer(taskID, q, sentinel, func() { m.Remove(taskID) })
	m.consumers[taskID] = c
	return c, nil
}

// TapOrConsume returns a tap on the task's existing consumer, or creates
// the consumer and returns its primary channel. The first subscriber of a
// streaming task becomes the drain; later ones are live-only tappers.
func (m *Manager) TapOrConsume(ctx context.Context, taskID string, q queue.Queue, sentinel func(protocol.Event) bool) (<-chan protocol.Event, error) {
	m.mu.Lock()
	if c, ok := m.consumers[taskID]; ok {
		m.mu.Unlock()
		return c.Tap(ctx), nil
	}

	c := newConsumer(taskID, q, sentinel, func() { m.Remove(taskID) })
	m.consumers[taskID] = c
	m.mu.Unlock()

	return c.Consume(ctx), nil
}

// Get fetches the consumer for a task id if present.
func (m *Manager) Get(taskID string) (*Consumer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.consumers[taskID]
	return c, ok
}

// Remove evicts the consumer for a task id.
func (m *Manager) Remove(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.consumers, taskID)
}

// Count returns the number of registered consumers.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.consumers)
}
