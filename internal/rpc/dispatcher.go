// Package rpc routes validated JSON-RPC requests to the seven A2A method
// handlers and maps their outcomes to single responses or response streams.
package rpc

import (
	"context"
	"sync"

	"github.com/hamidra/a2alite/internal/logger"
	"github.com/hamidra/a2alite/internal/protocol"
)

// Result is a handler outcome: exactly one of Response (single) or Stream
// (a sequence of response frames, closed by the handler) is set.
type Result struct {
	Response *protocol.Response
	Stream   <-chan *protocol.Response
}

// HandlerFunc processes one validated request. The dispatcher guarantees
// the request's method matched the registration.
type HandlerFunc func(ctx context.Context, req *protocol.Request) *Result

// Dispatcher is pure routing: method name to typed handler. It does not
// parse JSON-RPC envelopes; callers hand it validated requests.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

// Register binds a method name to its handler, replacing any previous
// binding.
func (d *Dispatcher) Register(method string, handler HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[method] = handler
}

// Methods returns the registered method names.
func (d *Dispatcher) Methods() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	methods := make([]string, 0, len(d.handlers))
	for m := range d.handlers {
		methods = append(methods, m)
	}
	return methods
}

// Dispatch routes the request. An unknown method yields a MethodNotFound
// response; a handler panic yields an InternalError response.
func (d *Dispatcher) Dispatch(ctx context.Context, req *protocol.Request) (result *Result) {
	d.mu.RLock()
	handler, ok := d.handlers[req.Method]
	d.mu.RUnlock()

	if !ok {
		return &Result{Response: protocol.NewErrorResponse(req.ID, protocol.ErrMethodNotFound(req.Method))}
	}

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "handler panic", "method", req.Method, "panic", r)
			result = &Result{Response: protocol.NewErrorResponse(req.ID, protocol.ErrInternal("unexpected failure"))}
		}
	}()

	return handler(ctx, req)
}
