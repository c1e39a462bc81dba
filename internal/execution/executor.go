// Package execution is the boundary between the runtime and the embedder's
// agent: the per-request execution context, the producer-side task stream,
// and the result values a handler interprets.
package execution

import (
	"context"

	"github.com/hamidra/a2alite/internal/protocol"
)

// AgentExecutor is the single extension point for agent business logic.
// Execute receives the per-request execution context and returns one of the
// sealed Result values; Cancel is asked to move a task to canceled and may
// refuse with a protocol error such as TaskNotCancelable.
type AgentExecutor interface {
	Execute(ctx context.Context, ec *Context) (Result, error)
	Cancel(ctx context.Context, task *protocol.Task) (*protocol.Task, error)
}

// Request is the inbound agent request: the message/send parameters plus an
// opaque extension map the transport may attach.
type Request struct {
	Params     protocol.MessageSendParams
	Extensions map[string]any
}

// Result is the closed set of values an agent execution can produce. The
// handler interprets it into a protocol response or a response stream.
type Result interface {
	isResult()
}

// MessageResult carries a direct reply with no task involved.
type MessageResult struct {
	Message *protocol.Message
}

// TaskResult carries a finished (terminal or pending) task snapshot.
type TaskResult struct {
	Task *protocol.Task
}

// StreamResult carries the initial task snapshot and the producer stream
// the agent keeps writing to.
type StreamResult struct {
	Task   *protocol.Task
	Stream *TaskStream
}

// ErrorResult carries a protocol error chosen by the agent.
type ErrorResult struct {
	Err *protocol.Error
}

func (*MessageResult) isResult() {}
func (*TaskResult) isResult()    {}
func (*StreamResult) isResult()  {}
func (*ErrorResult) isResult()   {}
