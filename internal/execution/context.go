package execution

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hamidra/a2alite/internal/builder"
	"github.com/hamidra/a2alite/internal/protocol"
	"github.com/hamidra/a2alite/internal/queue"
)

// Execution context errors.
var (
	ErrStreamAlreadyCreated = errors.New("a task stream was already created for this context")
	ErrStreamTerminated     = errors.New("stream already terminated")
)

// MessageParams is the agent-supplied portion of a reply message. The
// runtime fills in identity, role and correlation.
type MessageParams struct {
	Parts    []protocol.Part
	Metadata map[string]any
}

// StatusMessage is the agent-supplied portion of a status message.
type StatusMessage struct {
	Parts    []protocol.Part
	Metadata map[string]any
}

// TaskUpdate is the payload of a task state transition: an optional status
// message and artifacts to merge into the task.
type TaskUpdate struct {
	Message   *StatusMessage
	Artifacts []protocol.Artifact
	Metadata  map[string]any
}

// Context is the per-request handle the agent executes against. It owns the
// current task (if any), the resolved reference tasks, and the constructors
// for terminal, pending and streaming results. One context exists per
// incoming message/send or message/stream and is discarded after the agent
// returns.
type Context struct {
	mu sync.Mutex

	req            *Request
	contextID      string
	task           *protocol.Task
	referenceTasks []*protocol.Task

	stream *TaskStream
}

// Config carries what the handler resolved before invoking the agent.
type Config struct {
	Request        *Request
	CurrentTask    *protocol.Task
	ReferenceTasks []*protocol.Task

	// ContextID is the transport-supplied correlation id, used only when
	// neither the current task nor the inbound message carries one.
	ContextID string
}

// NewContext builds an execution context. The effective context id is
// resolved as task.contextId, else message.contextId, else the supplied id,
// else freshly generated.
func NewContext(cfg Config) *Context {
	contextID := cfg.ContextID
	if cfg.Request != nil && cfg.Request.Params.Message.ContextID != "" {
		contextID = cfg.Request.Params.Message.ContextID
	}
	if cfg.CurrentTask != nil && cfg.CurrentTask.ContextID != "" {
		contextID = cfg.CurrentTask.ContextID
	}
	if contextID == "" {
		contextID = uuid.NewString()
	}

	c := &Context{
		req:            cfg.Request,
		contextID:      contextID,
		task:           cfg.CurrentTask.Clone(),
		referenceTasks: cfg.ReferenceTasks,
	}
	// A request resuming an existing task lands its inbound message in the
	// task history right away; for a fresh request the history entry is
	// written when the first producer call creates the task.
	if c.task != nil {
		c.recordInboundMessageLocked()
	}
	return c
}

// Request returns the inbound agent request.
func (c *Context) Request() *Request { return c.req }

// ContextID returns the stable correlation id for this request.
func (c *Context) ContextID() string { return c.contextID }

// CurrentTask returns a snapshot of the current task, or nil when the
// request is not bound to a task yet.
func (c *Context) CurrentTask() *protocol.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.task.Clone()
}

// ReferenceTasks returns the tasks resolved from the message's
// referenceTaskIds. Ids that resolved to nothing were silently elided.
func (c *Context) ReferenceTasks() []*protocol.Task { return c.referenceTasks }

// Message materializes an agent reply message inheriting the context id
// and, when a current task exists, its task id.
func (c *Context) Message(params MessageParams) (*protocol.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buildMessageLocked(params.Parts, params.Metadata)
}

// Complete sets or updates the current task to completed.
func (c *Context) Complete(update TaskUpdate) (*protocol.Task, error) {
	return c.transition(protocol.TaskStateCompleted, update)
}

// Reject sets or updates the current task to rejected.
func (c *Context) Reject(update TaskUpdate) (*protocol.Task, error) {
	return c.transition(protocol.TaskStateRejected, update)
}

// AuthRequired sets or updates the current task to auth-required.
func (c *Context) AuthRequired(update TaskUpdate) (*protocol.Task, error) {
	return c.transition(protocol.TaskStateAuthRequired, update)
}

// InputRequired sets or updates the current task to input-required.
func (c *Context) InputRequired(update TaskUpdate) (*protocol.Task, error) {
	return c.transition(protocol.TaskStateInputRequired, update)
}

// Stream moves the current task into initialState (submitted when the
// request created the task, working when resuming; both Active states are
// accepted), creates the task stream, and invokes callback with it without
// awaiting. It returns immediately with the initial task snapshot.
//
// At most one stream may be created per context; a second call is a
// programming error and fails synchronously.
func (c *Context) Stream(callback func(*TaskStream), initialState ...protocol.TaskState) (*StreamResult, error) {
	c.mu.Lock()

	if c.stream != nil {
		c.mu.Unlock()
		return nil, ErrStreamAlreadyCreated
	}

	state := protocol.TaskStateSubmitted
	if c.task != nil {
		state = protocol.TaskStateWorking
	}
	if len(initialState) > 0 {
		state = initialState[0]
	}
	if !state.Active() {
		c.mu.Unlock()
		return nil, fmt.Errorf("initial stream state must be submitted or working, got %q", state)
	}

	if _, err := c.setOrUpdateLocked(state, TaskUpdate{}); err != nil {
		c.mu.Unlock()
		return nil, err
	}

	stream := &TaskStream{ec: c, queue: queue.New()}
	c.stream = stream
	task := c.task.Clone()
	c.mu.Unlock()

	// Fire and forget: the producer runs concurrently with the handler
	// returning the initial task. Hand-off happens only via the queue.
	go callback(stream)

	return &StreamResult{Task: task, Stream: stream}, nil
}

// transition applies setOrUpdate under the context lock.
func (c *Context) transition(state protocol.TaskState, update TaskUpdate) (*protocol.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setOrUpdateLocked(state, update)
}

// setOrUpdateLocked creates the current task on first use or updates it in
// place: artifacts merge by concatenation, status is replaced whole with a
// fresh timestamp, and an update message becomes status.message bound to
// the task id.
func (c *Context) setOrUpdateLocked(state protocol.TaskState, update TaskUpdate) (*protocol.Task, error) {
	if c.task == nil {
		task, err := builder.NewTask().
			ContextID(c.contextID).
			State(state).
			Metadata(update.Metadata).
			Build()
		if err != nil {
			return nil, err
		}
		c.task = task
		c.recordInboundMessageLocked()
	} else {
		now := time.Now().UTC()
		c.task.Status = protocol.TaskStatus{State: state, Timestamp: &now}
	}

	c.task.Artifacts = append(c.task.Artifacts, update.Artifacts...)

	if update.Message != nil {
		msg, err := c.buildMessageLocked(update.Message.Parts, update.Message.Metadata)
		if err != nil {
			return nil, err
		}
		c.task.Status.Message = msg
		c.task.History = append(c.task.History, *msg)
	}

	return c.task.Clone(), nil
}

// buildMessageLocked materializes an agent message carrying the context's
// correlation and, when a task exists, its id.
func (c *Context) buildMessageLocked(parts []protocol.Part, md map[string]any) (*protocol.Message, error) {
	mb := builder.NewMessage().
		Role(protocol.RoleAgent).
		Parts(parts...).
		ContextID(c.contextID).
		Metadata(md)
	if c.task != nil {
		mb.TaskID(c.task.ID)
	}
	return mb.Build()
}

// recordInboundMessageLocked appends the inbound user message to the current
// task's history (a task created by this request or the one it resumes),
// stamped with that task's identity.
func (c *Context) recordInboundMessageLocked() {
	if c.req == nil || len(c.req.Params.Message.Parts) == 0 {
		return
	}
	inbound := c.req.Params.Message
	inbound.Kind = protocol.KindMessage
	if inbound.MessageID == "" {
		inbound.MessageID = uuid.NewString()
	}
	inbound.ContextID = c.contextID
	inbound.TaskID = c.task.ID
	c.task.History = append(c.task.History, inbound)
}

// taskSnapshot is used by the task stream, which shares the context lock.
func (c *Context) taskSnapshot() *protocol.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.task.Clone()
}
