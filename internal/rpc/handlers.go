package rpc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hamidra/a2alite/internal/execution"
	"github.com/hamidra/a2alite/internal/logger"
	"github.com/hamidra/a2alite/internal/metrics"
	"github.com/hamidra/a2alite/internal/protocol"
	"github.com/hamidra/a2alite/internal/stream"
	"github.com/hamidra/a2alite/internal/taskstore"
)

// streamFrameBuffer is the channel buffer for outgoing response frames.
const streamFrameBuffer = 8

type extensionsKey struct{}

// WithExtensions attaches an opaque extension map the transport derived
// from the request (headers, auth scope) for the agent to read.
func WithExtensions(ctx context.Context, ext map[string]any) context.Context {
	return context.WithValue(ctx, extensionsKey{}, ext)
}

// ExtensionsFrom returns the transport extension map, or nil.
func ExtensionsFrom(ctx context.Context) map[string]any {
	ext, _ := ctx.Value(extensionsKey{}).(map[string]any)
	return ext
}

// Handlers implements the seven A2A methods. Each handler resolves
// referenced tasks, invokes the agent executor, persists resulting tasks,
// and wires streams through the consumer manager.
type Handlers struct {
	store    taskstore.Store
	streams  *stream.Manager
	executor execution.AgentExecutor
	taskTTL  time.Duration // retention of finished tasks; 0 keeps forever
}

// NewHandlers creates the handler set.
func NewHandlers(store taskstore.Store, streams *stream.Manager, executor execution.AgentExecutor, taskTTL time.Duration) *Handlers {
	return &Handlers{
		store:    store,
		streams:  streams,
		executor: executor,
		taskTTL:  taskTTL,
	}
}

// Register binds every A2A method on the dispatcher.
func (h *Handlers) Register(d *Dispatcher) {
	d.Register(protocol.MethodMessageSend, h.MessageSend)
	d.Register(protocol.MethodMessageStream, h.MessageStream)
	d.Register(protocol.MethodTasksGet, h.TasksGet)
	d.Register(protocol.MethodTasksCancel, h.TasksCancel)
	d.Register(protocol.MethodTasksResubscribe, h.TasksResubscribe)
	d.Register(protocol.MethodPushNotificationConfigSet, h.PushNotificationConfigSet)
	d.Register(protocol.MethodPushNotificationConfigGet, h.PushNotificationConfigGet)
}

// MessageSend handles message/send: run the agent and answer with a single
// message or task. A streaming agent is drained in the background and the
// initial task returned.
func (h *Handlers) MessageSend(ctx context.Context, req *protocol.Request) *Result {
	var params protocol.MessageSendParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResult(req.ID, protocol.ErrInvalidParams(err.Error()))
	}

	ec, rpcErr := h.buildContext(ctx, &params)
	if rpcErr != nil {
		return errorResult(req.ID, rpcErr)
	}

	result, err := h.executor.Execute(ctx, ec)
	if err != nil {
		return errorResult(req.ID, agentError(err))
	}

	switch r := result.(type) {
	case *execution.MessageResult:
		if r.Message == nil {
			return errorResult(req.ID, protocol.ErrInvalidAgentResponse("message result carries no message"))
		}
		return singleResult(req.ID, r.Message)

	case *execution.TaskResult:
		if r.Task == nil {
			return errorResult(req.ID, protocol.ErrInvalidAgentResponse("task result carries no task"))
		}
		h.persistTask(ctx, r.Task)
		return singleResult(req.ID, trimForResponse(r.Task, params.Configuration))

	case *execution.ErrorResult:
		return errorResult(req.ID, r.Err)

	case *execution.StreamResult:
		task, rpcErr := h.checkStreamResult(ec, r)
		if rpcErr != nil {
			return errorResult(req.ID, rpcErr)
		}

		// Persist the initial snapshot so tasks/get sees the task while
		// the agent is still streaming.
		h.persistTask(ctx, task)

		// Without a streaming caller the events still need a drain:
		// consume in the background so the sentinel is reached and the
		// consumer unregisters. Later resubscribers tap this consumer.
		if _, exists := h.streams.Get(task.ID); !exists {
			h.drainInBackground(r.Stream, task.ID)
		}

		return singleResult(req.ID, trimForResponse(task, params.Configuration))

	default:
		return errorResult(req.ID, protocol.ErrInvalidAgentResponse("agent returned no result"))
	}
}

// MessageStream handles message/stream: the initial task frame followed by
// every stream event, each as its own JSON-RPC result frame.
func (h *Handlers) MessageStream(ctx context.Context, req *protocol.Request) *Result {
	out := make(chan *protocol.Response, streamFrameBuffer)

	go func() {
		defer close(out)

		var params protocol.MessageSendParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			out <- protocol.NewErrorResponse(req.ID, protocol.ErrInvalidParams(err.Error()))
			return
		}

		ec, rpcErr := h.buildContext(ctx, &params)
		if rpcErr != nil {
			out <- protocol.NewErrorResponse(req.ID, rpcErr)
			return
		}

		result, err := h.executor.Execute(ctx, ec)
		if err != nil {
			out <- protocol.NewErrorResponse(req.ID, agentError(err))
			return
		}

		switch r := result.(type) {
		case *execution.MessageResult:
			if r.Message == nil {
				out <- protocol.NewErrorResponse(req.ID, protocol.ErrInvalidAgentResponse("message result carries no message"))
				return
			}
			out <- protocol.NewResponse(req.ID, r.Message)

		case *execution.TaskResult:
			if r.Task == nil {
				out <- protocol.NewErrorResponse(req.ID, protocol.ErrInvalidAgentResponse("task result carries no task"))
				return
			}
			h.persistTask(ctx, r.Task)
			out <- protocol.NewResponse(req.ID, trimForResponse(r.Task, params.Configuration))

		case *execution.ErrorResult:
			out <- protocol.NewErrorResponse(req.ID, r.Err)

		case *execution.StreamResult:
			task, rpcErr := h.checkStreamResult(ec, r)
			if rpcErr != nil {
				out <- protocol.NewErrorResponse(req.ID, rpcErr)
				return
			}

			h.persistTask(ctx, task)

			// The initial task precedes every stream event for the task.
			out <- protocol.NewResponse(req.ID, trimForResponse(task, params.Configuration))

			events, err := h.streams.TapOrConsume(ctx, task.ID, r.Stream.Queue(), nil)
			if err != nil {
				out <- protocol.NewErrorResponse(req.ID, sanitizeError(err, "stream"))
				return
			}
			metrics.RecordConsumerStart()
			defer metrics.RecordConsumerEnd()

			for event := range events {
				h.persistOnEvent(ctx, r.Stream, event)
				metrics.RecordStreamEvent(event.EventKind())
				out <- protocol.NewResponse(req.ID, event)
			}

		default:
			out <- protocol.NewErrorResponse(req.ID, protocol.ErrInvalidAgentResponse("agent returned no result"))
		}
	}()

	return &Result{Stream: out}
}

// TasksGet handles tasks/get.
func (h *Handlers) TasksGet(ctx context.Context, req *protocol.Request) *Result {
	var params protocol.TaskQueryParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResult(req.ID, protocol.ErrInvalidParams(err.Error()))
	}

	task, err := h.store.Get(ctx, params.ID)
	if err != nil {
		return errorResult(req.ID, sanitizeError(err, "load task"))
	}
	if task == nil {
		return errorResult(req.ID, protocol.ErrTaskNotFound(params.ID))
	}

	if params.HistoryLength != nil {
		task = task.TrimHistory(*params.HistoryLength)
	}
	return singleResult(req.ID, task)
}

// TasksCancel handles tasks/cancel by delegating to the agent executor,
// which alone decides whether the task can move to canceled.
func (h *Handlers) TasksCancel(ctx context.Context, req *protocol.Request) *Result {
	var params protocol.TaskIDParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResult(req.ID, protocol.ErrInvalidParams(err.Error()))
	}

	task, err := h.store.Get(ctx, params.ID)
	if err != nil {
		return errorResult(req.ID, sanitizeError(err, "load task"))
	}
	if task == nil {
		return errorResult(req.ID, protocol.ErrTaskNotFound(params.ID))
	}

	updated, err := h.executor.Cancel(ctx, task)
	if err != nil {
		return errorResult(req.ID, agentError(err))
	}
	if updated == nil {
		return errorResult(req.ID, protocol.ErrInvalidAgentResponse("cancel returned no task"))
	}

	h.persistTask(ctx, updated)
	logger.InfoContext(ctx, "task canceled", "task_id", updated.ID)
	return singleResult(req.ID, updated)
}

// TasksResubscribe handles tasks/resubscribe: a live-only tap on the
// task's active consumer. There is no replay; a finished task has no
// event sequence left to join.
func (h *Handlers) TasksResubscribe(ctx context.Context, req *protocol.Request) *Result {
	var params protocol.TaskIDParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResult(req.ID, protocol.ErrInvalidParams(err.Error()))
	}

	task, err := h.store.Get(ctx, params.ID)
	if err != nil {
		return errorResult(req.ID, sanitizeError(err, "load task"))
	}
	if task == nil {
		return errorResult(req.ID, protocol.ErrTaskNotFound(params.ID))
	}

	consumer, ok := h.streams.Get(params.ID)
	if !ok || !consumer.Active() {
		return errorResult(req.ID, &protocol.Error{
			Code:    protocol.CodeTaskNotFound,
			Message: "Task not found: task is not active",
			Data:    params.ID,
		})
	}

	events := consumer.Tap(ctx)
	out := make(chan *protocol.Response, streamFrameBuffer)
	go func() {
		defer close(out)
		for event := range events {
			metrics.RecordStreamEvent(event.EventKind())
			out <- protocol.NewResponse(req.ID, event)
		}
	}()
	return &Result{Stream: out}
}

// PushNotificationConfigSet echoes the config back with credentials
// stripped. Push delivery itself is not part of this runtime.
func (h *Handlers) PushNotificationConfigSet(ctx context.Context, req *protocol.Request) *Result {
	var params protocol.TaskPushNotificationConfig
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResult(req.ID, protocol.ErrInvalidParams(err.Error()))
	}

	task, err := h.store.Get(ctx, params.TaskID)
	if err != nil {
		return errorResult(req.ID, sanitizeError(err, "load task"))
	}
	if task == nil {
		return errorResult(req.ID, protocol.ErrTaskNotFound(params.TaskID))
	}

	echo := params
	if echo.PushNotificationConfig.Authentication != nil {
		// Schemes are retained; credentials never leave the server.
		masked := *echo.PushNotificationConfig.Authentication
		masked.Credentials = ""
		echo.PushNotificationConfig.Authentication = &masked
	}
	return singleResult(req.ID, echo)
}

// PushNotificationConfigGet always reports push notifications unsupported.
func (h *Handlers) PushNotificationConfigGet(ctx context.Context, req *protocol.Request) *Result {
	var params protocol.TaskIDParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResult(req.ID, protocol.ErrInvalidParams(err.Error()))
	}

	task, err := h.store.Get(ctx, params.ID)
	if err != nil {
		return errorResult(req.ID, sanitizeError(err, "load task"))
	}
	if task == nil {
		return errorResult(req.ID, protocol.ErrTaskNotFound(params.ID))
	}

	return errorResult(req.ID, protocol.ErrPushNotificationNotSupported())
}

// buildContext resolves the current and referenced tasks and assembles the
// execution context for the agent.
func (h *Handlers) buildContext(ctx context.Context, params *protocol.MessageSendParams) (*execution.Context, *protocol.Error) {
	var current *protocol.Task
	if params.Message.TaskID != "" {
		task, err := h.store.Get(ctx, params.Message.TaskID)
		if err != nil {
			return nil, sanitizeError(err, "load task")
		}
		if task == nil {
			return nil, protocol.ErrTaskNotFound(params.Message.TaskID)
		}
		current = task
	}

	// Missing reference ids are silently elided.
	var refs []*protocol.Task
	for _, id := range params.Message.ReferenceTaskIDs {
		task, err := h.store.Get(ctx, id)
		if err != nil {
			return nil, sanitizeError(err, "load task")
		}
		if task != nil {
			refs = append(refs, task)
		}
	}

	return execution.NewContext(execution.Config{
		Request: &execution.Request{
			Params:     *params,
			Extensions: ExtensionsFrom(ctx),
		},
		CurrentTask:    current,
		ReferenceTasks: refs,
	}), nil
}

// checkStreamResult verifies the agent's stream result is bound to the
// context's task.
func (h *Handlers) checkStreamResult(ec *execution.Context, r *execution.StreamResult) (*protocol.Task, *protocol.Error) {
	if r.Stream == nil || r.Task == nil {
		return nil, protocol.ErrInvalidAgentResponse("stream result carries no stream")
	}
	current := ec.CurrentTask()
	if current == nil || r.Task.ID != current.ID || r.Task.ContextID != current.ContextID {
		return nil, protocol.ErrInvalidAgentResponse("stream task does not match the current task")
	}
	return r.Task, nil
}

// drainInBackground creates the task's consumer and drains it so that the
// sentinel is reached and cleanup happens even with no subscriber. A
// resubscriber arriving later taps this consumer.
func (h *Handlers) drainInBackground(ts *execution.TaskStream, taskID string) {
	consumer, err := h.streams.CreateConsumer(taskID, ts.Queue(), nil)
	if err != nil {
		// A concurrent subscriber won the race; its consumer drains.
		return
	}

	metrics.RecordConsumerStart()
	go func() {
		defer metrics.RecordConsumerEnd()
		// Detached from the request: the producer outlives the handler.
		events := consumer.Consume(context.Background())
		for event := range events {
			h.persistOnEvent(context.Background(), ts, event)
		}
	}()
}

// persistOnEvent keeps the store in step with the stream: every event
// persists the current task snapshot, and status updates feed the
// transition metrics.
func (h *Handlers) persistOnEvent(ctx context.Context, ts *execution.TaskStream, event protocol.Event) {
	if status, ok := event.(*protocol.TaskStatusUpdateEvent); ok {
		metrics.RecordTaskTransition(string(status.Status.State))
	}
	h.persistTask(ctx, ts.Task())
}

// persistTask writes the task snapshot, applying the retention TTL once
// the task is finished (terminal or pending).
func (h *Handlers) persistTask(ctx context.Context, task *protocol.Task) {
	if task == nil {
		return
	}
	var ttl time.Duration
	if task.Status.State.Interrupted() {
		ttl = h.taskTTL
	}
	if err := h.store.Set(ctx, task.ID, task, ttl); err != nil {
		logger.ErrorContext(ctx, "failed to persist task", "task_id", task.ID, "error", err)
	}
}

// trimForResponse applies the caller's requested history length.
func trimForResponse(task *protocol.Task, cfg *protocol.MessageSendConfiguration) *protocol.Task {
	if cfg == nil || cfg.HistoryLength == nil {
		return task
	}
	return task.TrimHistory(*cfg.HistoryLength)
}

func singleResult(id, result any) *Result {
	return &Result{Response: protocol.NewResponse(id, result)}
}

func errorResult(id any, err *protocol.Error) *Result {
	return &Result{Response: protocol.NewErrorResponse(id, err)}
}
