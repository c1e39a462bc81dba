package execution

import (
	"github.com/hamidra/a2alite/internal/protocol"
	"github.com/hamidra/a2alite/internal/queue"
)

/*
TASK STREAM — PRODUCER SIDE OF THE PER-TASK EVENT PIPELINE

The agent writes through this handle inside a Stream(...) callback while
the handler that created it has already returned the initial task:

    agent callback ──> TaskStream ──> EventQueue ──> Stream Consumer ──> subscribers

State machine enforced here:

    submitted ──> working ──> working | terminal | pending
    terminal is absorbing; pending closes the stream (the task is resumed
    only by a fresh request referencing its id).

Every transition into a terminal state emits a status update with
final=true; nothing may follow it. Reaching a terminal or pending state
closes the stream and enqueues the end-of-stream sentinel, which the
consumer swallows as its exit cue — clients never see it. Producer calls
after that fail with ErrStreamTerminated.

Event order on the queue is exactly producer-call order: all emission
happens under the owning context's lock and the queue is FIFO.
*/

// ArtifactUpdate is one artifact chunk written to the stream. Append asks
// receivers (and the task record) to extend the artifact with the same id
// rather than replace it. SuppressStatus skips the implicit working status
// update when the artifact write is what moves the task to working.
type ArtifactUpdate struct {
	Artifact       protocol.Artifact
	Append         bool
	LastChunk      bool
	Metadata       map[string]any
	SuppressStatus bool
}

// TaskStream is the producer handle bound to one task. At most one exists
// per task id.
type TaskStream struct {
	ec     *Context
	queue  queue.Queue
	closed bool
}

// Queue exposes the event queue for the stream consumer.
func (s *TaskStream) Queue() queue.Queue { return s.queue }

// Task returns a snapshot of the stream's task.
func (s *TaskStream) Task() *protocol.Task { return s.ec.taskSnapshot() }

// Closed reports whether the stream has terminated.
func (s *TaskStream) Closed() bool {
	s.ec.mu.Lock()
	defer s.ec.mu.Unlock()
	return s.closed
}

// Start moves the task to working if it is not there yet, emitting a
// status update for the transition.
func (s *TaskStream) Start(update TaskUpdate) error {
	s.ec.mu.Lock()
	defer s.ec.mu.Unlock()

	if s.closed {
		return ErrStreamTerminated
	}
	if err := s.ensureWorkingLocked(update, true); err != nil {
		return err
	}
	s.terminateIfInterruptedLocked()
	return nil
}

// WriteArtifact emits exactly one artifact update, preceded by a working
// status update iff the task was not already working (and the update does
// not suppress it).
func (s *TaskStream) WriteArtifact(update ArtifactUpdate) error {
	s.ec.mu.Lock()
	defer s.ec.mu.Unlock()

	if s.closed {
		return ErrStreamTerminated
	}
	if err := s.ensureWorkingLocked(TaskUpdate{}, !update.SuppressStatus); err != nil {
		return err
	}

	applyArtifactUpdate(s.ec.task, update)

	s.queue.Enqueue(&protocol.TaskArtifactUpdateEvent{
		Kind:      protocol.KindArtifactUpdate,
		TaskID:    s.ec.task.ID,
		ContextID: s.ec.task.ContextID,
		Artifact:  update.Artifact,
		Append:    update.Append,
		LastChunk: update.LastChunk,
		Metadata:  update.Metadata,
	})

	s.terminateIfInterruptedLocked()
	return nil
}

// Complete transitions the task to completed and ends the stream.
func (s *TaskStream) Complete(update TaskUpdate) error {
	return s.transition(protocol.TaskStateCompleted, update)
}

// Reject transitions the task to rejected and ends the stream.
func (s *TaskStream) Reject(update TaskUpdate) error {
	return s.transition(protocol.TaskStateRejected, update)
}

// Fail transitions the task to failed and ends the stream.
func (s *TaskStream) Fail(update TaskUpdate) error {
	return s.transition(protocol.TaskStateFailed, update)
}

// Cancel transitions the task to canceled and ends the stream.
func (s *TaskStream) Cancel(update TaskUpdate) error {
	return s.transition(protocol.TaskStateCanceled, update)
}

// AuthRequired parks the task waiting for authorization and ends the stream.
func (s *TaskStream) AuthRequired(update TaskUpdate) error {
	return s.transition(protocol.TaskStateAuthRequired, update)
}

// InputRequired parks the task waiting for input and ends the stream.
func (s *TaskStream) InputRequired(update TaskUpdate) error {
	return s.transition(protocol.TaskStateInputRequired, update)
}

// transition applies a state change, emits its status update, and runs the
// terminate check.
func (s *TaskStream) transition(state protocol.TaskState, update TaskUpdate) error {
	s.ec.mu.Lock()
	defer s.ec.mu.Unlock()

	if s.closed {
		return ErrStreamTerminated
	}

	if _, err := s.ec.setOrUpdateLocked(state, update); err != nil {
		return err
	}

	s.queue.Enqueue(protocol.NewStatusUpdateEvent(s.ec.task, state.Terminal()))
	s.terminateIfInterruptedLocked()
	return nil
}

// ensureWorkingLocked transitions to working when the task is in another
// active state, optionally announcing it.
func (s *TaskStream) ensureWorkingLocked(update TaskUpdate, sendStatus bool) error {
	if s.ec.task.Status.State == protocol.TaskStateWorking {
		return nil
	}
	if _, err := s.ec.setOrUpdateLocked(protocol.TaskStateWorking, update); err != nil {
		return err
	}
	if sendStatus {
		s.queue.Enqueue(protocol.NewStatusUpdateEvent(s.ec.task, false))
	}
	return nil
}

// terminateIfInterruptedLocked closes the stream and enqueues the sentinel
// once the task reaches a terminal or pending state.
func (s *TaskStream) terminateIfInterruptedLocked() {
	if s.closed || !s.ec.task.Status.State.Interrupted() {
		return
	}
	s.closed = true
	s.queue.Enqueue(&protocol.EndOfStreamEvent{
		TaskID:    s.ec.task.ID,
		ContextID: s.ec.task.ContextID,
	})
}

// applyArtifactUpdate merges one artifact update into the task record:
// append parts when the flag is set and the artifact is known, replace the
// known artifact otherwise, and add unknown artifacts at the end.
func applyArtifactUpdate(task *protocol.Task, update ArtifactUpdate) {
	for i := range task.Artifacts {
		if task.Artifacts[i].ArtifactID != update.Artifact.ArtifactID {
			continue
		}
		if update.Append {
			task.Artifacts[i].Parts = append(task.Artifacts[i].Parts, update.Artifact.Parts...)
		} else {
			task.Artifacts[i] = update.Artifact
		}
		return
	}
	task.Artifacts = append(task.Artifacts, update.Artifact)
}
