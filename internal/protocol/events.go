package protocol

// Event is a stream event produced for a task: a status update, an artifact
// update, or the internal end-of-stream sentinel.
type Event interface {
	EventKind() string
	EventTaskID() string
	EventContextID() string
}

// TaskStatusUpdateEvent announces a task state transition. Final is true
// exactly when the new state is terminal; no protocol event follows a final
// status update for the same task.
type TaskStatusUpdateEvent struct {
	Kind      string         `json:"kind"`
	TaskID    string         `json:"taskId"`
	ContextID string         `json:"contextId"`
	Status    TaskStatus     `json:"status"`
	Final     bool           `json:"final"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewStatusUpdateEvent builds a status update for the given task snapshot.
func NewStatusUpdateEvent(task *Task, final bool) *TaskStatusUpdateEvent {
	return &TaskStatusUpdateEvent{
		Kind:      KindStatusUpdate,
		TaskID:    task.ID,
		ContextID: task.ContextID,
		Status:    task.Status,
		Final:     final,
	}
}

func (e *TaskStatusUpdateEvent) EventKind() string      { return KindStatusUpdate }
func (e *TaskStatusUpdateEvent) EventTaskID() string    { return e.TaskID }
func (e *TaskStatusUpdateEvent) EventContextID() string { return e.ContextID }

// TaskArtifactUpdateEvent carries one artifact chunk. Append asks the
// receiver to extend an artifact it has already seen under the same
// artifactId instead of replacing it.
type TaskArtifactUpdateEvent struct {
	Kind      string         `json:"kind"`
	TaskID    string         `json:"taskId"`
	ContextID string         `json:"contextId"`
	Artifact  Artifact       `json:"artifact"`
	Append    bool           `json:"append,omitempty"`
	LastChunk bool           `json:"lastChunk,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (e *TaskArtifactUpdateEvent) EventKind() string      { return KindArtifactUpdate }
func (e *TaskArtifactUpdateEvent) EventTaskID() string    { return e.TaskID }
func (e *TaskArtifactUpdateEvent) EventContextID() string { return e.ContextID }

// EndOfStreamEvent is the sentinel the task stream enqueues after its last
// event. It terminates the stream consumer and is never surfaced to clients.
type EndOfStreamEvent struct {
	TaskID    string
	ContextID string
}

func (e *EndOfStreamEvent) EventKind() string      { return "end-of-stream" }
func (e *EndOfStreamEvent) EventTaskID() string    { return e.TaskID }
func (e *EndOfStreamEvent) EventContextID() string { return e.ContextID }

// IsEndOfStream reports whether the event is the internal sentinel.
func IsEndOfStream(e Event) bool {
	_, ok := e.(*EndOfStreamEvent)
	return ok
}
