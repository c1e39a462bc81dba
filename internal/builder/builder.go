// Package builder constructs Task, Message and Artifact values through
// fluent builders. Shape validation happens only at Build time; builders
// never perform I/O.
package builder

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hamidra/a2alite/internal/protocol"
)

// Build-time validation errors.
var (
	ErrMissingContextID = errors.New("task requires a non-empty contextId")
	ErrNoParts          = errors.New("message requires at least one part")
)

// TaskBuilder assembles a task. Zero or more setters followed by Build.
type TaskBuilder struct {
	task protocol.Task
}

// NewTask starts a task builder. The task id is auto-assigned when not set.
func NewTask() *TaskBuilder {
	return &TaskBuilder{task: protocol.Task{Kind: protocol.KindTask}}
}

// ID sets the task id.
func (b *TaskBuilder) ID(id string) *TaskBuilder {
	b.task.ID = id
	return b
}

// ContextID sets the correlation scope. Required at Build time.
func (b *TaskBuilder) ContextID(id string) *TaskBuilder {
	b.task.ContextID = id
	return b
}

// State sets the initial state. The status timestamp is stamped at Build.
func (b *TaskBuilder) State(state protocol.TaskState) *TaskBuilder {
	b.task.Status.State = state
	return b
}

// StatusMessage attaches the agent message explaining the current status.
func (b *TaskBuilder) StatusMessage(msg *protocol.Message) *TaskBuilder {
	b.task.Status.Message = msg
	return b
}

// Artifacts appends artifacts in order.
func (b *TaskBuilder) Artifacts(artifacts ...protocol.Artifact) *TaskBuilder {
	b.task.Artifacts = append(b.task.Artifacts, artifacts...)
	return b
}

// History appends history messages in order.
func (b *TaskBuilder) History(messages ...protocol.Message) *TaskBuilder {
	b.task.History = append(b.task.History, messages...)
	return b
}

// Metadata sets the task metadata mapping.
func (b *TaskBuilder) Metadata(md map[string]any) *TaskBuilder {
	b.task.Metadata = md
	return b
}

// Build materializes the task. It fails when contextId is absent; a missing
// id is auto-assigned, a missing state defaults to submitted.
func (b *TaskBuilder) Build() (*protocol.Task, error) {
	if b.task.ContextID == "" {
		return nil, ErrMissingContextID
	}
	task := b.task
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status.State == "" {
		task.Status.State = protocol.TaskStateSubmitted
	}
	now := time.Now().UTC()
	task.Status.Timestamp = &now
	return &task, nil
}

// ArtifactBuilder assembles an artifact.
type ArtifactBuilder struct {
	artifact protocol.Artifact
}

// NewArtifact starts an artifact builder.
func NewArtifact() *ArtifactBuilder {
	return &ArtifactBuilder{}
}

// ID sets the artifact id. Auto-assigned when omitted.
func (b *ArtifactBuilder) ID(id string) *ArtifactBuilder {
	b.artifact.ArtifactID = id
	return b
}

// Name sets the display name.
func (b *ArtifactBuilder) Name(name string) *ArtifactBuilder {
	b.artifact.Name = name
	return b
}

// Description sets the description.
func (b *ArtifactBuilder) Description(desc string) *ArtifactBuilder {
	b.artifact.Description = desc
	return b
}

// Parts appends content parts in order.
func (b *ArtifactBuilder) Parts(parts ...protocol.Part) *ArtifactBuilder {
	b.artifact.Parts = append(b.artifact.Parts, parts...)
	return b
}

// Metadata sets the artifact metadata mapping.
func (b *ArtifactBuilder) Metadata(md map[string]any) *ArtifactBuilder {
	b.artifact.Metadata = md
	return b
}

// Build materializes the artifact, auto-assigning the id when omitted.
func (b *ArtifactBuilder) Build() protocol.Artifact {
	artifact := b.artifact
	if artifact.ArtifactID == "" {
		artifact.ArtifactID = uuid.NewString()
	}
	return artifact
}
