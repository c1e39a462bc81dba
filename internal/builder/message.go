package builder

import (
	"github.com/google/uuid"

	"github.com/hamidra/a2alite/internal/protocol"
)

// MessageBuilder assembles a message.
type MessageBuilder struct {
	msg protocol.Message
}

// NewMessage starts a message builder. The message id is auto-assigned when
// not set.
func NewMessage() *MessageBuilder {
	return &MessageBuilder{msg: protocol.Message{Kind: protocol.KindMessage}}
}

// ID sets the message id.
func (b *MessageBuilder) ID(id string) *MessageBuilder {
	b.msg.MessageID = id
	return b
}

// Role sets the author role.
func (b *MessageBuilder) Role(role protocol.Role) *MessageBuilder {
	b.msg.Role = role
	return b
}

// Parts appends content parts in order.
func (b *MessageBuilder) Parts(parts ...protocol.Part) *MessageBuilder {
	b.msg.Parts = append(b.msg.Parts, parts...)
	return b
}

// ContextID sets the correlation scope.
func (b *MessageBuilder) ContextID(id string) *MessageBuilder {
	b.msg.ContextID = id
	return b
}

// TaskID links the message to a task.
func (b *MessageBuilder) TaskID(id string) *MessageBuilder {
	b.msg.TaskID = id
	return b
}

// ReferenceTaskIDs sets the referenced task ids.
func (b *MessageBuilder) ReferenceTaskIDs(ids ...string) *MessageBuilder {
	b.msg.ReferenceTaskIDs = append(b.msg.ReferenceTaskIDs, ids...)
	return b
}

// Metadata sets the message metadata mapping.
func (b *MessageBuilder) Metadata(md map[string]any) *MessageBuilder {
	b.msg.Metadata = md
	return b
}

// Build materializes the message. It fails when no parts are present; a
// missing id is auto-assigned, a missing role defaults to agent.
func (b *MessageBuilder) Build() (*protocol.Message, error) {
	if len(b.msg.Parts) == 0 {
		return nil, ErrNoParts
	}
	msg := b.msg
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	if msg.Role == "" {
		msg.Role = protocol.RoleAgent
	}
	return &msg, nil
}
