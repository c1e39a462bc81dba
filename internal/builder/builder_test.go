package builder

import (
	"testing"

	"github.com/hamidra/a2alite/internal/protocol"
)

func TestTaskBuilder_RequiresContextID(t *testing.T) {
	_, err := NewTask().State(protocol.TaskStateSubmitted).Build()
	if err != ErrMissingContextID {
		t.Errorf("Build() error = %v, want ErrMissingContextID", err)
	}
}

func TestTaskBuilder_Defaults(t *testing.T) {
	task, err := NewTask().ContextID("c1").Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if task.Kind != protocol.KindTask {
		t.Errorf("Kind = %v, want task", task.Kind)
	}
	if task.ID == "" {
		t.Error("ID not auto-assigned")
	}
	if task.Status.State != protocol.TaskStateSubmitted {
		t.Errorf("State = %v, want submitted", task.Status.State)
	}
	if task.Status.Timestamp == nil {
		t.Error("Timestamp not stamped")
	}
}

func TestTaskBuilder_ArtifactsOrdered(t *testing.T) {
	task, err := NewTask().
		ContextID("c1").
		Artifacts(protocol.Artifact{ArtifactID: "a1"}).
		Artifacts(protocol.Artifact{ArtifactID: "a2"}, protocol.Artifact{ArtifactID: "a3"}).
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	want := []string{"a1", "a2", "a3"}
	for i, id := range want {
		if task.Artifacts[i].ArtifactID != id {
			t.Errorf("artifacts[%d] = %v, want %v", i, task.Artifacts[i].ArtifactID, id)
		}
	}
}

func TestMessageBuilder_RequiresParts(t *testing.T) {
	_, err := NewMessage().Role(protocol.RoleAgent).Build()
	if err != ErrNoParts {
		t.Errorf("Build() error = %v, want ErrNoParts", err)
	}
}

func TestMessageBuilder_Defaults(t *testing.T) {
	msg, err := NewMessage().
		Parts(protocol.NewTextPart("hi")).
		ContextID("c1").
		TaskID("t1").
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if msg.Kind != protocol.KindMessage {
		t.Errorf("Kind = %v, want message", msg.Kind)
	}
	if msg.MessageID == "" {
		t.Error("MessageID not auto-assigned")
	}
	if msg.Role != protocol.RoleAgent {
		t.Errorf("Role = %v, want agent", msg.Role)
	}
	if msg.ContextID != "c1" || msg.TaskID != "t1" {
		t.Errorf("correlation = %v/%v, want c1/t1", msg.ContextID, msg.TaskID)
	}
}

func TestArtifactBuilder_AutoID(t *testing.T) {
	a := NewArtifact().Parts(protocol.NewTextPart("x")).Build()
	if a.ArtifactID == "" {
		t.Error("ArtifactID not auto-assigned")
	}

	b := NewArtifact().ID("a1").Build()
	if b.ArtifactID != "a1" {
		t.Errorf("ArtifactID = %v, want a1", b.ArtifactID)
	}
}
