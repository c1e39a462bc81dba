package execution

import (
	"testing"
	"time"

	"github.com/hamidra/a2alite/internal/protocol"
)

func requestWithMessage(msg protocol.Message) *Request {
	return &Request{Params: protocol.MessageSendParams{Message: msg}}
}

func userMessage(text string) protocol.Message {
	return protocol.Message{
		Kind:      protocol.KindMessage,
		MessageID: "m-in",
		Role:      protocol.RoleUser,
		Parts:     []protocol.Part{protocol.NewTextPart(text)},
	}
}

func TestNewContext_ContextIDResolution(t *testing.T) {
	task := &protocol.Task{ID: "t1", ContextID: "from-task"}
	msgWithCtx := userMessage("hi")
	msgWithCtx.ContextID = "from-message"

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			"task context id wins",
			Config{Request: requestWithMessage(msgWithCtx), CurrentTask: task, ContextID: "supplied"},
			"from-task",
		},
		{
			"message context id next",
			Config{Request: requestWithMessage(msgWithCtx), ContextID: "supplied"},
			"from-message",
		},
		{
			"supplied id next",
			Config{Request: requestWithMessage(userMessage("hi")), ContextID: "supplied"},
			"supplied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ec := NewContext(tt.cfg)
			if ec.ContextID() != tt.want {
				t.Errorf("ContextID() = %v, want %v", ec.ContextID(), tt.want)
			}
		})
	}
}

func TestNewContext_GeneratesContextID(t *testing.T) {
	ec := NewContext(Config{Request: requestWithMessage(userMessage("hi"))})
	if ec.ContextID() == "" {
		t.Error("ContextID() empty, want generated id")
	}
}

func TestContext_MessageInheritance(t *testing.T) {
	// Without a current task the message carries only the context id.
	ec := NewContext(Config{Request: requestWithMessage(userMessage("hi"))})
	msg, err := ec.Message(MessageParams{Parts: []protocol.Part{protocol.NewTextPart("hello")}})
	if err != nil {
		t.Fatalf("Message() error = %v", err)
	}
	if msg.ContextID != ec.ContextID() {
		t.Errorf("ContextID = %v, want %v", msg.ContextID, ec.ContextID())
	}
	if msg.TaskID != "" {
		t.Errorf("TaskID = %v, want empty without current task", msg.TaskID)
	}
	if msg.Role != protocol.RoleAgent {
		t.Errorf("Role = %v, want agent", msg.Role)
	}

	// With a current task the message is bound to it.
	if _, err := ec.Complete(TaskUpdate{}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	task := ec.CurrentTask()
	msg, err = ec.Message(MessageParams{Parts: []protocol.Part{protocol.NewTextPart("again")}})
	if err != nil {
		t.Fatalf("Message() error = %v", err)
	}
	if msg.TaskID != task.ID {
		t.Errorf("TaskID = %v, want %v", msg.TaskID, task.ID)
	}
}

func TestContext_CompleteCreatesTask(t *testing.T) {
	ec := NewContext(Config{Request: requestWithMessage(userMessage("hi"))})

	task, err := ec.Complete(TaskUpdate{
		Artifacts: []protocol.Artifact{{ArtifactID: "a1", Parts: []protocol.Part{protocol.NewTextPart("hi")}}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if task.Status.State != protocol.TaskStateCompleted {
		t.Errorf("State = %v, want completed", task.Status.State)
	}
	if task.ContextID != ec.ContextID() {
		t.Errorf("ContextID = %v, want %v", task.ContextID, ec.ContextID())
	}
	if len(task.Artifacts) != 1 || task.Artifacts[0].ArtifactID != "a1" {
		t.Errorf("Artifacts = %+v, want a1", task.Artifacts)
	}
	// The inbound user message lands in the history of the new task.
	if len(task.History) == 0 || task.History[0].Role != protocol.RoleUser {
		t.Errorf("History = %+v, want leading user message", task.History)
	}
}

func TestContext_ArtifactMergeConcatenates(t *testing.T) {
	ec := NewContext(Config{Request: requestWithMessage(userMessage("hi"))})

	_, err := ec.InputRequired(TaskUpdate{
		Artifacts: []protocol.Artifact{{ArtifactID: "a1"}, {ArtifactID: "a2"}},
	})
	if err != nil {
		t.Fatalf("InputRequired() error = %v", err)
	}

	task, err := ec.Complete(TaskUpdate{
		Artifacts: []protocol.Artifact{{ArtifactID: "a3"}, {ArtifactID: "a1"}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	// A ++ B, order preserved, duplicates kept.
	want := []string{"a1", "a2", "a3", "a1"}
	if len(task.Artifacts) != len(want) {
		t.Fatalf("artifact count = %d, want %d", len(task.Artifacts), len(want))
	}
	for i, id := range want {
		if task.Artifacts[i].ArtifactID != id {
			t.Errorf("artifacts[%d] = %v, want %v", i, task.Artifacts[i].ArtifactID, id)
		}
	}
}

func TestContext_StatusMessageMaterialized(t *testing.T) {
	ec := NewContext(Config{Request: requestWithMessage(userMessage("echo?"))})

	task, err := ec.InputRequired(TaskUpdate{
		Message: &StatusMessage{Parts: []protocol.Part{protocol.NewTextPart("how many?")}},
	})
	if err != nil {
		t.Fatalf("InputRequired() error = %v", err)
	}

	msg := task.Status.Message
	if msg == nil {
		t.Fatal("Status.Message is nil")
	}
	if msg.TaskID != task.ID || msg.ContextID != task.ContextID {
		t.Errorf("status message correlation = %v/%v, want %v/%v", msg.TaskID, msg.ContextID, task.ID, task.ContextID)
	}
	if msg.Parts[0].Text != "how many?" {
		t.Errorf("status message text = %v, want how many?", msg.Parts[0].Text)
	}
}

func TestContext_TimestampRefreshedOnTransition(t *testing.T) {
	ec := NewContext(Config{Request: requestWithMessage(userMessage("hi"))})

	first, _ := ec.InputRequired(TaskUpdate{})
	time.Sleep(5 * time.Millisecond)
	second, _ := ec.Complete(TaskUpdate{})

	if !second.Status.Timestamp.After(*first.Status.Timestamp) {
		t.Errorf("timestamp not refreshed: %v then %v", first.Status.Timestamp, second.Status.Timestamp)
	}
}

func TestContext_StreamReturnsImmediately(t *testing.T) {
	ec := NewContext(Config{Request: requestWithMessage(userMessage("hi"))})

	started := make(chan struct{})
	release := make(chan struct{})

	result, err := ec.Stream(func(ts *TaskStream) {
		close(started)
		<-release
		_ = ts.Complete(TaskUpdate{})
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	if result.Task.Status.State != protocol.TaskStateSubmitted {
		t.Errorf("initial state = %v, want submitted", result.Task.Status.State)
	}

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("stream callback was not invoked")
	}
	close(release)
}

func TestContext_SecondStreamFails(t *testing.T) {
	ec := NewContext(Config{Request: requestWithMessage(userMessage("hi"))})

	if _, err := ec.Stream(func(ts *TaskStream) { _ = ts.Complete(TaskUpdate{}) }); err != nil {
		t.Fatalf("first Stream() error = %v", err)
	}
	if _, err := ec.Stream(func(ts *TaskStream) {}); err != ErrStreamAlreadyCreated {
		t.Errorf("second Stream() error = %v, want ErrStreamAlreadyCreated", err)
	}
}

func TestContext_StreamOnExistingTaskStartsWorking(t *testing.T) {
	prior := &protocol.Task{
		Kind:      protocol.KindTask,
		ID:        "t1",
		ContextID: "c1",
		Status:    protocol.TaskStatus{State: protocol.TaskStateInputRequired},
	}
	ec := NewContext(Config{Request: requestWithMessage(userMessage("3")), CurrentTask: prior})

	result, err := ec.Stream(func(ts *TaskStream) { _ = ts.Complete(TaskUpdate{}) })
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if result.Task.ID != "t1" {
		t.Errorf("task id = %v, want t1", result.Task.ID)
	}
	if result.Task.Status.State != protocol.TaskStateWorking {
		t.Errorf("state = %v, want working", result.Task.Status.State)
	}
}

func TestContext_StreamRejectsNonActiveInitialState(t *testing.T) {
	ec := NewContext(Config{Request: requestWithMessage(userMessage("hi"))})

	_, err := ec.Stream(func(ts *TaskStream) {}, protocol.TaskStateCompleted)
	if err == nil {
		t.Error("Stream() with terminal initial state should error")
	}
}

func TestContext_ReferenceTasks(t *testing.T) {
	refs := []*protocol.Task{{ID: "r1", ContextID: "c1"}}
	ec := NewContext(Config{Request: requestWithMessage(userMessage("hi")), ReferenceTasks: refs})

	if got := ec.ReferenceTasks(); len(got) != 1 || got[0].ID != "r1" {
		t.Errorf("ReferenceTasks() = %+v, want [r1]", got)
	}
}
