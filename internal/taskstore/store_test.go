package taskstore

import (
	"context"
	"testing"
	"time"

	"github.com/hamidra/a2alite/internal/protocol"
)

func testTask(id string) *protocol.Task {
	return &protocol.Task{
		Kind:      protocol.KindTask,
		ID:        id,
		ContextID: "ctx-1",
		Status:    protocol.TaskStatus{State: protocol.TaskStateSubmitted},
	}
}

func TestMemoryStore_SetGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Set(ctx, "t1", testTask("t1"), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := s.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil || got.ID != "t1" {
		t.Errorf("Get() = %+v, want task t1", got)
	}

	missing, err := s.Get(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("Get(missing) = %v, %v, want nil, nil", missing, err)
	}
}

func TestMemoryStore_CopyIsolation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	task := testTask("t1")
	_ = s.Set(ctx, "t1", task, 0)

	// Mutating the stored-from value must not leak into the store.
	task.Artifacts = append(task.Artifacts, protocol.Artifact{ArtifactID: "a1"})

	got, _ := s.Get(ctx, "t1")
	if len(got.Artifacts) != 0 {
		t.Errorf("stored task artifacts = %d, want 0", len(got.Artifacts))
	}

	// Mutating a returned value must not change later reads.
	got.Status.State = protocol.TaskStateFailed
	again, _ := s.Get(ctx, "t1")
	if again.Status.State != protocol.TaskStateSubmitted {
		t.Errorf("state after external mutation = %v, want submitted", again.Status.State)
	}
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	_ = s.Set(ctx, "t1", testTask("t1"), time.Minute)
	_ = s.Set(ctx, "t2", testTask("t2"), 0)

	now = now.Add(2 * time.Minute)

	got, err := s.Get(ctx, "t1")
	if err != nil || got != nil {
		t.Errorf("Get(expired) = %v, %v, want nil, nil", got, err)
	}

	keys, _ := s.Keys(ctx)
	if len(keys) != 1 || keys[0] != "t2" {
		t.Errorf("Keys() = %v, want [t2]", keys)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.Set(ctx, "t1", testTask("t1"), 0)

	existed, err := s.Delete(ctx, "t1")
	if err != nil || !existed {
		t.Errorf("Delete() = %v, %v, want true, nil", existed, err)
	}

	existed, _ = s.Delete(ctx, "t1")
	if existed {
		t.Error("Delete() second call = true, want false")
	}
}

func TestMemoryStore_PurgeExpired(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	_ = s.Set(ctx, "t1", testTask("t1"), time.Second)
	_ = s.Set(ctx, "t2", testTask("t2"), time.Hour)

	now = now.Add(time.Minute)

	if purged := s.PurgeExpired(); purged != 1 {
		t.Errorf("PurgeExpired() = %v, want 1", purged)
	}

	keys, _ := s.Keys(ctx)
	if len(keys) != 1 {
		t.Errorf("Keys() after purge = %v, want one key", keys)
	}
}

func TestMemoryStore_Clear(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.Set(ctx, "t1", testTask("t1"), 0)
	_ = s.Set(ctx, "t2", testTask("t2"), 0)

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	keys, _ := s.Keys(ctx)
	if len(keys) != 0 {
		t.Errorf("Keys() after Clear = %v, want empty", keys)
	}
}
