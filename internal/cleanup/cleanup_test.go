package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/hamidra/a2alite/internal/protocol"
	"github.com/hamidra/a2alite/internal/taskstore"
)

func TestParseCron(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"every five minutes", "*/5 * * * *", false},
		{"hourly", "0 * * * *", false},
		{"six fields rejected", "0 0 * * * *", true},
		{"garbage", "often", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCron(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseCron(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestNew_RejectsBadSchedule(t *testing.T) {
	if _, err := New(taskstore.NewMemoryStore(), "bad"); err == nil {
		t.Error("New() with invalid schedule should error")
	}
}

func TestSweepOnce_PurgesExpired(t *testing.T) {
	store := taskstore.NewMemoryStore()
	ctx := context.Background()

	task := &protocol.Task{
		Kind:      protocol.KindTask,
		ID:        "t1",
		ContextID: "c1",
		Status:    protocol.TaskStatus{State: protocol.TaskStateCompleted},
	}
	_ = store.Set(ctx, "t1", task, time.Nanosecond)
	_ = store.Set(ctx, "t2", task, time.Hour)

	// Let the nanosecond TTL lapse.
	time.Sleep(time.Millisecond)

	s, err := New(store, "*/5 * * * *")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	s.SweepOnce(ctx)

	keys, _ := store.Keys(ctx)
	if len(keys) != 1 || keys[0] != "t2" {
		t.Errorf("Keys() after sweep = %v, want [t2]", keys)
	}
}

func TestSweeper_StartStop(t *testing.T) {
	s, err := New(taskstore.NewMemoryStore(), "* * * * *")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	s.Start()
	s.Stop()
}
