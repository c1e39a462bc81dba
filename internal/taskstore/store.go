// Package taskstore provides task persistence behind a pluggable key→task
// interface with optional TTL expiry. The default provider is in-memory;
// a SQLite-backed provider is available for durable deployments.
package taskstore

import (
	"context"
	"sync"
	"time"

	"github.com/hamidra/a2alite/internal/protocol"
)

// Store maps task ids to tasks. All operations take a context so durable
// providers drop in without an interface change. Get on an expired key
// reports absent and purges the entry; enumeration purges expired entries
// first. There is no ordering guarantee across keys.
type Store interface {
	// Set stores the task under key. ttl of zero means no expiry.
	Set(ctx context.Context, key string, task *protocol.Task, ttl time.Duration) error

	// Get returns the task or (nil, nil) when the key is absent or expired.
	Get(ctx context.Context, key string) (*protocol.Task, error)

	// Delete removes the key, reporting whether it was present.
	Delete(ctx context.Context, key string) (bool, error)

	// Keys returns the unexpired keys in unspecified order.
	Keys(ctx context.Context) ([]string, error)

	// Clear removes every entry.
	Clear(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}

// entry is one stored task with its optional expiry.
type entry struct {
	task      *protocol.Task
	expiresAt time.Time // zero means no expiry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore is the default non-persistent Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Set stores a copy of the task so later mutation of the caller's value
// does not leak into the store.
func (s *MemoryStore) Set(_ context.Context, key string, task *protocol.Task, ttl time.Duration) error {
	e := &entry{task: task.Clone()}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = e
	return nil
}

// Get returns a copy of the stored task, purging the entry when expired.
func (s *MemoryStore) Get(_ context.Context, key string) (*protocol.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	if e.expired(s.now()) {
		delete(s.entries, key)
		return nil, nil
	}
	return e.task.Clone(), nil
}

// Delete removes the key. An expired entry counts as absent.
func (s *MemoryStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	delete(s.entries, key)
	if e.expired(s.now()) {
		return false, nil
	}
	return true, nil
}

// Keys purges expired entries and returns the remaining keys.
func (s *MemoryStore) Keys(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	keys := make([]string, 0, len(s.entries))
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Clear removes every entry.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

// PurgeExpired removes expired entries and returns how many were dropped.
// The cleanup sweeper calls this so idle stores do not accumulate garbage
// between reads.
func (s *MemoryStore) PurgeExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	purged := 0
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
			purged++
		}
	}
	return purged
}
