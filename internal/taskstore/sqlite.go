package taskstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hamidra/a2alite/internal/protocol"
)

// SQLiteStore is a durable Store backed by a single SQLite database file.
// Tasks are stored as JSON payloads keyed by id, with the expiry held in a
// separate column so purges do not deserialize.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) tasks.db in dataDir.
func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "tasks.db")
	// Enable WAL mode and busy timeout for better concurrent access
	db, err := sql.Open("sqlite", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		context_id TEXT NOT NULL,
		state TEXT NOT NULL,
		payload BLOB NOT NULL,
		expires_at INTEGER,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_context ON tasks(context_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_expires ON tasks(expires_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Set upserts the task payload under key.
func (s *SQLiteStore) Set(ctx context.Context, key string, task *protocol.Task, ttl time.Duration) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task %s: %w", key, err)
	}

	now := s.now()
	var expiresAt *int64
	if ttl > 0 {
		v := now.Add(ttl).UnixMilli()
		expiresAt = &v
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, context_id, state, payload, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			context_id = excluded.context_id,
			state = excluded.state,
			payload = excluded.payload,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		key, task.ContextID, string(task.Status.State), payload, expiresAt, now.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to store task %s: %w", key, err)
	}
	return nil
}

// Get loads the task, purging it first when expired.
func (s *SQLiteStore) Get(ctx context.Context, key string) (*protocol.Task, error) {
	var payload []byte
	var expiresAt sql.NullInt64

	err := s.db.QueryRowContext(ctx,
		`SELECT payload, expires_at FROM tasks WHERE id = ?`, key).Scan(&payload, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task %s: %w", key, err)
	}

	if expiresAt.Valid && s.now().UnixMilli() > expiresAt.Int64 {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, key)
		return nil, nil
	}

	var task protocol.Task
	if err := json.Unmarshal(payload, &task); err != nil {
		return nil, fmt.Errorf("failed to decode task %s: %w", key, err)
	}
	return &task, nil
}

// Delete removes the key, reporting whether an unexpired entry was present.
func (s *SQLiteStore) Delete(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = ? AND (expires_at IS NULL OR expires_at > ?)`,
		key, s.now().UnixMilli())
	if err != nil {
		return false, fmt.Errorf("failed to delete task %s: %w", key, err)
	}
	n, _ := res.RowsAffected()

	// Drop an expired row for the same key as a side effect.
	_, _ = s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, key)
	return n > 0, nil
}

// Keys purges expired rows and returns the remaining ids.
func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	if _, err := s.purgeExpired(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM tasks`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		keys = append(keys, id)
	}
	return keys, rows.Err()
}

// Clear removes every row.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks`)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// PurgeExpired removes expired rows and returns how many were dropped.
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int64, error) {
	return s.purgeExpired(ctx)
}

func (s *SQLiteStore) purgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE expires_at IS NOT NULL AND expires_at <= ?`, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired tasks: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
