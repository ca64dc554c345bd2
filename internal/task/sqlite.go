package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openclaw/smartwaitd/internal/logger"
)

// ErrTaskNotFound is returned when the referenced task does not exist.
var ErrTaskNotFound = errors.New("task not found")

const schemaSQL = `
CREATE TABLE IF NOT EXISTS tasks (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  metadata TEXT NOT NULL DEFAULT '{}',
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS task_messages (
  id TEXT PRIMARY KEY,
  task_id TEXT NOT NULL REFERENCES tasks(id),
  role TEXT NOT NULL,
  content TEXT NOT NULL,
  msg_type TEXT NOT NULL DEFAULT 'text',
  created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_task_messages_task_id_created_at ON task_messages(task_id, created_at);
`

// metadata is the wait-related slice of a task's metadata JSON. Unknown keys
// written by the task subsystem are preserved on update.
type metadata map[string]any

// SQLiteSink posts wait events into the task tables of a shared SQLite
// database.
type SQLiteSink struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewSQLiteSink wraps db as a task sink and ensures the task tables exist.
func NewSQLiteSink(db *sql.DB, log *logger.Logger) (*SQLiteSink, error) {
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to apply task schema: %w", err)
	}
	return &SQLiteSink{db: db, logger: log}, nil
}

// WaitStarted records the wait link on the task: the id joins
// active_wait_ids, last_wait_state flips to watching, and a wait message is
// threaded.
func (s *SQLiteSink) WaitStarted(ctx context.Context, taskID, waitID, target, criteria string, timeoutSeconds int) error {
	content := fmt.Sprintf("[smart_wait] Started wait %s on %s: %s (timeout %ds)", waitID, target, criteria, timeoutSeconds)
	if err := s.PostWaitMessage(ctx, taskID, "watching", content); err != nil {
		return err
	}
	return s.UpdateWaitState(ctx, taskID, WaitStateUpdate{
		AddID:       waitID,
		LastState:   "watching",
		LastEventAt: time.Now(),
	})
}

// PostWaitMessage appends a message of type "wait" to the task thread.
func (s *SQLiteSink) PostWaitMessage(ctx context.Context, taskID, state, content string) error {
	if err := s.taskExists(ctx, taskID); err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO task_messages (id, task_id, role, content, msg_type, created_at) VALUES (?,?,?,?,?,?)",
		newID(), taskID, "system", content, "wait", now,
	)
	if err != nil {
		return fmt.Errorf("failed to post wait message: %w", err)
	}

	_, err = s.db.ExecContext(ctx, "UPDATE tasks SET updated_at = ? WHERE id = ?", now, taskID)
	if err != nil {
		return fmt.Errorf("failed to touch task: %w", err)
	}

	s.logger.DebugCtx(ctx, "wait message posted",
		logger.Field{Key: "task_id", Value: taskID},
		logger.Field{Key: "state", Value: state})
	return nil
}

// UpdateWaitState rewrites the wait-state keys of the task's metadata JSON,
// leaving any other keys untouched.
func (s *SQLiteSink) UpdateWaitState(ctx context.Context, taskID string, upd WaitStateUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var metaRaw string
	err = tx.QueryRowContext(ctx, "SELECT metadata FROM tasks WHERE id = ?", taskID).Scan(&metaRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if err != nil {
		return fmt.Errorf("failed to read task metadata: %w", err)
	}

	meta := metadata{}
	if metaRaw != "" {
		// Corrupt metadata resets to empty rather than failing the update.
		_ = json.Unmarshal([]byte(metaRaw), &meta)
	}

	active := activeWaitIDs(meta)
	if upd.RemoveID != "" {
		filtered := active[:0]
		for _, id := range active {
			if id != upd.RemoveID {
				filtered = append(filtered, id)
			}
		}
		active = filtered
	}
	if upd.AddID != "" && !contains(active, upd.AddID) {
		active = append(active, upd.AddID)
	}

	if active == nil {
		active = []string{}
	}
	meta["active_wait_ids"] = active
	meta["last_wait_state"] = upd.LastState
	meta["last_wait_event_at"] = upd.LastEventAt.UTC().Format(time.RFC3339Nano)

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = tx.ExecContext(ctx, "UPDATE tasks SET metadata = ?, updated_at = ? WHERE id = ?",
		string(metaJSON), now, taskID)
	if err != nil {
		return fmt.Errorf("failed to update task metadata: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteSink) taskExists(ctx context.Context, taskID string) error {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM tasks WHERE id = ? LIMIT 1", taskID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return err
}

func activeWaitIDs(meta metadata) []string {
	raw, ok := meta["active_wait_ids"].([]any)
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			ids = append(ids, s)
		}
	}
	return ids
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func newID() string {
	return uuid.NewString()[:8]
}
