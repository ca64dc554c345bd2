// Package store persists wait-job records to SQLite. Active jobs live in the
// engine's memory; the store is the durable record of creation and terminal
// outcome, used for later inspection and crash recovery. A restart marks every
// previously-watching row as an error — prior jobs are never resumed.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/openclaw/smartwaitd/internal/logger"
)

// ErrNotFound is returned when no record exists for an id.
var ErrNotFound = errors.New("wait job record not found")

const schemaSQL = `
CREATE TABLE IF NOT EXISTS wait_jobs (
  id TEXT PRIMARY KEY,
  task_id TEXT,
  target_type TEXT NOT NULL,
  target_id TEXT NOT NULL DEFAULT '',
  display TEXT NOT NULL,
  criteria TEXT NOT NULL,
  timeout_seconds INTEGER NOT NULL DEFAULT 300,
  poll_interval REAL NOT NULL DEFAULT 2.0,
  status TEXT NOT NULL DEFAULT 'watching',
  result_message TEXT,
  created_at TEXT NOT NULL,
  resolved_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_wait_jobs_status ON wait_jobs(status);
`

// Record is one persisted wait-job row.
type Record struct {
	ID             string     `json:"id"`
	TaskID         string     `json:"task_id,omitempty"`
	TargetType     string     `json:"target_type"`
	TargetID       string     `json:"target_id,omitempty"`
	Display        string     `json:"display"`
	Criteria       string     `json:"criteria"`
	TimeoutSeconds int        `json:"timeout_s"`
	PollInterval   float64    `json:"poll_interval_s"`
	Status         string     `json:"status"`
	ResultMessage  string     `json:"result_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// Store wraps the SQLite database holding wait-job records.
type Store struct {
	db     *sql.DB
	logger *logger.Logger
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string, log *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, logger: log}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle so the task sink can share the database.
func (s *Store) DB() *sql.DB {
	return s.db
}

// RecordCreated inserts the creation row for a newly registered job.
func (s *Store) RecordCreated(rec Record) error {
	_, err := s.db.Exec(
		`INSERT INTO wait_jobs (id, task_id, target_type, target_id, display, criteria,
		   timeout_seconds, poll_interval, status, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, nullable(rec.TaskID), rec.TargetType, rec.TargetID, rec.Display, rec.Criteria,
		rec.TimeoutSeconds, rec.PollInterval, "watching", rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to record job creation: %w", err)
	}
	return nil
}

// RecordTerminal commits the terminal outcome of a job.
func (s *Store) RecordTerminal(id, status, resultMessage string, resolvedAt time.Time) error {
	res, err := s.db.Exec(
		"UPDATE wait_jobs SET status = ?, result_message = ?, resolved_at = ? WHERE id = ?",
		status, resultMessage, resolvedAt.UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return fmt.Errorf("failed to record terminal state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Get returns the record for id.
func (s *Store) Get(id string) (*Record, error) {
	row := s.db.QueryRow(
		`SELECT id, task_id, target_type, target_id, display, criteria, timeout_seconds,
		   poll_interval, status, result_message, created_at, resolved_at
		 FROM wait_jobs WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

// List returns records, newest first, optionally filtered by status.
func (s *Store) List(status string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows *sql.Rows
	var err error
	if status == "" || status == "all" {
		rows, err = s.db.Query(
			`SELECT id, task_id, target_type, target_id, display, criteria, timeout_seconds,
			   poll_interval, status, result_message, created_at, resolved_at
			 FROM wait_jobs ORDER BY created_at DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.Query(
			`SELECT id, task_id, target_type, target_id, display, criteria, timeout_seconds,
			   poll_interval, status, result_message, created_at, resolved_at
			 FROM wait_jobs WHERE status = ? ORDER BY created_at DESC LIMIT ?`, status, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// RecoverOrphans marks every still-watching row as a terminal error. Called
// once at startup: a job that was active when the previous process died can
// never deliver its wake, so the record says exactly that.
func (s *Store) RecoverOrphans(now time.Time) (int, error) {
	res, err := s.db.Exec(
		"UPDATE wait_jobs SET status = 'error', result_message = ?, resolved_at = ? WHERE status = 'watching'",
		"daemon restarted while watching", now.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to recover orphaned jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Warn("marked orphaned wait jobs from previous run",
			logger.Field{Key: "count", Value: n})
	}
	return int(n), nil
}

// Prune deletes terminal records resolved before the cutoff. Watching rows
// are never pruned.
func (s *Store) Prune(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(
		"DELETE FROM wait_jobs WHERE status != 'watching' AND resolved_at IS NOT NULL AND resolved_at < ?",
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune records: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var taskID, resultMessage, resolvedAt sql.NullString
	var createdAt string

	err := row.Scan(&rec.ID, &taskID, &rec.TargetType, &rec.TargetID, &rec.Display,
		&rec.Criteria, &rec.TimeoutSeconds, &rec.PollInterval, &rec.Status,
		&resultMessage, &createdAt, &resolvedAt)
	if err != nil {
		return nil, err
	}

	rec.TaskID = taskID.String
	rec.ResultMessage = resultMessage.String
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if resolvedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, resolvedAt.String)
		if err == nil {
			rec.ResolvedAt = &t
		}
	}
	return &rec, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
