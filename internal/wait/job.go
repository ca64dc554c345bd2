// Package wait implements the smart-wait engine: a single scheduler loop that
// owns all in-flight wait jobs, drives their capture/evaluate/decide cycles,
// enforces timeouts, and emits exactly-once terminal notifications.
package wait

import (
	"time"

	"github.com/openclaw/smartwaitd/internal/capture"
)

// Status is a wait job's lifecycle state.
type Status string

const (
	StatusWatching  Status = "watching"
	StatusResolved  Status = "resolved"
	StatusTimeout   Status = "timeout"
	StatusCancelled Status = "cancelled"
	StatusError     Status = "error"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s != StatusWatching
}

// maxHistory bounds the per-job history ring.
const maxHistory = 20

// Job is the in-memory record of a single wait. Jobs are owned by the
// engine's active map; all mutation happens under the engine lock, except the
// diff gate which is touched only by the job's single in-flight evaluation.
type Job struct {
	ID             string
	Target         capture.Target
	Display        string
	Criteria       string
	TaskID         string
	CreatedAt      time.Time
	Deadline       time.Time
	TimeoutSeconds int
	PollInterval   time.Duration // requested base, clamped at scheduling time
	NextCheckAt    time.Time
	Status         Status
	LastDetail     string
	History        []string
	ResolvedAt     time.Time
	Result         string

	diffGate   *capture.DiffGate
	evaluating bool
}

func (j *Job) appendHistory(line string) {
	j.History = append(j.History, line)
	if len(j.History) > maxHistory {
		j.History = j.History[len(j.History)-maxHistory:]
	}
}

// Snapshot is the read-only view of a job returned by status queries.
type Snapshot struct {
	ID             string   `json:"id"`
	Status         Status   `json:"status"`
	ElapsedSeconds float64  `json:"elapsed_s"`
	Target         string   `json:"target"`
	Display        string   `json:"display"`
	Criteria       string   `json:"criteria"`
	LastDetail     string   `json:"last_detail,omitempty"`
	TimeoutSeconds int      `json:"timeout_s"`
	PollSeconds    float64  `json:"poll_interval_s"`
	TaskID         string   `json:"task_id,omitempty"`
	History        []string `json:"history,omitempty"`
	CreatedAt      string   `json:"created_at"`
	ResolvedAt     string   `json:"resolved_at,omitempty"`
}

// snapshot builds a Snapshot; callers hold the engine lock.
func (j *Job) snapshot(now time.Time) Snapshot {
	elapsed := now.Sub(j.CreatedAt)
	if j.Status.Terminal() && !j.ResolvedAt.IsZero() {
		elapsed = j.ResolvedAt.Sub(j.CreatedAt)
	}

	snap := Snapshot{
		ID:             j.ID,
		Status:         j.Status,
		ElapsedSeconds: elapsed.Seconds(),
		Target:         j.Target.String(),
		Display:        j.Display,
		Criteria:       j.Criteria,
		LastDetail:     j.LastDetail,
		TimeoutSeconds: j.TimeoutSeconds,
		PollSeconds:    j.PollInterval.Seconds(),
		TaskID:         j.TaskID,
		History:        append([]string(nil), j.History...),
		CreatedAt:      j.CreatedAt.UTC().Format(time.RFC3339),
	}
	if !j.ResolvedAt.IsZero() {
		snap.ResolvedAt = j.ResolvedAt.UTC().Format(time.RFC3339)
	}
	return snap
}
