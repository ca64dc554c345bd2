// Package task is the narrow seam between the wait engine and the external
// task-memory subsystem. The engine only ever posts typed thread messages and
// updates a task's wait-state metadata; everything else about tasks lives
// outside this daemon.
package task

import (
	"context"
	"time"
)

// WaitStateUpdate describes a wait-state metadata change on a task.
type WaitStateUpdate struct {
	RemoveID    string    // wait id to drop from active_wait_ids ("" = none)
	AddID       string    // wait id to add to active_wait_ids ("" = none)
	LastState   string    // watching, resolved, timeout, cancelled, error
	LastEventAt time.Time // when the wait event happened
}

// Sink posts wait events into the task subsystem. Failures are logged and
// swallowed by the engine; a broken task link never affects job state.
type Sink interface {
	// WaitStarted links a freshly registered wait to the task.
	WaitStarted(ctx context.Context, taskID, waitID, target, criteria string, timeoutSeconds int) error

	// PostWaitMessage appends a message of type "wait" to the task thread.
	PostWaitMessage(ctx context.Context, taskID, state, content string) error

	// UpdateWaitState applies a wait-state metadata change.
	UpdateWaitState(ctx context.Context, taskID string, upd WaitStateUpdate) error
}
