// Package notify delivers terminal wake events back to the hosting agent.
// The engine calls Notify once per finished wait job; delivery failures are
// logged by the caller and never affect job state.
package notify

import "context"

// Notifier injects one wake event into the agent host.
type Notifier interface {
	// Notify dispatches the wake text. Implementations must observe a
	// wall-clock cap so a stuck host cannot block the engine.
	Notify(ctx context.Context, text string) error
}
