// Package vision provides the capability seam between the wait engine and a
// vision model. An Evaluator receives a captured frame plus a natural-language
// condition and returns the model's raw reply text; the engine parses the
// reply into a verdict. Implementations encode the frame internally and must
// be safe for concurrent calls.
package vision

import (
	"context"
	"fmt"

	"github.com/openclaw/smartwaitd/internal/capture"
)

// systemInstructions prime the model for decisive YES/NO screenshot judgment.
const systemInstructions = "You are SmartWait, a visual condition evaluator for GUI/terminal screenshots. " +
	"Look at the screenshot and decide if the stated condition is met. " +
	"Be decisive: answer YES if the evidence is reasonably clear. " +
	"Only answer NO if the evidence is genuinely absent or contradicts the condition. " +
	"Follow the output format in the user prompt exactly."

// Evaluator asks a vision model whether a condition holds on a frame.
type Evaluator interface {
	// Evaluate returns the model's raw reply text for the given frame and
	// condition. Concurrent calls must be safe.
	Evaluate(ctx context.Context, frame *capture.Frame, condition string) (string, error)
}

// buildPrompt builds the YES/NO evaluation prompt for the vision model.
func buildPrompt(condition string) string {
	return fmt.Sprintf(
		"Look at this screenshot and tell me if the following condition is met.\n\n"+
			"CONDITION: %s\n\n"+
			"Reply with ONLY one of these two formats:\n"+
			"YES: <one sentence of visible evidence confirming the condition is met>\n"+
			"NO: <one sentence explaining what is missing or not yet visible>",
		condition)
}
