package wait

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/smartwaitd/internal/vision"
)

func TestCancel_DuringSlowVisionCall(t *testing.T) {
	visionStarted := make(chan struct{}, 1)
	release := make(chan struct{})

	evaluator := vision.NewMockEvaluator()
	evaluator.Hook = func(call int, _ string) (string, error) {
		select {
		case visionStarted <- struct{}{}:
		default:
		}
		<-release
		return "YES: finished after all", nil
	}

	fx := newEngineFixture(t, evaluator, nil)

	req := basicRequest()
	req.TimeoutSeconds = 30
	id, err := fx.engine.Register(req)
	require.NoError(t, err)

	// Wait until the evaluation is blocked inside the vision call.
	select {
	case <-visionStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("vision call never started")
	}

	require.NoError(t, fx.engine.Cancel(id, "user aborted"))

	// Cancellation is immediate and wakes exactly once.
	text := fx.notifier.wait(t, 5*time.Second)
	assert.Contains(t, text, "[smart_wait cancelled] "+id)
	assert.Contains(t, text, "user aborted")
	assert.Equal(t, "cancelled", fx.recorder.status(id))

	// The in-flight call finishes with a resolved verdict; the first
	// terminal writer already won, so nothing further happens.
	close(release)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, "cancelled", fx.recorder.status(id))
	assert.Equal(t, 1, fx.notifier.count())
}

func TestCancel_IdempotentOnTerminal(t *testing.T) {
	evaluator := vision.NewMockEvaluator("YES: done")
	fx := newEngineFixture(t, evaluator, nil)

	id, err := fx.engine.Register(basicRequest())
	require.NoError(t, err)
	fx.notifier.wait(t, 5*time.Second)

	require.NoError(t, fx.engine.Cancel(id, "again"))
	require.NoError(t, fx.engine.Cancel(id, "and again"))
	assert.Equal(t, "resolved", fx.recorder.status(id))
	assert.Equal(t, 1, fx.notifier.count())
}

func TestCancel_UnknownID(t *testing.T) {
	fx := newEngineFixture(t, vision.NewMockEvaluator("NO: x"), nil)
	require.ErrorIs(t, fx.engine.Cancel("missing", ""), ErrNotFound)
}

func TestCancel_EmptyReasonInWakeText(t *testing.T) {
	evaluator := vision.NewMockEvaluator()
	evaluator.Hook = func(int, string) (string, error) { return "NO: waiting", nil }
	fx := newEngineFixture(t, evaluator, newConstantCapturer())

	id, err := fx.engine.Register(basicRequest())
	require.NoError(t, err)
	require.NoError(t, fx.engine.Cancel(id, ""))

	text := fx.notifier.wait(t, 5*time.Second)
	assert.Contains(t, text, "(no reason)")
}

func TestCancel_RemovesFromActiveSet(t *testing.T) {
	fx := newEngineFixture(t, vision.NewMockEvaluator("NO: x"), newConstantCapturer())

	id, err := fx.engine.Register(basicRequest())
	require.NoError(t, err)
	require.NoError(t, fx.engine.Cancel(id, "done with it"))

	assert.Empty(t, fx.engine.StatusAll())

	// The terminal snapshot is still reachable through the store.
	snap, err := fx.engine.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, snap.Status)
}
