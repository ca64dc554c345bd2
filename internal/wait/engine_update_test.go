package wait

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/smartwaitd/internal/vision"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func TestUpdate_ReplacesCriteria(t *testing.T) {
	fx := newEngineFixture(t, vision.NewMockEvaluator("NO: x"), newConstantCapturer())

	id, err := fx.engine.Register(basicRequest())
	require.NoError(t, err)

	require.NoError(t, fx.engine.Update(id, UpdateRequest{Criteria: strPtr("terminal shows DONE")}))

	snap, err := fx.engine.Status(id)
	require.NoError(t, err)
	assert.Equal(t, "terminal shows DONE", snap.Criteria)
	assert.Contains(t, snap.History[len(snap.History)-1], "criteria updated")
}

func TestUpdate_ResetsDeadline(t *testing.T) {
	fx := newEngineFixture(t, vision.NewMockEvaluator("NO: x"), newConstantCapturer())

	req := basicRequest()
	req.TimeoutSeconds = 1
	id, err := fx.engine.Register(req)
	require.NoError(t, err)

	// Push the deadline far out before the 1s timeout can fire.
	require.NoError(t, fx.engine.Update(id, UpdateRequest{TimeoutSeconds: intPtr(3600)}))

	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, "watching", fx.recorder.status(id), "extended job must not time out")
	assert.Equal(t, 0, fx.notifier.count())

	snap, err := fx.engine.Status(id)
	require.NoError(t, err)
	assert.Equal(t, 3600, snap.TimeoutSeconds)
}

func TestUpdate_AppendsNote(t *testing.T) {
	fx := newEngineFixture(t, vision.NewMockEvaluator("NO: x"), newConstantCapturer())

	id, err := fx.engine.Register(basicRequest())
	require.NoError(t, err)
	require.NoError(t, fx.engine.Update(id, UpdateRequest{Note: strPtr("operator checked manually")}))

	snap, err := fx.engine.Status(id)
	require.NoError(t, err)
	assert.Contains(t, snap.History, "operator checked manually")
}

func TestUpdate_InvalidArgs(t *testing.T) {
	fx := newEngineFixture(t, vision.NewMockEvaluator("NO: x"), newConstantCapturer())

	id, err := fx.engine.Register(basicRequest())
	require.NoError(t, err)

	require.ErrorIs(t, fx.engine.Update(id, UpdateRequest{Criteria: strPtr("  ")}), ErrInvalidArg)
	require.ErrorIs(t, fx.engine.Update(id, UpdateRequest{TimeoutSeconds: intPtr(0)}), ErrInvalidArg)
}

func TestUpdate_NotFound(t *testing.T) {
	fx := newEngineFixture(t, vision.NewMockEvaluator("NO: x"), nil)
	require.ErrorIs(t, fx.engine.Update("missing", UpdateRequest{Note: strPtr("hi")}), ErrNotFound)
}

func TestUpdate_AlreadyTerminal(t *testing.T) {
	fx := newEngineFixture(t, vision.NewMockEvaluator("NO: x"), newConstantCapturer())

	id, err := fx.engine.Register(basicRequest())
	require.NoError(t, err)
	require.NoError(t, fx.engine.Cancel(id, "stop"))

	err = fx.engine.Update(id, UpdateRequest{Note: strPtr("too late")})
	require.ErrorIs(t, err, ErrAlreadyTerminal)
}
