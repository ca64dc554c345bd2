package wait

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openclaw/smartwaitd/internal/capture"
	"github.com/openclaw/smartwaitd/internal/logger"
	"github.com/openclaw/smartwaitd/internal/store"
	"github.com/openclaw/smartwaitd/internal/task"
	"github.com/openclaw/smartwaitd/internal/vision"
)

// fakeRecorder is an in-memory Recorder.
type fakeRecorder struct {
	mu           sync.Mutex
	records      map[string]*store.Record
	failTerminal error
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{records: make(map[string]*store.Record)}
}

func (r *fakeRecorder) RecordCreated(rec store.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.Status = "watching"
	r.records[rec.ID] = &rec
	return nil
}

func (r *fakeRecorder) RecordTerminal(id, status, resultMessage string, resolvedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failTerminal != nil {
		return r.failTerminal
	}
	rec, ok := r.records[id]
	if !ok {
		return store.ErrNotFound
	}
	rec.Status = status
	rec.ResultMessage = resultMessage
	rec.ResolvedAt = &resolvedAt
	return nil
}

func (r *fakeRecorder) Get(id string) (*store.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *rec
	return &copied, nil
}

func (r *fakeRecorder) status(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[id]; ok {
		return rec.Status
	}
	return ""
}

// fakeNotifier records wake texts.
type fakeNotifier struct {
	mu    sync.Mutex
	texts []string
	ch    chan string
	err   error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{ch: make(chan string, 16)}
}

func (n *fakeNotifier) Notify(_ context.Context, text string) error {
	n.mu.Lock()
	n.texts = append(n.texts, text)
	err := n.err
	n.mu.Unlock()
	n.ch <- text
	return err
}

func (n *fakeNotifier) wait(t *testing.T, timeout time.Duration) string {
	t.Helper()
	select {
	case text := <-n.ch:
		return text
	case <-time.After(timeout):
		t.Fatal("timed out waiting for wake notification")
		return ""
	}
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.texts)
}

// fakeCapturer serves frames from a function.
type fakeCapturer struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, display string, target capture.Target) (*capture.Frame, error)
}

// changingFrames returns a capturer whose frames differ on every call, so the
// diff gate always passes.
func changingFrames() *fakeCapturer {
	return &fakeCapturer{fn: func(call int, _ string, _ capture.Target) (*capture.Frame, error) {
		return uniformFrame(byte(call * 37)), nil
	}}
}

func (c *fakeCapturer) Capture(_ context.Context, display string, target capture.Target) (*capture.Frame, error) {
	c.mu.Lock()
	c.calls++
	call := c.calls
	fn := c.fn
	c.mu.Unlock()
	return fn(call, display, target)
}

func (c *fakeCapturer) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// newFailingCapturer fails every capture.
func newFailingCapturer() *fakeCapturer {
	return &fakeCapturer{fn: func(int, string, capture.Target) (*capture.Frame, error) {
		return nil, fmt.Errorf("display down")
	}}
}

// newConstantCapturer serves the same frame forever.
func newConstantCapturer() *fakeCapturer {
	return &fakeCapturer{fn: func(int, string, capture.Target) (*capture.Frame, error) {
		return uniformFrame(128), nil
	}}
}

func uniformFrame(v byte) *capture.Frame {
	f := &capture.Frame{Width: 32, Height: 32, Pix: make([]byte, 4*32*32)}
	for i := 0; i < len(f.Pix); i += 4 {
		f.Pix[i] = v
		f.Pix[i+1] = v
		f.Pix[i+2] = v
		f.Pix[i+3] = 255
	}
	return f
}

// fakeSink records task-sink invocations.
type fakeSink struct {
	mu       sync.Mutex
	started  []string
	messages []string
	updates  []task.WaitStateUpdate
}

func (s *fakeSink) WaitStarted(_ context.Context, taskID, waitID, target, criteria string, timeoutSeconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, fmt.Sprintf("%s/%s", taskID, waitID))
	return nil
}

func (s *fakeSink) PostWaitMessage(_ context.Context, taskID, state, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, fmt.Sprintf("%s: %s", state, content))
	return nil
}

func (s *fakeSink) UpdateWaitState(_ context.Context, taskID string, upd task.WaitStateUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, upd)
	return nil
}

// engineFixture wires an engine with fast polling and the given fakes.
type engineFixture struct {
	engine   *Engine
	recorder *fakeRecorder
	notifier *fakeNotifier
	capturer capture.Capturer
	sink     *fakeSink
}

func newEngineFixture(t *testing.T, evaluator vision.Evaluator, capturer capture.Capturer) *engineFixture {
	t.Helper()

	log, err := logger.New(logger.Config{Level: "error", Format: "text", Output: "stderr"})
	require.NoError(t, err)

	if capturer == nil {
		capturer = changingFrames()
	}
	fx := &engineFixture{
		recorder: newFakeRecorder(),
		notifier: newFakeNotifier(),
		capturer: capturer,
		sink:     &fakeSink{},
	}

	fx.engine = New(Config{
		DefaultPollInterval: 10 * time.Millisecond,
		MinPollInterval:     time.Millisecond,
		MaxPollInterval:     50 * time.Millisecond,
	}, Deps{
		Logger:    log,
		Capturer:  capturer,
		Evaluator: evaluator,
		Notifier:  fx.notifier,
		Recorder:  fx.recorder,
		Sink:      fx.sink,
	})

	require.NoError(t, fx.engine.Start(context.Background()))
	t.Cleanup(fx.engine.Stop)
	return fx
}

func basicRequest() RegisterRequest {
	return RegisterRequest{
		Target:              "screen",
		Display:             ":1",
		Criteria:            "download complete",
		TimeoutSeconds:      60,
		PollIntervalSeconds: 0.01,
	}
}
