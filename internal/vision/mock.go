package vision

import (
	"context"
	"sync"

	"github.com/openclaw/smartwaitd/internal/capture"
)

// MockEvaluator is a scripted evaluator for tests. Replies are consumed in
// order; the last reply repeats once the script runs out. Safe for concurrent
// use.
type MockEvaluator struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   int

	// Hook, when set, is invoked for each call instead of the scripted
	// replies. It receives the call number (1-based) and the condition.
	Hook func(call int, condition string) (string, error)
}

// NewMockEvaluator creates a mock that returns the given replies in order and
// then keeps repeating the last one.
func NewMockEvaluator(replies ...string) *MockEvaluator {
	return &MockEvaluator{replies: replies}
}

// FailWith makes every call return err.
func (m *MockEvaluator) FailWith(err error) *MockEvaluator {
	m.errs = []error{err}
	return m
}

// Evaluate returns the next scripted reply.
func (m *MockEvaluator) Evaluate(_ context.Context, _ *capture.Frame, condition string) (string, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	hook := m.Hook
	m.mu.Unlock()

	if hook != nil {
		return hook(call, condition)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.errs) > 0 {
		return "", m.errs[0]
	}
	if len(m.replies) == 0 {
		return "NO: nothing scripted", nil
	}
	idx := call - 1
	if idx >= len(m.replies) {
		idx = len(m.replies) - 1
	}
	return m.replies[idx], nil
}

// Calls returns how many times Evaluate has been invoked.
func (m *MockEvaluator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
