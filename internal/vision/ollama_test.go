package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/smartwaitd/internal/capture"
	"github.com/openclaw/smartwaitd/internal/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	return log
}

func testFrame() *capture.Frame {
	f := &capture.Frame{Width: 16, Height: 16, Pix: make([]byte, 4*16*16)}
	for i := 3; i < len(f.Pix); i += 4 {
		f.Pix[i] = 255
	}
	return f
}

func TestOllamaEvaluator_SendsPromptAndImage(t *testing.T) {
	var got ollamaRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(ollamaResponse{Response: "YES: build finished"})
	}))
	defer server.Close()

	e := NewOllamaEvaluator(OllamaConfig{URL: server.URL, Model: "minicpm-v", MaxRetries: 1}, testLogger(t))
	reply, err := e.Evaluate(context.Background(), testFrame(), "build succeeds")

	require.NoError(t, err)
	assert.Equal(t, "YES: build finished", reply)
	assert.Equal(t, "minicpm-v", got.Model)
	assert.False(t, got.Stream)
	assert.Contains(t, got.Prompt, "CONDITION: build succeeds")
	require.Len(t, got.Images, 1)
	assert.NotEmpty(t, got.Images[0])
	assert.Equal(t, 450, got.Options.NumPredict)
}

func TestOllamaEvaluator_HTTPErrorSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	e := NewOllamaEvaluator(OllamaConfig{URL: server.URL, MaxRetries: 1}, testLogger(t))
	_, err := e.Evaluate(context.Background(), testFrame(), "anything")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=404")
}

func TestOllamaEvaluator_APIErrorField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaResponse{Error: "out of memory"})
	}))
	defer server.Close()

	e := NewOllamaEvaluator(OllamaConfig{URL: server.URL, MaxRetries: 1}, testLogger(t))
	_, err := e.Evaluate(context.Background(), testFrame(), "anything")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of memory")
}

func TestOllamaEvaluator_RetriesTransientFailures(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(ollamaResponse{Response: "NO: still loading"})
	}))
	defer server.Close()

	e := NewOllamaEvaluator(OllamaConfig{URL: server.URL, MaxRetries: 3}, testLogger(t))
	reply, err := e.Evaluate(context.Background(), testFrame(), "anything")

	require.NoError(t, err)
	assert.Equal(t, "NO: still loading", reply)
	assert.Equal(t, 2, calls)
}
