package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openclaw/smartwaitd/internal/capture"
	"github.com/openclaw/smartwaitd/internal/logger"
	"github.com/openclaw/smartwaitd/internal/retry"
)

const (
	// OllamaRequestTimeout covers local model load plus inference.
	OllamaRequestTimeout = 180 * time.Second
	ollamaKeepAlive      = "10m"
)

// OllamaConfig contains configuration for the Ollama backend.
type OllamaConfig struct {
	URL            string // base URL, e.g. http://localhost:11434
	Model          string // vision model, e.g. minicpm-v
	TimeoutSeconds int    // HTTP timeout
	MaxRetries     int    // retry attempts for transient failures
}

// OllamaEvaluator evaluates conditions against a local Ollama instance.
type OllamaEvaluator struct {
	client *http.Client
	config OllamaConfig
	logger *logger.Logger
}

// ollamaRequest is the /api/generate request body.
type ollamaRequest struct {
	Model     string        `json:"model"`
	System    string        `json:"system"`
	Prompt    string        `json:"prompt"`
	Stream    bool          `json:"stream"`
	KeepAlive string        `json:"keep_alive,omitempty"`
	Images    []string      `json:"images,omitempty"`
	Options   ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	NumPredict  int     `json:"num_predict"`
	Temperature float64 `json:"temperature"`
}

// ollamaResponse is the non-streamed /api/generate response.
type ollamaResponse struct {
	Response      string `json:"response"`
	TotalDuration int64  `json:"total_duration"`
	Error         string `json:"error,omitempty"`
}

// NewOllamaEvaluator creates an Ollama-backed evaluator.
func NewOllamaEvaluator(cfg OllamaConfig, log *logger.Logger) *OllamaEvaluator {
	if cfg.URL == "" {
		cfg.URL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "minicpm-v"
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = OllamaRequestTimeout
	}

	return &OllamaEvaluator{
		client: &http.Client{Timeout: timeout},
		config: cfg,
		logger: log,
	}
}

// Evaluate encodes the frame, sends it with the condition prompt to Ollama,
// and returns the raw reply text. Transient failures are retried with backoff.
func (e *OllamaEvaluator) Evaluate(ctx context.Context, frame *capture.Frame, condition string) (string, error) {
	jpegBytes, err := encodeJPEG(frame)
	if err != nil {
		return "", err
	}

	reqBody := ollamaRequest{
		Model:     e.config.Model,
		System:    systemInstructions,
		Prompt:    buildPrompt(condition),
		Stream:    false,
		KeepAlive: ollamaKeepAlive,
		Images:    []string{base64.StdEncoding.EncodeToString(jpegBytes)},
		Options: ollamaOptions{
			NumPredict:  450,
			Temperature: 0.1,
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	return retry.Do(ctx, func() (string, error) {
		return e.doRequest(ctx, jsonBody)
	}, retry.Config{MaxAttempts: e.config.MaxRetries})
}

func (e *OllamaEvaluator) doRequest(ctx context.Context, reqBody []byte) (string, error) {
	start := time.Now()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.URL+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := e.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return "", fmt.Errorf("HTTP error: status=%d, body=%s", httpResp.StatusCode, string(respBody))
	}

	var resp ollamaResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("ollama error: %s", resp.Error)
	}

	text := strings.TrimSpace(resp.Response)
	e.logger.DebugCtx(ctx, "vision response",
		logger.Field{Key: "backend", Value: "ollama"},
		logger.Field{Key: "model", Value: e.config.Model},
		logger.Field{Key: "duration_ms", Value: time.Since(start).Milliseconds()},
		logger.Field{Key: "response", Value: text})

	return text, nil
}
