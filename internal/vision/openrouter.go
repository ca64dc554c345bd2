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

// OpenRouterRequestTimeout is the default timeout for cloud vision calls.
const OpenRouterRequestTimeout = 120 * time.Second

// OpenRouterConfig contains configuration for the OpenRouter backend.
type OpenRouterConfig struct {
	APIKey         string
	URL            string // base URL, defaults to https://openrouter.ai/api/v1
	Model          string // e.g. google/gemini-2.0-flash-lite-001
	TimeoutSeconds int
	MaxRetries     int
}

// OpenRouterEvaluator evaluates conditions through OpenRouter's
// OpenAI-compatible chat completions API.
type OpenRouterEvaluator struct {
	client *http.Client
	config OpenRouterConfig
	logger *logger.Logger
}

type orRequest struct {
	Model       string      `json:"model"`
	Messages    []orMessage `json:"messages"`
	MaxTokens   int         `json:"max_tokens"`
	Temperature float64     `json:"temperature"`
}

type orMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string for system, []orContent for user
}

type orContent struct {
	Type     string      `json:"type"`
	Text     string      `json:"text,omitempty"`
	ImageURL *orImageURL `json:"image_url,omitempty"`
}

type orImageURL struct {
	URL string `json:"url"`
}

type orResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewOpenRouterEvaluator creates an OpenRouter-backed evaluator.
func NewOpenRouterEvaluator(cfg OpenRouterConfig, log *logger.Logger) *OpenRouterEvaluator {
	if cfg.URL == "" {
		cfg.URL = "https://openrouter.ai/api/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "google/gemini-2.0-flash-lite-001"
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = OpenRouterRequestTimeout
	}

	return &OpenRouterEvaluator{
		client: &http.Client{Timeout: timeout},
		config: cfg,
		logger: log,
	}
}

// Evaluate encodes the frame as a data URI and asks the model whether the
// condition holds. Transient failures are retried with backoff.
func (e *OpenRouterEvaluator) Evaluate(ctx context.Context, frame *capture.Frame, condition string) (string, error) {
	if e.config.APIKey == "" {
		return "", fmt.Errorf("openrouter api key not set")
	}

	jpegBytes, err := encodeJPEG(frame)
	if err != nil {
		return "", err
	}

	dataURI := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegBytes)
	reqBody := orRequest{
		Model: e.config.Model,
		Messages: []orMessage{
			{Role: "system", Content: systemInstructions},
			{Role: "user", Content: []orContent{
				{Type: "image_url", ImageURL: &orImageURL{URL: dataURI}},
				{Type: "text", Text: buildPrompt(condition)},
			}},
		},
		MaxTokens:   150,
		Temperature: 0.1,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	return retry.Do(ctx, func() (string, error) {
		return e.doRequest(ctx, jsonBody)
	}, retry.Config{MaxAttempts: e.config.MaxRetries})
}

func (e *OpenRouterEvaluator) doRequest(ctx context.Context, reqBody []byte) (string, error) {
	start := time.Now()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.URL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.config.APIKey)

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

	var resp orResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("openrouter error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openrouter returned no choices")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	e.logger.DebugCtx(ctx, "vision response",
		logger.Field{Key: "backend", Value: "openrouter"},
		logger.Field{Key: "model", Value: e.config.Model},
		logger.Field{Key: "duration_ms", Value: time.Since(start).Milliseconds()},
		logger.Field{Key: "response", Value: text})

	return text, nil
}
