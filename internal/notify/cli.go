package notify

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/openclaw/smartwaitd/internal/logger"
)

const defaultNotifyTimeout = 10 * time.Second

// CLIConfig configures the system-event notifier.
type CLIConfig struct {
	CLI            string // agent host CLI binary, e.g. "openclaw"
	TimeoutSeconds int    // wall-clock cap for the subprocess
}

// CLINotifier wakes the agent by spawning `<cli> system event --text <text>
// --mode now`. The subprocess is killed once the cap elapses.
type CLINotifier struct {
	config  CLIConfig
	logger  *logger.Logger
	runner  commandRunner
	timeout time.Duration
}

// commandRunner abstracts subprocess execution for tests.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, []byte, error)

// NewCLINotifier creates a notifier that shells out to the agent host CLI.
func NewCLINotifier(cfg CLIConfig, log *logger.Logger) *CLINotifier {
	if cfg.CLI == "" {
		cfg.CLI = "openclaw"
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = defaultNotifyTimeout
	}
	return &CLINotifier{
		config:  cfg,
		logger:  log,
		runner:  runCommand,
		timeout: timeout,
	}
}

// Notify dispatches one wake event. A non-zero exit or timeout is returned as
// an error; the caller logs and swallows it.
func (n *CLINotifier) Notify(ctx context.Context, text string) error {
	runCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	stdout, stderr, err := n.runner(runCtx, n.config.CLI,
		"system", "event", "--text", text, "--mode", "now")
	_ = stdout
	if err != nil {
		return fmt.Errorf("system event injection failed: %w (%s)", err, strings.TrimSpace(string(stderr)))
	}

	n.logger.Info("system event injected",
		logger.Field{Key: "text", Value: truncate(text, 80)})
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
