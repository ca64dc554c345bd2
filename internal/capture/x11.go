package capture

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/openclaw/smartwaitd/internal/logger"
)

const (
	captureTimeout = 15 * time.Second
	resolveTimeout = 5 * time.Second
)

// X11Capturer grabs frames from X displays (Xvfb included) by shelling out to
// ImageMagick's import; window names are resolved with xdotool. Both tools are
// expected on PATH.
type X11Capturer struct {
	logger *logger.Logger
}

// NewX11Capturer creates an X11 capturer.
func NewX11Capturer(log *logger.Logger) *X11Capturer {
	return &X11Capturer{logger: log}
}

// Capture reads one frame from the given display. Screen and pty targets grab
// the root window; window targets are resolved by id or by title substring at
// every capture (windows come and go between polls).
func (c *X11Capturer) Capture(ctx context.Context, display string, target Target) (*Frame, error) {
	window := "root"
	if target.Kind == TargetWindow {
		id, err := c.resolveWindow(ctx, display, target.Window)
		if err != nil {
			return nil, err
		}
		window = id
	}

	captureCtx, cancel := context.WithTimeout(ctx, captureTimeout)
	defer cancel()

	cmd := exec.CommandContext(captureCtx, "import", "-silent", "-window", window, "png:-")
	cmd.Env = append(os.Environ(), "DISPLAY="+display)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("import failed on %s: %w (%s)", display, err, strings.TrimSpace(stderr.String()))
	}

	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to decode captured frame: %w", err)
	}

	return FrameFromImage(img), nil
}

// resolveWindow returns an X window id for the target: hex ids pass through,
// names go through xdotool title search, first match wins.
func (c *X11Capturer) resolveWindow(ctx context.Context, display, window string) (string, error) {
	if strings.HasPrefix(window, "0x") {
		return window, nil
	}

	resolveCtx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	cmd := exec.CommandContext(resolveCtx, "xdotool", "search", "--name", window)
	cmd.Env = append(os.Environ(), "DISPLAY="+display)

	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("window %q not found on %s: %w", window, display, err)
	}

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return "", fmt.Errorf("window %q not found on %s", window, display)
	}

	c.logger.Debug("resolved window",
		logger.Field{Key: "name", Value: window},
		logger.Field{Key: "window_id", Value: lines[0]},
		logger.Field{Key: "display", Value: display})

	return lines[0], nil
}
