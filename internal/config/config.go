package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load loads configuration from a TOML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	expandConfig(&cfg)
	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// Default returns a configuration with all defaults applied and no file read.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	expandConfig(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg
}

// Validate checks configuration validity and returns all problems found.
func (c *Config) Validate() []error {
	var errors []error

	if c.Logging.Level == "" {
		errors = append(errors, fmt.Errorf("logging.level is required"))
	} else {
		validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
		if !validLevels[strings.ToLower(c.Logging.Level)] {
			errors = append(errors, fmt.Errorf("invalid logging.level: %s (expected: debug, info, warn, error)", c.Logging.Level))
		}
	}

	if c.Logging.Format != "" {
		validFormats := map[string]bool{"json": true, "text": true}
		if !validFormats[strings.ToLower(c.Logging.Format)] {
			errors = append(errors, fmt.Errorf("invalid logging.format: %s (expected: json, text)", c.Logging.Format))
		}
	}

	if c.Wait.DefaultTimeoutSeconds <= 0 {
		errors = append(errors, fmt.Errorf("wait.default_timeout_s must be > 0"))
	}
	if c.Wait.MinPollSeconds <= 0 {
		errors = append(errors, fmt.Errorf("wait.min_poll_s must be > 0"))
	}
	if c.Wait.MaxPollSeconds < c.Wait.MinPollSeconds {
		errors = append(errors, fmt.Errorf("wait.max_poll_s must be >= wait.min_poll_s"))
	}

	if c.Capture.DiffDownsampleWidth < 1 {
		errors = append(errors, fmt.Errorf("capture.diff_downsample_width must be >= 1"))
	}
	if c.Capture.DiffPixelThreshold < 0 || c.Capture.DiffPixelThreshold > 255 {
		errors = append(errors, fmt.Errorf("capture.diff_pixel_threshold must be between 0 and 255"))
	}
	if c.Capture.DiffChangeRatio < 0 || c.Capture.DiffChangeRatio > 1 {
		errors = append(errors, fmt.Errorf("capture.diff_change_ratio must be between 0 and 1"))
	}

	switch c.Vision.Backend {
	case "ollama":
	case "openrouter":
		if c.Vision.APIKey == "" {
			errors = append(errors, fmt.Errorf("vision.api_key is required when backend is 'openrouter'"))
		}
	default:
		errors = append(errors, fmt.Errorf("invalid vision.backend: %s (expected: ollama, openrouter)", c.Vision.Backend))
	}

	if c.Notify.TimeoutSeconds <= 0 {
		errors = append(errors, fmt.Errorf("notify.timeout_seconds must be > 0"))
	}

	if c.Store.Path == "" {
		errors = append(errors, fmt.Errorf("store.path is required"))
	}
	if c.Store.RetentionDays < 0 {
		errors = append(errors, fmt.Errorf("store.retention_days must be >= 0"))
	}

	if c.Server.Listen == "" {
		errors = append(errors, fmt.Errorf("server.listen is required"))
	}

	return errors
}

// expandConfig expands ${VAR} references and ~ in paths.
func expandConfig(c *Config) {
	c.Vision.APIKey = expandEnv(c.Vision.APIKey)
	c.Vision.URL = expandEnv(c.Vision.URL)
	c.Notify.CLI = expandEnv(c.Notify.CLI)

	c.Store.Path = expandHome(expandEnv(c.Store.Path))
	c.Task.Path = expandHome(expandEnv(c.Task.Path))
	c.Logging.Output = expandEnv(c.Logging.Output)

	if c.Task.Path == "" {
		c.Task.Path = c.Store.Path
	}
}

// expandEnv expands a ${VAR} or ${VAR:default} reference.
func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") {
		return s
	}

	end := strings.Index(s, "}")
	if end == -1 {
		return s
	}

	content := s[2:end]
	if parts := strings.SplitN(content, ":", 2); len(parts) == 2 {
		if val := os.Getenv(parts[0]); val != "" {
			return val
		}
		return parts[1]
	}

	return os.Getenv(content)
}

// expandHome expands a leading ~ in a path.
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
