// Package config provides configuration loading and validation for smartwaitd.
// It supports TOML configuration files with environment variable expansion,
// default values, and comprehensive validation.
//
// Configuration structure:
//   - [logging]: Logging level, format, and output
//   - [wait]: Engine timing knobs (timeout, poll interval bounds)
//   - [capture]: Diff-gate thresholds and default display
//   - [vision]: Vision backend selection and endpoint
//   - [notify]: Agent wake-event injection
//   - [task]: Task sink database
//   - [store]: Terminal-record store and pruning
//   - [server]: HTTP API listen address
//
// Environment variables:
// Values can reference environment variables using ${VAR} or ${VAR:default}
// syntax, for example: api_key = "${OPENROUTER_API_KEY}". In addition, the
// SMARTWAIT_* variables enumerated in env.go override individual engine knobs.
package config

// Config represents the main daemon configuration.
type Config struct {
	Logging LoggingConfig `toml:"logging"`
	Wait    WaitConfig    `toml:"wait"`
	Capture CaptureConfig `toml:"capture"`
	Vision  VisionConfig  `toml:"vision"`
	Notify  NotifyConfig  `toml:"notify"`
	Task    TaskConfig    `toml:"task"`
	Store   StoreConfig   `toml:"store"`
	Server  ServerConfig  `toml:"server"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Output string `toml:"output"`
}

// WaitConfig holds engine timing knobs.
type WaitConfig struct {
	DefaultTimeoutSeconds  int     `toml:"default_timeout_s"`
	DefaultPollIntervalSec float64 `toml:"default_poll_interval_s"`
	MinPollSeconds         float64 `toml:"min_poll_s"`
	MaxPollSeconds         float64 `toml:"max_poll_s"`
}

// CaptureConfig holds diff-gate thresholds and the fallback display.
type CaptureConfig struct {
	DiffDownsampleWidth int     `toml:"diff_downsample_width"`
	DiffPixelThreshold  int     `toml:"diff_pixel_threshold"`
	DiffChangeRatio     float64 `toml:"diff_change_ratio"`
	DefaultDisplay      string  `toml:"default_display"`
}

// VisionConfig selects and configures the vision backend.
type VisionConfig struct {
	Backend        string `toml:"backend"` // ollama, openrouter
	Model          string `toml:"model"`
	URL            string `toml:"url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxRetries     int    `toml:"max_retries"`
}

// NotifyConfig controls agent wake-event injection.
type NotifyConfig struct {
	CLI            string `toml:"cli"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	StatePrefix    string `toml:"state_prefix"`
}

// TaskConfig controls the task sink.
type TaskConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"` // defaults to the store path
}

// StoreConfig controls the terminal-record store.
type StoreConfig struct {
	Path          string `toml:"path"`
	PruneSchedule string `toml:"prune_schedule"` // cron expression
	RetentionDays int    `toml:"retention_days"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Listen string `toml:"listen"`
}
