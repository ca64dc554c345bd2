package config

func applyDefaults(c *Config) {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}

	if c.Wait.DefaultTimeoutSeconds == 0 {
		c.Wait.DefaultTimeoutSeconds = 300
	}
	if c.Wait.DefaultPollIntervalSec == 0 {
		c.Wait.DefaultPollIntervalSec = 2.0
	}
	if c.Wait.MinPollSeconds == 0 {
		c.Wait.MinPollSeconds = 0.5
	}
	if c.Wait.MaxPollSeconds == 0 {
		c.Wait.MaxPollSeconds = 5.0
	}

	if c.Capture.DiffDownsampleWidth == 0 {
		c.Capture.DiffDownsampleWidth = 320
	}
	if c.Capture.DiffPixelThreshold == 0 {
		c.Capture.DiffPixelThreshold = 10
	}
	if c.Capture.DiffChangeRatio == 0 {
		c.Capture.DiffChangeRatio = 0.01
	}
	if c.Capture.DefaultDisplay == "" {
		c.Capture.DefaultDisplay = ":99"
	}

	if c.Vision.Backend == "" {
		c.Vision.Backend = "ollama"
	}
	if c.Vision.Model == "" {
		switch c.Vision.Backend {
		case "openrouter":
			c.Vision.Model = "google/gemini-2.0-flash-lite-001"
		default:
			c.Vision.Model = "minicpm-v"
		}
	}
	if c.Vision.URL == "" {
		switch c.Vision.Backend {
		case "openrouter":
			c.Vision.URL = "https://openrouter.ai/api/v1"
		default:
			c.Vision.URL = "http://localhost:11434"
		}
	}
	if c.Vision.TimeoutSeconds == 0 {
		c.Vision.TimeoutSeconds = 180
	}
	if c.Vision.MaxRetries == 0 {
		c.Vision.MaxRetries = 3
	}

	if c.Notify.CLI == "" {
		c.Notify.CLI = "openclaw"
	}
	if c.Notify.TimeoutSeconds == 0 {
		c.Notify.TimeoutSeconds = 10
	}
	if c.Notify.StatePrefix == "" {
		c.Notify.StatePrefix = "smart_wait"
	}

	if c.Store.Path == "" {
		c.Store.Path = "~/.smartwaitd/data.db"
	}
	if c.Store.PruneSchedule == "" {
		c.Store.PruneSchedule = "0 3 * * *"
	}
	if c.Store.RetentionDays == 0 {
		c.Store.RetentionDays = 30
	}

	if c.Server.Listen == "" {
		c.Server.Listen = "127.0.0.1:18790"
	}
}
