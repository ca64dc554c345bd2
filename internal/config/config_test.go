package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 300, cfg.Wait.DefaultTimeoutSeconds)
	assert.Equal(t, 2.0, cfg.Wait.DefaultPollIntervalSec)
	assert.Equal(t, 0.5, cfg.Wait.MinPollSeconds)
	assert.Equal(t, 5.0, cfg.Wait.MaxPollSeconds)
	assert.Equal(t, 320, cfg.Capture.DiffDownsampleWidth)
	assert.Equal(t, 10, cfg.Capture.DiffPixelThreshold)
	assert.Equal(t, 0.01, cfg.Capture.DiffChangeRatio)
	assert.Equal(t, "ollama", cfg.Vision.Backend)
	assert.Equal(t, "openclaw", cfg.Notify.CLI)
	assert.Equal(t, 10, cfg.Notify.TimeoutSeconds)
	assert.Equal(t, "127.0.0.1:18790", cfg.Server.Listen)
}

func TestLoad_TaskPathDefaultsToStorePath(t *testing.T) {
	path := writeConfig(t, `
[store]
path = "/tmp/sw-test/data.db"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/sw-test/data.db", cfg.Task.Path)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("SW_TEST_KEY", "secret-123")

	path := writeConfig(t, `
[vision]
backend = "openrouter"
api_key = "${SW_TEST_KEY}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-123", cfg.Vision.APIKey)
}

func TestLoad_EnvExpansionDefault(t *testing.T) {
	path := writeConfig(t, `
[vision]
url = "${SW_TEST_MISSING:http://fallback:11434}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://fallback:11434", cfg.Vision.URL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvDiffChangeRatio, "0.05")
	t.Setenv(EnvMaxPollSeconds, "9")
	t.Setenv(EnvDefaultTimeout, "60")
	t.Setenv(EnvWakeStatePrefix, "custom_wait")

	path := writeConfig(t, "")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.05, cfg.Capture.DiffChangeRatio)
	assert.Equal(t, 9.0, cfg.Wait.MaxPollSeconds)
	assert.Equal(t, 60, cfg.Wait.DefaultTimeoutSeconds)
	assert.Equal(t, "custom_wait", cfg.Notify.StatePrefix)
}

func TestLoad_MalformedEnvOverrideIgnored(t *testing.T) {
	t.Setenv(EnvDiffPixelThreshold, "not-a-number")

	path := writeConfig(t, "")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Capture.DiffPixelThreshold)
}

func TestValidate_OK(t *testing.T) {
	cfg := Default()
	assert.Empty(t, cfg.Validate())
}

func TestValidate_Errors(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "verbose"
	cfg.Wait.MaxPollSeconds = 0.1 // below min
	cfg.Capture.DiffChangeRatio = 2
	cfg.Vision.Backend = "banana"

	errs := cfg.Validate()
	require.Len(t, errs, 4)
}

func TestValidate_OpenRouterRequiresKey(t *testing.T) {
	cfg := Default()
	cfg.Vision.Backend = "openrouter"
	cfg.Vision.APIKey = ""

	errs := cfg.Validate()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "vision.api_key")
}

func TestLoadEnvOptional_MissingFile(t *testing.T) {
	require.NoError(t, LoadEnvOptional(filepath.Join(t.TempDir(), "absent.env")))
}

func TestLoadEnv_ParsesPairs(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nSW_ENV_A=1\n\nSW_ENV_B = two\n"), 0644))

	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "1", os.Getenv("SW_ENV_A"))
	assert.Equal(t, "two", os.Getenv("SW_ENV_B"))
	os.Unsetenv("SW_ENV_A")
	os.Unsetenv("SW_ENV_B")
}
