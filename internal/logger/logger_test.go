package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ValidLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "DEBUG", "Info"} {
		log, err := New(Config{Level: level, Format: "text", Output: "stdout"})
		require.NoError(t, err, "level %q should be valid", level)
		require.NotNil(t, log)
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(Config{Level: "verbose", Format: "text", Output: "stdout"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestNew_InvalidFormat(t *testing.T) {
	_, err := New(Config{Level: "info", Format: "xml", Output: "stdout"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log format")
}

func TestNew_FileOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "daemon.log")

	log, err := New(Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	log.Info("hello", Field{Key: "k", Value: "v"})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"k":"v"`)
}

func TestWith_AttachesFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "daemon.log")

	log, err := New(Config{Level: "debug", Format: "json", Output: path})
	require.NoError(t, err)

	child := log.With(Field{Key: "job_id", Value: "abc123"})
	child.Debug("tick")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"job_id":"abc123"`)
}
