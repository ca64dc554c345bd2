package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), func() (string, error) {
		calls++
		return "ok", nil
	}, Config{})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("connection refused")
		}
		return "ok", nil
	}, Config{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestDo_NonRetryableFailsImmediately(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), func() (string, error) {
		calls++
		return "", errors.New("HTTP error: status=401")
	}, Config{MaxAttempts: 5, InitialBackoff: time.Millisecond})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), func() (string, error) {
		calls++
		return "", errors.New("timeout")
	}, Config{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "all 3 attempts failed")
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := Do(ctx, func() (string, error) {
		calls++
		return "", errors.New("connection reset")
	}, Config{MaxAttempts: 10, InitialBackoff: time.Second, MaxBackoff: time.Second})

	require.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(errors.New("status 404 not found")))
	assert.False(t, IsRetryable(errors.New("context canceled")))
	assert.True(t, IsRetryable(errors.New("context deadline exceeded")))
	assert.True(t, IsRetryable(errors.New("rate limit hit")))
	assert.True(t, IsRetryable(errors.New("HTTP error: status=503")))
	assert.False(t, IsRetryable(errors.New("banana")))
}
