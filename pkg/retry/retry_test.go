package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(5), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	sentinel := errors.New("always fails")
	calls := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		calls++
		return sentinel
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel))
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(5), func() error {
		calls++
		return NonRetryable(errors.New("bad input"))
	})
	require.Error(t, err)
	assert.True(t, IsNonRetryable(err))
	assert.Equal(t, 1, calls)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Config{MaxAttempts: 10, InitialDelay: 50 * time.Millisecond}, func() error {
		calls++
		cancel()
		return errors.New("transient")
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, calls)
}

func TestNoneRunsOnce(t *testing.T) {
	calls := 0
	err := Do(context.Background(), None(), func() error {
		calls++
		return errors.New("nope")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	got, err := DoWithResult(context.Background(), fastConfig(3), func() (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("transient")
		}
		return "payload", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "payload", got)
}
