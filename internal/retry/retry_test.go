package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  4,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestWithExponentialBackoffSucceedsAfterFailures(t *testing.T) {
	calls := 0
	result := WithExponentialBackoff(context.Background(), fastConfig(), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("transient")
		}
		return nil
	})

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, calls)
	assert.NoError(t, result.LastError)
}

func TestWithExponentialBackoffStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("execution reverted")
	cfg := fastConfig()
	cfg.ShouldRetry = func(err error) bool { return !errors.Is(err, permanent) }

	calls := 0
	err := Do(context.Background(), cfg, func(ctx context.Context, attempt int) error {
		calls++
		return permanent
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestWithExponentialBackoffExhaustsAttempts(t *testing.T) {
	calls := 0
	result := WithExponentialBackoff(context.Background(), fastConfig(), func(ctx context.Context, attempt int) error {
		calls++
		return errors.New("down")
	})

	assert.False(t, result.Success)
	assert.Equal(t, 4, calls)
	assert.EqualError(t, result.LastError, "down")
}

func TestWithExponentialBackoffHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig()
	cfg.InitialDelay = time.Second
	cfg.MaxDelay = time.Second

	result := WithExponentialBackoff(ctx, cfg, func(ctx context.Context, attempt int) error {
		cancel()
		return errors.New("down")
	})

	assert.False(t, result.Success)
	assert.ErrorIs(t, result.LastError, context.Canceled)
	assert.Equal(t, 1, result.Attempts)
}

func TestCalculateDelayCapped(t *testing.T) {
	cfg := &RetryConfig{InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 2}

	assert.Equal(t, time.Second, calculateDelay(cfg, 1))
	assert.Equal(t, 2*time.Second, calculateDelay(cfg, 2))
	assert.Equal(t, 3*time.Second, calculateDelay(cfg, 5))
}
