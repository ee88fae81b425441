package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/stele-indexer/internal/logging"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts  int           // Maximum number of attempts, including the first
	InitialDelay time.Duration // Initial delay before first retry
	MaxDelay     time.Duration // Maximum delay between retries
	Multiplier   float64       // Multiplier for exponential backoff
	// ShouldRetry decides whether an error is worth another attempt.
	// Nil retries every error.
	ShouldRetry func(error) bool
}

// DefaultRetryConfig returns a default retry configuration
// Pattern: 1s, 2s, 4s, 8s, max 60s
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
	}
}

// RPCRetryConfig is tuned for contract view calls made while processing one event
func RPCRetryConfig(shouldRetry func(error) bool) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		ShouldRetry:  shouldRetry,
	}
}

// RetryResult contains information about the retry operation
type RetryResult struct {
	Attempts      int           `json:"attempts"`
	Success       bool          `json:"success"`
	TotalDuration time.Duration `json:"totalDuration"`
	LastError     error         `json:"lastError,omitempty"`
}

// RetryFunc is a function that can be retried
type RetryFunc func(ctx context.Context, attempt int) error

// WithExponentialBackoff executes a function with exponential backoff retry logic
func WithExponentialBackoff(ctx context.Context, config *RetryConfig, fn RetryFunc) *RetryResult {
	logger := logging.FromContext(ctx)
	startTime := time.Now()

	result := &RetryResult{}

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result.Attempts = attempt

		err := fn(ctx, attempt)
		if err == nil {
			result.Success = true
			result.LastError = nil
			result.TotalDuration = time.Since(startTime)

			if attempt > 1 {
				logger.WithFields(map[string]interface{}{
					"attempts":      attempt,
					"totalDuration": result.TotalDuration,
				}).Info("Operation succeeded after retry")
			}
			return result
		}

		result.LastError = err

		if config.ShouldRetry != nil && !config.ShouldRetry(err) {
			break
		}

		if attempt >= config.MaxAttempts {
			logger.WithFields(map[string]interface{}{
				"attempts":      attempt,
				"totalDuration": time.Since(startTime),
				"error":         err.Error(),
			}).Error("Operation failed after max retry attempts")
			break
		}

		if ctx.Err() != nil {
			logger.WithError(ctx.Err()).Warn("Retry cancelled due to context cancellation")
			result.LastError = ctx.Err()
			break
		}

		delay := calculateDelay(config, attempt)

		logger.WithFields(map[string]interface{}{
			"attempt":     attempt,
			"maxAttempts": config.MaxAttempts,
			"delay":       delay,
			"error":       err.Error(),
		}).Warn("Operation failed, retrying with exponential backoff")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			logger.WithError(ctx.Err()).Warn("Retry cancelled during backoff")
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(startTime)
			return result
		}
	}

	result.TotalDuration = time.Since(startTime)
	return result
}

// calculateDelay calculates the delay for the next retry attempt
func calculateDelay(config *RetryConfig, attempt int) time.Duration {
	// initialDelay * multiplier^(attempt-1), capped at MaxDelay
	delay := float64(config.InitialDelay) * math.Pow(config.Multiplier, float64(attempt-1))

	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	return time.Duration(delay)
}

// Do runs fn under config and returns its last error, nil on success
func Do(ctx context.Context, config *RetryConfig, fn RetryFunc) error {
	result := WithExponentialBackoff(ctx, config, fn)
	if !result.Success {
		return fmt.Errorf("operation failed after %d attempts: %w", result.Attempts, result.LastError)
	}
	return nil
}

// WithRetry is a simpler retry function that uses default configuration
func WithRetry(ctx context.Context, fn RetryFunc) error {
	return Do(ctx, DefaultRetryConfig(), fn)
}
