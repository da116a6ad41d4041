package resilience

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryableFunc is retried by Retry until it succeeds, a non-retryable error
// is returned, MaxRetries is exhausted, or ctx is cancelled.
type RetryableFunc func() error

// RetryableErrorFunc decides whether an error returned by a RetryableFunc
// should trigger another attempt.
type RetryableErrorFunc func(err error) bool

// RetryConfig configures Retry's backoff schedule and which errors qualify
// for another attempt.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between retries.
	MaxBackoff time.Duration

	// BackoffMultiplier scales the delay after each attempt.
	BackoffMultiplier float64

	// Jitter randomizes the computed backoff by ±20% to avoid thundering herds.
	Jitter bool

	// RetryableErrors decides whether an error should be retried.
	RetryableErrors RetryableErrorFunc
}

// DefaultRetryConfig returns a sane default retry schedule: 3 retries,
// starting at 100ms and doubling up to 5s, with jitter enabled.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
		RetryableErrors:   DefaultRetryableErrors,
	}
}

// DefaultRetryableErrors treats any non-nil error as retryable except
// context cancellation/deadline and circuit breaker errors, which signal
// that retrying immediately would not help.
func DefaultRetryableErrors(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrCircuitBreakerOpen) || errors.Is(err, ErrCircuitBreakerTimeout) {
		return false
	}
	return true
}

// calculateBackoff computes the delay before the given attempt (0-indexed),
// capped at config.MaxBackoff and optionally jittered by ±20%.
func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	backoff := float64(config.InitialBackoff)
	for range attempt {
		backoff *= config.BackoffMultiplier
	}
	if max := float64(config.MaxBackoff); backoff > max {
		backoff = max
	}
	if config.Jitter {
		delta := backoff * 0.2
		backoff = backoff - delta + rand.Float64()*2*delta
	}
	return time.Duration(backoff)
}

// Retry calls fn until it succeeds, a non-retryable error is returned,
// config.MaxRetries is exhausted, or ctx is done. The last error is returned
// on exhaustion.
func Retry(ctx context.Context, config RetryConfig, fn RetryableFunc) error {
	_, err := RetryWithStats(ctx, config, fn)
	return err
}

// RetryStats summarizes a Retry/RetryWithStats call.
type RetryStats struct {
	// TotalAttempts is the number of times fn was called.
	TotalAttempts int
	// SuccessfulCalls is 1 if fn eventually succeeded, 0 otherwise.
	SuccessfulCalls int
	// TotalRetries is TotalAttempts-1 when at least one attempt was made.
	TotalRetries int
	// AverageBackoff is the mean delay slept between attempts.
	AverageBackoff time.Duration
}

// RetryWithStats behaves like Retry but also reports attempt/backoff stats,
// useful for logging how much a degraded dependency cost a caller.
func RetryWithStats(ctx context.Context, config RetryConfig, fn RetryableFunc) (RetryStats, error) {
	isRetryable := config.RetryableErrors
	if isRetryable == nil {
		isRetryable = DefaultRetryableErrors
	}

	var stats RetryStats
	var totalBackoff time.Duration
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		stats.TotalAttempts++

		lastErr = fn()
		if lastErr == nil {
			stats.SuccessfulCalls = 1
			if stats.TotalAttempts > 1 {
				stats.TotalRetries = stats.TotalAttempts - 1
				stats.AverageBackoff = totalBackoff / time.Duration(stats.TotalRetries)
			}
			return stats, nil
		}

		if !isRetryable(lastErr) {
			stats.TotalRetries = stats.TotalAttempts - 1
			if stats.TotalRetries > 0 {
				stats.AverageBackoff = totalBackoff / time.Duration(stats.TotalRetries)
			}
			return stats, lastErr
		}
		if attempt == config.MaxRetries {
			break
		}

		backoff := calculateBackoff(attempt, config)
		totalBackoff += backoff

		select {
		case <-ctx.Done():
			stats.TotalRetries = stats.TotalAttempts - 1
			if stats.TotalRetries > 0 {
				stats.AverageBackoff = totalBackoff / time.Duration(stats.TotalRetries)
			}
			return stats, ctx.Err()
		case <-time.After(backoff):
		}
	}

	stats.TotalRetries = stats.TotalAttempts - 1
	if stats.TotalRetries > 0 {
		stats.AverageBackoff = totalBackoff / time.Duration(stats.TotalRetries)
	}
	return stats, lastErr
}

// RetryWithCircuitBreaker calls fn through cb, retrying according to config
// until it succeeds, a non-retryable error is returned (including a tripped
// circuit breaker), or config.MaxRetries is exhausted.
func RetryWithCircuitBreaker(ctx context.Context, config RetryConfig, cb *CircuitBreaker, fn RetryableFunc) error {
	return Retry(ctx, config, func() error {
		return cb.Execute(ctx, fn)
	})
}

// ExponentialBackoff retries fn up to maxRetries times with a doubling delay
// starting at initialBackoff. It is a convenience wrapper over Retry for
// callers that don't need the full RetryConfig.
func ExponentialBackoff(ctx context.Context, maxRetries int, initialBackoff time.Duration, fn RetryableFunc) error {
	config := RetryConfig{
		MaxRetries:        maxRetries,
		InitialBackoff:    initialBackoff,
		MaxBackoff:        initialBackoff * time.Duration(1<<uint(maxRetries)),
		BackoffMultiplier: 2.0,
		Jitter:            false,
		RetryableErrors:   DefaultRetryableErrors,
	}
	return Retry(ctx, config, fn)
}
