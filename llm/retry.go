package llm

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy configures retry behavior with exponential backoff.
type RetryPolicy struct {
	MaxRetries        int           // total retry attempts (not counting initial)
	BaseDelay         time.Duration // initial delay
	MaxDelay          time.Duration // maximum delay between retries
	BackoffMultiplier float64       // exponential backoff factor
	Jitter            bool          // add random jitter to prevent thundering herd
	// ShouldRetry decides whether an error is retried. Nil means IsRetryable.
	ShouldRetry func(err error) bool
	OnRetry     func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy retries rate limits and server errors twice when
// opening a stream. Connection failures are not retried: a dead endpoint
// should surface to the user quickly.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        2,
		BaseDelay:         time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
		ShouldRetry:       IsOverloaded,
	}
}

// IsOverloaded reports whether err says the provider is busy rather than
// unreachable or misconfigured.
func IsOverloaded(err error) bool {
	switch err.(type) {
	case *RateLimitError, *ServerError:
		return true
	}
	return false
}

// Delay calculates the delay for attempt n (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := math.Min(float64(p.BaseDelay)*math.Pow(p.BackoffMultiplier, float64(attempt)), float64(p.MaxDelay))
	if p.Jitter {
		// +/- 50% jitter
		delay = delay * (0.5 + rand.Float64())
	}
	return time.Duration(delay)
}

func (p RetryPolicy) shouldRetry(err error) bool {
	if p.ShouldRetry != nil {
		return p.ShouldRetry(err)
	}
	return IsRetryable(err)
}

// Retry executes fn with the configured retry policy.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	result, err := fn(ctx)
	if err == nil {
		return result, nil
	}

	for attempt := 0; attempt < policy.MaxRetries; attempt++ {
		if !policy.shouldRetry(err) {
			return zero, err
		}

		delay := policy.Delay(attempt)
		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt+1, delay)
		}

		select {
		case <-ctx.Done():
			return zero, &AbortError{SDKError: SDKError{Message: "request cancelled during retry", Cause: ctx.Err()}}
		case <-time.After(delay):
		}

		result, err = fn(ctx)
		if err == nil {
			return result, nil
		}
	}

	return zero, err
}
