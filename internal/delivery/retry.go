package delivery

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// RetryConfig controls the backoff used when the initial relay is rate
// limited.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig returns 3 attempts, 500ms→1s→2s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// retryTransport retries fn only while the server reports a rate limit. A
// rate-limited call created nothing; any other failure may have produced a
// copy we never got an id for, so it returns at once.
func retryTransport(ctx context.Context, cfg RetryConfig, sleeper Sleeper, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	delay := cfg.InitialDelay
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		wait, _ := RetryAfter(lastErr)
		if wait <= 0 {
			wait = min(applyJitter(delay), cfg.MaxDelay)
		}
		delay = min(time.Duration(float64(delay)*cfg.Multiplier), cfg.MaxDelay)
		if err := sleeper.Sleep(ctx, wait); err != nil {
			return err
		}
	}
	return lastErr
}

func isRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	_, limited := RetryAfter(err)
	return limited
}

// applyJitter adds ±25% randomization to d.
func applyJitter(d time.Duration) time.Duration {
	factor := 0.75 + rand.Float64()*0.5
	return time.Duration(float64(d) * factor)
}
