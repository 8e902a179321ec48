package strata

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryConfig configures retry behavior for remote substrate operations.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts including the first.
	// Default: 3.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry. Default: 100ms.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between retries. Default: 10s.
	MaxBackoff time.Duration

	// BackoffMultiplier grows the backoff after each retry. Default: 2.0.
	BackoffMultiplier float64

	// Jitter adds randomness to the backoff, 0.1 meaning ±10%.
	Jitter float64

	// RetryIf decides whether an error is retryable. Nil retries all.
	RetryIf func(error) bool
}

// DefaultRetryConfig returns a retry configuration with sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
	}
}

// Retryer executes operations with bounded exponential backoff.
type Retryer struct {
	config RetryConfig
}

// NewRetryer creates a retryer, filling in defaults for zero fields.
func NewRetryer(config RetryConfig) *Retryer {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = 100 * time.Millisecond
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 10 * time.Second
	}
	if config.BackoffMultiplier <= 0 {
		config.BackoffMultiplier = 2.0
	}
	return &Retryer{config: config}
}

// Do runs fn until it succeeds, the attempts are exhausted, or the
// context is cancelled. The last error is returned.
func (r *Retryer) Do(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < r.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff(attempt)):
			}
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if r.config.RetryIf != nil && !r.config.RetryIf(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func (r *Retryer) backoff(attempt int) time.Duration {
	backoff := float64(r.config.InitialBackoff) * math.Pow(r.config.BackoffMultiplier, float64(attempt-1))
	if backoff > float64(r.config.MaxBackoff) {
		backoff = float64(r.config.MaxBackoff)
	}
	if r.config.Jitter > 0 {
		delta := backoff * r.config.Jitter
		backoff = backoff - delta + rand.Float64()*2*delta
	}
	return time.Duration(backoff)
}
