package client

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig holds the configuration for retry backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of physical attempts per call,
	// including the initial request.
	MaxAttempts int

	// InitialBackoff is the backoff before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// backoff is the exponential backoff state for one logical call.
type backoff struct {
	config  RetryConfig
	current time.Duration
}

func newBackoff(config RetryConfig) *backoff {
	return &backoff{config: config, current: config.InitialBackoff}
}

// next returns the delay before the next attempt, with ±20% jitter to
// prevent thundering herd, and advances the schedule.
func (b *backoff) next() time.Duration {
	jittered := time.Duration(float64(b.current) * (0.8 + rand.Float64()*0.4))

	b.current = time.Duration(float64(b.current) * b.config.BackoffMultiplier)
	if b.current > b.config.MaxBackoff {
		b.current = b.config.MaxBackoff
	}

	return jittered
}

// sleep waits for the given duration with context cancellation support.
func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
	case <-time.After(d):
		return nil
	}
}
