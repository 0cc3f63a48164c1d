package ingestion

import (
	"context"
	"time"
)

// RetryPolicy bounds how often and how long a failed store call is retried.
type RetryPolicy struct {
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	// MaxRetries is the number of consecutive failures that ends the run.
	MaxRetries int `mapstructure:"max_retries"`
}

// DefaultRetryPolicy waits 4s, 8s, 16s, 32s and then 60s between attempts
// and gives up on the eighth consecutive failure.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     60 * time.Second,
		MaxRetries:     8,
	}
}

// Delay returns the pause after the failure-th consecutive failure:
// min(InitialBackoff * 2^failure, MaxBackoff).
func (p RetryPolicy) Delay(failure int) time.Duration {
	delay := p.InitialBackoff
	for i := 0; i < failure; i++ {
		delay *= 2
		if delay >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if delay > p.MaxBackoff {
		return p.MaxBackoff
	}
	return delay
}

// Exhausted reports whether the failure-th consecutive failure is terminal.
func (p RetryPolicy) Exhausted(failure int) bool {
	return failure >= p.MaxRetries
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
