package zuva

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
)

// RetryPolicy defines retry behavior with exponential backoff.
// Only TransientNetworkError is retried; every HTTP response is final for the call.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// NewRetryPolicy creates the default policy: 3 attempts, 2s doubling to a 10s cap
func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    2 * time.Second,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// ShouldRetry checks if a failed attempt (0-based) should be retried
func (p *RetryPolicy) ShouldRetry(attempt int, err error) bool {
	if attempt+1 >= p.MaxAttempts {
		return false
	}
	return IsTransient(err)
}

// CalculateBackoff returns the wait before the attempt following the given 0-based attempt
func (p *RetryPolicy) CalculateBackoff(attempt int) time.Duration {
	backoff := float64(p.InitialBackoff)
	for i := 0; i < attempt; i++ {
		backoff *= p.BackoffMultiplier
	}
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}
	if backoff < float64(p.InitialBackoff) {
		backoff = float64(p.InitialBackoff)
	}
	return time.Duration(backoff)
}

// ExecuteWithRetry runs fn until it succeeds, fails terminally or attempts run out
func (p *RetryPolicy) ExecuteWithRetry(ctx context.Context, logger arbor.ILogger, op string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if !p.ShouldRetry(attempt, lastErr) {
			if attempt > 0 || IsTransient(lastErr) {
				logger.Debug().
					Str("op", op).
					Int("attempt", attempt+1).
					Err(lastErr).
					Msg("Giving up on provider call")
			}
			return lastErr
		}

		backoff := p.CalculateBackoff(attempt)
		logger.Warn().
			Str("op", op).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(lastErr).
			Msg("Transient provider error, retrying after backoff")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}
