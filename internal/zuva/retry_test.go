package zuva

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
)

func TestCalculateBackoff(t *testing.T) {
	policy := NewRetryPolicy()

	assert.Equal(t, 2*time.Second, policy.CalculateBackoff(0))
	assert.Equal(t, 4*time.Second, policy.CalculateBackoff(1))
	assert.Equal(t, 8*time.Second, policy.CalculateBackoff(2))
	assert.Equal(t, 10*time.Second, policy.CalculateBackoff(3))
}

func TestShouldRetry(t *testing.T) {
	policy := NewRetryPolicy()
	transient := &TransientNetworkError{Op: "upload", Err: errors.New("connection reset")}

	assert.True(t, policy.ShouldRetry(0, transient))
	assert.True(t, policy.ShouldRetry(1, transient))
	assert.False(t, policy.ShouldRetry(2, transient))

	assert.False(t, policy.ShouldRetry(0, &AuthenticationError{Op: "upload"}))
	assert.False(t, policy.ShouldRetry(0, &APIError{Op: "upload", StatusCode: 503}))
	assert.False(t, policy.ShouldRetry(0, &ValidationError{Message: "bad"}))
}

func TestExecuteWithRetry_StopsOnContextCancel(t *testing.T) {
	policy := &RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Hour, MaxBackoff: time.Hour, BackoffMultiplier: 2}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	calls := 0
	err := policy.ExecuteWithRetry(ctx, arbor.NewLogger(), "test", func(ctx context.Context) error {
		calls++
		return &TransientNetworkError{Op: "test", Err: errors.New("timeout")}
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, calls)
}
