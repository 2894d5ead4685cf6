package errors

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoreErrorWrapping(t *testing.T) {
	cause := New(ErrCodeNetwork, "dial failed", nil)
	wrapped := Wrap(ErrCodeRateLimited, cause)

	require.Error(t, wrapped)
	assert.Equal(t, KindTransient, wrapped.Kind)
	assert.Equal(t, cause, wrapped.Unwrap())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrCodeRateLimited, "429", nil)))
	assert.False(t, IsRetryable(New(ErrCodeInvalidInput, "bad", nil)))
	assert.False(t, IsRetryable(nil))
}

func TestRetryStopsOnNonTransient(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), DefaultRetryConfig(), func() error {
		calls++
		return New(ErrCodeInvalidInput, "bad input", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryExhaustsOnTransient(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return New(ErrCodeRateLimited, "429", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestCircuitBreakerTripsAndResets(t *testing.T) {
	cb := NewCircuitBreaker(2, 10*time.Millisecond)
	assert.True(t, cb.Allow())

	cb.RecordFailure()
	assert.True(t, cb.Allow())
	cb.RecordFailure()
	assert.False(t, cb.Allow())

	time.Sleep(15 * time.Millisecond)
	assert.True(t, cb.Allow()) // half-open lets one probe through

	cb.RecordSuccess()
	assert.True(t, cb.Allow())
}
