package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(maxAttempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:     maxAttempts,
		InitialDelay:    time.Millisecond,
		MaxDelay:        5 * time.Millisecond,
		Multiplier:      2.0,
		RetryableErrors: []ErrorCode{ErrCodeNetwork, ErrCodeRPC},
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	assert.Equal(t, 3, config.MaxAttempts)
	assert.Equal(t, 2.0, config.Multiplier)
	assert.Contains(t, config.RetryableErrors, ErrCodeNetwork)
	assert.Contains(t, config.RetryableErrors, ErrCodeRPC)
}

func TestRetryWithConfig(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		attempts := 0
		err := RetryWithConfig(context.Background(), func() error {
			attempts++
			if attempts < 3 {
				return NewRPCError("fee lookup failed", errors.New("connection reset"))
			}
			return nil
		}, fastRetryConfig(3))

		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("does not retry typed non-retryable errors", func(t *testing.T) {
		attempts := 0
		err := RetryWithConfig(context.Background(), func() error {
			attempts++
			return NewGasSponsorshipError("0xabc", "sponsor rejected", nil)
		}, fastRetryConfig(5))

		require.Error(t, err)
		assert.Equal(t, 1, attempts)
		assert.True(t, IsCode(err, ErrCodeGasSponsorship))
	})

	t.Run("wraps last error after max attempts", func(t *testing.T) {
		attempts := 0
		err := RetryWithConfig(context.Background(), func() error {
			attempts++
			return NewNetworkError("unreachable", nil)
		}, fastRetryConfig(2))

		require.Error(t, err)
		assert.Equal(t, 2, attempts)
		var bridgeErr *BridgeError
		require.True(t, As(err, &bridgeErr))
		assert.Equal(t, 2, bridgeErr.Context["attempts"])
	})

	t.Run("stops on cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := RetryWithConfig(ctx, func() error { return nil }, fastRetryConfig(3))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestExponentialBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	max := time.Second

	assert.Equal(t, base, ExponentialBackoff(0, base, max))
	assert.Equal(t, base, ExponentialBackoff(1, base, max))
	assert.Equal(t, 400*time.Millisecond, ExponentialBackoff(3, base, max))
	assert.Equal(t, max, ExponentialBackoff(10, base, max))
}
