package bus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsTransient(t *testing.T) {
	require.False(t, isTransient(nil))
	require.True(t, isTransient(errors.New("dial tcp: connection refused")))
	require.True(t, isTransient(errors.New("read: i/o timeout")))
	require.True(t, isTransient(errors.New("MOVED 3999 127.0.0.1:7001")))
	require.False(t, isTransient(errors.New("WRONGTYPE value is not a stream")))
}

func TestWithRetry_SucceedsWithoutRetryOnFirstTry(t *testing.T) {
	calls := 0
	v, err := withRetry(context.Background(), func() (int, error) {
		calls++
		return 7, nil
	})
	require.NoError(t, err)
	require.Equal(t, 7, v)
	require.Equal(t, 1, calls)
}

func TestWithRetry_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	v, err := withRetry(context.Background(), func() (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("connection reset by peer")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", v)
	require.Equal(t, 2, calls)
}

func TestWithRetry_NonTransientFailsImmediately(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), func() (int, error) {
		calls++
		return 0, errors.New("NOSCRIPT no matching script")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestWithRetry_ExhaustsRetriesAndReturnsLastError(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), func() (int, error) {
		calls++
		return 0, errors.New("connection timeout")
	})
	require.Error(t, err)
	require.Equal(t, maxRetries, calls)
}

func TestWithRetry_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := withRetry(ctx, func() (int, error) {
		calls++
		if calls == 1 {
			cancel()
		}
		return 0, errors.New("connection refused")
	})
	require.ErrorIs(t, err, context.Canceled)
}
