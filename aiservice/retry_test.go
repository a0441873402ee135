package aiservice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardsmith/cardsmith-api/logger"
)

func newTestRetryManager() *RetryManager {
	m := NewRetryManager(logger.NewNop())
	m.Register("test-fast", RetryStrategy{
		MaxAttempts:       3,
		BaseDelay:         time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2,
		JitterFactor:      0.1,
		RetryableKinds:    []ErrorKind{KindRateLimit, KindTimeout, KindModelError, KindNetwork},
	})
	return m
}

func TestRetryNonRetryableInvokedOnce(t *testing.T) {
	m := newTestRetryManager()

	calls := 0
	original := newError(KindValidation, false, "malformed payload")
	_, err := m.ExecuteWithRetry(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		return "", original
	}, "test-fast", "", 0)

	assert.Equal(t, 1, calls)
	// The original error comes back unchanged
	assert.Same(t, original, err)
}

func TestRetrySucceedsOnThirdAttempt(t *testing.T) {
	m := newTestRetryManager()

	calls := 0
	result, err := m.ExecuteWithRetry(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", newError(KindTimeout, true, "slow upstream")
		}
		return "ok", nil
	}, "test-fast", "", 0)

	require.NoError(t, err)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, "ok", result.Data)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	m := newTestRetryManager()

	calls := 0
	_, err := m.ExecuteWithRetry(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		return "", newError(KindModelError, true, "upstream 500")
	}, "test-fast", "", 0)

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, KindModelError, KindOf(err))
}

func TestRetryCacheHitSkipsOperation(t *testing.T) {
	m := newTestRetryManager()

	calls := 0
	op := func(ctx context.Context) (string, error) {
		calls++
		return "cached-data", nil
	}

	first, err := m.ExecuteWithRetry(context.Background(), op, "test-fast", "key-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := m.ExecuteWithRetry(context.Background(), op, "test-fast", "key-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, "cached-data", second.Data)
	assert.Equal(t, 1, second.Attempts)
	assert.Equal(t, 1, calls)

	stats := m.Stats()
	assert.Equal(t, int64(1), stats.CacheHits)
}

func TestRetryCacheExpires(t *testing.T) {
	m := newTestRetryManager()
	now := time.Now()
	m.now = func() time.Time { return now }

	calls := 0
	op := func(ctx context.Context) (string, error) {
		calls++
		return "data", nil
	}

	_, err := m.ExecuteWithRetry(context.Background(), op, "test-fast", "key", time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	result, err := m.ExecuteWithRetry(context.Background(), op, "test-fast", "key", time.Minute)
	require.NoError(t, err)
	assert.False(t, result.FromCache)
	assert.Equal(t, 2, calls)
}

func TestRetryUntypedErrorMessageFallback(t *testing.T) {
	m := newTestRetryManager()
	s := m.Strategy("test-fast")

	assert.True(t, m.isRetryable(errors.New("429 too many requests"), s))
	assert.True(t, m.isRetryable(errors.New("request timed out"), s))
	assert.False(t, m.isRetryable(errors.New("invalid api key"), s))
	assert.False(t, m.isRetryable(ErrCircuitOpen, s))
}

func TestRetryBackpressureDoublesDelay(t *testing.T) {
	m := newTestRetryManager()
	now := time.Now()
	m.now = func() time.Time { return now }

	// Jitter zeroed so the computed delay is exact
	s := RetryStrategy{
		MaxAttempts:       3,
		BaseDelay:         time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2,
		JitterFactor:      0,
	}
	err := newError(KindTimeout, true, "slow upstream")

	assert.False(t, m.overloaded())
	assert.Equal(t, time.Second, m.backoffDelay(s, 1, err))
	assert.Equal(t, 2*time.Second, m.backoffDelay(s, 2, err))

	for i := 0; i < 6; i++ {
		m.recordFailure()
	}
	assert.True(t, m.overloaded())
	assert.Equal(t, 2*time.Second, m.backoffDelay(s, 1, err))
	assert.Equal(t, 4*time.Second, m.backoffDelay(s, 2, err))

	// Outside the 10s window the signal clears and the delay drops back
	now = now.Add(11 * time.Second)
	assert.False(t, m.overloaded())
	assert.Equal(t, time.Second, m.backoffDelay(s, 1, err))
}

func TestRetryContextCancellation(t *testing.T) {
	m := newTestRetryManager()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.ExecuteWithRetry(ctx, func(ctx context.Context) (string, error) {
		return "", newError(KindTimeout, true, "slow")
	}, "test-fast", "", 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryStrategiesRegistered(t *testing.T) {
	m := NewRetryManager(logger.NewNop())
	for _, name := range []string{"default", "aggressive", "conservative", "quick"} {
		s := m.Strategy(name)
		assert.Greater(t, s.MaxAttempts, 0, name)
		assert.Greater(t, s.BackoffMultiplier, 0.0, name)
	}
	// Unknown names fall back to default
	assert.Equal(t, m.Strategy("default"), m.Strategy("nope"))
	// Registered strategies are immutable
	m.Register("default", RetryStrategy{MaxAttempts: 99})
	assert.NotEqual(t, 99, m.Strategy("default").MaxAttempts)
}
