package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLimiter(max int, window time.Duration) (*Limiter, *time.Time) {
	l := NewLimiter(max, window)
	now := time.Now()
	l.now = func() time.Time { return now }
	return l, &now
}

func TestAllowUnderCap(t *testing.T) {
	l, _ := newTestLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		d := l.Allow("user-1")
		assert.True(t, d.Allowed)
		assert.Equal(t, 2-i, d.Remaining)
	}

	d := l.Allow("user-1")
	assert.False(t, d.Allowed)
	assert.False(t, d.ResetTime.IsZero())
}

func TestWindowResets(t *testing.T) {
	l, now := newTestLimiter(2, time.Minute)

	l.Allow("user-1")
	l.Allow("user-1")
	assert.False(t, l.Allow("user-1").Allowed)

	*now = now.Add(61 * time.Second)
	assert.True(t, l.Allow("user-1").Allowed)
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)

	assert.True(t, l.Allow("user-1").Allowed)
	assert.False(t, l.Allow("user-1").Allowed)
	assert.True(t, l.Allow("user-2").Allowed)
}

func TestExpiredWindowsSwept(t *testing.T) {
	l, now := newTestLimiter(5, time.Minute)

	l.Allow("user-1")
	l.Allow("user-2")
	assert.Len(t, l.windows, 2)

	*now = now.Add(2 * time.Minute)
	l.Allow("user-3")
	// The stale windows are gone, only the fresh key remains
	assert.Len(t, l.windows, 1)
}

func TestRetryAfterSeconds(t *testing.T) {
	l, now := newTestLimiter(1, time.Minute)

	l.Allow("user-1")
	d := l.Allow("user-1")
	assert.False(t, d.Allowed)
	secs := d.RetryAfterSeconds(*now)
	assert.GreaterOrEqual(t, secs, 1)
	assert.LessOrEqual(t, secs, 60)
}
