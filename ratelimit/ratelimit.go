// Package ratelimit provides a fixed-window per-key request gate for the
// generation endpoint.
package ratelimit

import (
	"sync"
	"time"
)

// Decision is the outcome of an Allow call. ResetTime is when the current
// window expires; Remaining is the allowance left inside it.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetTime time.Time
}

// RetryAfterSeconds converts the reset time into a whole-second hint for
// the client, never less than 1 for a denied request.
func (d Decision) RetryAfterSeconds(now time.Time) int {
	secs := int(d.ResetTime.Sub(now).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

type window struct {
	count   int
	resetAt time.Time
}

// Limiter counts requests per key in fixed windows. State is process-local;
// running multiple replicas multiplies the effective limit accordingly.
type Limiter struct {
	mu          sync.Mutex
	windows     map[string]*window
	maxRequests int
	windowSize  time.Duration
	now         func() time.Time
}

func NewLimiter(maxRequests int, windowSize time.Duration) *Limiter {
	return &Limiter{
		windows:     map[string]*window{},
		maxRequests: maxRequests,
		windowSize:  windowSize,
		now:         time.Now,
	}
}

// Allow records one request for key, creating or resetting the window as
// needed. Expired windows for other keys are swept opportunistically so the
// map stays bounded by the active key count.
func (l *Limiter) Allow(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweepLocked(now)

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(l.windowSize)}
		l.windows[key] = w
	}

	if w.count >= l.maxRequests {
		return Decision{Allowed: false, ResetTime: w.resetAt}
	}
	w.count++
	return Decision{Allowed: true, Remaining: l.maxRequests - w.count, ResetTime: w.resetAt}
}

func (l *Limiter) sweepLocked(now time.Time) {
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
		}
	}
}
