package aiservice

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/cardsmith/cardsmith-api/logger"
)

// RetryStrategy is a named retry configuration. Immutable once registered.
type RetryStrategy struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterFactor      float64
	RetryableKinds    []ErrorKind
}

const (
	cacheSweepThreshold = 1000
	recentFailureWindow = 60 * time.Second
	overloadWindow      = 10 * time.Second
	overloadThreshold   = 5
)

// CacheEntry is one cached provider response, keyed by request fingerprint.
type CacheEntry struct {
	Data      string
	Timestamp time.Time
	TTL       time.Duration
}

func (e CacheEntry) expired(now time.Time) bool {
	return now.Sub(e.Timestamp) > e.TTL
}

// RetryResult carries the outcome of ExecuteWithRetry.
type RetryResult struct {
	Data      string
	Attempts  int
	TotalTime time.Duration
	FromCache bool
}

// RetryStats is a read-only view of the manager's counters.
type RetryStats struct {
	TotalAttempts  int64 `json:"total_attempts"`
	RecentFailures int   `json:"recent_failures"`
	CacheHits      int64 `json:"cache_hits"`
	CacheMisses    int64 `json:"cache_misses"`
	CacheEntries   int   `json:"cache_entries"`
}

// RetryManager executes operations under named retry strategies with
// exponential backoff, jitter and a TTL response cache. Process-local state;
// see the breaker for the same scaling caveat.
type RetryManager struct {
	mu         sync.Mutex
	strategies map[string]RetryStrategy
	cache      map[string]CacheEntry
	failures   []time.Time
	log        *logger.Logger
	now        func() time.Time

	totalAttempts int64
	cacheHits     int64
	cacheMisses   int64
}

func NewRetryManager(log *logger.Logger) *RetryManager {
	m := &RetryManager{
		strategies: map[string]RetryStrategy{},
		cache:      map[string]CacheEntry{},
		log:        log,
		now:        time.Now,
	}
	retryableDefaults := []ErrorKind{KindRateLimit, KindTimeout, KindModelError, KindNetwork}
	m.strategies["default"] = RetryStrategy{
		MaxAttempts:       3,
		BaseDelay:         time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2,
		JitterFactor:      0.2,
		RetryableKinds:    retryableDefaults,
	}
	m.strategies["aggressive"] = RetryStrategy{
		MaxAttempts:       5,
		BaseDelay:         500 * time.Millisecond,
		MaxDelay:          8 * time.Second,
		BackoffMultiplier: 1.5,
		JitterFactor:      0.3,
		RetryableKinds:    retryableDefaults,
	}
	m.strategies["conservative"] = RetryStrategy{
		MaxAttempts:       2,
		BaseDelay:         2 * time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 3,
		JitterFactor:      0.1,
		RetryableKinds:    retryableDefaults,
	}
	m.strategies["quick"] = RetryStrategy{
		MaxAttempts:       2,
		BaseDelay:         250 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2,
		JitterFactor:      0.2,
		RetryableKinds:    []ErrorKind{KindTimeout, KindNetwork},
	}
	return m
}

// Register adds a named strategy. Registered strategies are immutable:
// re-registering an existing name is a no-op.
func (m *RetryManager) Register(name string, s RetryStrategy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.strategies[name]; ok {
		return
	}
	m.strategies[name] = s
}

// Strategy looks up a registered strategy, falling back to "default" for
// unknown names.
func (m *RetryManager) Strategy(name string) RetryStrategy {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.strategies[name]; ok {
		return s
	}
	return m.strategies["default"]
}

// ExecuteWithRetry runs op under the named strategy. When cacheKey is
// non-empty a live cached response short-circuits the call entirely
// (attempts reported as 1), and a successful response is cached for
// cacheTTL. Non-retryable errors are returned immediately without consuming
// remaining attempts; retryable errors sleep per the backoff policy between
// attempts. Context cancellation aborts the wait.
func (m *RetryManager) ExecuteWithRetry(ctx context.Context, op func(ctx context.Context) (string, error), strategyName, cacheKey string, cacheTTL time.Duration) (RetryResult, error) {
	strategy := m.Strategy(strategyName)
	start := m.now()

	if cacheKey != "" {
		if data, ok := m.cacheGet(cacheKey); ok {
			return RetryResult{Data: data, Attempts: 1, TotalTime: m.now().Sub(start), FromCache: true}, nil
		}
	}

	var lastErr error
	for attempt := 1; attempt <= strategy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return RetryResult{}, err
		}
		m.recordAttempt()
		data, err := op(ctx)
		if err == nil {
			if cacheKey != "" && cacheTTL > 0 {
				m.cachePut(cacheKey, data, cacheTTL)
			}
			return RetryResult{Data: data, Attempts: attempt, TotalTime: m.now().Sub(start)}, nil
		}
		lastErr = err
		if !m.isRetryable(err, strategy) {
			return RetryResult{Attempts: attempt}, err
		}
		m.recordFailure()
		if attempt == strategy.MaxAttempts {
			break
		}
		delay := m.backoffDelay(strategy, attempt, err)
		m.log.Warn("retrying operation",
			"strategy", strategyName,
			"attempt", attempt,
			"max_attempts", strategy.MaxAttempts,
			"delay", delay.String(),
			"error", err.Error(),
		)
		if err := sleepCtx(ctx, delay); err != nil {
			return RetryResult{}, err
		}
	}
	return RetryResult{Attempts: strategy.MaxAttempts}, lastErr
}

// backoffDelay computes min(base*mult^(attempt-1), max) with +/- jitter.
// A rate-limit retry-after hint overrides the computed base, and the delay
// doubles under recent-failure overload as backpressure.
func (m *RetryManager) backoffDelay(s RetryStrategy, attempt int, err error) time.Duration {
	base := float64(s.BaseDelay) * math.Pow(s.BackoffMultiplier, float64(attempt-1))
	if base > float64(s.MaxDelay) {
		base = float64(s.MaxDelay)
	}
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Kind == KindRateLimit && pe.RetryAfter > 0 {
		hinted := float64(time.Duration(pe.RetryAfter) * time.Second)
		if hinted > base {
			base = hinted
		}
	}
	jitter := (rand.Float64()*2 - 1) * s.JitterFactor
	delay := time.Duration(base * (1 + jitter))
	if m.overloaded() {
		delay *= 2
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

func (m *RetryManager) isRetryable(err error, s RetryStrategy) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		for _, k := range s.RetryableKinds {
			if pe.Kind == k {
				return pe.Retryable
			}
		}
		return false
	}
	// Untyped errors: fall back to message patterns for known transient
	// failure families.
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"rate limit", "too many requests", "timeout", "timed out", "server error", "internal error", "network", "connection"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

func (m *RetryManager) recordAttempt() {
	m.mu.Lock()
	m.totalAttempts++
	m.mu.Unlock()
}

func (m *RetryManager) recordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.failures = append(m.failures, now)
	m.pruneFailuresLocked(now)
}

func (m *RetryManager) pruneFailuresLocked(now time.Time) {
	cutoff := now.Add(-recentFailureWindow)
	i := 0
	for ; i < len(m.failures); i++ {
		if m.failures[i].After(cutoff) {
			break
		}
	}
	m.failures = m.failures[i:]
}

// overloaded reports whether more than overloadThreshold failures landed in
// the trailing overloadWindow, across all operations.
func (m *RetryManager) overloaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-overloadWindow)
	count := 0
	for _, t := range m.failures {
		if t.After(cutoff) {
			count++
		}
	}
	return count > overloadThreshold
}

func (m *RetryManager) cacheGet(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.cache[key]
	if !ok {
		m.cacheMisses++
		return "", false
	}
	if entry.expired(m.now()) {
		delete(m.cache, key)
		m.cacheMisses++
		return "", false
	}
	m.cacheHits++
	return entry.Data, true
}

func (m *RetryManager) cachePut(key, data string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[key] = CacheEntry{Data: data, Timestamp: m.now(), TTL: ttl}
	if len(m.cache) > cacheSweepThreshold {
		now := m.now()
		for k, e := range m.cache {
			if e.expired(now) {
				delete(m.cache, k)
			}
		}
	}
}

// Stats returns a snapshot of the manager's counters.
func (m *RetryManager) Stats() RetryStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneFailuresLocked(m.now())
	return RetryStats{
		TotalAttempts:  m.totalAttempts,
		RecentFailures: len(m.failures),
		CacheHits:      m.cacheHits,
		CacheMisses:    m.cacheMisses,
		CacheEntries:   len(m.cache),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
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
