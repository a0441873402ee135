package aiservice

import (
	"context"
	"sync"
	"time"

	"github.com/cardsmith/cardsmith-api/logger"
)

// BreakerState is the circuit breaker state machine position.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// Legal transitions: CLOSED->OPEN (threshold breached), OPEN->HALF_OPEN
// (timeout elapsed), HALF_OPEN->CLOSED (probe succeeded), HALF_OPEN->OPEN
// (probe failed). Only the breaker's own callbacks move the state.

const (
	breakerHistoryCap = 100
	failureRateCutoff = 0.5
)

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// Threshold is the failure count needed to trip while CLOSED.
	Threshold int
	// Timeout is how long the breaker stays OPEN before allowing a probe.
	Timeout time.Duration
	// HalfOpenMaxRequests caps probes per half-open period.
	HalfOpenMaxRequests int
	// MinRequestCount is the minimum sample size before the failure rate
	// is evaluated at all.
	MinRequestCount int
}

// DefaultBreakerConfig matches the values the generation pipeline runs with.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Threshold:           5,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 1,
		MinRequestCount:     5,
	}
}

// BreakerTransition is one entry of the bounded transition history.
type BreakerTransition struct {
	From   BreakerState `json:"from"`
	To     BreakerState `json:"to"`
	Reason string       `json:"reason"`
	At     time.Time    `json:"at"`
}

// BreakerSnapshot is a read-only view of breaker state for the ops endpoint.
type BreakerSnapshot struct {
	State     BreakerState        `json:"state"`
	Failures  int                 `json:"failures"`
	Successes int                 `json:"successes"`
	Requests  int                 `json:"requests"`
	OpenedAt  *time.Time          `json:"opened_at,omitempty"`
	History   []BreakerTransition `json:"history"`
}

// Breaker gates calls to the AI provider. Process-local: a multi-process
// deployment needs this state externalized to a shared store.
type Breaker struct {
	mu  sync.Mutex
	cfg BreakerConfig
	log *logger.Logger
	now func() time.Time

	state          BreakerState
	failures       int
	successes      int
	requests       int
	openedAt       time.Time
	halfOpenProbes int
	history        []BreakerTransition
}

func NewBreaker(cfg BreakerConfig, log *logger.Logger) *Breaker {
	return &Breaker{
		cfg:   cfg,
		log:   log,
		now:   time.Now,
		state: BreakerClosed,
	}
}

// CanExecute reports whether a call may proceed. While OPEN it also moves
// the breaker to HALF_OPEN once the timeout has elapsed, so the first caller
// after the cooldown becomes the probe.
func (b *Breaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.canExecuteLocked()
}

func (b *Breaker) canExecuteLocked() bool {
	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if b.now().Sub(b.openedAt) >= b.cfg.Timeout {
			b.transitionLocked(BreakerHalfOpen, "timeout elapsed, probing")
			b.halfOpenProbes++
			return true
		}
		return false
	case BreakerHalfOpen:
		if b.halfOpenProbes < b.cfg.HalfOpenMaxRequests {
			b.halfOpenProbes++
			return true
		}
		return false
	}
	return false
}

// OnSuccess records a successful call. A success while HALF_OPEN closes the
// breaker and clears the failure count.
func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests++
	b.successes++
	if b.state == BreakerHalfOpen {
		b.failures = 0
		b.transitionLocked(BreakerClosed, "probe succeeded")
	}
}

// OnFailure records a failed call and trips the breaker when the CLOSED
// thresholds are breached, or re-opens it on a failed half-open probe.
func (b *Breaker) OnFailure(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests++
	b.failures++
	switch b.state {
	case BreakerClosed:
		rate := float64(b.failures) / float64(b.requests)
		if b.requests >= b.cfg.MinRequestCount && b.failures >= b.cfg.Threshold && rate >= failureRateCutoff {
			b.tripLocked("failure threshold breached: " + reason)
		}
	case BreakerHalfOpen:
		b.tripLocked("probe failed: " + reason)
	}
}

func (b *Breaker) tripLocked(reason string) {
	b.openedAt = b.now()
	b.halfOpenProbes = 0
	b.transitionLocked(BreakerOpen, reason)
}

// Execute runs op under the breaker. A rejected call returns ErrCircuitOpen
// and does not count toward the request metrics, since nothing ran.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if !b.CanExecute() {
		return ErrCircuitOpen
	}
	start := time.Now()
	err := op(ctx)
	elapsed := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			// Caller cancelled; don't punish the provider for it.
			return err
		}
		b.log.Warn("breaker recorded failure", "elapsed", elapsed.String(), "error", err.Error())
		b.OnFailure(err.Error())
		return err
	}
	b.OnSuccess()
	return nil
}

// Reset forces the breaker CLOSED and zeroes all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.successes = 0
	b.requests = 0
	b.halfOpenProbes = 0
	b.transitionLocked(BreakerClosed, "manual reset")
}

// ForceOpen trips the breaker regardless of counters.
func (b *Breaker) ForceOpen(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tripLocked("forced open: " + reason)
}

// State returns the current state without side effects.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns a copy of the breaker's state and history.
func (b *Breaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	snap := BreakerSnapshot{
		State:     b.state,
		Failures:  b.failures,
		Successes: b.successes,
		Requests:  b.requests,
		History:   append([]BreakerTransition(nil), b.history...),
	}
	if b.state == BreakerOpen {
		t := b.openedAt
		snap.OpenedAt = &t
	}
	return snap
}

func (b *Breaker) transitionLocked(to BreakerState, reason string) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.history = append(b.history, BreakerTransition{From: from, To: to, Reason: reason, At: b.now()})
	if len(b.history) > breakerHistoryCap {
		b.history = b.history[len(b.history)-breakerHistoryCap:]
	}
	b.log.Info("breaker state change", "from", string(from), "to", string(to), "reason", reason)
}
