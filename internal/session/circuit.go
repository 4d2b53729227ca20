package session

import (
	"sync"
	"time"

	"nextrial-session/internal/common/metrics"
)

// Circuit-breaker defaults: three transport failures inside a thirty-second
// window open the circuit for a sixty-second cooldown.
const (
	DefaultFailureThreshold = 3
	DefaultFailureWindow    = 30 * time.Second
	DefaultCooldown         = 60 * time.Second
)

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitHalfOpen
	circuitOpen
)

func (s circuitState) String() string {
	switch s {
	case circuitOpen:
		return "open"
	case circuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// circuitBreaker stops issuing calls to the search backend for a cooldown
// period after repeated transport failures. Only transport failures count;
// upstream and validation errors indicate request-specific problems, not
// backend unavailability, and never touch the breaker.
type circuitBreaker struct {
	failureThreshold int
	failureWindow    time.Duration
	cooldown         time.Duration
	now              func() time.Time

	mu          sync.Mutex
	state       circuitState
	failures    int
	windowStart time.Time
	openedAt    time.Time
	probeOut    bool
}

func newCircuitBreaker(threshold int, window, cooldown time.Duration) *circuitBreaker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if window <= 0 {
		window = DefaultFailureWindow
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &circuitBreaker{
		failureThreshold: threshold,
		failureWindow:    window,
		cooldown:         cooldown,
		now:              time.Now,
	}
}

// allow reports whether a call may proceed. When it may not, retryAfter is
// the remaining cooldown. The first allowed call after a cooldown is the
// half-open probe; further calls are rejected until the probe resolves.
func (cb *circuitBreaker) allow() (bool, time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case circuitClosed:
		return true, 0

	case circuitOpen:
		elapsed := cb.now().Sub(cb.openedAt)
		if elapsed < cb.cooldown {
			return false, cb.cooldown - elapsed
		}
		cb.setState(circuitHalfOpen)
		cb.probeOut = true
		return true, 0

	default: // half-open
		if cb.probeOut {
			return false, cb.cooldown
		}
		cb.probeOut = true
		return true, 0
	}
}

// recordSuccess closes the circuit and resets the failure counter.
func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.setState(circuitClosed)
	cb.failures = 0
	cb.probeOut = false
}

// recordFailure registers one transport failure. A failed half-open probe
// reopens the circuit for another full cooldown.
func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()

	if cb.state == circuitHalfOpen {
		cb.setState(circuitOpen)
		cb.openedAt = now
		cb.failures = 0
		cb.probeOut = false
		return
	}

	if cb.failures == 0 || now.Sub(cb.windowStart) > cb.failureWindow {
		cb.windowStart = now
		cb.failures = 1
	} else {
		cb.failures++
	}

	if cb.failures >= cb.failureThreshold {
		cb.setState(circuitOpen)
		cb.openedAt = now
		cb.failures = 0
	}
}

// currentState returns the state name for health reporting.
func (cb *circuitBreaker) currentState() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.String()
}

// setState transitions and mirrors the state into the metrics gauge.
// Callers hold cb.mu.
func (cb *circuitBreaker) setState(state circuitState) {
	cb.state = state
	metrics.CircuitState.Set(float64(state))
}
