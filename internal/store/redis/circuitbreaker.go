package redis

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Execute while the breaker is rejecting calls.
var ErrCircuitOpen = errors.New("redis circuit open")

// State of the write-path circuit breaker. The numeric values feed the
// metrics gauge directly, so they are part of the metrics contract.
type State int

const (
	StateClosed   State = iota // writes pass through to Redis
	StateOpen                  // writes fail fast; candles buffer locally
	StateHalfOpen              // a single probe write is allowed through
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker keeps a Redis outage from stalling the candle write path.
// Closed, it counts consecutive failures; at maxFailures it opens and every
// call fails fast with ErrCircuitOpen instead of eating a dial timeout per
// candle. Once resetTimeout has passed, one probe is let through: success
// closes the breaker again, failure reopens it.
type CircuitBreaker struct {
	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time

	maxFailures  int
	resetTimeout time.Duration

	// OnStateChange observes transitions (metrics gauge, buffered-writer
	// flush trigger). Called with the breaker's lock held.
	OnStateChange func(from, to State)
}

// NewCircuitBreaker creates a closed breaker that trips after maxFailures
// consecutive failures and probes again after resetTimeout.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
	}
}

// Execute runs fn through the breaker and returns fn's error, or
// ErrCircuitOpen without calling fn while the breaker is rejecting.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}
	err := fn()
	cb.record(err)
	return err
}

// CurrentState returns the breaker's current state.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// allow decides whether a call may proceed, moving an open breaker to
// half-open once the reset window has elapsed.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if time.Since(cb.openedAt) <= cb.resetTimeout {
			return false
		}
		cb.setState(StateHalfOpen)
	}
	return true
}

// record folds a call's outcome into the breaker state.
func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.setState(StateClosed)
		}
		return
	}

	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
		cb.openedAt = time.Now()
		cb.setState(StateOpen)
	}
}

func (cb *CircuitBreaker) setState(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if to == StateClosed {
		cb.failures = 0
	}
	if cb.OnStateChange != nil {
		cb.OnStateChange(from, to)
	}
}
