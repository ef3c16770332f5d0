// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package kodi

import (
	"sync"
	"time"

	"github.com/ManuGH/kodiguide/internal/metrics"
)

// BreakerState is the circuit breaker state.
type BreakerState int

const (
	StateClosed   BreakerState = iota // requests flow
	StateOpen                         // requests rejected
	StateHalfOpen                     // one probe in flight
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreaker stops hammering a device that is switched off. After
// threshold consecutive transport failures it rejects calls for
// resetTimeout, then lets a single probe through.
type CircuitBreaker struct {
	name         string
	threshold    int
	resetTimeout time.Duration
	now          func() time.Time

	mu          sync.Mutex
	state       BreakerState
	failures    int
	openedAt    time.Time
	probeActive bool
}

// NewCircuitBreaker creates a closed breaker. threshold <= 0 disables it.
func NewCircuitBreaker(name string, threshold int, resetTimeout time.Duration) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:         name,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		now:          time.Now,
	}
	metrics.SetCircuitBreakerState(name, cb.state.String())
	return cb
}

// Execute runs fn unless the circuit is open. Only errors for which
// countable returns true move the breaker towards open.
func (cb *CircuitBreaker) Execute(fn func() error, countable func(error) bool) error {
	if cb == nil || cb.threshold <= 0 {
		return fn()
	}
	if !cb.allow() {
		return ErrCircuitOpen
	}
	err := fn()
	if err != nil && countable(err) {
		cb.recordFailure()
		return err
	}
	cb.recordSuccess()
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return false
		}
		cb.transition(StateHalfOpen)
		cb.probeActive = true
		return true
	default:
		if cb.probeActive {
			return false
		}
		cb.probeActive = true
		return true
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.probeActive = false
	if cb.state == StateHalfOpen || cb.failures >= cb.threshold {
		cb.openedAt = cb.now()
		cb.transition(StateOpen)
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.probeActive = false
	cb.transition(StateClosed)
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to BreakerState) {
	if cb.state == to {
		return
	}
	cb.state = to
	metrics.SetCircuitBreakerState(cb.name, to.String())
}

// State returns the current state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
