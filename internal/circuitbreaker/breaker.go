// Package circuitbreaker stops repeatedly failing triggers from
// consuming batch slots. After a run of consecutive materialization
// failures the trigger's circuit opens; it closes again on the first
// success after the cooldown.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

type triggerState struct {
	state               state
	consecutiveFailures int
	openedAt            time.Time
}

type CircuitBreaker struct {
	mu        sync.Mutex
	states    map[string]*triggerState
	threshold int
	cooldown  time.Duration
	clock     func() time.Time
}

func New(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		states:    make(map[string]*triggerState),
		threshold: threshold,
		cooldown:  cooldown,
		clock:     time.Now,
	}
}

// Allow reports whether the trigger may be evaluated. An open circuit
// past its cooldown moves to half-open and lets one probe through.
func (cb *CircuitBreaker) Allow(id string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.states[id]
	if !ok {
		return nil
	}

	switch s.state {
	case stateClosed:
		return nil
	case stateOpen:
		if cb.clock().Sub(s.openedAt) >= cb.cooldown {
			s.state = stateHalfOpen
			return nil
		}
		return ErrCircuitOpen
	case stateHalfOpen:
		return ErrCircuitOpen
	default:
		return nil
	}
}

func (cb *CircuitBreaker) RecordSuccess(id string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.states[id]
	if !ok {
		return
	}
	s.state = stateClosed
	s.consecutiveFailures = 0
}

func (cb *CircuitBreaker) RecordFailure(id string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.states[id]
	if !ok {
		s = &triggerState{}
		cb.states[id] = s
	}

	s.consecutiveFailures++
	if s.consecutiveFailures >= cb.threshold {
		s.state = stateOpen
		s.openedAt = cb.clock()
	}
}
