// Package circuitbreaker implements the orchestrator-wide circuit breaker
// from spec §4.4. It is distinct from the per-provider health ladder in
// internal/provider: this breaker protects the caller when every upstream is
// failing, where the per-provider trackers shed individual upstreams.
package circuitbreaker

import (
	"sync"
	"time"
)

// State is the breaker's current position.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Config tunes the breaker. Zero values are replaced with spec defaults by
// New.
type Config struct {
	FailureThreshold int           // default 5
	ResetTimeout     time.Duration // default 30s

	// OnStateChange fires on every transition, never while the breaker's
	// internal mutex is held.
	OnStateChange func(previous, next State, failures int)
}

const (
	defaultFailureThreshold = 5
	defaultResetTimeout     = 30 * time.Second
)

// Breaker is the mutex-protected orchestrator-level circuit breaker.
type Breaker struct {
	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	cfg      Config
}

// New builds a Breaker starting CLOSED.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = defaultResetTimeout
	}
	return &Breaker{state: StateClosed, cfg: cfg}
}

// CanExecute reports false iff the breaker is OPEN and the cooldown has not
// yet elapsed. A call that finds the cooldown elapsed transitions the
// breaker to HALF_OPEN and returns true. While HALF_OPEN every call is let
// through; the number of concurrent probing calls is not limited.
func (b *Breaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return true
	}
	if time.Since(b.openedAt) < b.cfg.ResetTimeout {
		return false
	}
	b.setStateLocked(StateHalfOpen)
	return true
}

// RecordSuccess resets the failure count and moves to CLOSED.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	if b.state != StateClosed {
		b.setStateLocked(StateClosed)
	}
}

// RecordFailure increments the failure count and may open the breaker: from
// CLOSED once failures reach the threshold, or immediately from HALF_OPEN on
// a single failure.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	switch b.state {
	case StateHalfOpen:
		b.setStateLocked(StateOpen)
	case StateClosed:
		if b.failures >= b.cfg.FailureThreshold {
			b.setStateLocked(StateOpen)
		}
	}
}

// GetState returns the current state.
func (b *Breaker) GetState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats is the snapshot returned by GetStats.
type Stats struct {
	State    State
	Failures int
	OpenedAt time.Time
}

// GetStats returns a snapshot of the breaker's internal counters.
func (b *Breaker) GetStats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{State: b.state, Failures: b.failures, OpenedAt: b.openedAt}
}

// setStateLocked transitions state and fires OnStateChange outside the lock.
// Callers must hold b.mu.
func (b *Breaker) setStateLocked(next State) {
	previous := b.state
	b.state = next
	if next == StateOpen {
		b.openedAt = time.Now()
	}
	if next == StateClosed {
		b.failures = 0
	}
	if previous == next || b.cfg.OnStateChange == nil {
		return
	}
	cb := b.cfg.OnStateChange
	failures := b.failures
	go cb(previous, next, failures)
}
