package provider

import (
	"sync"
	"time"
)

// HealthTracker implements the per-provider health ladder from spec §4.2:
// failures 0 -> healthy, >=2 -> degraded, >=5 -> down, with an internal
// circuit mirror (>=3 half_open, >=5 open, reset on success). Every provider
// variant embeds one instance and calls RecordSuccess/RecordFailure around
// each upstream call.
type HealthTracker struct {
	mu                  sync.RWMutex
	consecutiveFailures int
	lastCheckAt         time.Time
	lastSuccessAt       time.Time
	lastLatencyMS       int64
}

// RecordSuccess resets the failure ladder.
func (h *HealthTracker) RecordSuccess(latencyMS int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveFailures = 0
	now := time.Now()
	h.lastCheckAt = now
	h.lastSuccessAt = now
	h.lastLatencyMS = latencyMS
}

// RecordFailure advances the failure ladder by one.
func (h *HealthTracker) RecordFailure(latencyMS int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveFailures++
	h.lastCheckAt = time.Now()
	h.lastLatencyMS = latencyMS
}

// GetHealthStatus renders the current HealthStatus. Promoted by every
// provider adapter that embeds HealthTracker to satisfy Provider.
func (h *HealthTracker) GetHealthStatus() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	st := HealthHealthy
	switch {
	case h.consecutiveFailures >= 5:
		st = HealthDown
	case h.consecutiveFailures >= 2:
		st = HealthDegraded
	}

	cb := CircuitMirrorClosed
	switch {
	case h.consecutiveFailures >= 5:
		cb = CircuitMirrorOpen
	case h.consecutiveFailures >= 3:
		cb = CircuitMirrorHalfOpen
	}

	return HealthStatus{
		Status:              st,
		LastCheckAt:         h.lastCheckAt,
		LastSuccessAt:       h.lastSuccessAt,
		LatencyMS:           h.lastLatencyMS,
		ConsecutiveFailures: h.consecutiveFailures,
		CircuitBreakerState: cb,
	}
}
