package costtracker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aiorch/core/internal/llmtypes"
)

// DistributedAdapter adapts a DistributedTracker's context-and-error-aware
// methods to the orchestrator's synchronous CostTracker contract. Every
// Redis round trip gets its own bounded context derived from
// context.Background(); a Redis outage fails open (CanProceed allows,
// GetThrottleLevel reports normal) rather than blocking the pipeline it
// observes, matching the audit sink's never-block-on-ambient-infra stance.
type DistributedAdapter struct {
	dist    *DistributedTracker
	logger  *zap.Logger
	timeout time.Duration
}

// NewDistributedAdapter wraps dist for use as an orchestrator.CostTracker.
func NewDistributedAdapter(dist *DistributedTracker, logger *zap.Logger) *DistributedAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DistributedAdapter{dist: dist, logger: logger, timeout: 3 * time.Second}
}

func (a *DistributedAdapter) CanProceed(estTokens int, priority llmtypes.Priority) ProceedDecision {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	decision, err := a.dist.CanProceed(ctx, estTokens, priority)
	if err != nil {
		a.logger.Warn("costtracker: distributed CanProceed failed, failing open", zap.Error(err))
		return ProceedDecision{Allowed: true}
	}
	return decision
}

func (a *DistributedAdapter) Track(ev UsageEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := a.dist.Track(ctx, ev); err != nil {
		a.logger.Warn("costtracker: distributed Track failed", zap.Error(err))
	}
}

func (a *DistributedAdapter) GetThrottleLevel() llmtypes.ThrottleLevel {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	level, err := a.dist.GetThrottleLevel(ctx)
	if err != nil {
		a.logger.Warn("costtracker: distributed GetThrottleLevel failed, reporting normal", zap.Error(err))
		return llmtypes.ThrottleNormal
	}
	return level
}

func (a *DistributedAdapter) Shutdown(ctx context.Context) error {
	return a.dist.Shutdown(ctx)
}
