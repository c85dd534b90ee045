package costtracker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aiorch/core/internal/llmtypes"
)

// DistributedTracker is a Redis-backed CostTracker for multi-process
// deployments that must share one budget across orchestrator instances.
// Counters live in Redis with per-window TTLs; CanProceed/Track stay
// non-blocking from the caller's perspective because each operation is a
// single round trip with its own short timeout.
type DistributedTracker struct {
	cfg       Config
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	timeout   time.Duration
}

// NewDistributed builds a DistributedTracker against an already-constructed
// go-redis client (a *redis.Client pointed at miniredis in tests, or a real
// Redis deployment in production).
func NewDistributed(client *redis.Client, cfg Config, keyPrefix string, logger *zap.Logger) *DistributedTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if keyPrefix == "" {
		keyPrefix = "aiorch:cost"
	}
	return &DistributedTracker{cfg: cfg, client: client, logger: logger, keyPrefix: keyPrefix, timeout: 2 * time.Second}
}

func (d *DistributedTracker) minuteKey() string { return fmt.Sprintf("%s:tokens:minute:%d", d.keyPrefix, time.Now().Unix()/60) }
func (d *DistributedTracker) hourKey() string   { return fmt.Sprintf("%s:tokens:hour:%d", d.keyPrefix, time.Now().Unix()/3600) }
func (d *DistributedTracker) dayKey() string    { return fmt.Sprintf("%s:tokens:day:%d", d.keyPrefix, time.Now().Unix()/86400) }
func (d *DistributedTracker) costDayKey() string { return fmt.Sprintf("%s:cost_microcents:day:%d", d.keyPrefix, time.Now().Unix()/86400) }

// CanProceed reads current-window counters from Redis and applies the
// per-request limit, the per-minute token limit (waived for URGENT) and the
// daily cost pause (waived for URGENT). The per-hour and per-day token
// limits are not checked here, although Track maintains those counters.
func (d *DistributedTracker) CanProceed(ctx context.Context, estTokens int, priority llmtypes.Priority) (ProceedDecision, error) {
	if d.cfg.MaxTokensPerRequest > 0 && estTokens > d.cfg.MaxTokensPerRequest {
		return ProceedDecision{Allowed: false, Reason: "estimated tokens exceed per-request limit"}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	minute, err := d.client.Get(ctx, d.minuteKey()).Int64()
	if err != nil && err != redis.Nil {
		return ProceedDecision{}, err
	}
	if d.cfg.MaxTokensPerMinute > 0 && minute+int64(estTokens) > d.cfg.MaxTokensPerMinute && priority != llmtypes.PriorityUrgent {
		return ProceedDecision{Allowed: false, Reason: "per-minute token budget exhausted"}, nil
	}

	costMicro, err := d.client.Get(ctx, d.costDayKey()).Int64()
	if err != nil && err != redis.Nil {
		return ProceedDecision{}, err
	}
	if d.cfg.MaxCostPerDay > 0 {
		costDayUSD := float64(costMicro) / 1_000_000.0 / 100.0
		if costDayUSD/d.cfg.MaxCostPerDay >= d.cfg.PauseThreshold && priority != llmtypes.PriorityUrgent {
			return ProceedDecision{Allowed: false, Reason: "cost budget paused"}, nil
		}
	}
	return ProceedDecision{Allowed: true}, nil
}

// Track increments the Redis-backed window counters, setting a TTL on first
// write to each key so windows self-expire without a sweeper.
func (d *DistributedTracker) Track(ctx context.Context, ev UsageEvent) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	tokens := int64(ev.InputTokens + ev.OutputTokens)
	microcents := int64(ev.CostUSD*100*1_000_000 + 0.5)

	pipe := d.client.TxPipeline()
	pipe.IncrBy(ctx, d.minuteKey(), tokens)
	pipe.Expire(ctx, d.minuteKey(), 2*time.Minute)
	pipe.IncrBy(ctx, d.hourKey(), tokens)
	pipe.Expire(ctx, d.hourKey(), 2*time.Hour)
	pipe.IncrBy(ctx, d.dayKey(), tokens)
	pipe.Expire(ctx, d.dayKey(), 48*time.Hour)
	pipe.IncrBy(ctx, d.costDayKey(), microcents)
	pipe.Expire(ctx, d.costDayKey(), 48*time.Hour)
	_, err := pipe.Exec(ctx)
	return err
}

// GetThrottleLevel reads the day's cost counter and applies Config's
// threshold fractions.
func (d *DistributedTracker) GetThrottleLevel(ctx context.Context) (llmtypes.ThrottleLevel, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if d.cfg.MaxCostPerDay <= 0 {
		return llmtypes.ThrottleNormal, nil
	}
	costMicro, err := d.client.Get(ctx, d.costDayKey()).Int64()
	if err != nil && err != redis.Nil {
		return "", err
	}
	costDayUSD := float64(costMicro) / 1_000_000.0 / 100.0
	frac := costDayUSD / d.cfg.MaxCostPerDay
	switch {
	case frac >= d.cfg.PauseThreshold:
		return llmtypes.ThrottlePause, nil
	case frac >= d.cfg.ReduceThreshold:
		return llmtypes.ThrottleReduce, nil
	case frac >= d.cfg.WarnThreshold:
		return llmtypes.ThrottleWarn, nil
	default:
		return llmtypes.ThrottleNormal, nil
	}
}

// Shutdown closes the underlying Redis client.
func (d *DistributedTracker) Shutdown(ctx context.Context) error {
	return d.client.Close()
}
