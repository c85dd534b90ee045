// Package costtracker implements the CostTracker external collaborator from
// spec §6: non-blocking budget checks and usage tracking backed by
// mutex-protected in-memory counters, with an optional Redis-backed distributed mode for
// multi-process deployments.
package costtracker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aiorch/core/internal/llmtypes"
)

// Config tunes budget limits and throttle thresholds.
type Config struct {
	MaxTokensPerRequest int
	MaxTokensPerMinute  int64
	MaxTokensPerHour    int64
	MaxTokensPerDay     int64
	MaxCostPerRequest   float64
	MaxCostPerDay       float64

	// WarnThreshold/ReduceThreshold/PauseThreshold are fractions of
	// MaxCostPerDay (0-1) at which getThrottleLevel steps up.
	WarnThreshold   float64
	ReduceThreshold float64
	PauseThreshold  float64
}

// DefaultConfig mirrors the teacher's sensible-defaults pattern.
func DefaultConfig() Config {
	return Config{
		MaxTokensPerRequest: 100_000,
		MaxTokensPerMinute:  500_000,
		MaxTokensPerHour:    5_000_000,
		MaxTokensPerDay:     50_000_000,
		MaxCostPerRequest:   10.0,
		MaxCostPerDay:       1_000.0,
		WarnThreshold:       0.5,
		ReduceThreshold:     0.8,
		PauseThreshold:      0.95,
	}
}

// ProceedDecision is canProceed's result.
type ProceedDecision struct {
	Allowed bool
	Reason  string
}

// UsageEvent is what track() records, mirroring the llm:request_complete
// payload's accounting-relevant fields.
type UsageEvent struct {
	Operation    string
	Agent        string
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// Tracker is the default CostTracker implementation.
type Tracker struct {
	cfg    Config
	logger *zap.Logger

	mu          sync.Mutex
	minuteStart time.Time
	hourStart   time.Time
	dayStart    time.Time

	tokensMinute int64
	tokensHour   int64
	tokensDay    int64
	costDayMicro int64 // integer microcents, per spec §9
}

// New builds a Tracker. logger may be nil.
func New(cfg Config, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := time.Now()
	return &Tracker{
		cfg: cfg, logger: logger,
		minuteStart: now, hourStart: now, dayStart: now,
	}
}

// CanProceed is the non-blocking budget gate invoked at pipeline step 3.
func (t *Tracker) CanProceed(estTokens int, priority llmtypes.Priority) ProceedDecision {
	if t.cfg.MaxTokensPerRequest > 0 && estTokens > t.cfg.MaxTokensPerRequest {
		return ProceedDecision{Allowed: false, Reason: "estimated tokens exceed per-request limit"}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetWindowsIfNeededLocked(time.Now())

	if t.cfg.MaxTokensPerMinute > 0 && t.tokensMinute+int64(estTokens) > t.cfg.MaxTokensPerMinute {
		if priority == llmtypes.PriorityUrgent {
			return ProceedDecision{Allowed: true, Reason: "urgent priority overrides per-minute limit"}
		}
		return ProceedDecision{Allowed: false, Reason: "per-minute token budget exhausted"}
	}
	if t.cfg.MaxTokensPerHour > 0 && t.tokensHour+int64(estTokens) > t.cfg.MaxTokensPerHour {
		return ProceedDecision{Allowed: false, Reason: "per-hour token budget exhausted"}
	}
	if t.cfg.MaxTokensPerDay > 0 && t.tokensDay+int64(estTokens) > t.cfg.MaxTokensPerDay {
		return ProceedDecision{Allowed: false, Reason: "per-day token budget exhausted"}
	}

	throttle := t.throttleLevelLocked()
	if throttle == llmtypes.ThrottlePause && priority != llmtypes.PriorityUrgent {
		return ProceedDecision{Allowed: false, Reason: "cost budget paused"}
	}
	return ProceedDecision{Allowed: true}
}

// Track records a completed usage event under a short-held lock.
func (t *Tracker) Track(ev UsageEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetWindowsIfNeededLocked(time.Now())

	tokens := int64(ev.InputTokens + ev.OutputTokens)
	t.tokensMinute += tokens
	t.tokensHour += tokens
	t.tokensDay += tokens
	// Accumulate in integer microcents to avoid float drift across a
	// long-running process; ev.CostUSD is already the authoritative figure
	// from providerregistry's microcent accounting.
	t.costDayMicro += int64(ev.CostUSD*100*1_000_000 + 0.5)
}

// GetThrottleLevel reads the current budget health indicator.
func (t *Tracker) GetThrottleLevel() llmtypes.ThrottleLevel {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetWindowsIfNeededLocked(time.Now())
	return t.throttleLevelLocked()
}

func (t *Tracker) throttleLevelLocked() llmtypes.ThrottleLevel {
	if t.cfg.MaxCostPerDay <= 0 {
		return llmtypes.ThrottleNormal
	}
	costDayUSD := float64(t.costDayMicro) / 1_000_000.0 / 100.0
	frac := costDayUSD / t.cfg.MaxCostPerDay
	switch {
	case frac >= t.cfg.PauseThreshold:
		return llmtypes.ThrottlePause
	case frac >= t.cfg.ReduceThreshold:
		return llmtypes.ThrottleReduce
	case frac >= t.cfg.WarnThreshold:
		return llmtypes.ThrottleWarn
	default:
		return llmtypes.ThrottleNormal
	}
}

func (t *Tracker) resetWindowsIfNeededLocked(now time.Time) {
	if now.Sub(t.minuteStart) >= time.Minute {
		t.tokensMinute = 0
		t.minuteStart = now
	}
	if now.Sub(t.hourStart) >= time.Hour {
		t.tokensHour = 0
		t.hourStart = now
	}
	if now.Sub(t.dayStart) >= 24*time.Hour {
		t.tokensDay = 0
		t.costDayMicro = 0
		t.dayStart = now
	}
}

// Shutdown is a no-op for the in-memory tracker; present to satisfy the
// CostTracker collaborator shape and for symmetry with the Redis-backed mode.
func (t *Tracker) Shutdown(ctx context.Context) error { return nil }
