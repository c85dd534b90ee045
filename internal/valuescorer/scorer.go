// Package valuescorer picks a model tier for a request under the current
// budget, per spec §4.6.
package valuescorer

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/aiorch/core/internal/llmtypes"
	"github.com/aiorch/core/internal/modelregistry"
	"github.com/aiorch/core/internal/provider"
)

// securityKeywords trigger "critical" complexity for any category.
var securityKeywords = []string{"production", "billing", "auth", "password"}

var codeFenceRe = regexp.MustCompile("```")

// ClassifyComplexity applies the §4.6 rule-based classifier to content.
func ClassifyComplexity(content string, category llmtypes.Category) llmtypes.Complexity {
	lower := strings.ToLower(content)
	hasNewline := strings.Contains(content, "\n")
	fences := len(codeFenceRe.FindAllString(content, -1))

	if len(content) < 80 && !hasNewline && fences == 0 {
		return llmtypes.ComplexityTrivial
	}

	if category == llmtypes.CategorySecurity {
		return llmtypes.ComplexityCritical
	}
	for _, kw := range securityKeywords {
		if strings.Contains(lower, kw) {
			return llmtypes.ComplexityCritical
		}
	}

	if len(content) > 1200 || fences >= 3 ||
		category == llmtypes.CategoryPlanning || category == llmtypes.CategoryCodeGeneration || category == llmtypes.CategoryCodeReview {
		return llmtypes.ComplexityComplex
	}

	if len(content) < 300 &&
		(category == llmtypes.CategoryQuery || category == llmtypes.CategoryChat || category == llmtypes.CategorySummarize) {
		return llmtypes.ComplexitySimple
	}

	return llmtypes.ComplexityStandard
}

// Features is the input feature vector scored against each available tier.
type Features struct {
	Complexity            llmtypes.Complexity
	Stakes                int // 1-10
	QualityPriority       int // 1-10
	BudgetPressure        int // 1-10
	HistoricalPerformance int // 1-10
	SecuritySensitive     bool
	Category              llmtypes.Category
}

// Weights are the non-negative scoring coefficients. Within each sign group
// (quality/history are additive, cost/latency/pressure/circuit are
// subtractive) the weights should sum to 1, though this is not enforced.
type Weights struct {
	Quality float64
	Cost    float64
	Latency float64
	History float64
	Budget  float64
	Circuit float64
}

// DefaultWeights is a reasonable starting point: favor quality and cost
// roughly equally, with smaller terms for latency/history/pressure/circuit.
var DefaultWeights = Weights{
	Quality: 0.35,
	Cost:    0.30,
	Latency: 0.10,
	History: 0.10,
	Budget:  0.10,
	Circuit: 0.05,
}

// TierHealth is the per-tier health input used for breakerPenalty.
type TierHealth string

const (
	TierHealthy  TierHealth = "healthy"
	TierDegraded TierHealth = "degraded"
	TierDown     TierHealth = "down"
)

// Candidate is one tier's inputs for scoring: its quality/latency priors (a
// caller-supplied estimate, since ValueScorer has no ground truth) and
// current health.
type Candidate struct {
	Tier           modelregistry.Tier
	QualityPrior   float64 // 0-1, e.g. derived from tier rank
	LatencyPriorMS float64
	Health         TierHealth
}

// TierBreakdown is one tier's scored components, for observability and the
// returned reasoning string.
type TierBreakdown struct {
	Tier          modelregistry.Tier
	Score         float64
	QualityTerm   float64
	CostTerm      float64
	LatencyTerm   float64
	HistoryTerm   float64
	PressureTerm  float64
	CircuitTerm   float64
	EstimatedCost float64
}

// Result is the ValueScorer's output.
type Result struct {
	RecommendedTier modelregistry.Tier
	Score           float64
	PerTierBreakdown []TierBreakdown
	Reasoning        string
}

// Scorer picks a tier given the model catalog, weights and a security floor.
type Scorer struct {
	models  *modelregistry.Registry
	weights Weights

	// SecurityFloorMinRank and SecurityFloorCapability implement the
	// "Sonnet-or-above" floor from spec §4.6/§8 S6.
	SecurityFloorMinRank    int
	SecurityFloorCapability provider.Capability
}

// New builds a Scorer bound to a model catalog.
func New(models *modelregistry.Registry, weights Weights) *Scorer {
	return &Scorer{
		models:                  models,
		weights:                 weights,
		SecurityFloorMinRank:    20, // the catalog's "sonnet"/"gpt-4.1"/"gemini-flash" rank
		SecurityFloorCapability: provider.CapTools,
	}
}

// Score picks the recommended tier for f, estimating token usage from
// estTokens and reading per-tier health/throttle state from candidates and
// throttle.
func (s *Scorer) Score(f Features, estInputTokens, estOutputTokens int, candidates []Candidate, throttle llmtypes.ThrottleLevel) (Result, error) {
	eligible := candidates
	if f.SecuritySensitive {
		eligible = s.filterSecurityFloor(candidates)
	}
	if throttle == llmtypes.ThrottlePause {
		eligible = s.filterEssentialOnly(eligible)
	}
	if len(eligible) == 0 {
		return Result{}, fmt.Errorf("valuescorer: no eligible tier for request")
	}

	costs := make(map[modelregistry.Tier]float64, len(eligible))
	maxCost := 0.0
	maxLatency := 0.0
	maxQuality := 0.0
	for _, c := range eligible {
		cost, err := s.models.EstimateCost(c.Tier, estInputTokens, estOutputTokens)
		if err != nil {
			return Result{}, err
		}
		costs[c.Tier] = cost
		if cost > maxCost {
			maxCost = cost
		}
		if c.LatencyPriorMS > maxLatency {
			maxLatency = c.LatencyPriorMS
		}
		if c.QualityPrior > maxQuality {
			maxQuality = c.QualityPrior
		}
	}
	if maxCost == 0 {
		maxCost = 1
	}
	if maxLatency == 0 {
		maxLatency = 1
	}
	if maxQuality == 0 {
		maxQuality = 1
	}

	breakdowns := make([]TierBreakdown, 0, len(eligible))
	for _, c := range eligible {
		normQuality := c.QualityPrior / maxQuality
		normCost := costs[c.Tier] / maxCost
		normLatency := c.LatencyPriorMS / maxLatency
		historyTerm := float64(f.HistoricalPerformance) / 10.0
		pressureTerm := pressurePenalty(normCost, f.BudgetPressure)
		circuitTerm := breakerPenalty(c.Health)

		qualityTerm := s.weights.Quality * normQuality
		costTerm := s.weights.Cost * normCost
		latencyTerm := s.weights.Latency * normLatency
		histTerm := s.weights.History * historyTerm
		budgetTerm := s.weights.Budget * pressureTerm
		circTerm := s.weights.Circuit * circuitTerm

		score := qualityTerm - costTerm - latencyTerm + histTerm - budgetTerm - circTerm

		breakdowns = append(breakdowns, TierBreakdown{
			Tier: c.Tier, Score: score,
			QualityTerm: qualityTerm, CostTerm: costTerm, LatencyTerm: latencyTerm,
			HistoryTerm: histTerm, PressureTerm: budgetTerm, CircuitTerm: circTerm,
			EstimatedCost: costs[c.Tier],
		})
	}

	sort.Slice(breakdowns, func(i, j int) bool { return breakdowns[i].Score > breakdowns[j].Score })
	best := breakdowns[0]

	return Result{
		RecommendedTier:  best.Tier,
		Score:            best.Score,
		PerTierBreakdown: breakdowns,
		Reasoning:        reason(best),
	}, nil
}

func (s *Scorer) filterSecurityFloor(candidates []Candidate) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if s.models.MeetsCapabilityFloor(c.Tier, s.SecurityFloorMinRank, s.SecurityFloorCapability) {
			out = append(out, c)
		}
	}
	return out
}

// filterEssentialOnly excludes non-essential (i.e. non-floor-tier) options
// when the budget is paused. "Essential" here means the single cheapest
// candidate across all families (priced at 1000 input and 1000 output
// tokens) survives; every other candidate is excluded.
func (s *Scorer) filterEssentialOnly(candidates []Candidate) []Candidate {
	if len(candidates) == 0 {
		return candidates
	}
	cheapest := candidates[0]
	cheapestCost, _ := s.models.EstimateCost(cheapest.Tier, 1000, 1000)
	for _, c := range candidates[1:] {
		cost, _ := s.models.EstimateCost(c.Tier, 1000, 1000)
		if cost < cheapestCost {
			cheapest, cheapestCost = c, cost
		}
	}
	return []Candidate{cheapest}
}

// pressurePenalty increases with normalized tier price as budgetPressure
// grows.
func pressurePenalty(normCost float64, budgetPressure int) float64 {
	return normCost * (float64(budgetPressure) / 10.0)
}

// breakerPenalty is nonzero for degraded/down tiers.
func breakerPenalty(h TierHealth) float64 {
	switch h {
	case TierDown:
		return 1.0
	case TierDegraded:
		return 0.5
	default:
		return 0
	}
}

func reason(b TierBreakdown) string {
	terms := map[string]float64{
		"quality":  b.QualityTerm,
		"cost":     b.CostTerm,
		"latency":  b.LatencyTerm,
		"history":  b.HistoryTerm,
		"pressure": b.PressureTerm,
		"circuit":  b.CircuitTerm,
	}
	dominant := ""
	dominantAbs := -1.0
	for name, v := range terms {
		abs := v
		if abs < 0 {
			abs = -abs
		}
		if abs > dominantAbs {
			dominant, dominantAbs = name, abs
		}
	}
	return fmt.Sprintf("selected %s: dominant term %s (score=%.3f, estCost=$%.6f)", b.Tier, dominant, b.Score, b.EstimatedCost)
}
