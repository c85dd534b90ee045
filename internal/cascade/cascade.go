// Package cascade implements the alternative cheap-to-expensive execution
// mode from spec §4.8: an ordered chain of (model, quality threshold) pairs,
// tried in order until one clears its threshold.
package cascade

import (
	"context"
	"fmt"

	"github.com/aiorch/core/internal/evaluator"
	"github.com/aiorch/core/internal/llmtypes"
	"github.com/aiorch/core/internal/modelregistry"
	"github.com/aiorch/core/internal/provider"
	"github.com/aiorch/core/internal/providerregistry"
)

// Step is one rung of a cascade chain.
type Step struct {
	Tier      modelregistry.Tier
	Threshold float64
}

// Chain name constants, matching spec §4.8's selectChain table.
const (
	ChainFrugal    = "frugal"
	ChainBulk      = "bulk"
	ChainBalanced  = "balanced"
	ChainCode      = "code"
	ChainSecurity  = "security"
	ChainReasoning = "reasoning"
	ChainQuality   = "quality"
)

// SelectChain implements spec §4.8's chain-selection rule.
func SelectChain(category llmtypes.Category, securitySensitive bool, complexity llmtypes.Complexity) string {
	if securitySensitive {
		return ChainSecurity
	}

	chain := ""
	switch category {
	case llmtypes.CategoryCodeGeneration, llmtypes.CategoryCodeReview:
		chain = ChainCode
	case llmtypes.CategorySecurity:
		chain = ChainSecurity
	case llmtypes.CategoryPlanning:
		chain = ChainReasoning
	case llmtypes.CategoryAnalysis:
		chain = ChainBalanced
	case llmtypes.CategoryChat, llmtypes.CategoryQuery:
		chain = ChainFrugal
	case llmtypes.CategorySummarize, llmtypes.CategoryParseCommand, llmtypes.CategoryHeartbeat:
		chain = ChainBulk
	}

	if complexity == llmtypes.ComplexityCritical {
		return ChainQuality
	}
	if chain == "" && complexity == llmtypes.ComplexityComplex {
		return ChainBalanced
	}
	if chain == "" {
		chain = ChainBulk
	}
	return chain
}

// StepResult records one attempted step's outcome, for cascade:step_complete.
type StepResult struct {
	Step      int
	Tier      modelregistry.Tier
	Model     string
	Quality   float64
	Escalated bool
	CostUSD   float64
}

// Outcome is the final result of running a chain.
type Outcome struct {
	Chain        string
	FinalTier    modelregistry.Tier
	Response     *provider.CompletionResult
	Steps        []StepResult
	TotalCostUSD float64
}

// EventSink receives cascade lifecycle events. Implementations must not
// block the caller.
type EventSink interface {
	Started(chain string, queryLength int)
	StepComplete(r StepResult)
	Completed(o Outcome, durationMS int64)
}

// Router runs chains against a ProviderRegistry and ModelRegistry.
type Router struct {
	providers *providerregistry.Registry
	models    *modelregistry.Registry
	evaluator *evaluator.Evaluator
	events    EventSink
}

// New builds a Router.
func New(providers *providerregistry.Registry, models *modelregistry.Registry, ev *evaluator.Evaluator, events EventSink) *Router {
	return &Router{providers: providers, models: models, evaluator: ev, events: events}
}

// Run executes chain against req (whose Model field is overwritten per
// step), per the §4.8 algorithm.
func (r *Router) Run(ctx context.Context, chainName string, chain []Step, req *provider.CompletionRequest, query string) (*Outcome, error) {
	if r.events != nil {
		r.events.Started(chainName, len(query))
	}

	available := make([]Step, 0, len(chain))
	for _, step := range chain {
		if r.models.IsAvailable(step.Tier) {
			available = append(available, step)
		}
	}
	if len(available) == 0 {
		return nil, fmt.Errorf("cascade: no available models in chain %q", chainName)
	}

	var steps []StepResult
	var totalCost float64
	var lastErr error

	for i, step := range available {
		entry, ok := r.models.Get(step.Tier)
		if !ok {
			continue
		}
		stepReq := *req
		stepReq.Model = entry.UpstreamModel

		outcome, err := r.providers.Complete(ctx, step.Tier, &stepReq)
		isLast := i == len(available)-1

		if err != nil {
			lastErr = err
			if isLast {
				return nil, lastErr
			}
			steps = append(steps, StepResult{Step: i, Tier: step.Tier, Model: entry.UpstreamModel, Quality: 0, Escalated: true})
			if r.events != nil {
				r.events.StepComplete(steps[len(steps)-1])
			}
			continue
		}

		totalCost += outcome.CostUSD
		quality := 1.0
		if !isLast {
			quality = r.evaluator.Score(query, outcome.Result.Content)
		}

		escalated := !isLast && quality < step.Threshold
		sr := StepResult{Step: i, Tier: step.Tier, Model: entry.UpstreamModel, Quality: quality, Escalated: escalated, CostUSD: outcome.CostUSD}
		steps = append(steps, sr)
		if r.events != nil {
			r.events.StepComplete(sr)
		}

		if isLast || quality >= step.Threshold {
			result := &Outcome{
				Chain: chainName, FinalTier: step.Tier, Response: outcome.Result,
				Steps: steps, TotalCostUSD: totalCost,
			}
			if r.events != nil {
				r.events.Completed(*result, outcome.Result.DurationMS)
			}
			return result, nil
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("cascade: chain %q exhausted without acceptance", chainName)
}
