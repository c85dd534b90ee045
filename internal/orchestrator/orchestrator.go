// Package orchestrator wires every other component into the 15-step
// execution pipeline from spec §4.9: validate, classify, budget-check,
// circuit-check, select, govern, assemble, call upstream, evaluate, escalate
// at most once, and record — emitting the orchestrator's event contract at
// each of the named points along the way.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aiorch/core/internal/auditlog"
	"github.com/aiorch/core/internal/cascade"
	"github.com/aiorch/core/internal/circuitbreaker"
	"github.com/aiorch/core/internal/costtracker"
	"github.com/aiorch/core/internal/eventbus"
	"github.com/aiorch/core/internal/evaluator"
	"github.com/aiorch/core/internal/governance"
	"github.com/aiorch/core/internal/llmtypes"
	"github.com/aiorch/core/internal/modelregistry"
	"github.com/aiorch/core/internal/orcherr"
	"github.com/aiorch/core/internal/promptassembler"
	"github.com/aiorch/core/internal/provider"
	"github.com/aiorch/core/internal/providerregistry"
	"github.com/aiorch/core/internal/telemetry"
	"github.com/aiorch/core/internal/tokencount"
	"github.com/aiorch/core/internal/valuescorer"
)

// CostTracker is the external collaborator contract from spec §6. The
// concrete *costtracker.Tracker satisfies it without adaptation.
type CostTracker interface {
	CanProceed(estTokens int, priority llmtypes.Priority) costtracker.ProceedDecision
	Track(ev costtracker.UsageEvent)
	GetThrottleLevel() llmtypes.ThrottleLevel
	Shutdown(ctx context.Context) error
}

// GovernanceGate is the optional external collaborator gating pipeline step
// 6. The concrete *governance.Governance satisfies it without adaptation.
type GovernanceGate interface {
	RequestApproval(ctx context.Context, req governance.ApprovalRequest, estimatedCostUSD float64, selectedModel string) governance.Decision
}

// Config carries the AI_ORCHESTRATOR_* feature flags from spec §6 plus the
// tunables this module's own design introduces (scoring weights, the
// governance cost threshold, the shutdown drain timeout). Cascade chains are
// supplied through Deps.Chains, not Config.
type Config struct {
	OrchestratorEnabled        bool
	PromptCachingEnabled       bool
	GovernanceEnabled          bool
	QualityEscalationEnabled   bool
	GovernanceCostThresholdUSD float64
	Weights                    valuescorer.Weights
	ShutdownDrainTimeout       time.Duration
}

// DefaultConfig mirrors spec §6's stated defaults.
func DefaultConfig() Config {
	return Config{
		OrchestratorEnabled:        true,
		PromptCachingEnabled:       true,
		GovernanceEnabled:          false,
		QualityEscalationEnabled:   true,
		GovernanceCostThresholdUSD: 1.0,
		Weights:                    valuescorer.DefaultWeights,
		ShutdownDrainTimeout:       10 * time.Second,
	}
}

// Deps are the collaborators Orchestrator is constructed with. Every field
// except Models and Providers may be left nil; New supplies a sensible
// default (an AutoApprover Governance, an in-process Bus, a disabled
// telemetry Metrics, a fresh CircuitBreaker). AuditSink has no default: when
// it is nil, no audit entries are recorded.
type Deps struct {
	Models     *modelregistry.Registry
	Providers  *providerregistry.Registry
	CostTracker CostTracker
	Governance GovernanceGate
	Bus        eventbus.Bus
	Breaker    *circuitbreaker.Breaker
	Scorer     *valuescorer.Scorer
	Assembler  *promptassembler.Assembler
	Evaluator  *evaluator.Evaluator
	Tokenizer  *tokencount.Estimator
	Cascade    *cascade.Router
	Chains     map[string][]cascade.Step
	AuditSink  *auditlog.Sink
	Metrics    *telemetry.Metrics
	Logger     *zap.Logger
}

// Orchestrator is the single entry point external callers use.
type Orchestrator struct {
	cfg Config

	models      *modelregistry.Registry
	providers   *providerregistry.Registry
	costTracker CostTracker
	governance  GovernanceGate
	bus         eventbus.Bus
	breaker     *circuitbreaker.Breaker
	scorer      *valuescorer.Scorer
	assembler   *promptassembler.Assembler
	evaluator   *evaluator.Evaluator
	tokenizer   *tokencount.Estimator
	cascade     *cascade.Router
	chains      map[string][]cascade.Step
	auditSink   *auditlog.Sink
	metrics     *telemetry.Metrics
	logger      *zap.Logger

	startedAt time.Time
	drain     sync.WaitGroup

	statsMu      sync.Mutex
	totalReqs    int64
	totalErrors  int64
	totalCostUSD float64
	totalLatency time.Duration
	modelUsage   map[string]int64
}

// New builds an Orchestrator. Models and Providers in deps are required;
// every other field is defaulted.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Models == nil || deps.Providers == nil {
		return nil, fmt.Errorf("orchestrator: Models and Providers are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	bus := deps.Bus
	if bus == nil {
		bus = eventbus.New(logger)
	}
	breaker := deps.Breaker
	if breaker == nil {
		breaker = circuitbreaker.New(circuitbreaker.Config{
			OnStateChange: func(previous, next circuitbreaker.State, failures int) {
				bus.Publish(context.Background(), eventbus.TopicCircuitStateChanged, eventbus.CircuitBreakerStateChanged{
					PreviousState: string(previous), NewState: string(next), Failures: failures, Timestamp: time.Now(),
				})
			},
		})
	}
	scorer := deps.Scorer
	if scorer == nil {
		scorer = valuescorer.New(deps.Models, cfg.Weights)
	}
	assembler := deps.Assembler
	if assembler == nil {
		assembler = promptassembler.New(cfg.PromptCachingEnabled)
	}
	ev := deps.Evaluator
	if ev == nil {
		ev = evaluator.New()
	}
	tok := deps.Tokenizer
	if tok == nil {
		tok = tokencount.New("")
	}
	ct := deps.CostTracker
	if ct == nil {
		ct = costtracker.New(costtracker.DefaultConfig(), logger)
	}
	gov := deps.Governance
	if gov == nil {
		gov = governance.New(governance.Config{}, logger)
	}
	chains := deps.Chains
	if chains == nil {
		chains = cascade.DefaultChains()
	}
	casc := deps.Cascade
	if casc == nil {
		casc = cascade.New(deps.Providers, deps.Models, ev, &cascade.BusEventSink{Bus: bus})
	}
	metrics := deps.Metrics
	if metrics == nil {
		_, metrics, _ = telemetry.Init(telemetry.Config{Enabled: false}, logger)
	}

	drainTimeout := cfg.ShutdownDrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = 10 * time.Second
	}
	cfg.ShutdownDrainTimeout = drainTimeout

	return &Orchestrator{
		cfg:         cfg,
		models:      deps.Models,
		providers:   deps.Providers,
		costTracker: ct,
		governance:  gov,
		bus:         bus,
		breaker:     breaker,
		scorer:      scorer,
		assembler:   assembler,
		evaluator:   ev,
		tokenizer:   tok,
		cascade:     casc,
		chains:      chains,
		auditSink:   deps.AuditSink,
		metrics:     metrics,
		logger:      logger,
		startedAt:   time.Now(),
		modelUsage:  make(map[string]int64),
	}, nil
}

// completionAttempt is what a single upstream call (original or escalated)
// produces, used to build both the llm:request_complete event and the final
// AIResponse.
type completionAttempt struct {
	tier         modelregistry.Tier
	outcome      *providerregistry.CompletionOutcome
	qualityScore float64
	err          error
	durationMS   int64
}

// Execute runs the full 15-step pipeline for req and returns the resulting
// AIResponse, or a structured *orcherr.Error describing which step rejected
// it.
func (o *Orchestrator) Execute(ctx context.Context, req *llmtypes.AIRequest) (resp *llmtypes.AIResponse, err error) {
	o.drain.Add(1)
	defer o.drain.Done()

	start := time.Now()

	if !o.cfg.OrchestratorEnabled {
		err := orcherr.New(orcherr.CodeDisabled, "disabled", "orchestrator is disabled")
		o.emitTerminal(ctx, req, "", false, err, time.Since(start))
		o.recordBreakerOutcome(err)
		return nil, err
	}

	// Step 1: validate.
	if verr := req.Validate(); verr != nil {
		wrapped := orcherr.New(orcherr.CodeInvalidRequest, "validate", verr.Error())
		o.emitTerminal(ctx, req, "", false, wrapped, time.Since(start))
		o.recordBreakerOutcome(wrapped)
		return nil, wrapped
	}
	if req.RequestID == "" {
		req.RequestID = "req-" + uuid.New().String()
	}

	reqAttrs := telemetry.RequestAttrs{Category: string(req.Category), Agent: req.Agent}
	ctx, span := o.metrics.StartRequest(ctx, reqAttrs)
	defer func() {
		status := "ok"
		if err != nil {
			status = string(orcherr.CodeOf(err))
		}
		respAttrs := telemetry.ResponseAttrs{Status: status, Duration: time.Since(start)}
		if resp != nil {
			reqAttrs.Model, reqAttrs.Provider = resp.Model, resp.Provider
			respAttrs.InputTokens, respAttrs.OutputTokens = resp.InputTokens, resp.OutputTokens
			respAttrs.Cost, respAttrs.Cached = resp.Cost, resp.Cached
			respAttrs.Escalated, respAttrs.QualityScore = resp.Escalated, resp.QualityScore
		}
		if orcherr.CodeOf(err) == orcherr.CodeCircuitOpen {
			respAttrs.CircuitOpened = true
		}
		if orcherr.CodeOf(err) == orcherr.CodeGovernanceDenied {
			respAttrs.GovernanceDeny = true
		}
		o.metrics.EndRequest(ctx, span, reqAttrs, respAttrs)
	}()

	// Step 2: classify complexity.
	complexity := valuescorer.ClassifyComplexity(req.Content, req.Category)
	o.bus.Publish(ctx, eventbus.TopicRequestReceived, eventbus.RequestReceived{
		RequestID: req.RequestID, Category: string(req.Category), Complexity: string(complexity),
		Agent: req.Agent, Timestamp: time.Now(),
	})

	estOutputTokens := promptassembler.ResolveMaxTokens(req)
	estInputTokens, err := o.estimateInputTokens(req)
	if err != nil {
		wrapped := orcherr.New(orcherr.CodeInvalidRequest, "estimate", err.Error()).WithCause(err)
		o.emitTerminal(ctx, req, "", false, wrapped, time.Since(start))
		o.recordBreakerOutcome(wrapped)
		return nil, wrapped
	}
	estTotalTokens := estInputTokens + estOutputTokens

	// Step 3: budget check.
	decision := o.costTracker.CanProceed(estTotalTokens, req.Priority)
	if !decision.Allowed {
		err := orcherr.New(orcherr.CodeBudgetExceeded, "budget", decision.Reason)
		o.emitTerminal(ctx, req, "", false, err, time.Since(start))
		o.recordBreakerOutcome(err)
		return nil, err
	}

	// Step 4: circuit check. The breaker is not re-recorded here: it is
	// already open, and CanExecute itself performs the only state transition
	// this case can trigger (to HALF_OPEN once the cooldown elapses).
	if !o.breaker.CanExecute() {
		err := orcherr.New(orcherr.CodeCircuitOpen, "circuit", "orchestrator circuit breaker is open")
		o.emitTerminal(ctx, req, "", false, err, time.Since(start))
		return nil, err
	}

	// Step 5: select model.
	features := valuescorer.Features{
		Complexity: complexity, Category: req.Category, SecuritySensitive: req.SecuritySensitive,
		Stakes:                stakesFor(req.Category, req.SecuritySensitive),
		QualityPriority:       6,
		BudgetPressure:        budgetPressureFor(o.costTracker.GetThrottleLevel()),
		HistoricalPerformance: 5, // no historical feedback loop is implemented; neutral prior.
	}
	candidates := o.buildCandidates()
	scoreResult, err := o.scorer.Score(features, estInputTokens, estOutputTokens, candidates, o.costTracker.GetThrottleLevel())
	if err != nil {
		wrapped := orcherr.New(orcherr.CodeNoAvailableModel, "select", err.Error()).WithCause(err)
		o.emitTerminal(ctx, req, "", false, wrapped, time.Since(start))
		o.recordBreakerOutcome(wrapped)
		return nil, wrapped
	}
	tier := scoreResult.RecommendedTier
	o.bus.Publish(ctx, eventbus.TopicModelSelected, eventbus.ModelSelected{
		RequestID: req.RequestID, Model: string(tier), ValueScore: scoreResult.Score,
		Reasoning: scoreResult.Reasoning, EstimatedCost: firstBreakdownCost(scoreResult), Timestamp: time.Now(),
	})

	// Step 6: governance.
	estimatedCost, _ := o.models.EstimateCost(tier, estInputTokens, estOutputTokens)
	governanceApproved := true
	if o.cfg.GovernanceEnabled && governance.RequiresApproval(req.Category, req.SecuritySensitive, estimatedCost, o.cfg.GovernanceCostThresholdUSD) {
		dec := o.governance.RequestApproval(ctx, governance.ApprovalRequest{
			RequestID: req.RequestID, Category: req.Category, SecuritySensitive: req.SecuritySensitive, Content: req.Content,
		}, estimatedCost, string(tier))
		if !dec.Approved {
			err := orcherr.New(orcherr.CodeGovernanceDenied, "governance", dec.Reason)
			o.emitTerminal(ctx, req, string(tier), false, err, time.Since(start))
			o.recordBreakerOutcome(err)
			return nil, err
		}
		governanceApproved = true
	}

	// Steps 7-12, attempt 1.
	attempt, err := o.attempt(ctx, req, tier)
	if err != nil {
		o.emitTerminal(ctx, req, string(tier), false, err, time.Since(start))
		o.recordBreakerOutcome(err)
		return nil, err
	}
	o.finishAttempt(ctx, req, attempt, false, "")

	escalated := false
	escalationReason := ""
	final := attempt

	// Step 13: escalate at most once.
	totalCost := attempt.outcome.CostUSD
	if o.cfg.QualityEscalationEnabled && evaluator.ShouldEscalate(attempt.qualityScore, complexity) {
		if higher, ok := o.models.HigherTier(tier); ok && o.models.IsAvailable(higher) {
			escalationReason = fmt.Sprintf("quality score %.2f below threshold for complexity %s", attempt.qualityScore, complexity)
			second, err := o.attempt(ctx, req, higher)
			if err == nil {
				o.finishAttempt(ctx, req, second, true, escalationReason)
				final = second
				escalated = true
				totalCost += second.outcome.CostUSD
			} else {
				// The escalation call still happened and still needs its own
				// terminal event per spec §7's observability guarantee; the
				// original (successful) attempt's result is still what the
				// caller gets back, since it already has a usable answer.
				o.emitTerminal(ctx, req, string(higher), false, err, time.Since(start))
			}
		}
	}

	// Step 14: record breaker outcome for the whole request.
	o.recordBreakerOutcome(nil)

	duration := time.Since(start)
	resp = &llmtypes.AIResponse{
		RequestID:          req.RequestID,
		Content:            final.outcome.Result.Content,
		Model:              final.outcome.Result.Model,
		Provider:           final.outcome.Provider,
		InputTokens:        final.outcome.Result.InputTokens,
		OutputTokens:       final.outcome.Result.OutputTokens,
		CachedInputTokens:  final.outcome.Result.CachedInputTokens,
		CacheWriteTokens:   final.outcome.Result.CacheWriteTokens,
		Cost:               totalCost,
		Duration:           duration,
		Cached:             final.outcome.Result.CachedInputTokens > 0,
		QualityScore:       final.qualityScore,
		Escalated:          escalated,
		EscalationReason:   escalationReason,
		GovernanceApproved: governanceApproved,
	}

	o.recordStats(resp.Model, resp.Cost, duration, false)
	return resp, nil
}

// CascadeResponse is ExecuteCascade's return value: the accepted step's
// content plus enough bookkeeping to explain how it got there.
type CascadeResponse struct {
	RequestID    string
	Content      string
	Model        string
	Chain        string
	StepsTried   int
	FinalQuality float64
	Cost         float64
	Duration     time.Duration
}

// ExecuteCascade runs req through the cheap-to-expensive cascade chain
// (spec §4.8) instead of the value-scored single-shot pipeline Execute uses.
// Budget and circuit checks (steps 3-4) still apply; model selection,
// governance and escalation do not, since the chain itself encodes those
// trade-offs step by step.
func (o *Orchestrator) ExecuteCascade(ctx context.Context, req *llmtypes.AIRequest, chainName string) (*CascadeResponse, error) {
	o.drain.Add(1)
	defer o.drain.Done()

	start := time.Now()

	if !o.cfg.OrchestratorEnabled {
		err := orcherr.New(orcherr.CodeDisabled, "disabled", "orchestrator is disabled")
		o.recordBreakerOutcome(err)
		return nil, err
	}
	if verr := req.Validate(); verr != nil {
		err := orcherr.New(orcherr.CodeInvalidRequest, "validate", verr.Error())
		o.recordBreakerOutcome(err)
		return nil, err
	}
	if req.RequestID == "" {
		req.RequestID = "req-" + uuid.New().String()
	}

	complexity := valuescorer.ClassifyComplexity(req.Content, req.Category)
	if chainName == "" {
		chainName = cascade.SelectChain(req.Category, req.SecuritySensitive, complexity)
	}
	chain, ok := o.chains[chainName]
	if !ok {
		err := orcherr.New(orcherr.CodeNoAvailableModel, "select", fmt.Sprintf("unknown cascade chain %q", chainName))
		o.recordBreakerOutcome(err)
		return nil, err
	}

	estOutputTokens := promptassembler.ResolveMaxTokens(req)
	estInputTokens, err := o.estimateInputTokens(req)
	if err != nil {
		wrapped := orcherr.New(orcherr.CodeInvalidRequest, "estimate", err.Error()).WithCause(err)
		o.recordBreakerOutcome(wrapped)
		return nil, wrapped
	}

	decision := o.costTracker.CanProceed(estInputTokens+estOutputTokens, req.Priority)
	if !decision.Allowed {
		err := orcherr.New(orcherr.CodeBudgetExceeded, "budget", decision.Reason)
		o.recordBreakerOutcome(err)
		return nil, err
	}
	if !o.breaker.CanExecute() {
		return nil, orcherr.New(orcherr.CodeCircuitOpen, "circuit", "orchestrator circuit breaker is open")
	}

	entry, ok := o.models.Get(chain[0].Tier)
	model := ""
	if ok {
		model = entry.UpstreamModel
	}
	creq := o.assembler.Assemble(req, model)

	outcome, err := o.cascade.Run(ctx, chainName, chain, creq, req.Content)
	duration := time.Since(start)
	if err != nil {
		wrapped := orcherr.New(orcherr.CodeProviderTransient, "upstream", err.Error()).WithCause(err)
		o.recordBreakerOutcome(wrapped)
		o.recordStats(model, 0, duration, true)
		return nil, wrapped
	}
	o.recordBreakerOutcome(nil)

	for _, step := range outcome.Steps {
		o.costTracker.Track(costtracker.UsageEvent{
			Operation: string(req.Category), Agent: req.Agent, Model: step.Model, CostUSD: step.CostUSD,
		})
	}
	if o.auditSink != nil {
		o.auditSink.Record(ctx, string(req.Category), req.Agent, &llmtypes.AIResponse{
			RequestID: req.RequestID, Model: outcome.Response.Model, Cost: outcome.TotalCostUSD, Duration: duration,
		}, true)
	}

	finalQuality := 0.0
	if len(outcome.Steps) > 0 {
		finalQuality = outcome.Steps[len(outcome.Steps)-1].Quality
	}
	o.recordStats(outcome.Response.Model, outcome.TotalCostUSD, duration, false)

	return &CascadeResponse{
		RequestID: req.RequestID, Content: outcome.Response.Content, Model: outcome.Response.Model,
		Chain: outcome.Chain, StepsTried: len(outcome.Steps), FinalQuality: finalQuality,
		Cost: outcome.TotalCostUSD, Duration: duration,
	}, nil
}

// attempt runs pipeline steps 7 (assemble) through 12 (evaluate) for one
// upstream call at tier, emitting request_start/request_complete and
// tracking cost along the way. The caller is responsible for step 13's
// escalation decision and step 14's breaker bookkeeping.
func (o *Orchestrator) attempt(ctx context.Context, req *llmtypes.AIRequest, tier modelregistry.Tier) (completionAttempt, error) {
	entry, ok := o.models.Get(tier)
	if !ok {
		return completionAttempt{}, orcherr.New(orcherr.CodeNoProvider, "select", fmt.Sprintf("unknown tier %q", tier)).WithModel(string(tier))
	}

	creq := o.assembler.Assemble(req, entry.UpstreamModel)

	start := time.Now()
	o.bus.Publish(ctx, eventbus.TopicRequestStart, eventbus.RequestStart{
		Model: entry.UpstreamModel, EstimatedTokens: creq.MaxTokens,
	})

	outcome, err := o.providers.CompleteWithFallback(ctx, tier, creq)
	durationMS := time.Since(start).Milliseconds()
	if err != nil {
		return completionAttempt{tier: tier, durationMS: durationMS, err: err}, err
	}

	quality := o.evaluator.Score(req.Content, outcome.Result.Content)
	return completionAttempt{tier: tier, outcome: outcome, qualityScore: quality, durationMS: durationMS}, nil
}

// finishAttempt emits request_complete/response_evaluated and tracks cost
// for a successful attempt. Failed attempts are terminal and handled by the
// caller via emitTerminal instead. escalated/escalationReason describe this
// specific attempt (false/"" for the first, true/<reason> for a successful
// escalation retry), not the request as a whole.
func (o *Orchestrator) finishAttempt(ctx context.Context, req *llmtypes.AIRequest, a completionAttempt, escalated bool, escalationReason string) {
	now := time.Now()
	o.bus.Publish(ctx, eventbus.TopicRequestComplete, eventbus.RequestComplete{
		Timestamp: now, Model: a.outcome.Result.Model,
		InputTokens: a.outcome.Result.InputTokens, OutputTokens: a.outcome.Result.OutputTokens,
		Cost: a.outcome.CostUSD, TaskType: "completion", TaskCategory: string(req.Category),
		Duration: time.Duration(a.durationMS) * time.Millisecond, Success: true,
	})
	o.costTracker.Track(costtracker.UsageEvent{
		Operation: string(req.Category), Agent: req.Agent, Provider: a.outcome.Provider,
		Model: a.outcome.Result.Model, InputTokens: a.outcome.Result.InputTokens,
		OutputTokens: a.outcome.Result.OutputTokens, CostUSD: a.outcome.CostUSD,
	})
	o.bus.Publish(ctx, eventbus.TopicResponseEvaluated, eventbus.ResponseEvaluated{
		RequestID: req.RequestID, QualityScore: a.qualityScore, Timestamp: now,
		Escalated: escalated, EscalationReason: escalationReason,
	})
	if o.auditSink != nil {
		o.auditSink.Record(ctx, string(req.Category), req.Agent, &llmtypes.AIResponse{
			RequestID: req.RequestID, Model: a.outcome.Result.Model, Provider: a.outcome.Provider,
			InputTokens: a.outcome.Result.InputTokens, OutputTokens: a.outcome.Result.OutputTokens,
			CachedInputTokens: a.outcome.Result.CachedInputTokens, CacheWriteTokens: a.outcome.Result.CacheWriteTokens,
			Cost: a.outcome.CostUSD, Duration: time.Duration(a.durationMS) * time.Millisecond, QualityScore: a.qualityScore,
		}, true)
	}
}

// emitTerminal publishes the zero-tokens/zero-cost request_complete event
// required for every short-circuit rejection (steps 1-4, 6) and for a
// failed upstream attempt, per spec §7's propagation rule.
func (o *Orchestrator) emitTerminal(ctx context.Context, req *llmtypes.AIRequest, model string, success bool, err error, duration time.Duration) {
	category := ""
	agent := ""
	requestID := ""
	if req != nil {
		category = string(req.Category)
		agent = req.Agent
		requestID = req.RequestID
	}
	o.bus.Publish(ctx, eventbus.TopicRequestComplete, eventbus.RequestComplete{
		Timestamp: time.Now(), Model: model, TaskType: "completion", TaskCategory: category,
		Duration: duration, Success: success,
	})
	if o.auditSink != nil {
		o.auditSink.Record(ctx, category, agent, &llmtypes.AIResponse{
			RequestID: requestID, Model: model, Duration: duration,
		}, success)
	}
	o.recordStats(model, 0, duration, true)
	if err != nil {
		o.logger.Debug("orchestrator: request rejected", zap.String("request_id", requestID), zap.Error(err))
	}
}

// recordBreakerOutcome records success or failure on the orchestrator-level
// circuit breaker. Per spec §7, "all surfaced errors contribute to the
// orchestrator-level circuit breaker" — this is taken literally, including
// non-upstream rejections (InvalidRequest, BudgetExceeded, GovernanceDenied),
// since the breaker only transitions state on a run of failures and a single
// spurious failure recorded this way does not by itself open it.
func (o *Orchestrator) recordBreakerOutcome(err error) {
	if err != nil {
		o.breaker.RecordFailure()
		return
	}
	o.breaker.RecordSuccess()
}

func (o *Orchestrator) recordStats(model string, costUSD float64, duration time.Duration, isError bool) {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	o.totalReqs++
	if isError {
		o.totalErrors++
	}
	o.totalCostUSD += costUSD
	o.totalLatency += duration
	if model != "" {
		o.modelUsage[model]++
	}
}

// buildCandidates assembles the ValueScorer's input from the model catalog's
// available tiers and each backing provider's current health.
func (o *Orchestrator) buildCandidates() []valuescorer.Candidate {
	tiers := o.models.AvailableTiers()
	out := make([]valuescorer.Candidate, 0, len(tiers))
	for _, tier := range tiers {
		entry, ok := o.models.Get(tier)
		if !ok {
			continue
		}
		health := valuescorer.TierHealthy
		latency := 1000.0
		if p, ok := o.providers.Get(entry.ProviderID); ok {
			status := p.GetHealthStatus()
			health = mapHealth(status.Status)
			if status.LatencyMS > 0 {
				latency = float64(status.LatencyMS)
			}
		}
		out = append(out, valuescorer.Candidate{
			Tier: tier, QualityPrior: float64(entry.Rank), LatencyPriorMS: latency, Health: health,
		})
	}
	return out
}

func mapHealth(s provider.HealthState) valuescorer.TierHealth {
	switch s {
	case provider.HealthDegraded:
		return valuescorer.TierDegraded
	case provider.HealthDown:
		return valuescorer.TierDown
	default:
		return valuescorer.TierHealthy
	}
}

// stakesFor derives the valuescorer.Features.Stakes input (1-10) from the
// request's category and security sensitivity; there is no richer signal
// available at this layer.
func stakesFor(category llmtypes.Category, securitySensitive bool) int {
	if securitySensitive || category == llmtypes.CategorySecurity {
		return 9
	}
	if category == llmtypes.CategoryPlanning || category == llmtypes.CategoryCodeGeneration {
		return 7
	}
	return 5
}

// budgetPressureFor maps the cost tracker's coarse throttle level onto the
// 1-10 scale valuescorer.Features.BudgetPressure expects.
func budgetPressureFor(t llmtypes.ThrottleLevel) int {
	switch t {
	case llmtypes.ThrottlePause:
		return 10
	case llmtypes.ThrottleReduce:
		return 7
	case llmtypes.ThrottleWarn:
		return 5
	default:
		return 2
	}
}

func (o *Orchestrator) estimateInputTokens(req *llmtypes.AIRequest) (int, error) {
	messages := req.Messages
	if len(messages) == 0 {
		messages = []llmtypes.Message{{Role: llmtypes.RoleUser, Content: req.Content}}
	}
	return o.tokenizer.EstimateRequest(req.SystemPrompt, messages)
}

func firstBreakdownCost(r valuescorer.Result) float64 {
	for _, b := range r.PerTierBreakdown {
		if b.Tier == r.RecommendedTier {
			return b.EstimatedCost
		}
	}
	return 0
}

// Status is GetStatus's return value.
type Status struct {
	FeatureFlags        map[string]bool
	CircuitBreakerState string
	TotalRequests       int64
	TotalErrors         int64
	TotalCost           float64
	AverageLatencyMS    float64
	ModelUsage          map[string]int64
	Uptime              time.Duration
}

// GetStatus returns a snapshot of the orchestrator's aggregate health.
func (o *Orchestrator) GetStatus() Status {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()

	avgLatency := 0.0
	if o.totalReqs > 0 {
		avgLatency = float64(o.totalLatency.Milliseconds()) / float64(o.totalReqs)
	}
	usage := make(map[string]int64, len(o.modelUsage))
	for k, v := range o.modelUsage {
		usage[k] = v
	}

	return Status{
		FeatureFlags: map[string]bool{
			"orchestrator_enabled":      o.cfg.OrchestratorEnabled,
			"prompt_caching_enabled":    o.cfg.PromptCachingEnabled,
			"governance_enabled":        o.cfg.GovernanceEnabled,
			"quality_escalation_enabled": o.cfg.QualityEscalationEnabled,
		},
		CircuitBreakerState: string(o.breaker.GetState()),
		TotalRequests:       o.totalReqs,
		TotalErrors:         o.totalErrors,
		TotalCost:           o.totalCostUSD,
		AverageLatencyMS:    avgLatency,
		ModelUsage:          usage,
		Uptime:              time.Since(o.startedAt),
	}
}

// TestConnection reports true iff at least one registered provider connects.
func (o *Orchestrator) TestConnection(ctx context.Context) bool {
	for _, r := range o.providers.TestAllProviders(ctx) {
		if r.Test != nil && r.Test.Connected {
			return true
		}
	}
	return false
}

// Shutdown waits (bounded by cfg.ShutdownDrainTimeout) for in-flight Execute
// calls to finish, then shuts every provider and the cost tracker down.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	drained := make(chan struct{})
	go func() {
		o.drain.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(o.cfg.ShutdownDrainTimeout):
		o.logger.Warn("orchestrator: shutdown drain timeout exceeded, proceeding anyway")
	case <-ctx.Done():
	}

	var errs []error
	if err := o.providers.ShutdownAll(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := o.costTracker.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if o.auditSink != nil {
		if err := o.auditSink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("orchestrator: shutdown errors: %v", errs)
}
