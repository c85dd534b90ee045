// Package providerregistry owns provider instances, resolves a model tier to
// the provider that serves it, and computes the authoritative dollar cost of
// a completed call from ModelRegistry prices.
package providerregistry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/aiorch/core/internal/modelregistry"
	"github.com/aiorch/core/internal/orcherr"
	"github.com/aiorch/core/internal/provider"
)

// Registry is a thread-safe collection of initialized providers plus the
// model catalog used to price their responses.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]provider.Provider
	models    *modelregistry.Registry
}

// New builds an empty Registry bound to a model catalog.
func New(models *modelregistry.Registry) *Registry {
	return &Registry{
		providers: make(map[string]provider.Provider),
		models:    models,
	}
}

// Register initializes p with cfg and records it under its own Name(). A
// duplicate id is an error; the existing registration is left untouched.
func (r *Registry) Register(ctx context.Context, p provider.Provider, cfg provider.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.providers[name]; exists {
		return orcherr.New(orcherr.CodeInvalidRequest, "register", fmt.Sprintf("provider %q already registered", name))
	}
	if err := p.Initialize(ctx, cfg); err != nil {
		return orcherr.New(orcherr.CodeProviderPermanent, "register", fmt.Sprintf("initialize provider %q", name)).WithProvider(name).WithCause(err)
	}
	r.providers[name] = p
	return nil
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (provider.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// List returns the sorted names of every registered provider.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// getProviderForModel returns the single provider claiming tier, by the
// model catalog's declared ProviderID.
func (r *Registry) getProviderForModel(tier modelregistry.Tier) (provider.Provider, error) {
	entry, ok := r.models.Get(tier)
	if !ok {
		return nil, orcherr.New(orcherr.CodeNoProvider, "select", fmt.Sprintf("unknown model tier %q", tier)).WithModel(string(tier))
	}
	r.mu.RLock()
	p, ok := r.providers[entry.ProviderID]
	r.mu.RUnlock()
	if !ok || !p.SupportsModel(entry.UpstreamModel) {
		return nil, orcherr.New(orcherr.CodeNoProvider, "select", fmt.Sprintf("no provider supports model tier %q", tier)).WithModel(string(tier))
	}
	return p, nil
}

// CompletionOutcome is the enriched result of Complete/CompleteWithFallback:
// the raw provider result, the provider name that served it, and the
// authoritative dollar cost computed from ModelRegistry prices.
type CompletionOutcome struct {
	Result   *provider.CompletionResult
	Provider string
	CostUSD  float64
}

// Complete resolves the provider for tier, invokes it, and computes the
// authoritative cost from the actual reported token counts. Internally the
// cost is accumulated in integer microcents (1 microcent = 1e-6 cents) before
// conversion to a float64 dollar amount at this boundary, per this module's
// policy of avoiding float accumulation drift on the hot accounting path;
// ModelRegistry.EstimateCost* remains a float64 pre-call estimate used only
// for routing comparisons, never for this authoritative figure.
func (r *Registry) Complete(ctx context.Context, tier modelregistry.Tier, req *provider.CompletionRequest) (*CompletionOutcome, error) {
	p, err := r.getProviderForModel(tier)
	if err != nil {
		return nil, err
	}
	res, err := p.Complete(ctx, req)
	if err != nil {
		return nil, classifyProviderErr(err, p.Name())
	}
	cost, err := r.costFromResult(tier, res)
	if err != nil {
		return nil, err
	}
	return &CompletionOutcome{Result: res, Provider: p.Name(), CostUSD: cost}, nil
}

// costFromResult computes the uniform §4.3 cost formula in integer
// microcents, then converts to dollars only here at the reporting boundary.
func (r *Registry) costFromResult(tier modelregistry.Tier, res *provider.CompletionResult) (float64, error) {
	entry, ok := r.models.Get(tier)
	if !ok {
		return 0, orcherr.New(orcherr.CodeNoProvider, "cost", fmt.Sprintf("unknown model tier %q", tier)).WithModel(string(tier))
	}
	// One microcent is 1e-6 of one US cent. pricePerM is USD per million
	// tokens, so one token costs pricePerM * 100 (USD->cents) * 1e6
	// (cents->microcents) / 1e6 (per million->per token) = pricePerM * 100
	// microcents.
	microcents := func(tokens int, pricePerM float64) int64 {
		return int64(float64(tokens)*pricePerM*100.0 + 0.5)
	}
	total := microcents(res.InputTokens, entry.PriceInPerM) +
		microcents(res.CachedInputTokens, entry.PriceCachedInPerM) +
		microcents(res.CacheWriteTokens, entry.PriceCacheWritePerM) +
		microcents(res.OutputTokens, entry.PriceOutPerM)
	return float64(total) / 1_000_000.0 / 100.0, nil
}

// CompleteWithFallback tries providers supporting tier in declared-priority
// order (highest Priority() first). ProviderTransient failures try the next
// candidate; ProviderPermanent failures surface immediately without trying
// further candidates.
func (r *Registry) CompleteWithFallback(ctx context.Context, tier modelregistry.Tier, req *provider.CompletionRequest) (*CompletionOutcome, error) {
	entry, ok := r.models.Get(tier)
	if !ok {
		return nil, orcherr.New(orcherr.CodeNoProvider, "select", fmt.Sprintf("unknown model tier %q", tier)).WithModel(string(tier))
	}

	r.mu.RLock()
	candidates := make([]provider.Provider, 0, len(r.providers))
	for _, p := range r.providers {
		if p.SupportsModel(entry.UpstreamModel) {
			candidates = append(candidates, p)
		}
	}
	r.mu.RUnlock()

	if len(candidates) == 0 {
		return nil, orcherr.New(orcherr.CodeNoProvider, "select", fmt.Sprintf("no provider supports model tier %q", tier)).WithModel(string(tier))
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Priority() > candidates[j].Priority() })

	var lastErr error
	for _, p := range candidates {
		res, err := p.Complete(ctx, req)
		if err == nil {
			cost, cerr := r.costFromResult(tier, res)
			if cerr != nil {
				return nil, cerr
			}
			return &CompletionOutcome{Result: res, Provider: p.Name(), CostUSD: cost}, nil
		}
		classified := classifyProviderErr(err, p.Name())
		if classified.Code != orcherr.CodeProviderTransient {
			return nil, classified
		}
		lastErr = classified
	}
	return nil, lastErr
}

// classifyProviderErr wraps a raw provider error as an orcherr.Error,
// preserving an existing classification if the provider already returned one.
func classifyProviderErr(err error, providerName string) *orcherr.Error {
	if e, ok := err.(*orcherr.Error); ok {
		if e.Provider == "" {
			e.Provider = providerName
		}
		return e
	}
	return orcherr.New(orcherr.CodeProviderTransient, "upstream", "provider call failed").WithProvider(providerName).WithRetryable(true).WithCause(err)
}

// TestResult is one provider's outcome from TestAllProviders.
type TestResult struct {
	Provider string
	Test     *provider.ConnectionTest
	Err      error
}

// TestAllProviders fans out TestConnection across every registered provider
// concurrently via errgroup, returning one result per provider regardless of
// individual failures.
func (r *Registry) TestAllProviders(ctx context.Context) []TestResult {
	r.mu.RLock()
	names := make([]string, 0, len(r.providers))
	providers := make([]provider.Provider, 0, len(r.providers))
	for name, p := range r.providers {
		names = append(names, name)
		providers = append(providers, p)
	}
	r.mu.RUnlock()

	results := make([]TestResult, len(providers))
	g, gctx := errgroup.WithContext(ctx)
	for i := range providers {
		i := i
		g.Go(func() error {
			test, err := providers[i].TestConnection(gctx)
			results[i] = TestResult{Provider: names[i], Test: test, Err: err}
			return nil // never abort the group; every provider gets a result
		})
	}
	_ = g.Wait()
	return results
}

// ShutdownAll shuts every provider down in isolation, collecting failures
// rather than aborting on the first one. It returns an error only if every
// provider failed to shut down cleanly.
func (r *Registry) ShutdownAll(ctx context.Context) error {
	r.mu.RLock()
	providers := make(map[string]provider.Provider, len(r.providers))
	for name, p := range r.providers {
		providers[name] = p
	}
	r.mu.RUnlock()

	if len(providers) == 0 {
		return nil
	}

	failures := make(map[string]error)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, p := range providers {
		wg.Add(1)
		go func(name string, p provider.Provider) {
			defer wg.Done()
			if err := p.Shutdown(ctx); err != nil {
				mu.Lock()
				failures[name] = err
				mu.Unlock()
			}
		}(name, p)
	}
	wg.Wait()

	if len(failures) == len(providers) {
		return orcherr.New(orcherr.CodeProviderPermanent, "shutdown", fmt.Sprintf("all %d providers failed to shut down cleanly", len(providers)))
	}
	return nil
}
