// Package modelregistry holds the static, immutable catalog of model tiers:
// provider family, upstream id, pricing, context window, capability flags
// and tier rank. It performs pricing lookups only; it never does I/O.
package modelregistry

import (
	"fmt"

	"github.com/aiorch/core/internal/provider"
)

// Tier is a canonical model identifier, e.g. "claude-haiku-4.5".
type Tier string

// Family groups tiers that can be escalated within (same provider lineage).
type Family string

const (
	FamilyAnthropic Family = "anthropic"
	FamilyOpenAI    Family = "openai"
	FamilyGoogle    Family = "google"
	FamilyXAI       Family = "xai"
)

// Entry is one immutable catalog row.
type Entry struct {
	Tier                Tier
	Family              Family
	ProviderID          string // registry key in ProviderRegistry, e.g. "anthropic"
	UpstreamModel       string
	PriceInPerM         float64 // USD per million input tokens
	PriceOutPerM        float64 // USD per million output tokens
	PriceCachedInPerM   float64 // USD per million cached-input tokens
	PriceCacheWritePerM float64 // USD per million cache-write tokens
	ContextWindow       int
	Capabilities        map[provider.Capability]bool
	Rank                int // ordering for escalation within Family; higher = stronger
}

func (e Entry) hasCapability(c provider.Capability) bool {
	return e.Capabilities != nil && e.Capabilities[c]
}

// Registry is the immutable, thread-safe-by-construction model catalog.
type Registry struct {
	entries map[Tier]Entry
	// availability is populated at construction time from the set of
	// providers actually configured; a tier is available iff some
	// configured provider claims to support it.
	available map[Tier]bool
}

// New builds a Registry from the given catalog entries. availableProviders
// is the set of provider ids (ProviderRegistry keys) that are configured and
// enabled; a tier is available iff its ProviderID is in that set.
func New(entries []Entry, availableProviders map[string]bool) (*Registry, error) {
	r := &Registry{
		entries:   make(map[Tier]Entry, len(entries)),
		available: make(map[Tier]bool, len(entries)),
	}
	for _, e := range entries {
		if e.PriceCachedInPerM > e.PriceInPerM {
			return nil, fmt.Errorf("modelregistry: tier %s: cached-input price %.4f exceeds input price %.4f", e.Tier, e.PriceCachedInPerM, e.PriceInPerM)
		}
		if e.PriceCacheWritePerM != 0 && e.PriceCacheWritePerM < e.PriceInPerM {
			return nil, fmt.Errorf("modelregistry: tier %s: cache-write price %.4f below input price %.4f", e.Tier, e.PriceCacheWritePerM, e.PriceInPerM)
		}
		r.entries[e.Tier] = e
		r.available[e.Tier] = availableProviders[e.ProviderID]
	}
	return r, nil
}

// Get returns the catalog entry for a tier.
func (r *Registry) Get(tier Tier) (Entry, bool) {
	e, ok := r.entries[tier]
	return e, ok
}

// AllTiers returns every cataloged tier, available or not.
func (r *Registry) AllTiers() []Tier {
	out := make([]Tier, 0, len(r.entries))
	for t := range r.entries {
		out = append(out, t)
	}
	return out
}

// AvailableTiers returns tiers backed by a configured provider.
func (r *Registry) AvailableTiers() []Tier {
	out := make([]Tier, 0, len(r.entries))
	for t := range r.entries {
		if r.available[t] {
			out = append(out, t)
		}
	}
	return out
}

// IsAvailable reports whether a configured provider claims support for tier.
func (r *Registry) IsAvailable(tier Tier) bool {
	return r.available[tier]
}

// EstimateCost computes dollars for inputTokens/outputTokens at tier's
// uncached input price, per spec §4.1. It is EstimateCostDetailed with zero
// cached-input and cache-write tokens.
func (r *Registry) EstimateCost(tier Tier, inputTokens, outputTokens int) (float64, error) {
	return r.EstimateCostDetailed(tier, inputTokens, outputTokens, 0, 0)
}

// EstimateCostDetailed is the full §4.3 cost formula:
//
//	cost = inputTokens_uncached*priceIn + cachedInputTokens*priceCached +
//	       cacheWriteTokens*priceCacheWrite + outputTokens*priceOut
//
// inputTokens is the UNCACHED portion; callers that already know the cached
// split should pass only the uncached remainder.
func (r *Registry) EstimateCostDetailed(tier Tier, inputTokens, outputTokens, cachedInputTokens, cacheWriteTokens int) (float64, error) {
	e, ok := r.entries[tier]
	if !ok {
		return 0, fmt.Errorf("modelregistry: unknown tier %q", tier)
	}
	const million = 1_000_000.0
	cost := float64(inputTokens)/million*e.PriceInPerM +
		float64(cachedInputTokens)/million*e.PriceCachedInPerM +
		float64(cacheWriteTokens)/million*e.PriceCacheWritePerM +
		float64(outputTokens)/million*e.PriceOutPerM
	return cost, nil
}

// HigherTier returns the next tier up in the same family, or ("", false) if
// tier is already the top of its family or unknown. Ordering across
// families is undefined and never traversed.
func (r *Registry) HigherTier(tier Tier) (Tier, bool) {
	cur, ok := r.entries[tier]
	if !ok {
		return "", false
	}
	var best Entry
	found := false
	for _, e := range r.entries {
		if e.Family != cur.Family || e.Rank <= cur.Rank {
			continue
		}
		if !found || e.Rank < best.Rank {
			best = e
			found = true
		}
	}
	if !found {
		return "", false
	}
	return best.Tier, true
}

// MeetsCapabilityFloor reports whether tier satisfies a minimum rank within
// its family together with a required capability — used to enforce the
// "Sonnet-or-above" security floor in spec §4.6/§8 S6.
func (r *Registry) MeetsCapabilityFloor(tier Tier, minRank int, required provider.Capability) bool {
	e, ok := r.entries[tier]
	if !ok {
		return false
	}
	return e.Rank >= minRank && e.hasCapability(required)
}
