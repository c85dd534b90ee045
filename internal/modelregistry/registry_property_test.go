package modelregistry

import (
	"testing"

	"pgregory.net/rapid"
)

func allProviders() map[string]bool {
	return map[string]bool{"anthropic": true, "openai": true, "google": true, "xai": true}
}

// TestEstimateCostMonotonicInTokens checks the invariant the budget
// pipeline (internal/costtracker, internal/valuescorer) relies on: adding
// tokens of any kind never lowers the estimated cost for a fixed tier.
func TestEstimateCostMonotonicInTokens(t *testing.T) {
	reg, err := New(DefaultCatalog(), allProviders())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tiers := reg.AllTiers()
	if len(tiers) == 0 {
		t.Fatal("catalog has no tiers")
	}

	rapid.Check(t, func(rt *rapid.T) {
		tier := tiers[rapid.IntRange(0, len(tiers)-1).Draw(rt, "tierIdx")]
		inputTokens := rapid.IntRange(0, 1_000_000).Draw(rt, "inputTokens")
		outputTokens := rapid.IntRange(0, 1_000_000).Draw(rt, "outputTokens")
		extraInput := rapid.IntRange(0, 1_000_000).Draw(rt, "extraInput")
		extraOutput := rapid.IntRange(0, 1_000_000).Draw(rt, "extraOutput")

		base, err := reg.EstimateCost(tier, inputTokens, outputTokens)
		if err != nil {
			rt.Fatalf("EstimateCost(base): %v", err)
		}
		grown, err := reg.EstimateCost(tier, inputTokens+extraInput, outputTokens+extraOutput)
		if err != nil {
			rt.Fatalf("EstimateCost(grown): %v", err)
		}
		if grown < base {
			rt.Fatalf("cost decreased after adding tokens: base=%v grown=%v tier=%v", base, grown, tier)
		}
	})
}

// TestHigherTierStrictlyIncreasesRank checks the escalation-cap invariant
// Orchestrator.Execute depends on to guarantee escalation terminates: when
// HigherTier finds a successor in the same family, that successor's Rank is
// strictly greater, so repeated escalation can never cycle.
func TestHigherTierStrictlyIncreasesRank(t *testing.T) {
	reg, err := New(DefaultCatalog(), allProviders())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tiers := reg.AllTiers()

	rapid.Check(t, func(rt *rapid.T) {
		tier := tiers[rapid.IntRange(0, len(tiers)-1).Draw(rt, "tierIdx")]
		cur, ok := reg.Get(tier)
		if !ok {
			rt.Fatalf("Get(%v) missing", tier)
		}
		next, ok := reg.HigherTier(tier)
		if !ok {
			return
		}
		nextEntry, ok := reg.Get(next)
		if !ok {
			rt.Fatalf("HigherTier returned unknown tier %v", next)
		}
		if nextEntry.Family != cur.Family {
			rt.Fatalf("HigherTier(%v) crossed families: %v -> %v", tier, cur.Family, nextEntry.Family)
		}
		if nextEntry.Rank <= cur.Rank {
			rt.Fatalf("HigherTier(%v) did not increase rank: %d -> %d", tier, cur.Rank, nextEntry.Rank)
		}
	})
}
