package valuescorer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiorch/core/internal/llmtypes"
	"github.com/aiorch/core/internal/modelregistry"
	"github.com/aiorch/core/internal/provider"
)

// ---------------------------------------------------------------------------
// ClassifyComplexity
// ---------------------------------------------------------------------------

func TestClassifyTrivial(t *testing.T) {
	got := ClassifyComplexity("short one liner", llmtypes.CategoryChat)
	assert.Equal(t, llmtypes.ComplexityTrivial, got)
}

func TestClassifyCriticalByCategory(t *testing.T) {
	got := ClassifyComplexity(strings.Repeat("x", 200), llmtypes.CategorySecurity)
	assert.Equal(t, llmtypes.ComplexityCritical, got)
}

func TestClassifyCriticalByKeyword(t *testing.T) {
	got := ClassifyComplexity("please check the production billing auth flow carefully before the release window closes tonight", llmtypes.CategoryChat)
	assert.Equal(t, llmtypes.ComplexityCritical, got)
}

func TestClassifyComplexByLength(t *testing.T) {
	got := ClassifyComplexity(strings.Repeat("x", 1300), llmtypes.CategoryChat)
	assert.Equal(t, llmtypes.ComplexityComplex, got)
}

func TestClassifyComplexByCategory(t *testing.T) {
	got := ClassifyComplexity(strings.Repeat("x", 200), llmtypes.CategoryPlanning)
	assert.Equal(t, llmtypes.ComplexityComplex, got)
}

func TestClassifySimple(t *testing.T) {
	got := ClassifyComplexity(strings.Repeat("x", 100), llmtypes.CategoryQuery)
	assert.Equal(t, llmtypes.ComplexitySimple, got)
}

func TestClassifyStandardFallback(t *testing.T) {
	got := ClassifyComplexity(strings.Repeat("x", 500), llmtypes.CategoryAnalysis)
	assert.Equal(t, llmtypes.ComplexityStandard, got)
}

// ---------------------------------------------------------------------------
// Score / security floor
// ---------------------------------------------------------------------------

func newTestRegistry(t *testing.T) *modelregistry.Registry {
	t.Helper()
	entries := []modelregistry.Entry{
		{
			Tier: "cheap", Family: modelregistry.FamilyAnthropic, ProviderID: "anthropic",
			UpstreamModel: "cheap-1", PriceInPerM: 1, PriceOutPerM: 2,
			Capabilities: map[provider.Capability]bool{}, Rank: 10,
		},
		{
			Tier: "mid", Family: modelregistry.FamilyAnthropic, ProviderID: "anthropic",
			UpstreamModel: "mid-1", PriceInPerM: 3, PriceOutPerM: 15,
			Capabilities: map[provider.Capability]bool{provider.CapTools: true}, Rank: 20,
		},
		{
			Tier: "top", Family: modelregistry.FamilyAnthropic, ProviderID: "anthropic",
			UpstreamModel: "top-1", PriceInPerM: 15, PriceOutPerM: 75,
			Capabilities: map[provider.Capability]bool{provider.CapTools: true}, Rank: 30,
		},
	}
	reg, err := modelregistry.New(entries, map[string]bool{"anthropic": true})
	require.NoError(t, err)
	return reg
}

func TestSecurityFloorExcludesLowRankTiers(t *testing.T) {
	reg := newTestRegistry(t)
	s := New(reg, DefaultWeights)

	candidates := []Candidate{
		{Tier: "cheap", QualityPrior: 0.9, LatencyPriorMS: 100, Health: TierHealthy},
		{Tier: "mid", QualityPrior: 0.8, LatencyPriorMS: 200, Health: TierHealthy},
	}
	result, err := s.Score(Features{SecuritySensitive: true}, 100, 100, candidates, llmtypes.ThrottleNormal)
	require.NoError(t, err)
	assert.Equal(t, modelregistry.Tier("mid"), result.RecommendedTier)
}

func TestSecurityFloorNoQualifyingTierErrors(t *testing.T) {
	reg := newTestRegistry(t)
	s := New(reg, DefaultWeights)

	candidates := []Candidate{
		{Tier: "cheap", QualityPrior: 0.9, LatencyPriorMS: 100, Health: TierHealthy},
	}
	_, err := s.Score(Features{SecuritySensitive: true}, 100, 100, candidates, llmtypes.ThrottleNormal)
	assert.Error(t, err)
}

func TestPauseThrottleSelectsCheapestOnly(t *testing.T) {
	reg := newTestRegistry(t)
	s := New(reg, DefaultWeights)

	candidates := []Candidate{
		{Tier: "cheap", QualityPrior: 0.5, LatencyPriorMS: 100, Health: TierHealthy},
		{Tier: "mid", QualityPrior: 0.9, LatencyPriorMS: 200, Health: TierHealthy},
		{Tier: "top", QualityPrior: 1.0, LatencyPriorMS: 300, Health: TierHealthy},
	}
	result, err := s.Score(Features{}, 1000, 1000, candidates, llmtypes.ThrottlePause)
	require.NoError(t, err)
	assert.Equal(t, modelregistry.Tier("cheap"), result.RecommendedTier)
}

func TestDownHealthPenalized(t *testing.T) {
	reg := newTestRegistry(t)
	s := New(reg, DefaultWeights)

	candidates := []Candidate{
		{Tier: "mid", QualityPrior: 0.9, LatencyPriorMS: 100, Health: TierHealthy},
		{Tier: "top", QualityPrior: 0.9, LatencyPriorMS: 100, Health: TierDown},
	}
	result, err := s.Score(Features{}, 100, 100, candidates, llmtypes.ThrottleNormal)
	require.NoError(t, err)
	assert.Equal(t, modelregistry.Tier("mid"), result.RecommendedTier)
}
