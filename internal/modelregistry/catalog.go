package modelregistry

import "github.com/aiorch/core/internal/provider"

// DefaultCatalog returns the seed catalog referenced throughout spec.md's
// worked examples. Both claude-opus-4.5 and claude-opus-4.6 are registered
// as distinct tiers per the spec's Open Question — callers configure
// whichever their Anthropic account actually has access to.
func DefaultCatalog() []Entry {
	caps := func(c ...provider.Capability) map[provider.Capability]bool {
		m := make(map[provider.Capability]bool, len(c))
		for _, x := range c {
			m[x] = true
		}
		return m
	}

	return []Entry{
		// Anthropic family
		{
			Tier: "claude-haiku-4.5", Family: FamilyAnthropic, ProviderID: "anthropic",
			UpstreamModel: "claude-haiku-4-5", PriceInPerM: 1.0, PriceOutPerM: 5.0,
			PriceCachedInPerM: 0.1, PriceCacheWritePerM: 1.25, ContextWindow: 200_000,
			Capabilities: caps(provider.CapTools, provider.CapJSONMode, provider.CapCaching),
			Rank:         10,
		},
		{
			Tier: "claude-sonnet-4.5", Family: FamilyAnthropic, ProviderID: "anthropic",
			UpstreamModel: "claude-sonnet-4-5", PriceInPerM: 3.0, PriceOutPerM: 15.0,
			PriceCachedInPerM: 0.3, PriceCacheWritePerM: 3.75, ContextWindow: 200_000,
			Capabilities: caps(provider.CapTools, provider.CapVision, provider.CapJSONMode, provider.CapCaching, provider.CapReasoning),
			Rank:         20,
		},
		{
			Tier: "claude-opus-4.5", Family: FamilyAnthropic, ProviderID: "anthropic",
			UpstreamModel: "claude-opus-4-5", PriceInPerM: 15.0, PriceOutPerM: 75.0,
			PriceCachedInPerM: 1.5, PriceCacheWritePerM: 18.75, ContextWindow: 200_000,
			Capabilities: caps(provider.CapTools, provider.CapVision, provider.CapJSONMode, provider.CapCaching, provider.CapReasoning),
			Rank:         30,
		},
		{
			Tier: "claude-opus-4.6", Family: FamilyAnthropic, ProviderID: "anthropic",
			UpstreamModel: "claude-opus-4-6", PriceInPerM: 18.0, PriceOutPerM: 90.0,
			PriceCachedInPerM: 1.8, PriceCacheWritePerM: 22.5, ContextWindow: 200_000,
			Capabilities: caps(provider.CapTools, provider.CapVision, provider.CapJSONMode, provider.CapCaching, provider.CapReasoning),
			Rank:         40,
		},

		// OpenAI family
		{
			Tier: "gpt-4.1-mini", Family: FamilyOpenAI, ProviderID: "openai",
			UpstreamModel: "gpt-4.1-mini", PriceInPerM: 0.4, PriceOutPerM: 1.6,
			PriceCachedInPerM: 0.2, PriceCacheWritePerM: 0, ContextWindow: 1_047_576,
			Capabilities: caps(provider.CapTools, provider.CapJSONMode, provider.CapCaching),
			Rank:         10,
		},
		{
			Tier: "gpt-4.1", Family: FamilyOpenAI, ProviderID: "openai",
			UpstreamModel: "gpt-4.1", PriceInPerM: 2.0, PriceOutPerM: 8.0,
			PriceCachedInPerM: 0.5, PriceCacheWritePerM: 0, ContextWindow: 1_047_576,
			Capabilities: caps(provider.CapTools, provider.CapVision, provider.CapJSONMode, provider.CapCaching),
			Rank:         20,
		},
		{
			Tier: "o3", Family: FamilyOpenAI, ProviderID: "openai",
			UpstreamModel: "o3", PriceInPerM: 10.0, PriceOutPerM: 40.0,
			PriceCachedInPerM: 2.5, PriceCacheWritePerM: 0, ContextWindow: 200_000,
			Capabilities: caps(provider.CapTools, provider.CapJSONMode, provider.CapCaching, provider.CapReasoning),
			Rank:         30,
		},

		// Google family
		{
			Tier: "gemini-2.5-flash-lite", Family: FamilyGoogle, ProviderID: "google",
			UpstreamModel: "gemini-2.5-flash-lite", PriceInPerM: 0.1, PriceOutPerM: 0.4,
			PriceCachedInPerM: 0.025, PriceCacheWritePerM: 0, ContextWindow: 1_000_000,
			Capabilities: caps(provider.CapJSONMode, provider.CapCaching),
			Rank:         10,
		},
		{
			Tier: "gemini-2.5-flash", Family: FamilyGoogle, ProviderID: "google",
			UpstreamModel: "gemini-2.5-flash", PriceInPerM: 0.3, PriceOutPerM: 2.5,
			PriceCachedInPerM: 0.075, PriceCacheWritePerM: 0, ContextWindow: 1_000_000,
			Capabilities: caps(provider.CapTools, provider.CapVision, provider.CapJSONMode, provider.CapCaching),
			Rank:         20,
		},
		{
			Tier: "gemini-2.5-pro", Family: FamilyGoogle, ProviderID: "google",
			UpstreamModel: "gemini-2.5-pro", PriceInPerM: 1.25, PriceOutPerM: 10.0,
			PriceCachedInPerM: 0.3125, PriceCacheWritePerM: 0, ContextWindow: 2_000_000,
			Capabilities: caps(provider.CapTools, provider.CapVision, provider.CapJSONMode, provider.CapCaching, provider.CapReasoning),
			Rank:         30,
		},

		// xAI family
		{
			Tier: "grok-4-fast", Family: FamilyXAI, ProviderID: "xai",
			UpstreamModel: "grok-4-fast", PriceInPerM: 0.2, PriceOutPerM: 0.5,
			PriceCachedInPerM: 0.05, PriceCacheWritePerM: 0, ContextWindow: 2_000_000,
			Capabilities: caps(provider.CapTools, provider.CapJSONMode, provider.CapCaching),
			Rank:         10,
		},
		{
			Tier: "grok-4", Family: FamilyXAI, ProviderID: "xai",
			UpstreamModel: "grok-4", PriceInPerM: 3.0, PriceOutPerM: 15.0,
			PriceCachedInPerM: 0.75, PriceCacheWritePerM: 0, ContextWindow: 256_000,
			Capabilities: caps(provider.CapTools, provider.CapVision, provider.CapJSONMode, provider.CapCaching, provider.CapReasoning),
			Rank:         20,
		},
	}
}
