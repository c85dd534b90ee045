// Package promptassembler turns an AIRequest into the provider-neutral
// completion payload: system blocks, messages and a resolved maxTokens.
package promptassembler

import (
	"github.com/aiorch/core/internal/llmtypes"
	"github.com/aiorch/core/internal/provider"
)

// defaultMaxTokens is the spec §4.5 category table.
var defaultMaxTokens = map[llmtypes.Category]int{
	llmtypes.CategoryHeartbeat:      200,
	llmtypes.CategoryParseCommand:   200,
	llmtypes.CategorySummarize:      400,
	llmtypes.CategoryQuery:          400,
	llmtypes.CategoryChat:           800,
	llmtypes.CategoryAnalysis:       1500,
	llmtypes.CategoryCodeReview:     1500,
	llmtypes.CategoryCodeGeneration: 2500,
	llmtypes.CategoryPlanning:       2500,
	llmtypes.CategorySecurity:       2000,
}

const fallbackMaxTokens = 800

// MinCacheableBlockSize is the minimum system-prompt block length (in bytes,
// a crude stand-in for tokens) below which a cache marker is never attached,
// regardless of EnableCaching. Individual providers may raise this further
// for their own minimum (e.g. Google's 32k-token context cache floor); this
// is only the assembler's own conservative floor so trivially short system
// prompts never pay a cache-write surcharge.
const MinCacheableBlockSize = 200

// Assembler builds CompletionRequest payloads from AIRequests.
type Assembler struct {
	cachingEnabled bool
}

// New builds an Assembler. cachingEnabled mirrors the process-wide
// AI_PROMPT_CACHING_ENABLED flag; a request's own EnableCaching must also be
// true for a cache marker to be attached.
func New(cachingEnabled bool) *Assembler {
	return &Assembler{cachingEnabled: cachingEnabled}
}

// Assemble produces the provider-neutral payload for req, targeting model.
func (a *Assembler) Assemble(req *llmtypes.AIRequest, model string) *provider.CompletionRequest {
	caching := a.cachingEnabled && req.EnableCaching

	var system []provider.SystemBlock
	if req.SystemPrompt != "" {
		system = append(system, provider.SystemBlock{
			Text:      req.SystemPrompt,
			Cacheable: caching && len(req.SystemPrompt) >= MinCacheableBlockSize,
		})
	}

	messages := make([]llmtypes.Message, 0, len(req.Messages)+1)
	messages = append(messages, req.Messages...)
	if len(messages) == 0 {
		messages = append(messages, llmtypes.Message{Role: llmtypes.RoleUser, Content: req.Content})
	}

	return &provider.CompletionRequest{
		Model:             model,
		System:            system,
		Messages:          messages,
		MaxTokens:         resolveMaxTokens(req),
		EnableCaching:     caching,
		CacheMinBlockSize: MinCacheableBlockSize,
	}
}

// ResolveMaxTokens exposes resolveMaxTokens for callers that need the output
// token estimate before Assemble runs, e.g. ValueScorer's cost comparisons at
// pipeline step 5, which precede prompt assembly at step 7.
func ResolveMaxTokens(req *llmtypes.AIRequest) int {
	return resolveMaxTokens(req)
}

// resolveMaxTokens honors an explicit request override, falling back to the
// category default table, falling back further to a generic default for an
// unrecognized category.
func resolveMaxTokens(req *llmtypes.AIRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if v, ok := defaultMaxTokens[req.Category]; ok {
		return v
	}
	return fallbackMaxTokens
}
