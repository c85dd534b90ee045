// Package provider defines the uniform LLMProvider contract every upstream
// adapter (Anthropic, OpenAI, Google, xAI) implements.
package provider

import (
	"context"
	"time"

	"github.com/aiorch/core/internal/llmtypes"
)

// CompletionRequest is the provider-neutral payload assembled by
// PromptAssembler and handed to a Provider.
type CompletionRequest struct {
	Model             string
	System            []SystemBlock
	Messages          []llmtypes.Message
	MaxTokens         int
	EnableCaching     bool
	CacheMinBlockSize int
}

// SystemBlock is a single block of the assembled system prompt. Cacheable
// marks whether the provider should attach its ephemeral cache marker.
type SystemBlock struct {
	Text      string
	Cacheable bool
}

// CompletionResult is what a provider reports back; it never includes a
// dollar cost — cost is computed centrally from ModelRegistry prices.
type CompletionResult struct {
	Content            string
	Model              string
	InputTokens        int
	OutputTokens       int
	CachedInputTokens  int
	CacheWriteTokens   int
	DurationMS         int64
	FinishReason       llmtypes.FinishReason
}

// StreamRecordKind discriminates StreamRecord.
type StreamRecordKind string

const (
	StreamTextDelta StreamRecordKind = "text_delta"
	StreamToolCall  StreamRecordKind = "tool_call"
	StreamDone      StreamRecordKind = "done"
)

// StreamRecord is one element of the lazy sequence Stream returns.
type StreamRecord struct {
	Kind  StreamRecordKind
	Text  string
	Usage *CompletionResult // populated on StreamDone
}

// ConnectionTest is the result of a minimal, cheap upstream probe.
type ConnectionTest struct {
	Connected bool
	LatencyMS int64
	Err       error
}

// Health mirrors the per-provider health ladder in spec §4.2.
type HealthState string

const (
	HealthHealthy  HealthState = "healthy"
	HealthDegraded HealthState = "degraded"
	HealthDown     HealthState = "down"
)

// CircuitMirror is the provider-local circuit state, independent of the
// orchestrator-wide circuit breaker.
type CircuitMirror string

const (
	CircuitMirrorClosed   CircuitMirror = "closed"
	CircuitMirrorHalfOpen CircuitMirror = "half_open"
	CircuitMirrorOpen     CircuitMirror = "open"
)

// HealthStatus is returned by GetHealthStatus.
type HealthStatus struct {
	Status              HealthState
	LastCheckAt         time.Time
	LastSuccessAt       time.Time
	LatencyMS           int64
	ConsecutiveFailures int
	CircuitBreakerState CircuitMirror
}

// Capability is a closed set of optional features a model tier may support.
type Capability string

const (
	CapTools     Capability = "tools"
	CapVision    Capability = "vision"
	CapJSONMode  Capability = "json_mode"
	CapCaching   Capability = "caching"
	CapReasoning Capability = "reasoning"
)

// Provider is the interface every upstream adapter satisfies. Implementations
// never share HTTP clients across providers and own their connection pool.
type Provider interface {
	// Initialize is called once at construction time; config carries the
	// API key, optional base URL, timeout, max retries and priority weight.
	Initialize(ctx context.Context, cfg Config) error

	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error)
	Stream(ctx context.Context, req *CompletionRequest) (<-chan StreamRecord, error)

	TestConnection(ctx context.Context) (*ConnectionTest, error)

	ListModels() []string
	SupportsModel(model string) bool
	SupportsCaching() bool

	GetHealthStatus() HealthStatus

	// Shutdown releases the provider's client resources. Safe to call once.
	Shutdown(ctx context.Context) error

	// Name is the provider's registry key, e.g. "anthropic".
	Name() string

	// Priority is the declared fallback-ordering weight (higher tries first).
	Priority() int
}

// Config is the one-shot construction config for a provider.
type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	Priority   int
	Enabled    bool
}
