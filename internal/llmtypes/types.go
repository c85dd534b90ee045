// Package llmtypes holds the request/response contract and closed enums
// shared across the orchestration core. It deliberately has no dependency
// on any component package so every other package may import it freely.
package llmtypes

import "time"

// Role is a message role in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Category is the closed set of request categories the core understands.
type Category string

const (
	CategoryCodeGeneration Category = "code_generation"
	CategoryCodeReview     Category = "code_review"
	CategorySecurity       Category = "security"
	CategoryPlanning       Category = "planning"
	CategoryAnalysis       Category = "analysis"
	CategoryChat           Category = "chat"
	CategoryQuery          Category = "query"
	CategorySummarize      Category = "summarize"
	CategoryParseCommand   Category = "parse_command"
	CategoryHeartbeat      Category = "heartbeat"
)

// Priority is the caller-declared urgency of a request.
type Priority string

const (
	PriorityUrgent     Priority = "URGENT"
	PriorityStandard   Priority = "STANDARD"
	PriorityBackground Priority = "BACKGROUND"
)

// TrustLevel is an opaque caller-supplied trust classification.
type TrustLevel string

// Complexity is the closed set produced by the complexity classifier.
type Complexity string

const (
	ComplexityTrivial  Complexity = "trivial"
	ComplexitySimple   Complexity = "simple"
	ComplexityStandard Complexity = "standard"
	ComplexityComplex  Complexity = "complex"
	ComplexityCritical Complexity = "critical"
)

// ThrottleLevel is the budget health indicator read from CostTracker.
type ThrottleLevel string

const (
	ThrottleNormal ThrottleLevel = "normal"
	ThrottleWarn   ThrottleLevel = "warning"
	ThrottleReduce ThrottleLevel = "reduce"
	ThrottlePause  ThrottleLevel = "pause"
)

// FinishReason is the exhaustive four-value enum every provider maps its
// upstream stop reason onto.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishMaxTokens FinishReason = "max_tokens"
	FinishToolUse   FinishReason = "tool_use"
	FinishError     FinishReason = "error"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role
	Content string
}

// AIRequest is the single-owner input to Orchestrator.Execute. It is never
// mutated after Validate succeeds.
type AIRequest struct {
	RequestID         string
	Content           string
	SystemPrompt      string
	Messages          []Message
	Category          Category
	Agent             string
	TrustLevel        TrustLevel
	Priority          Priority
	EnableCaching     bool
	SecuritySensitive bool
	MaxTokens         int // 0 means "use category default"
}

// Validate enforces the §3 invariants. It is idempotent: re-validating an
// already-valid request is a no-op that returns nil.
func (r *AIRequest) Validate() error {
	if r.Content == "" {
		return errEmptyContent
	}
	if len(r.Messages) > 0 && r.Messages[len(r.Messages)-1].Role != RoleUser {
		return errLastMessageNotUser
	}
	if r.Priority == "" {
		r.Priority = PriorityStandard
	}
	return nil
}

var (
	errEmptyContent       = validationError("content must not be empty")
	errLastMessageNotUser = validationError("last message role must be user")
)

type validationError string

func (e validationError) Error() string { return string(e) }

// AIResponse is the output of a completed (or failed-but-recorded) request.
type AIResponse struct {
	RequestID          string
	Content            string
	Model              string
	Provider           string
	InputTokens        int
	OutputTokens        int
	CachedInputTokens  int
	CacheWriteTokens   int
	Cost               float64 // dollars
	Duration           time.Duration
	Cached             bool
	QualityScore       float64
	Escalated          bool
	EscalationReason   string
	GovernanceApproved bool
}

// ParseCommandResult is the best-effort decode produced by the
// Orchestrator.ParseCommand convenience wrapper.
type ParseCommandResult struct {
	Intent     string
	Entities   map[string]any
	Confidence float64
	Raw        string
}
