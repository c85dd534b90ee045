// Package tokencount estimates token counts for pre-call budget checks and
// ValueScorer cost comparisons. Exact counts always come from the upstream
// provider's usage report; this package's numbers are estimates only.
package tokencount

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/aiorch/core/internal/llmtypes"
)

// Estimator counts tokens using a tiktoken encoding. Anthropic, Google and
// xAI do not publish a tiktoken-compatible encoding; cl100k_base is used as
// a cross-provider approximation for pre-call estimation, which this
// module's own reasoning accepts since it only feeds routing comparisons
// and budget pre-checks, never the authoritative post-call accounting
// (that always uses the provider's reported token counts).
type Estimator struct {
	encoding string
	mu       sync.Mutex
	enc      *tiktoken.Tiktoken
	initErr  error
}

// encodingForModel returns the tiktoken encoding to approximate model's
// tokenizer with.
func encodingForModel(model string) string {
	switch {
	case hasPrefix(model, "gpt-4o"), hasPrefix(model, "o3"), hasPrefix(model, "o1"):
		return "o200k_base"
	default:
		return "cl100k_base"
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// New builds an Estimator for model, lazily initializing the underlying
// tiktoken encoding on first use.
func New(model string) *Estimator {
	return &Estimator{encoding: encodingForModel(model)}
}

func (e *Estimator) init() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.enc != nil || e.initErr != nil {
		return e.initErr
	}
	enc, err := tiktoken.GetEncoding(e.encoding)
	if err != nil {
		e.initErr = fmt.Errorf("tokencount: init encoding %s: %w", e.encoding, err)
		return e.initErr
	}
	e.enc = enc
	return nil
}

// CountText estimates the token count of a single string.
func (e *Estimator) CountText(text string) (int, error) {
	if err := e.init(); err != nil {
		return 0, err
	}
	return len(e.enc.Encode(text, nil, nil)), nil
}

// CountMessages estimates the token count of a message list, including a
// fixed per-message role/framing overhead matching the teacher's own
// chat-overhead accounting.
func (e *Estimator) CountMessages(messages []llmtypes.Message) (int, error) {
	if err := e.init(); err != nil {
		return 0, err
	}
	total := 0
	for _, m := range messages {
		total += 4
		total += len(e.enc.Encode(m.Content, nil, nil))
		total += len(e.enc.Encode(string(m.Role), nil, nil))
	}
	total += 3
	return total, nil
}

// EstimateRequest estimates the combined input token count for a system
// prompt plus a message list, suitable for CostTracker.CanProceed and
// ValueScorer's cost comparisons.
func (e *Estimator) EstimateRequest(systemPrompt string, messages []llmtypes.Message) (int, error) {
	sysTokens := 0
	if systemPrompt != "" {
		var err error
		sysTokens, err = e.CountText(systemPrompt)
		if err != nil {
			return 0, err
		}
	}
	msgTokens, err := e.CountMessages(messages)
	if err != nil {
		return 0, err
	}
	return sysTokens + msgTokens, nil
}
