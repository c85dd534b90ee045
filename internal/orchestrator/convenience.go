package orchestrator

import (
	"context"
	"encoding/json"

	"github.com/aiorch/core/internal/llmtypes"
)

// Query runs a single free-form completion through the pipeline and returns
// just the text, for callers that don't need the full AIResponse.
func (o *Orchestrator) Query(ctx context.Context, text, agent string) (string, error) {
	resp, err := o.Execute(ctx, &llmtypes.AIRequest{
		Content:  text,
		Category: llmtypes.CategoryQuery,
		Agent:    agent,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Chat runs a multi-turn conversation through the pipeline, carrying an
// optional system prompt, and returns just the reply text.
func (o *Orchestrator) Chat(ctx context.Context, messages []llmtypes.Message, systemPrompt, agent string) (string, error) {
	content := ""
	if len(messages) > 0 {
		content = messages[len(messages)-1].Content
	}
	resp, err := o.Execute(ctx, &llmtypes.AIRequest{
		Content:      content,
		SystemPrompt: systemPrompt,
		Messages:     messages,
		Category:     llmtypes.CategoryChat,
		Agent:        agent,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Summarize runs a summarization request through the pipeline, capping the
// reply at maxLength tokens when maxLength > 0.
func (o *Orchestrator) Summarize(ctx context.Context, text string, maxLength int, agent string) (string, error) {
	resp, err := o.Execute(ctx, &llmtypes.AIRequest{
		Content:   text,
		Category:  llmtypes.CategorySummarize,
		Agent:     agent,
		MaxTokens: maxLength,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// ParseCommand asks the model to extract intent and entities from text as
// JSON and best-effort decodes the reply. A reply that isn't valid JSON
// shaped like ParseCommandResult degrades to an "unknown" intent carrying
// the raw text, rather than surfacing a decode error to the caller.
func (o *Orchestrator) ParseCommand(ctx context.Context, text, agent string) (llmtypes.ParseCommandResult, error) {
	const systemPrompt = `Extract the intent and named entities from the user's command. ` +
		`Reply with only a JSON object: {"intent": string, "entities": object, "confidence": number 0-1}.`

	resp, err := o.Execute(ctx, &llmtypes.AIRequest{
		Content:      text,
		SystemPrompt: systemPrompt,
		Category:     llmtypes.CategoryParseCommand,
		Agent:        agent,
	})
	if err != nil {
		return llmtypes.ParseCommandResult{}, err
	}

	var parsed struct {
		Intent     string         `json:"intent"`
		Entities   map[string]any `json:"entities"`
		Confidence float64        `json:"confidence"`
	}
	if jerr := json.Unmarshal([]byte(resp.Content), &parsed); jerr != nil || parsed.Intent == "" {
		return llmtypes.ParseCommandResult{
			Intent:     "unknown",
			Entities:   map[string]any{},
			Confidence: 0,
			Raw:        resp.Content,
		}, nil
	}
	if parsed.Entities == nil {
		parsed.Entities = map[string]any{}
	}
	return llmtypes.ParseCommandResult{
		Intent:     parsed.Intent,
		Entities:   parsed.Entities,
		Confidence: parsed.Confidence,
		Raw:        resp.Content,
	}, nil
}
