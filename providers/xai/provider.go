// Package xai adapts xAI's Chat Completions API (OpenAI-compatible wire
// format per xAI's own documented compatibility) to the core's uniform
// provider.Provider contract.
package xai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aiorch/core/internal/llmtypes"
	"github.com/aiorch/core/internal/orcherr"
	"github.com/aiorch/core/internal/provider"
)

const defaultBaseURL = "https://api.x.ai"

// Provider implements provider.Provider against xAI's Grok API. xAI's
// prompt cache is automatic with no write surcharge, mirroring OpenAI's
// wire shape closely enough that this adapter's request/response types are
// a near-duplicate of the openai package's, kept separate so each upstream
// has its own priority/health/rate-limit state and can diverge freely.
type Provider struct {
	provider.HealthTracker

	mu      sync.RWMutex
	cfg     provider.Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	models  []string
}

func New(logger *zap.Logger, models []string) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{logger: logger, models: models}
}

func (p *Provider) Name() string { return "xai" }

func (p *Provider) Initialize(ctx context.Context, cfg provider.Config) error {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	p.mu.Lock()
	p.cfg = cfg
	p.client = &http.Client{Timeout: cfg.Timeout}
	p.limiter = rate.NewLimiter(rate.Limit(4), 8)
	p.mu.Unlock()
	return nil
}

func (p *Provider) Priority() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg.Priority
}

func (p *Provider) ListModels() []string { return p.models }

func (p *Provider) SupportsModel(model string) bool {
	for _, m := range p.models {
		if m == model {
			return true
		}
	}
	return false
}

func (p *Provider) SupportsCaching() bool { return true }

// --- wire types -------------------------------------------------------

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model     string    `json:"model"`
	Messages  []message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

type promptTokensDetails struct {
	CachedTokens int `json:"cached_tokens"`
}

type usage struct {
	PromptTokens        int                  `json:"prompt_tokens"`
	CompletionTokens    int                  `json:"completion_tokens"`
	PromptTokensDetails *promptTokensDetails `json:"prompt_tokens_details,omitempty"`
}

type choice struct {
	Message      message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type response struct {
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
	Usage   usage    `json:"usage"`
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func mapFinishReason(reason string) llmtypes.FinishReason {
	switch reason {
	case "stop":
		return llmtypes.FinishStop
	case "length":
		return llmtypes.FinishMaxTokens
	case "tool_calls":
		return llmtypes.FinishToolUse
	default:
		return llmtypes.FinishStop
	}
}

func buildMessages(system []provider.SystemBlock, msgs []llmtypes.Message) []message {
	out := make([]message, 0, len(system)+len(msgs))
	for _, s := range system {
		out = append(out, message{Role: "system", Content: s.Text})
	}
	for _, m := range msgs {
		out = append(out, message{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func (p *Provider) headers(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
}

func (p *Provider) Complete(ctx context.Context, creq *provider.CompletionRequest) (*provider.CompletionResult, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body := request{
		Model:     creq.Model,
		Messages:  buildMessages(creq.System, creq.Messages),
		MaxTokens: creq.MaxTokens,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, orcherr.New(orcherr.CodeInvalidRequest, "upstream", err.Error()).WithProvider(p.Name())
	}

	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	p.headers(httpReq)

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		p.RecordFailure(latency)
		return nil, orcherr.New(orcherr.CodeProviderTransient, "upstream", err.Error()).WithProvider(p.Name()).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		p.RecordFailure(latency)
		return nil, classifyHTTPError(resp.StatusCode, readErrMsg(resp.Body), p.Name())
	}

	var xr response
	if err := json.NewDecoder(resp.Body).Decode(&xr); err != nil {
		p.RecordFailure(latency)
		return nil, orcherr.New(orcherr.CodeProviderTransient, "upstream", err.Error()).WithProvider(p.Name()).WithRetryable(true)
	}
	p.RecordSuccess(latency)

	result := &provider.CompletionResult{
		Model:        xr.Model,
		InputTokens:  xr.Usage.PromptTokens,
		OutputTokens: xr.Usage.CompletionTokens,
		DurationMS:   latency,
		FinishReason: llmtypes.FinishStop,
	}
	if xr.Usage.PromptTokensDetails != nil {
		result.CachedInputTokens = xr.Usage.PromptTokensDetails.CachedTokens
		result.InputTokens -= result.CachedInputTokens
	}
	if len(xr.Choices) > 0 {
		result.Content = xr.Choices[0].Message.Content
		result.FinishReason = mapFinishReason(xr.Choices[0].FinishReason)
	}
	return result, nil
}

func (p *Provider) Stream(ctx context.Context, creq *provider.CompletionRequest) (<-chan provider.StreamRecord, error) {
	res, err := p.Complete(ctx, creq)
	if err != nil {
		return nil, err
	}
	ch := make(chan provider.StreamRecord, 2)
	ch <- provider.StreamRecord{Kind: provider.StreamTextDelta, Text: res.Content}
	ch <- provider.StreamRecord{Kind: provider.StreamDone, Usage: res}
	close(ch)
	return ch, nil
}

func (p *Provider) TestConnection(ctx context.Context) (*provider.ConnectionTest, error) {
	start := time.Now()
	_, err := p.Complete(ctx, &provider.CompletionRequest{
		Model:     p.cheapestModel(),
		Messages:  []llmtypes.Message{{Role: llmtypes.RoleUser, Content: "ping"}},
		MaxTokens: 1,
	})
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return &provider.ConnectionTest{Connected: false, LatencyMS: latency, Err: err}, nil
	}
	return &provider.ConnectionTest{Connected: true, LatencyMS: latency}, nil
}

func (p *Provider) cheapestModel() string {
	if len(p.models) == 0 {
		return ""
	}
	return p.models[0]
}

func (p *Provider) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.CloseIdleConnections()
	}
	return nil
}

func readErrMsg(body io.Reader) string {
	data, _ := io.ReadAll(body)
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err == nil && env.Error.Message != "" {
		return env.Error.Message
	}
	return string(data)
}

func classifyHTTPError(status int, msg, providerName string) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return orcherr.New(orcherr.CodeProviderPermanent, "upstream", msg).WithProvider(providerName)
	case http.StatusTooManyRequests:
		return orcherr.New(orcherr.CodeProviderTransient, "upstream", msg).WithProvider(providerName).WithRetryable(true)
	default:
		if status >= 500 {
			return orcherr.New(orcherr.CodeProviderTransient, "upstream", msg).WithProvider(providerName).WithRetryable(true)
		}
		return orcherr.New(orcherr.CodeProviderPermanent, "upstream", msg).WithProvider(providerName)
	}
}
