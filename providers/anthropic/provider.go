// Package anthropic adapts the Anthropic Messages API to the core's uniform
// provider.Provider contract.
package anthropic

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

const defaultBaseURL = "https://api.anthropic.com"
const anthropicVersion = "2023-06-01"

// Provider implements provider.Provider against the Anthropic Messages API.
// Claude's system prompt is a top-level field, not a message, and supports
// ephemeral cache_control markers on individual content blocks.
type Provider struct {
	provider.HealthTracker

	mu      sync.RWMutex
	cfg     provider.Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	models  []string
}

// New constructs a Provider. Call Initialize before use.
func New(logger *zap.Logger, models []string) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{logger: logger, models: models}
}

func (p *Provider) Name() string { return "anthropic" }

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

type cacheControl struct {
	Type string `json:"type"`
}

type systemBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *cacheControl `json:"cache_control,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model     string        `json:"model"`
	System    []systemBlock `json:"system,omitempty"`
	Messages  []message     `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type response struct {
	Content    []contentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      usage          `json:"usage"`
}

type errorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func mapFinishReason(reason string) llmtypes.FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return llmtypes.FinishStop
	case "max_tokens":
		return llmtypes.FinishMaxTokens
	case "tool_use":
		return llmtypes.FinishToolUse
	default:
		return llmtypes.FinishStop
	}
}

func buildSystemBlocks(blocks []provider.SystemBlock) []systemBlock {
	out := make([]systemBlock, 0, len(blocks))
	for _, b := range blocks {
		sb := systemBlock{Type: "text", Text: b.Text}
		if b.Cacheable {
			sb.CacheControl = &cacheControl{Type: "ephemeral"}
		}
		out = append(out, sb)
	}
	return out
}

func buildMessages(msgs []llmtypes.Message) []message {
	out := make([]message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == llmtypes.RoleSystem {
			continue
		}
		out = append(out, message{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func (p *Provider) headers(req *http.Request) {
	req.Header.Set("x-api-key", p.cfg.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("content-type", "application/json")
	if req.Method == http.MethodPost {
		req.Header.Set("anthropic-beta", "prompt-caching-2024-07-31")
	}
}

func (p *Provider) Complete(ctx context.Context, creq *provider.CompletionRequest) (*provider.CompletionResult, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body := request{
		Model:     creq.Model,
		System:    buildSystemBlocks(creq.System),
		Messages:  buildMessages(creq.Messages),
		MaxTokens: creq.MaxTokens,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, orcherr.New(orcherr.CodeInvalidRequest, "upstream", err.Error()).WithProvider(p.Name())
	}

	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/messages"
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

	var claudeResp response
	if err := json.NewDecoder(resp.Body).Decode(&claudeResp); err != nil {
		p.RecordFailure(latency)
		return nil, orcherr.New(orcherr.CodeProviderTransient, "upstream", err.Error()).WithProvider(p.Name()).WithRetryable(true)
	}
	p.RecordSuccess(latency)

	var content strings.Builder
	for _, c := range claudeResp.Content {
		if c.Type == "text" {
			content.WriteString(c.Text)
		}
	}

	return &provider.CompletionResult{
		Content:           content.String(),
		Model:             claudeResp.Model,
		InputTokens:       claudeResp.Usage.InputTokens,
		OutputTokens:      claudeResp.Usage.OutputTokens,
		CachedInputTokens: claudeResp.Usage.CacheReadInputTokens,
		CacheWriteTokens:  claudeResp.Usage.CacheCreationInputTokens,
		DurationMS:        latency,
		FinishReason:      mapFinishReason(claudeResp.StopReason),
	}, nil
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
		return fmt.Sprintf("%s (%s)", env.Error.Message, env.Error.Type)
	}
	return string(data)
}

func classifyHTTPError(status int, msg, providerName string) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return orcherr.New(orcherr.CodeProviderPermanent, "upstream", msg).WithProvider(providerName)
	case http.StatusTooManyRequests:
		return orcherr.New(orcherr.CodeProviderTransient, "upstream", msg).WithProvider(providerName).WithRetryable(true)
	case http.StatusBadRequest:
		return orcherr.New(orcherr.CodeProviderPermanent, "upstream", msg).WithProvider(providerName)
	case 529:
		return orcherr.New(orcherr.CodeProviderTransient, "upstream", msg).WithProvider(providerName).WithRetryable(true)
	default:
		if status >= 500 {
			return orcherr.New(orcherr.CodeProviderTransient, "upstream", msg).WithProvider(providerName).WithRetryable(true)
		}
		return orcherr.New(orcherr.CodeProviderPermanent, "upstream", msg).WithProvider(providerName)
	}
}
