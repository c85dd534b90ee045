// Package governance implements the optional Governance external
// collaborator from spec §6: a requestApproval hook gating pipeline step 6
// for security/planning-category, security-sensitive, or high-cost
// requests.
package governance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/aiorch/core/internal/llmtypes"
)

// Decision is requestApproval's result.
type Decision struct {
	Approved bool
	Reason   string
	// Token is a signed record of the decision, verifiable later by an
	// external auditor without re-consulting this process. Empty when
	// signing is disabled.
	Token string
}

// RequiresApproval implements spec §4.9 step 6's gating rule.
func RequiresApproval(category llmtypes.Category, securitySensitive bool, estimatedCostUSD, costThresholdUSD float64) bool {
	if securitySensitive {
		return true
	}
	if category == llmtypes.CategorySecurity || category == llmtypes.CategoryPlanning {
		return true
	}
	return estimatedCostUSD > costThresholdUSD
}

// ApprovalRequest is what requestApproval is called with.
type ApprovalRequest struct {
	RequestID         string
	Category          llmtypes.Category
	SecuritySensitive bool
	Content           string
}

// Approver is the pluggable decision source a Governance asks; the default
// AutoApprover always approves (suitable for local development), while
// production deployments supply a human-backed or policy-backed
// implementation.
type Approver interface {
	Decide(ctx context.Context, req ApprovalRequest, estimatedCostUSD float64, selectedModel string) (approved bool, reason string)
}

// AutoApprover approves everything; useful for tests and for running the
// pipeline with AI_GOVERNANCE_ENABLED=false effectively bypassed even when a
// Governance is still wired in.
type AutoApprover struct{}

func (AutoApprover) Decide(ctx context.Context, req ApprovalRequest, estimatedCostUSD float64, selectedModel string) (bool, string) {
	return true, "auto-approved"
}

// claims is the signed decision payload. It embeds jwt.RegisteredClaims so
// standard exp/iat/iss validation applies to anyone who later verifies it.
type claims struct {
	jwt.RegisteredClaims
	RequestID string `json:"request_id"`
	Approved  bool   `json:"approved"`
	Reason    string `json:"reason"`
	Model     string `json:"model"`
}

// Governance gates requests behind an Approver and signs every decision with
// an HMAC key so the decision can be replayed/verified by an external
// auditor (the dashboard, audit display) without trusting this process's
// in-memory state.
type Governance struct {
	approver Approver
	signKey  []byte
	deadline time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	decided map[string]Decision
}

// Config tunes Governance construction.
type Config struct {
	Approver Approver
	SignKey  []byte        // HMAC key; nil disables token signing
	Deadline time.Duration // default 30s; a timeout is treated as rejection
}

// New builds a Governance. A nil Approver defaults to AutoApprover.
func New(cfg Config, logger *zap.Logger) *Governance {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Approver == nil {
		cfg.Approver = AutoApprover{}
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = 30 * time.Second
	}
	return &Governance{
		approver: cfg.Approver, signKey: cfg.SignKey, deadline: cfg.Deadline,
		logger: logger, decided: make(map[string]Decision),
	}
}

// RequestApproval asks the configured Approver for a decision, bounded by
// the configured deadline; a timed-out decision is treated as rejection per
// spec §5's suspension-point note.
func (g *Governance) RequestApproval(ctx context.Context, req ApprovalRequest, estimatedCostUSD float64, selectedModel string) Decision {
	ctx, cancel := context.WithTimeout(ctx, g.deadline)
	defer cancel()

	type result struct {
		approved bool
		reason   string
	}
	resultCh := make(chan result, 1)
	go func() {
		approved, reason := g.approver.Decide(ctx, req, estimatedCostUSD, selectedModel)
		resultCh <- result{approved, reason}
	}()

	var decision Decision
	select {
	case r := <-resultCh:
		decision = Decision{Approved: r.approved, Reason: r.reason}
	case <-ctx.Done():
		decision = Decision{Approved: false, Reason: "governance approval timed out"}
	}

	if g.signKey != nil {
		token, err := g.sign(req.RequestID, decision, selectedModel)
		if err != nil {
			g.logger.Warn("governance: failed to sign decision", zap.Error(err))
		} else {
			decision.Token = token
		}
	}

	g.mu.Lock()
	g.decided[req.RequestID] = decision
	g.mu.Unlock()

	return decision
}

func (g *Governance) sign(requestID string, decision Decision, model string) (string, error) {
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
			Issuer:    "aiorch-governance",
		},
		RequestID: requestID,
		Approved:  decision.Approved,
		Reason:    decision.Reason,
		Model:     model,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(g.signKey)
}

// Verify checks a decision token's signature and returns the embedded
// decision, for use by an external auditor.
func (g *Governance) Verify(tokenString string) (Decision, error) {
	if g.signKey == nil {
		return Decision{}, fmt.Errorf("governance: token signing is disabled")
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (any, error) {
		return g.signKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithIssuer("aiorch-governance"))
	if err != nil {
		return Decision{}, err
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return Decision{}, fmt.Errorf("governance: invalid token claims")
	}
	return Decision{Approved: c.Approved, Reason: c.Reason}, nil
}
