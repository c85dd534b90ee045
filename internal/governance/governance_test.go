package governance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiorch/core/internal/llmtypes"
)

// ---------------------------------------------------------------------------
// RequiresApproval
// ---------------------------------------------------------------------------

func TestRequiresApprovalSecuritySensitiveAlways(t *testing.T) {
	assert.True(t, RequiresApproval(llmtypes.CategoryChat, true, 0.01, 100))
}

func TestRequiresApprovalByCategory(t *testing.T) {
	assert.True(t, RequiresApproval(llmtypes.CategorySecurity, false, 0, 100))
	assert.True(t, RequiresApproval(llmtypes.CategoryPlanning, false, 0, 100))
	assert.False(t, RequiresApproval(llmtypes.CategoryChat, false, 0, 100))
}

func TestRequiresApprovalByCostThreshold(t *testing.T) {
	assert.True(t, RequiresApproval(llmtypes.CategoryChat, false, 101, 100))
	assert.False(t, RequiresApproval(llmtypes.CategoryChat, false, 99, 100))
}

// ---------------------------------------------------------------------------
// RequestApproval
// ---------------------------------------------------------------------------

type rejectApprover struct{ reason string }

func (r rejectApprover) Decide(ctx context.Context, req ApprovalRequest, estimatedCostUSD float64, selectedModel string) (bool, string) {
	return false, r.reason
}

type slowApprover struct{ delay time.Duration }

func (s slowApprover) Decide(ctx context.Context, req ApprovalRequest, estimatedCostUSD float64, selectedModel string) (bool, string) {
	select {
	case <-time.After(s.delay):
		return true, "slow approval"
	case <-ctx.Done():
		return false, "cancelled"
	}
}

func TestAutoApproverApproves(t *testing.T) {
	g := New(Config{}, nil)
	decision := g.RequestApproval(context.Background(), ApprovalRequest{RequestID: "r1"}, 1.0, "claude-sonnet-4.5")
	assert.True(t, decision.Approved)
}

func TestRejectingApproverDenies(t *testing.T) {
	g := New(Config{Approver: rejectApprover{reason: "policy violation"}}, nil)
	decision := g.RequestApproval(context.Background(), ApprovalRequest{RequestID: "r2"}, 1.0, "model")
	assert.False(t, decision.Approved)
	assert.Equal(t, "policy violation", decision.Reason)
}

func TestTimeoutTreatedAsRejection(t *testing.T) {
	g := New(Config{Approver: slowApprover{delay: 200 * time.Millisecond}, Deadline: 10 * time.Millisecond}, nil)
	decision := g.RequestApproval(context.Background(), ApprovalRequest{RequestID: "r3"}, 1.0, "model")
	assert.False(t, decision.Approved)
}

func TestSignedDecisionRoundTrips(t *testing.T) {
	g := New(Config{SignKey: []byte("test-signing-key-0123456789")}, nil)
	decision := g.RequestApproval(context.Background(), ApprovalRequest{RequestID: "r4"}, 1.0, "claude-opus-4.5")
	require.NotEmpty(t, decision.Token)

	verified, err := g.Verify(decision.Token)
	require.NoError(t, err)
	assert.Equal(t, decision.Approved, verified.Approved)
	assert.Equal(t, decision.Reason, verified.Reason)
}

func TestVerifyFailsWithoutSignKey(t *testing.T) {
	g := New(Config{}, nil)
	_, err := g.Verify("whatever")
	assert.Error(t, err)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	g := New(Config{SignKey: []byte("key-a-0123456789abcdef")}, nil)
	decision := g.RequestApproval(context.Background(), ApprovalRequest{RequestID: "r5"}, 1.0, "model")

	otherKey := New(Config{SignKey: []byte("key-b-fedcba9876543210")}, nil)
	_, err := otherKey.Verify(decision.Token)
	assert.Error(t, err)
}
