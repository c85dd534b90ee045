package auditlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiorch/core/internal/llmtypes"
)

func newTestSink(t *testing.T) *Sink {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	sink, err := Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })
	return sink
}

func TestRecordPersistsEntry(t *testing.T) {
	sink := newTestSink(t)
	resp := &llmtypes.AIResponse{
		RequestID: "req-1", Provider: "anthropic", Model: "claude-sonnet-4.5",
		InputTokens: 100, OutputTokens: 50, Cost: 0.0012, Duration: 250 * time.Millisecond,
		QualityScore: 0.8,
	}

	sink.Record(context.Background(), string(llmtypes.CategoryChat), "agent-a", resp, true)

	entries, err := sink.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "req-1", entries[0].RequestID)
	assert.Equal(t, "anthropic", entries[0].Provider)
	assert.True(t, entries[0].Success)
	assert.Equal(t, int64(250), entries[0].DurationMS)
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	sink := newTestSink(t)
	for i := 0; i < 3; i++ {
		resp := &llmtypes.AIResponse{RequestID: string(rune('a' + i))}
		sink.Record(context.Background(), string(llmtypes.CategoryChat), "agent", resp, true)
	}

	entries, err := sink.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].RequestID)
	assert.Equal(t, "b", entries[1].RequestID)
}

func TestRecordDoesNotPanicOnFailedRequest(t *testing.T) {
	sink := newTestSink(t)
	resp := &llmtypes.AIResponse{RequestID: "req-fail"}
	assert.NotPanics(t, func() {
		sink.Record(context.Background(), string(llmtypes.CategorySecurity), "agent-b", resp, false)
	})
}
