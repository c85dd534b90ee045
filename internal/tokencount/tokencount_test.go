package tokencount

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiorch/core/internal/llmtypes"
)

func TestCountTextNonEmpty(t *testing.T) {
	e := New("claude-sonnet-4.5")
	n, err := e.CountText("hello, world! this is a test sentence.")
	require.NoError(t, err)
	assert.Greater(t, n, 0)
}

func TestCountTextEmptyIsZero(t *testing.T) {
	e := New("claude-sonnet-4.5")
	n, err := e.CountText("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCountMessagesIncludesOverhead(t *testing.T) {
	e := New("gpt-4.1")
	messages := []llmtypes.Message{{Role: llmtypes.RoleUser, Content: "hi"}}
	n, err := e.CountMessages(messages)
	require.NoError(t, err)
	// 4 (per-message overhead) + encoded("hi") + encoded("user") + 3 (convo overhead)
	assert.Greater(t, n, 7)
}

func TestEstimateRequestCombinesSystemAndMessages(t *testing.T) {
	e := New("gemini-2.5-pro")
	withoutSystem, err := e.EstimateRequest("", []llmtypes.Message{{Role: llmtypes.RoleUser, Content: "hello there"}})
	require.NoError(t, err)

	withSystem, err := e.EstimateRequest("you are a helpful assistant", []llmtypes.Message{{Role: llmtypes.RoleUser, Content: "hello there"}})
	require.NoError(t, err)

	assert.Greater(t, withSystem, withoutSystem)
}

func TestEncodingSelectionByModelPrefix(t *testing.T) {
	assert.Equal(t, "o200k_base", encodingForModel("gpt-4o-mini"))
	assert.Equal(t, "o200k_base", encodingForModel("o3"))
	assert.Equal(t, "cl100k_base", encodingForModel("claude-opus-4.5"))
	assert.Equal(t, "cl100k_base", encodingForModel("grok-4"))
}
