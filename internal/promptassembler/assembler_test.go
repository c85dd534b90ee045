package promptassembler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiorch/core/internal/llmtypes"
)

func TestMaxTokensDefaultsByCategory(t *testing.T) {
	a := New(true)
	cases := []struct {
		category llmtypes.Category
		want     int
	}{
		{llmtypes.CategoryHeartbeat, 200},
		{llmtypes.CategoryParseCommand, 200},
		{llmtypes.CategorySummarize, 400},
		{llmtypes.CategoryQuery, 400},
		{llmtypes.CategoryChat, 800},
		{llmtypes.CategoryAnalysis, 1500},
		{llmtypes.CategoryCodeReview, 1500},
		{llmtypes.CategoryCodeGeneration, 2500},
		{llmtypes.CategoryPlanning, 2500},
		{llmtypes.CategorySecurity, 2000},
	}
	for _, c := range cases {
		req := &llmtypes.AIRequest{Content: "hi", Category: c.category}
		got := a.Assemble(req, "model")
		assert.Equalf(t, c.want, got.MaxTokens, "category %s", c.category)
	}
}

func TestExplicitMaxTokensOverrides(t *testing.T) {
	a := New(true)
	req := &llmtypes.AIRequest{Content: "hi", Category: llmtypes.CategoryChat, MaxTokens: 50}
	got := a.Assemble(req, "model")
	assert.Equal(t, 50, got.MaxTokens)
}

func TestUnrecognizedCategoryFallsBack(t *testing.T) {
	a := New(true)
	req := &llmtypes.AIRequest{Content: "hi", Category: "unknown_category"}
	got := a.Assemble(req, "model")
	assert.Equal(t, fallbackMaxTokens, got.MaxTokens)
}

func TestCacheMarkerRequiresBothFlagAndMinSize(t *testing.T) {
	a := New(true)

	longPrompt := strings.Repeat("x", MinCacheableBlockSize+1)
	req := &llmtypes.AIRequest{Content: "hi", SystemPrompt: longPrompt, EnableCaching: true}
	got := a.Assemble(req, "model")
	require.Len(t, got.System, 1)
	assert.True(t, got.System[0].Cacheable)

	shortPrompt := "short"
	req2 := &llmtypes.AIRequest{Content: "hi", SystemPrompt: shortPrompt, EnableCaching: true}
	got2 := a.Assemble(req2, "model")
	require.Len(t, got2.System, 1)
	assert.False(t, got2.System[0].Cacheable)
}

func TestCacheMarkerDisabledGlobally(t *testing.T) {
	a := New(false)
	longPrompt := strings.Repeat("x", MinCacheableBlockSize+1)
	req := &llmtypes.AIRequest{Content: "hi", SystemPrompt: longPrompt, EnableCaching: true}
	got := a.Assemble(req, "model")
	require.Len(t, got.System, 1)
	assert.False(t, got.System[0].Cacheable)
}

func TestMessagesFallBackToContentWhenEmpty(t *testing.T) {
	a := New(true)
	req := &llmtypes.AIRequest{Content: "hello there"}
	got := a.Assemble(req, "model")
	require.Len(t, got.Messages, 1)
	assert.Equal(t, llmtypes.RoleUser, got.Messages[0].Role)
	assert.Equal(t, "hello there", got.Messages[0].Content)
}

func TestMessagesPassThroughWhenPresent(t *testing.T) {
	a := New(true)
	req := &llmtypes.AIRequest{
		Content: "hello there",
		Messages: []llmtypes.Message{
			{Role: llmtypes.RoleUser, Content: "first"},
			{Role: llmtypes.RoleAssistant, Content: "second"},
			{Role: llmtypes.RoleUser, Content: "third"},
		},
	}
	got := a.Assemble(req, "model")
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "third", got.Messages[2].Content)
}
