package evaluator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aiorch/core/internal/llmtypes"
)

func TestBaselineWithNoSignals(t *testing.T) {
	e := New()
	query := strings.Repeat("x", 20)
	content := "ok"
	assert.InDelta(t, baseline, e.Score(query, content), 0.01)
}

func TestShortContentLongQueryPenalized(t *testing.T) {
	e := New()
	query := strings.Repeat("q", 150)
	content := "short"
	score := e.Score(query, content)
	assert.Less(t, score, baseline)
}

func TestUncertaintyPhrasesLowerScore(t *testing.T) {
	e := New()
	withPhrase := e.Score("q", "I am not sure about this at all, it is truly hard to say")
	without := e.Score("q", "this is a confident statement about the topic at hand today")
	assert.Less(t, withPhrase, without)
}

func TestValidJSONBonus(t *testing.T) {
	e := New()
	score := e.Score("q", `{"a": 1}`)
	assert.Greater(t, score, baseline)
}

func TestInvalidJSONLikePenalized(t *testing.T) {
	e := New()
	score := e.Score(strings.Repeat("q", 60), `{not valid json`)
	assert.Less(t, score, baseline)
}

func TestRefusalPhrasesPenalized(t *testing.T) {
	e := New()
	score := e.Score("q", "I can't help with that request.")
	assert.Less(t, score, baseline)
}

func TestScoreClampedToUnitInterval(t *testing.T) {
	e := New()
	content := "I can't help. as an ai, I'm an ai and not sure, don't know, cannot determine, unclear"
	score := e.Score(strings.Repeat("q", 200), content)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}

func TestEscalationThresholdDefaults(t *testing.T) {
	assert.Equal(t, 0.1, EscalationThreshold(llmtypes.ComplexityTrivial))
	assert.Equal(t, 0.2, EscalationThreshold(llmtypes.ComplexitySimple))
	assert.Equal(t, 0.4, EscalationThreshold(llmtypes.ComplexityStandard))
	assert.Equal(t, 0.55, EscalationThreshold(llmtypes.ComplexityComplex))
	assert.Equal(t, 0.7, EscalationThreshold(llmtypes.ComplexityCritical))
}

func TestShouldEscalate(t *testing.T) {
	assert.True(t, ShouldEscalate(0.05, llmtypes.ComplexityTrivial))
	assert.True(t, ShouldEscalate(0.39, llmtypes.ComplexityStandard))
	assert.False(t, ShouldEscalate(0.41, llmtypes.ComplexityStandard))
}
