// Package evaluator implements the heuristic response-quality scorer from
// spec §4.7. It is deliberately not a semantic classifier: every signal is a
// fixed pattern match or length comparison.
package evaluator

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/aiorch/core/internal/llmtypes"
)

var uncertaintyPhrases = []string{
	"not sure", "don't know", "cannot determine", "unclear", "i'm unsure", "hard to say",
}

var refusalPhrases = []string{
	"i can't help", "as an ai", "i'm an ai",
}

var assertiveMarkerRe = regexp.MustCompile(`(?i)(here is|the answer is|^\s*\d+\.\s|step \d+)`)

var codeFenceRe = regexp.MustCompile("```")

const (
	baseline = 0.5

	shortContentPenalty   = -0.3
	proportionateBonus    = 0.15
	uncertaintyPenalty    = -0.10
	validJSONBonus        = 0.15
	invalidJSONPenalty    = -0.15
	codeBlockBonus        = 0.10
	refusalPenalty        = -0.30
	assertiveMarkerBonus  = 0.05
	shortContentThreshold = 20
	queryLengthThreshold  = 100
	proportionateFraction = 0.3
)

// defaultEscalationThreshold is the §4.7 table.
var defaultEscalationThreshold = map[llmtypes.Complexity]float64{
	llmtypes.ComplexityTrivial:  0.1,
	llmtypes.ComplexitySimple:   0.2,
	llmtypes.ComplexityStandard: 0.4,
	llmtypes.ComplexityComplex:  0.55,
	llmtypes.ComplexityCritical: 0.7,
}

// Evaluator scores completion quality.
type Evaluator struct{}

// New builds an Evaluator. It is stateless.
func New() *Evaluator { return &Evaluator{} }

// Score computes the [0,1] heuristic quality score for content produced in
// response to query.
func (e *Evaluator) Score(query, content string) float64 {
	score := baseline
	lower := strings.ToLower(content)

	if len(content) < shortContentThreshold && len(query) > queryLengthThreshold {
		score += shortContentPenalty
	}
	if float64(len(content)) >= proportionateFraction*float64(len(query)) {
		score += proportionateBonus
	}

	for _, phrase := range uncertaintyPhrases {
		if strings.Contains(lower, phrase) {
			score += uncertaintyPenalty
		}
	}

	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		if json.Valid([]byte(trimmed)) {
			score += validJSONBonus
		} else {
			score += invalidJSONPenalty
		}
	}

	if codeFenceRe.MatchString(content) {
		score += codeBlockBonus
	}

	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			score += refusalPenalty
		}
	}

	for range assertiveMarkerRe.FindAllString(content, -1) {
		score += assertiveMarkerBonus
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

// EscalationThreshold returns the quality floor below which a response at
// the given complexity should be escalated to a higher tier.
func EscalationThreshold(complexity llmtypes.Complexity) float64 {
	if t, ok := defaultEscalationThreshold[complexity]; ok {
		return t
	}
	return defaultEscalationThreshold[llmtypes.ComplexityStandard]
}

// ShouldEscalate reports whether qualityScore falls below the complexity's
// threshold. Callers are responsible for also checking that a higher tier
// exists and is available before acting on a true result.
func ShouldEscalate(qualityScore float64, complexity llmtypes.Complexity) bool {
	return qualityScore < EscalationThreshold(complexity)
}
