package evaluator

import (
	"testing"

	"pgregory.net/rapid"
)

// TestScoreAlwaysInUnitInterval checks the invariant every caller of Score
// depends on: whatever combination of bonuses and penalties fire, the
// result never leaves [0,1]. Generated queries and content range over
// arbitrary lengths and characters, including the signal phrases
// themselves, rather than hand-picked fixtures.
func TestScoreAlwaysInUnitInterval(t *testing.T) {
	e := New()
	rapid.Check(t, func(rt *rapid.T) {
		query := rapid.String().Draw(rt, "query")
		content := rapid.StringMatching(`[a-zA-Z0-9 ?.,{}\[\]"':` + "`" + `]{0,300}`).Draw(rt, "content")

		score := e.Score(query, content)
		if score < 0 || score > 1 {
			rt.Fatalf("Score(%q, %q) = %v, want in [0,1]", query, content, score)
		}
	})
}

// TestScoreDeterministic checks that Score is a pure function of its
// inputs: the same query and content always give the same score.
func TestScoreDeterministic(t *testing.T) {
	e := New()
	rapid.Check(t, func(rt *rapid.T) {
		query := rapid.String().Draw(rt, "query")
		content := rapid.String().Draw(rt, "content")

		first := e.Score(query, content)
		second := e.Score(query, content)
		if first != second {
			rt.Fatalf("Score not deterministic: %v != %v", first, second)
		}
	})
}
