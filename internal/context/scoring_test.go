package context

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Three memories of types {decision, decision, learning} should have
// only one decision win the diversity bonus, and equal-score ties break
// by similarity then recency then id.
func TestScoreCandidates_DiversityAndTieBreak(t *testing.T) {
	now := time.Now().UTC()
	memories := []Memory{
		{ID: 3, Type: "decision", Similarity: 0.9, RawConfidence: 0, CreatedAt: now.Format(time.RFC3339)},
		{ID: 1, Type: "decision", Similarity: 0.9, RawConfidence: 0, CreatedAt: now.Format(time.RFC3339)},
		{ID: 2, Type: "learning", Similarity: 0.9, RawConfidence: 5, CreatedAt: now.Format(time.RFC3339)},
	}

	scored := scoreCandidates(memories, StrategyBalanced, now)
	require.Len(t, scored, 3)

	// First decision seen (id=3, appears first in input) gets the
	// diversity bonus; the second decision (id=1) does not.
	var decisionScores = map[int64]float64{}
	for _, m := range scored {
		if m.Type == "decision" {
			decisionScores[m.ID] = m.Score
		}
	}
	assert.Greater(t, decisionScores[3], decisionScores[1])
}

func TestScoreCandidates_TieBreaksBySimilarityThenRecencyThenID(t *testing.T) {
	now := time.Now().UTC()
	// Both timestamps lie ahead of now, so both ages clamp to 0 and the
	// recency component is 1.0 for each; distinct types give each the
	// diversity bonus. Scores and similarity therefore tie exactly while
	// the parsed timestamps still differ.
	sooner := now.Add(24 * time.Hour)
	later := now.Add(48 * time.Hour)
	memories := []Memory{
		{ID: 4, Type: "file", Similarity: 0.5, CreatedAt: sooner.Format(time.RFC3339)},
		{ID: 5, Type: "decision", Similarity: 0.5, CreatedAt: later.Format(time.RFC3339)},
	}
	scored := scoreCandidates(memories, StrategyBalanced, now)
	require.Equal(t, scored[0].Score, scored[1].Score)
	// Equal score and similarity but id=5 is more recent -> sorts first
	// despite having the larger id, confirming recency outranks id in the
	// tie-break.
	assert.Equal(t, int64(5), scored[0].ID)
}

func TestWeightsFor_UnknownStrategyFallsBackToBalanced(t *testing.T) {
	assert.Equal(t, presetWeights[StrategyBalanced], weightsFor("not-a-real-strategy"))
}

func TestRecencyScore_DecaysWithAge(t *testing.T) {
	now := time.Now().UTC()
	fresh := recencyScore(now.Format(time.RFC3339), now)
	old := recencyScore(now.Add(-180*24*time.Hour).Format(time.RFC3339), now)
	assert.Greater(t, fresh, old)
	assert.InDelta(t, 1.0, fresh, 0.01)
}
