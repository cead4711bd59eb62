package context

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mem(id int64, memType, content string, score float64) Memory {
	return Memory{ID: id, Type: memType, Content: content, Score: score}
}

func TestPackCandidatesRespectsBudget(t *testing.T) {
	// 100 chars -> 25 tokens each; budget 300 with XML overhead 100 leaves
	// room for exactly 8.
	content := strings.Repeat("x", 100)
	var sorted []Memory
	for i := int64(1); i <= 20; i++ {
		sorted = append(sorted, mem(i, "learning", content, 1))
	}

	packed, tokens := packCandidates(sorted, 300, FormatXML)
	assert.Len(t, packed, 8)
	assert.Equal(t, 200, tokens)
	assert.LessOrEqual(t, tokens, 300-formatOverhead(FormatXML))
}

func TestPackCandidatesFormatOverhead(t *testing.T) {
	assert.Equal(t, 100, formatOverhead(FormatXML))
	assert.Equal(t, 50, formatOverhead(FormatMarkdown))
	assert.Equal(t, 50, formatOverhead(FormatNative))
	assert.Equal(t, 50, formatOverhead(FormatJSON))
}

func TestPackCandidatesBudgetSmallerThanOverhead(t *testing.T) {
	packed, tokens := packCandidates([]Memory{mem(1, "file", "abc", 1)}, 80, FormatXML)
	assert.Nil(t, packed)
	assert.Zero(t, tokens)
}

func TestPackCandidatesSkipsTooLargeKeepsSmaller(t *testing.T) {
	big := mem(1, "decision", strings.Repeat("x", 2000), 0.9)  // 500 tokens
	small := mem(2, "learning", strings.Repeat("y", 100), 0.5) // 25 tokens

	packed, tokens := packCandidates([]Memory{big, small}, 150, FormatMarkdown)
	require.Len(t, packed, 1)
	assert.Equal(t, int64(2), packed[0].ID, "oversized head is skipped, not terminal")
	assert.Equal(t, 25, tokens)
}

func TestEstimateTokensCeilDivision(t *testing.T) {
	assert.Equal(t, 1, estimateTokens(Memory{Content: "abc"}))
	assert.Equal(t, 1, estimateTokens(Memory{Content: "abcd"}))
	assert.Equal(t, 2, estimateTokens(Memory{Content: "abcde"}))
	assert.Equal(t, 0, estimateTokens(Memory{}))
}
