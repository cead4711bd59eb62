package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarityIdentical(t *testing.T) {
	v := []float32{1, 2, 3}
	sim, err := CosineSimilarity(v, v)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-9)
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	sim, err := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, sim, 1e-9)
}

func TestCosineSimilarityDimensionMismatch(t *testing.T) {
	_, err := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3})
	assert.Error(t, err)
}

func TestCosineSimilarityZeroVector(t *testing.T) {
	sim, err := CosineSimilarity([]float32{0, 0}, []float32{1, 1})
	require.NoError(t, err)
	assert.Equal(t, 0.0, sim)
}

func TestFindTopK(t *testing.T) {
	query := []float32{1, 0}
	corpus := [][]float32{
		{1, 0},
		{0, 1},
		{0.9, 0.1},
		{-1, 0},
	}
	results, err := FindTopK(query, corpus, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].Index)
	assert.Equal(t, 2, results[1].Index)
}

func TestFindTopKSkipsMismatchedDimensions(t *testing.T) {
	query := []float32{1, 0, 0}
	corpus := [][]float32{
		{1, 0, 0},
		{1, 0}, // mismatched, must be skipped not fail the whole search
	}
	results, err := FindTopK(query, corpus, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].Index)
}

func TestTruncateNoOpUnderLimit(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 512))
}

func TestTruncateCapsAtMax(t *testing.T) {
	long := make([]rune, 600)
	for i := range long {
		long[i] = 'a'
	}
	out := truncate(string(long), maxLocalChars)
	assert.Len(t, []rune(out), maxLocalChars)
}
