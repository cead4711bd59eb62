package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"muninn/internal/store"
)

func TestInitIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// NewLocalStore already ran Init; a second call must be a no-op, not
	// an error or a duplicate-schema failure.
	require.NoError(t, s.Init(ctx))
	require.NoError(t, s.Init(ctx))
}

func TestRunGetAllRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res, err := s.Run(ctx, "INSERT INTO projects (path, name, status, mode) VALUES (?, ?, 'active', 'default')", "/tmp/p1", "p1")
	require.NoError(t, err)
	assert.Greater(t, res.LastInsertID, int64(0))
	assert.Equal(t, int64(1), res.Changes)

	row, err := s.Get(ctx, "SELECT id, name FROM projects WHERE path = ?", "/tmp/p1")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "p1", row["name"])

	missing, err := s.Get(ctx, "SELECT id FROM projects WHERE path = ?", "/tmp/nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	rows, err := s.All(ctx, "SELECT id FROM projects")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestBatchIsAllOrNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Batch(ctx, []store.BatchStatement{
		{SQL: "INSERT INTO projects (path, name, status, mode) VALUES (?, ?, 'active', 'default')", Args: []interface{}{"/tmp/a", "a"}},
		{SQL: "INSERT INTO no_such_table (x) VALUES (1)"},
	})
	require.Error(t, err)

	rows, err := s.All(ctx, "SELECT id FROM projects")
	require.NoError(t, err)
	assert.Empty(t, rows, "failed batch must roll back every statement")
}

func TestIsHealthyTracksLastCall(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.All(ctx, "SELECT id FROM projects")
	require.NoError(t, err)
	assert.True(t, s.IsHealthy())

	_, err = s.All(ctx, "SELECT * FROM definitely_missing")
	require.Error(t, err)
	assert.False(t, s.IsHealthy())

	_, err = s.All(ctx, "SELECT id FROM projects")
	require.NoError(t, err)
	assert.True(t, s.IsHealthy())
}

func TestGetStatsCountsPrimaryTables(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Run(ctx, "INSERT INTO projects (path, name, status, mode) VALUES ('/tmp/x', 'x', 'active', 'default')")
	require.NoError(t, err)

	stats, err := s.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats["projects"])
	assert.Equal(t, int64(0), stats["files"])
}

func TestEmbeddingCodecRoundTrip(t *testing.T) {
	vec := []float32{0.25, -1.5, 3.0, 0}
	decoded := store.DecodeEmbedding(store.EncodeEmbedding(vec))
	assert.Equal(t, vec, decoded)
}
