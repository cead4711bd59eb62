package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"muninn/internal/project"
	"muninn/internal/store"
)

func newTestStore(t *testing.T) *store.LocalStore {
	t.Helper()
	dir, err := os.MkdirTemp("", "muninn-ingestion-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	s, err := store.NewLocalStore(store.DefaultDriverName, filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func insertProject(t *testing.T, s store.Store, path string) int64 {
	t.Helper()
	res, err := s.Run(context.Background(),
		"INSERT INTO projects (path, name, status, mode) VALUES (?, ?, 'active', 'default')", path, path)
	require.NoError(t, err)
	return res.LastInsertID
}

func fileRow(t *testing.T, s store.Store, projectID int64, path string) map[string]interface{} {
	t.Helper()
	row, err := s.Get(context.Background(),
		"SELECT id, change_count, temperature, velocity_score, first_changed_at FROM files WHERE project_id = ? AND path = ?",
		projectID, path)
	require.NoError(t, err)
	require.NotNil(t, row)
	return row
}

func TestTouchChangedFileCreatesAndIncrements(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	projectID := insertProject(t, s, "/tmp/commits-touch")

	require.NoError(t, touchChangedFile(ctx, s, projectID, "src/a.ts"))
	row := fileRow(t, s, projectID, "src/a.ts")
	count, _ := project.AsInt64(row["change_count"])
	assert.Equal(t, int64(1), count)
	assert.Equal(t, "hot", row["temperature"])
	assert.NotNil(t, row["first_changed_at"])

	require.NoError(t, touchChangedFile(ctx, s, projectID, "src/a.ts"))
	row = fileRow(t, s, projectID, "src/a.ts")
	count, _ = project.AsInt64(row["change_count"])
	assert.Equal(t, int64(2), count)
}

func TestTouchChangedFilePreservesFirstChangedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	projectID := insertProject(t, s, "/tmp/commits-first")

	require.NoError(t, touchChangedFile(ctx, s, projectID, "src/b.ts"))
	first := project.AsString(fileRow(t, s, projectID, "src/b.ts")["first_changed_at"])

	require.NoError(t, touchChangedFile(ctx, s, projectID, "src/b.ts"))
	assert.Equal(t, first, project.AsString(fileRow(t, s, projectID, "src/b.ts")["first_changed_at"]))
}

func TestTouchChangedFileVelocityScore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	projectID := insertProject(t, s, "/tmp/commits-velocity")

	require.NoError(t, touchChangedFile(ctx, s, projectID, "src/c.ts"))
	row := fileRow(t, s, projectID, "src/c.ts")
	velocity, _ := row["velocity_score"].(float64)
	// change_count / (1 + ~0 days since first change) ~ 1.
	assert.InDelta(t, 1.0, velocity, 0.05)
}

func TestCochangePairsIncrementPerCommit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	projectID := insertProject(t, s, "/tmp/commits-cochange")

	paths := []string{"src/a.ts", "src/b.ts"}
	for _, p := range paths {
		require.NoError(t, touchChangedFile(ctx, s, projectID, p))
	}
	updateCochangePairs(ctx, s, projectID, paths)

	row, err := s.Get(ctx, "SELECT cochange_count FROM file_correlations WHERE project_id = ?", projectID)
	require.NoError(t, err)
	require.NotNil(t, row)
	n, _ := project.AsInt64(row["cochange_count"])
	assert.Equal(t, int64(1), n)

	// Second commit touching the same pair.
	for _, p := range paths {
		require.NoError(t, touchChangedFile(ctx, s, projectID, p))
	}
	updateCochangePairs(ctx, s, projectID, paths)

	row, err = s.Get(ctx, "SELECT cochange_count FROM file_correlations WHERE project_id = ?", projectID)
	require.NoError(t, err)
	n, _ = project.AsInt64(row["cochange_count"])
	assert.Equal(t, int64(2), n)

	rows, err := s.All(ctx, "SELECT file_a, file_b FROM file_correlations WHERE project_id = ?", projectID)
	require.NoError(t, err)
	require.Len(t, rows, 1, "unordered pair stored once")
	a, _ := project.AsInt64(rows[0]["file_a"])
	b, _ := project.AsInt64(rows[0]["file_b"])
	assert.Less(t, a, b)
}

func TestCochangeThreeFilesAllPairs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	projectID := insertProject(t, s, "/tmp/commits-three")

	paths := []string{"x.go", "y.go", "z.go"}
	for _, p := range paths {
		require.NoError(t, touchChangedFile(ctx, s, projectID, p))
	}
	updateCochangePairs(ctx, s, projectID, paths)

	rows, err := s.All(ctx, "SELECT file_a FROM file_correlations WHERE project_id = ?", projectID)
	require.NoError(t, err)
	assert.Len(t, rows, 3, "3 files yield 3 unordered pairs")
}

func TestEnqueueCommitJobsOrderAndCallGraphGate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	projectID := insertProject(t, s, "/tmp/commits-jobs")

	enqueueCommitJobs(ctx, s, projectID, 42, []string{"src/a.ts", "README.md"})

	rows, err := s.All(ctx, "SELECT job_type FROM work_queue ORDER BY id ASC")
	require.NoError(t, err)
	var types []string
	for _, r := range rows {
		jt, _ := r["job_type"].(string)
		types = append(types, jt)
	}
	assert.Equal(t, []string{
		"reindex_symbols", "build_call_graph", "analyze_diffs",
		"run_tests", "detect_reverts", "refresh_ownership",
	}, types)

	// A commit with no parseable source skips build_call_graph.
	_, err = s.Run(ctx, "DELETE FROM work_queue")
	require.NoError(t, err)
	enqueueCommitJobs(ctx, s, projectID, 43, []string{"docs/guide.md"})

	rows, err = s.All(ctx, "SELECT job_type FROM work_queue ORDER BY id ASC")
	require.NoError(t, err)
	types = types[:0]
	for _, r := range rows {
		jt, _ := r["job_type"].(string)
		types = append(types, jt)
	}
	assert.NotContains(t, types, "build_call_graph")
	assert.Equal(t, "reindex_symbols", types[0], "symbol reindex always precedes diff analysis")
}
