package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"muninn/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestStore(t *testing.T) *store.LocalStore {
	t.Helper()
	dir, err := os.MkdirTemp("", "muninn-session-test")
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

func TestEnsureStartedOpensExactlyOneSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	projectID := insertProject(t, s, "/tmp/sess-one")

	m := NewManager(s, projectID)
	id1, err := m.EnsureStarted(ctx)
	require.NoError(t, err)
	assert.Greater(t, id1, int64(0))

	id2, err := m.EnsureStarted(ctx)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	rows, err := s.All(ctx, "SELECT id FROM sessions WHERE project_id = ? AND ended_at IS NULL", projectID)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "at most one unended session per project")
}

func TestEnsureStartedAdoptsExistingOpenSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	projectID := insertProject(t, s, "/tmp/sess-adopt")

	res, err := s.Run(ctx,
		"INSERT INTO sessions (project_id, session_number, goal) VALUES (?, 1, 'manual')", projectID)
	require.NoError(t, err)

	m := NewManager(s, projectID)
	id, err := m.EnsureStarted(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.LastInsertID, id, "a fresh manager adopts the open session instead of opening a second")
}

func TestEndClosesSessionAndEnqueuesCascade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	projectID := insertProject(t, s, "/tmp/sess-end")

	m := NewManager(s, projectID)
	id, err := m.EnsureStarted(ctx)
	require.NoError(t, err)

	_, err = s.Run(ctx,
		"INSERT INTO tool_calls (project_id, session_id, tool_name, success) VALUES (?, ?, 'Edit', 1)", projectID, id)
	require.NoError(t, err)

	require.NoError(t, m.End(ctx))

	row, err := s.Get(ctx, "SELECT ended_at, next_steps FROM sessions WHERE id = ?", id)
	require.NoError(t, err)
	assert.NotNil(t, row["ended_at"])
	nextSteps, _ := row["next_steps"].(string)
	assert.Contains(t, nextSteps, "Edit x1")

	jobs, err := s.All(ctx, "SELECT job_type FROM work_queue WHERE status = 'pending'")
	require.NoError(t, err)
	types := make(map[string]bool)
	for _, j := range jobs {
		jt, _ := j["job_type"].(string)
		types[jt] = true
	}
	for _, want := range []string{
		"process_session_errors", "detect_patterns", "track_decision_outcomes",
		"calibrate_confidence", "process_context_feedback", "reinforce_learnings",
		"compute_risk_alerts",
	} {
		assert.True(t, types[want], "missing end-of-session job %s", want)
	}
}

func TestEndIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	projectID := insertProject(t, s, "/tmp/sess-idem")

	m := NewManager(s, projectID)
	_, err := m.EnsureStarted(ctx)
	require.NoError(t, err)

	require.NoError(t, m.End(ctx))
	firstCount := countJobs(t, s)

	require.NoError(t, m.End(ctx))
	assert.Equal(t, firstCount, countJobs(t, s), "second End must not re-enqueue the cascade")
}

func TestEndWithoutStartIsNoOp(t *testing.T) {
	s := newTestStore(t)
	projectID := insertProject(t, s, "/tmp/sess-noop")

	m := NewManager(s, projectID)
	require.NoError(t, m.End(context.Background()))
	assert.Equal(t, 0, countJobs(t, s))
}

func countJobs(t *testing.T, s store.Store) int {
	t.Helper()
	rows, err := s.All(context.Background(), "SELECT id FROM work_queue")
	require.NoError(t, err)
	return len(rows)
}

func TestSummarizeToolCallsTopTen(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	projectID := insertProject(t, s, "/tmp/sess-summary")

	res, err := s.Run(ctx,
		"INSERT INTO sessions (project_id, session_number, goal) VALUES (?, 1, 'x')", projectID)
	require.NoError(t, err)
	sessionID := res.LastInsertID

	for i := 0; i < 3; i++ {
		_, err := s.Run(ctx,
			"INSERT INTO tool_calls (project_id, session_id, tool_name, success) VALUES (?, ?, 'Read', 1)", projectID, sessionID)
		require.NoError(t, err)
	}
	_, err = s.Run(ctx,
		"INSERT INTO tool_calls (project_id, session_id, tool_name, success) VALUES (?, ?, 'Bash', 1)", projectID, sessionID)
	require.NoError(t, err)

	summary, err := summarizeToolCalls(ctx, s, sessionID)
	require.NoError(t, err)
	assert.Equal(t, "Read x3, Bash x1", summary)
}

func TestInferOutcomeCommitsWithoutErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	projectID := insertProject(t, s, "/tmp/sess-infer")

	res, err := s.Run(ctx,
		"INSERT INTO sessions (project_id, session_number, goal, started_at) VALUES (?, 1, 'x', ?)",
		projectID, time.Now().UTC().Add(-30*time.Minute))
	require.NoError(t, err)
	sessionID := res.LastInsertID

	_, err = s.Run(ctx,
		`INSERT INTO git_commits (project_id, commit_hash, author, message, files_changed, insertions, deletions, session_id, analyzed)
		 VALUES (?, 'abc123', 'dev', 'feat: thing', '[]', 5, 1, ?, 0)`, projectID, sessionID)
	require.NoError(t, err)

	outcome, success := InferOutcome(ctx, s, projectID, sessionID)
	assert.Equal(t, 2, success)
	assert.Contains(t, outcome, "1 commit(s)")
}

func TestInferOutcomeHighErrorRate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	projectID := insertProject(t, s, "/tmp/sess-errors")

	res, err := s.Run(ctx,
		"INSERT INTO sessions (project_id, session_number, goal, started_at) VALUES (?, 1, 'x', ?)",
		projectID, time.Now().UTC().Add(-30*time.Minute))
	require.NoError(t, err)
	sessionID := res.LastInsertID

	for i := 0; i < 4; i++ {
		_, err := s.Run(ctx,
			"INSERT INTO tool_calls (project_id, session_id, tool_name, success) VALUES (?, ?, 'Bash', 0)", projectID, sessionID)
		require.NoError(t, err)
	}
	for i := 0; i < 2; i++ {
		_, err := s.Run(ctx,
			`INSERT INTO error_events (project_id, session_id, error_type, error_message, error_signature)
			 VALUES (?, ?, 'build_error', 'boom', 'boom')`, projectID, sessionID)
		require.NoError(t, err)
	}

	_, success := InferOutcome(ctx, s, projectID, sessionID)
	assert.Equal(t, 0, success)
}
