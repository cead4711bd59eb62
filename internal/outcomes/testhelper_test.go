package outcomes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"muninn/internal/store"
)

// newTestStore opens a throwaway local store for outcomes tests
// (same shape as internal/store/testhelper_test.go).
func newTestStore(t *testing.T) *store.LocalStore {
	t.Helper()
	dir, err := os.MkdirTemp("", "muninn-outcomes-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	s, err := store.NewLocalStore(store.DefaultDriverName, filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func insertProject(t *testing.T, s store.Store, path string) int64 {
	t.Helper()
	ctx := context.Background()
	res, err := s.Run(ctx, `INSERT INTO projects (path, name, status, mode) VALUES (?, ?, 'active', 'default')`, path, path)
	require.NoError(t, err)
	return res.LastInsertID
}

// distinctProjectID inserts n throwaway filler projects before the real
// one so its id is offset far enough from 1 that it can't collide, within
// the test binary's lifetime, with another test's project id in the
// process-global workflow prediction cache (workflow.go's workflowCache is
// keyed only by project id, not by store instance).
func distinctProjectID(t *testing.T, s store.Store, path string, n int) int64 {
	t.Helper()
	for i := 0; i < n; i++ {
		insertProject(t, s, fmt.Sprintf("%s-filler-%d", path, i))
	}
	return insertProject(t, s, path)
}

func insertToolCall(t *testing.T, s store.Store, projectID int64, tool string, at time.Time) {
	t.Helper()
	_, err := s.Run(context.Background(),
		`INSERT INTO tool_calls (project_id, tool_name, success, created_at) VALUES (?, ?, 1, ?)`,
		projectID, tool, at.UTC())
	require.NoError(t, err)
}
