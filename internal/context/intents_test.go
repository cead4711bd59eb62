package context

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"muninn/internal/store"
)

func newIntentStore(t *testing.T) (store.Store, int64) {
	t.Helper()
	dir, err := os.MkdirTemp("", "muninn-intents-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	s, err := store.NewLocalStore(store.DefaultDriverName, filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	res, err := s.Run(context.Background(),
		"INSERT INTO projects (path, name, status, mode) VALUES (?, ?, 'active', 'default')", dir, "p")
	require.NoError(t, err)
	return s, res.LastInsertID
}

func TestDeclareIntentMintsToken(t *testing.T) {
	s, projectID := newIntentStore(t)
	ctx := context.Background()

	mine, conflicts, err := DeclareIntent(ctx, s, projectID, "agent-a", []string{"src/a.ts"}, "edit", "refactor")
	require.NoError(t, err)
	assert.NotEmpty(t, mine.Token)
	assert.Empty(t, conflicts)

	active, err := QueryIntents(ctx, s, projectID, "agent-a")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, mine.Token, active[0].Token)
}

func TestDeclareIntentReportsFileOverlapConflicts(t *testing.T) {
	s, projectID := newIntentStore(t)
	ctx := context.Background()

	_, _, err := DeclareIntent(ctx, s, projectID, "agent-a", []string{"src/a.ts", "src/b.ts"}, "edit", "first")
	require.NoError(t, err)

	_, conflicts, err := DeclareIntent(ctx, s, projectID, "agent-b", []string{"src/b.ts"}, "edit", "second")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "agent-a", conflicts[0].Agent)

	// Same agent re-declaring never conflicts with itself.
	_, conflicts, err = DeclareIntent(ctx, s, projectID, "agent-a", []string{"src/a.ts"}, "edit", "again")
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestReleaseIntentByToken(t *testing.T) {
	s, projectID := newIntentStore(t)
	ctx := context.Background()

	mine, _, err := DeclareIntent(ctx, s, projectID, "agent-a", []string{"src/a.ts"}, "edit", "work")
	require.NoError(t, err)

	require.NoError(t, ReleaseIntent(ctx, s, mine.Token))

	active, err := QueryIntents(ctx, s, projectID, "")
	require.NoError(t, err)
	assert.Empty(t, active)

	// Releasing twice, or with a token nobody holds, is reported.
	assert.Error(t, ReleaseIntent(ctx, s, mine.Token))
	assert.Error(t, ReleaseIntent(ctx, s, "not-a-token"))
	assert.Error(t, ReleaseIntent(ctx, s, ""))
}
