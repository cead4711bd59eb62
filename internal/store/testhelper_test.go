package store_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"muninn/internal/store"
)

// newTestStore opens a throwaway local store under a temp directory using
// the process's default driver via an
// os.MkdirTemp-plus-NewLocalStore integration test shape.
func newTestStore(t *testing.T) *store.LocalStore {
	t.Helper()
	dir, err := os.MkdirTemp("", "muninn-store-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	s, err := store.NewLocalStore(store.DefaultDriverName, filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}
