package queue_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"muninn/internal/queue"
	"muninn/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestStore(t *testing.T) *store.LocalStore {
	t.Helper()
	dir, err := os.MkdirTemp("", "muninn-queue-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	s, err := store.NewLocalStore(store.DefaultDriverName, filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func jobStatus(t *testing.T, s store.Store, jobType string) (status string, attempts int64, errMsg string) {
	t.Helper()
	row, err := s.Get(context.Background(),
		"SELECT status, attempts, error_message FROM work_queue WHERE job_type = ? ORDER BY id DESC", jobType)
	require.NoError(t, err)
	require.NotNil(t, row)
	status, _ = row["status"].(string)
	if n, ok := row["attempts"].(int64); ok {
		attempts = n
	}
	if m, ok := row["error_message"].(string); ok {
		errMsg = m
	}
	return status, attempts, errMsg
}

func TestDispatcherCompletesJob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var got map[string]interface{}
	d := queue.NewDispatcher(s)
	d.Register("echo", func(ctx context.Context, s store.Store, payload map[string]interface{}) error {
		got = payload
		return nil
	})

	require.NoError(t, queue.Enqueue(ctx, s, "echo", map[string]interface{}{"k": "v"}, 0))

	n, err := d.RunOnce(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "v", got["k"])
	corr, _ := got["correlation_id"].(string)
	assert.NotEmpty(t, corr, "enqueue stamps every payload with a correlation id")

	status, attempts, _ := jobStatus(t, s, "echo")
	assert.Equal(t, "completed", status)
	assert.Equal(t, int64(1), attempts)
}

func TestDispatcherRetriesThenFailsAtAttemptCap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	calls := 0
	d := queue.NewDispatcher(s)
	d.Register("flaky", func(ctx context.Context, s store.Store, payload map[string]interface{}) error {
		calls++
		return errors.New("boom")
	})

	require.NoError(t, queue.Enqueue(ctx, s, "flaky", nil, 2))

	_, err := d.RunOnce(ctx, "")
	require.NoError(t, err)
	status, attempts, _ := jobStatus(t, s, "flaky")
	assert.Equal(t, "pending", status, "first failure requeues")
	assert.Equal(t, int64(1), attempts)

	_, err = d.RunOnce(ctx, "")
	require.NoError(t, err)
	status, attempts, errMsg := jobStatus(t, s, "flaky")
	assert.Equal(t, "failed", status, "attempt cap reached")
	assert.Equal(t, int64(2), attempts)
	assert.Equal(t, 2, calls)
	assert.Contains(t, errMsg, "boom")
}

func TestDispatcherFailsUnknownJobTypeImmediately(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := queue.NewDispatcher(s)
	require.NoError(t, queue.Enqueue(ctx, s, "no_such_type", nil, 3))

	_, err := d.RunOnce(ctx, "")
	require.NoError(t, err)

	status, _, errMsg := jobStatus(t, s, "no_such_type")
	assert.Equal(t, "failed", status)
	assert.Contains(t, errMsg, "unknown job type")
}

func TestDispatcherJobTypeFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := queue.NewDispatcher(s)
	ran := map[string]bool{}
	for _, jt := range []string{"a", "b"} {
		jobType := jt
		d.Register(jobType, func(ctx context.Context, s store.Store, payload map[string]interface{}) error {
			ran[jobType] = true
			return nil
		})
		require.NoError(t, queue.Enqueue(ctx, s, jobType, nil, 0))
	}

	n, err := d.RunOnce(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, ran["a"])
	assert.False(t, ran["b"])

	status, _, _ := jobStatus(t, s, "b")
	assert.Equal(t, "pending", status)
}

func TestDispatcherFailureNeverBlocksQueueProgress(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := queue.NewDispatcher(s)
	d.Register("bad", func(ctx context.Context, s store.Store, payload map[string]interface{}) error {
		return errors.New("always fails")
	})
	good := 0
	d.Register("good", func(ctx context.Context, s store.Store, payload map[string]interface{}) error {
		good++
		return nil
	})

	require.NoError(t, queue.Enqueue(ctx, s, "bad", nil, 1))
	require.NoError(t, queue.Enqueue(ctx, s, "good", nil, 0))

	n, err := d.RunOnce(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, good)

	status, _, _ := jobStatus(t, s, "bad")
	assert.Equal(t, "failed", status)
	status, _, _ = jobStatus(t, s, "good")
	assert.Equal(t, "completed", status)
}
