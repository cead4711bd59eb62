package store_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"muninn/internal/store"
)

// fakeRemote records every envelope the RemoteStore posts and replies
// with a canned response per op.
type fakeRemote struct {
	mu       sync.Mutex
	requests []map[string]interface{}
	rows     []map[string]interface{}
}

func (f *fakeRemote) handler(w http.ResponseWriter, r *http.Request) {
	var req map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&req)
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	resp := map[string]interface{}{"last_insert_id": 7, "changes": 1}
	if req["op"] == "get" || req["op"] == "all" {
		resp["rows"] = f.rows
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *fakeRemote) seen() []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]interface{}, len(f.requests))
	copy(out, f.requests)
	return out
}

func TestRemoteStoreGetReturnsFirstRow(t *testing.T) {
	fake := &fakeRemote{rows: []map[string]interface{}{{"id": float64(1), "name": "a"}, {"id": float64(2)}}}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	defer srv.Close()

	rs, err := store.NewRemoteStore(srv.URL, "")
	require.NoError(t, err)

	row, err := rs.Get(context.Background(), "SELECT * FROM projects WHERE id = ?", 1)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "a", row["name"])
	assert.True(t, rs.IsHealthy())
}

func TestRemoteStoreGetNoRows(t *testing.T) {
	fake := &fakeRemote{}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	defer srv.Close()

	rs, err := store.NewRemoteStore(srv.URL, "")
	require.NoError(t, err)

	row, err := rs.Get(context.Background(), "SELECT 1")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestRemoteStoreRunReportsResult(t *testing.T) {
	fake := &fakeRemote{}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	defer srv.Close()

	rs, err := store.NewRemoteStore(srv.URL, "")
	require.NoError(t, err)

	res, err := rs.Run(context.Background(), "INSERT INTO t VALUES (?)", "x")
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.LastInsertID)
	assert.Equal(t, int64(1), res.Changes)
}

func TestRemoteStoreExecSkipsPragmas(t *testing.T) {
	fake := &fakeRemote{}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	defer srv.Close()

	rs, err := store.NewRemoteStore(srv.URL, "")
	require.NoError(t, err)

	ddl := "PRAGMA journal_mode = WAL;\nCREATE TABLE a (id INTEGER);\nPRAGMA foreign_keys = ON;\nCREATE TABLE b (id INTEGER);"
	require.NoError(t, rs.Exec(context.Background(), ddl))

	sent := fake.seen()
	require.Len(t, sent, 2, "only the two CREATE statements should reach the remote")
	for _, req := range sent {
		sql, _ := req["sql"].(string)
		assert.NotContains(t, sql, "PRAGMA")
	}
}

func TestRemoteStoreBatchShipsOneEnvelope(t *testing.T) {
	fake := &fakeRemote{}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	defer srv.Close()

	rs, err := store.NewRemoteStore(srv.URL, "")
	require.NoError(t, err)

	err = rs.Batch(context.Background(), []store.BatchStatement{
		{SQL: "INSERT INTO t VALUES (?)", Args: []interface{}{1}},
		{SQL: "INSERT INTO t VALUES (?)", Args: []interface{}{2}},
	})
	require.NoError(t, err)

	sent := fake.seen()
	require.Len(t, sent, 1)
	assert.Equal(t, "batch", sent[0]["op"])
	stmts, ok := sent[0]["stmts"].([]interface{})
	require.True(t, ok)
	assert.Len(t, stmts, 2)
}

func TestRemoteStoreErrorMarksUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "no such table: t"})
	}))
	defer srv.Close()

	rs, err := store.NewRemoteStore(srv.URL, "")
	require.NoError(t, err)

	_, err = rs.Get(context.Background(), "SELECT * FROM t")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such table")
	assert.False(t, rs.IsHealthy())
}

func TestRemoteStoreRequiresEndpoint(t *testing.T) {
	_, err := store.NewRemoteStore("", "")
	require.Error(t, err)
}
