package server

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"muninn/internal/project"
	"muninn/internal/session"
	"muninn/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir, err := os.MkdirTemp("", "muninn-server-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	s, err := store.NewLocalStore(store.DefaultDriverName, filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	proj, err := project.GetOrCreate(context.Background(), s, dir)
	require.NoError(t, err)

	return New(s, nil, proj, session.NewManager(s, proj.ID), dir)
}

func runLine(t *testing.T, srv *Server, line string) map[string]interface{} {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, srv.Run(context.Background(), strings.NewReader(line+"\n"), &out))

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	return resp
}

func TestServeInitialize(t *testing.T) {
	srv := newTestServer(t)
	resp := runLine(t, srv, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)

	require.Nil(t, resp["error"])
	result := resp["result"].(map[string]interface{})
	info := result["serverInfo"].(map[string]interface{})
	assert.Equal(t, "muninn", info["name"])
}

func TestServeToolsList(t *testing.T) {
	srv := newTestServer(t)
	resp := runLine(t, srv, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)

	require.Nil(t, resp["error"])
	tools := resp["result"].(map[string]interface{})["tools"].([]interface{})
	names := make(map[string]bool)
	for _, raw := range tools {
		tool := raw.(map[string]interface{})
		names[tool["name"].(string)] = true
	}
	for _, want := range []string{"query", "check", "suggest", "predict", "enrich", "build_context"} {
		assert.True(t, names[want], "tool %s not advertised", want)
	}
}

func TestServeResourcesList(t *testing.T) {
	srv := newTestServer(t)
	resp := runLine(t, srv, `{"jsonrpc":"2.0","id":3,"method":"resources/list"}`)

	require.Nil(t, resp["error"])
	uris := resp["result"].(map[string]interface{})["resources"].([]interface{})
	assert.Contains(t, uris, "context/current")
	assert.Contains(t, uris, "briefing")
}

func TestServeUnknownMethod(t *testing.T) {
	srv := newTestServer(t)
	resp := runLine(t, srv, `{"jsonrpc":"2.0","id":4,"method":"bogus/method"}`)

	rpcErr := resp["error"].(map[string]interface{})
	assert.Equal(t, float64(codeMethodNotFound), rpcErr["code"])
}

func TestServeMalformedLineDoesNotEndLoop(t *testing.T) {
	srv := newTestServer(t)
	var out bytes.Buffer
	input := "this is not json\n" + `{"jsonrpc":"2.0","id":5,"method":"tools/list"}` + "\n"
	require.NoError(t, srv.Run(context.Background(), strings.NewReader(input), &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2, "a parse error must answer and continue, not end the loop")

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Nil(t, second["error"])
}

func TestServeToolCallRequiresName(t *testing.T) {
	srv := newTestServer(t)
	resp := runLine(t, srv, `{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{}}`)

	rpcErr := resp["error"].(map[string]interface{})
	assert.Equal(t, float64(codeInvalidParams), rpcErr["code"])
}

func TestServeUnknownToolIsUserError(t *testing.T) {
	srv := newTestServer(t)
	resp := runLine(t, srv, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"nope","arguments":{}}}`)

	rpcErr := resp["error"].(map[string]interface{})
	assert.Equal(t, float64(codeInvalidParams), rpcErr["code"])
	assert.Contains(t, rpcErr["message"], "unknown tool")
}

func TestSystemicWindowTripsOnlyPastThreshold(t *testing.T) {
	srv := newTestServer(t)
	for i := 0; i < systemicThreshold; i++ {
		srv.recordSystemic()
	}
	select {
	case <-srv.Systemic:
		t.Fatal("threshold must not trip at exactly the limit")
	default:
	}

	srv.recordSystemic()
	select {
	case <-srv.Systemic:
	default:
		t.Fatal("threshold must trip past the limit")
	}
}
