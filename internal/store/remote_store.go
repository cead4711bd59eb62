package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"muninn/internal/logging"
)

// RemoteStore is the HTTP-framed backend: every primitive is posted as one
// JSON envelope to a remote endpoint that executes it against its own
// embedded database. Latency is higher than LocalStore; the contract is
// identical. PRAGMA statements are skipped silently -- they only make
// sense against a connection we own.
type RemoteStore struct {
	endpoint string
	apiKey   string
	client   *http.Client

	mu      sync.RWMutex
	lastErr error
}

// remoteRequest is the wire envelope for a single store primitive.
type remoteRequest struct {
	Op    string              `json:"op"`
	SQL   string              `json:"sql,omitempty"`
	Args  []interface{}       `json:"args,omitempty"`
	Stmts []remoteRequestStmt `json:"stmts,omitempty"`
}

type remoteRequestStmt struct {
	SQL  string        `json:"sql"`
	Args []interface{} `json:"args,omitempty"`
}

type remoteResponse struct {
	Rows         []map[string]interface{} `json:"rows,omitempty"`
	LastInsertID int64                    `json:"last_insert_id"`
	Changes      int64                    `json:"changes"`
	Error        string                   `json:"error,omitempty"`
}

// NewRemoteStore builds the HTTP-framed backend. No connection is made
// until the first call; Init probes the endpoint and runs the schema DDL
// statement-by-statement through Exec.
func NewRemoteStore(endpoint, apiKey string) (*RemoteStore, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("remote store endpoint is required")
	}
	return &RemoteStore{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (s *RemoteStore) post(ctx context.Context, req remoteRequest) (*remoteResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal remote store request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build remote store request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("remote store request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("remote store returned status %d: %s", resp.StatusCode, string(b))
	}

	var result remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode remote store response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("remote store: %s", result.Error)
	}
	return &result, nil
}

func (s *RemoteStore) record(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// Get runs a query expected to return at most one row.
func (s *RemoteStore) Get(ctx context.Context, query string, args ...interface{}) (map[string]interface{}, error) {
	resp, err := s.post(ctx, remoteRequest{Op: "get", SQL: query, Args: args})
	s.record(err)
	if err != nil {
		return nil, err
	}
	if len(resp.Rows) == 0 {
		return nil, nil
	}
	return resp.Rows[0], nil
}

// All runs a query and returns every row.
func (s *RemoteStore) All(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	resp, err := s.post(ctx, remoteRequest{Op: "all", SQL: query, Args: args})
	s.record(err)
	if err != nil {
		return nil, err
	}
	return resp.Rows, nil
}

// Run executes a single mutating statement.
func (s *RemoteStore) Run(ctx context.Context, query string, args ...interface{}) (RunResult, error) {
	resp, err := s.post(ctx, remoteRequest{Op: "run", SQL: query, Args: args})
	s.record(err)
	if err != nil {
		return RunResult{}, err
	}
	return RunResult{LastInsertID: resp.LastInsertID, Changes: resp.Changes}, nil
}

// Exec splits a multi-statement DDL blob and executes each statement in
// order. PRAGMAs are dropped: the remote end owns its own connection
// settings.
func (s *RemoteStore) Exec(ctx context.Context, ddl string) error {
	for _, stmt := range splitStatements(ddl) {
		if isPragma(stmt) {
			logging.StoreDebug("skipping PRAGMA on remote backend: %s", stmt)
			continue
		}
		if _, err := s.post(ctx, remoteRequest{Op: "run", SQL: stmt}); err != nil {
			s.record(err)
			return fmt.Errorf("exec: %w", err)
		}
	}
	s.record(nil)
	return nil
}

// Batch ships every statement in one envelope; the remote end wraps them
// in a transaction, all-or-nothing.
func (s *RemoteStore) Batch(ctx context.Context, stmts []BatchStatement) error {
	wire := make([]remoteRequestStmt, 0, len(stmts))
	for _, st := range stmts {
		if isPragma(st.SQL) {
			continue
		}
		wire = append(wire, remoteRequestStmt{SQL: st.SQL, Args: st.Args})
	}
	if len(wire) == 0 {
		return nil
	}
	_, err := s.post(ctx, remoteRequest{Op: "batch", Stmts: wire})
	s.record(err)
	if err != nil {
		return fmt.Errorf("batch: %w", err)
	}
	return nil
}

// Init runs the schema DDL if the sentinel table is absent on the remote.
func (s *RemoteStore) Init(ctx context.Context) error {
	row, err := s.Get(ctx, "SELECT COUNT(*) AS n FROM sqlite_master WHERE type='table' AND name='schema_sentinel'")
	if err != nil {
		return fmt.Errorf("probe remote schema: %w", err)
	}
	if n, ok := asCount(row["n"]); ok && n > 0 {
		logging.StoreDebug("remote schema already present, skipping init")
		return nil
	}
	if err := s.Exec(ctx, schemaDDL); err != nil {
		return err
	}
	_, err = s.Run(ctx, "INSERT OR IGNORE INTO schema_sentinel(id) VALUES (1)")
	if err != nil {
		return fmt.Errorf("mark remote schema initialized: %w", err)
	}
	logging.Store("remote schema initialized")
	return nil
}

// Close is a no-op; the HTTP client holds no persistent connection state
// worth flushing.
func (s *RemoteStore) Close() error { return nil }

// IsHealthy reports whether the last call against this store succeeded.
func (s *RemoteStore) IsHealthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr == nil
}

func isPragma(stmt string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(stmt)), "PRAGMA")
}

func asCount(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}
