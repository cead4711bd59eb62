// Package store implements Muninn's embedded relational+FTS+vector store
// schema init and migration, and an adapter abstraction over local
// (in-process SQLite) and remote (HTTP-framed) backends sharing the Store
// contract.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"muninn/internal/logging"
)

// defaultRequireVec is read once from MUNINN_REQUIRE_VEC and copied into
// every LocalStore; the config file's require_vec setting is not passed
// to the store.
var defaultRequireVec = os.Getenv("MUNINN_REQUIRE_VEC") == "1"

// LocalStore is the in-process embedded backend: lowest latency, single
// writer per project, backed by SQLite (mattn/go-sqlite3 by default, or
// modernc.org/sqlite for the cgo-free CLI tooling path).
type LocalStore struct {
	db         *sql.DB
	mu         sync.RWMutex
	dbPath     string
	driverName string
	vectorExt  bool
	requireVec bool
	lastErr    error
}

// NewLocalStore opens (creating if needed) the SQLite database at path
// using driverName ("sqlite3" for cgo, "sqlite" for modernc's pure-Go
// driver), applies pragmas, and runs schema init + migrations.
func NewLocalStore(driverName, path string) (*LocalStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewLocalStore")
	defer timer.Stop()

	logging.Store("opening store at %s (driver=%s)", path, driverName)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.StoreDebug("pragma failed (%s): %v", pragma, err)
		}
	}

	s := &LocalStore{db: db, dbPath: path, driverName: driverName, requireVec: defaultRequireVec}

	ctx := context.Background()
	if err := s.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s.detectVecExtension()
	if s.requireVec && !s.vectorExt {
		db.Close()
		return nil, fmt.Errorf("vec0 extension not available and MUNINN_REQUIRE_VEC=1")
	}
	if s.vectorExt {
		logging.Store("vec0 extension detected, ANN search enabled")
	} else {
		logging.StoreWarn("vec0 extension not available; falling back to FTS5-only ranking")
	}

	if backupPath, err := runStoreMigrations(db, s.dbPath); err != nil {
		logging.StoreWarn("migration step reported an issue: %v", err)
		_ = backupPath
	}

	return s, nil
}

// Init creates the schema exactly once per process: checkSchemaExists
// probes the sentinel table; if absent, the DDL bundle runs in full.
func (s *LocalStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.checkSchemaExists() {
		logging.StoreDebug("schema already present, skipping init")
		return nil
	}

	for _, stmt := range splitStatements(schemaDDL) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema init statement failed: %w\n%s", err, stmt)
		}
	}

	if _, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO schema_sentinel(id) VALUES (1)"); err != nil {
		return fmt.Errorf("mark schema initialized: %w", err)
	}
	logging.Store("schema initialized")
	return nil
}

func (s *LocalStore) checkSchemaExists() bool {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_sentinel'").Scan(&count)
	return err == nil && count > 0
}

// detectVecExtension attempts to create a vec0 virtual table to see whether
// sqlite-vec (cgo) or the pure-Go compat shim is available.
func (s *LocalStore) detectVecExtension() {
	if s.db == nil {
		return
	}
	if _, err := s.db.Exec("CREATE VIRTUAL TABLE IF NOT EXISTS vec_probe USING vec0(embedding float[4])"); err == nil {
		s.vectorExt = true
		_, _ = s.db.Exec("DROP TABLE IF EXISTS vec_probe")
		return
	}
	s.vectorExt = false
}

// HasVectorSearch reports whether vec0 (or its compat shim) is available.
func (s *LocalStore) HasVectorSearch() bool {
	return s.vectorExt
}

// Get runs a query expected to return at most one row.
func (s *LocalStore) Get(ctx context.Context, query string, args ...interface{}) (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.lastErr = err
		return nil, fmt.Errorf("get: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		s.lastErr = rows.Err()
		return nil, s.lastErr
	}
	row, err := scanRow(rows)
	s.lastErr = err
	return row, err
}

// All runs a query and returns every row.
func (s *LocalStore) All(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.lastErr = err
		return nil, fmt.Errorf("all: %w", err)
	}
	defer rows.Close()

	var out []map[string]interface{}
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			s.lastErr = err
			return nil, err
		}
		out = append(out, row)
	}
	s.lastErr = rows.Err()
	return out, s.lastErr
}

// Run executes a single mutating statement.
func (s *LocalStore) Run(ctx context.Context, query string, args ...interface{}) (RunResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		s.lastErr = err
		return RunResult{}, fmt.Errorf("run: %w", err)
	}
	id, _ := res.LastInsertId()
	changes, _ := res.RowsAffected()
	s.lastErr = nil
	return RunResult{LastInsertID: id, Changes: changes}, nil
}

// Exec runs arbitrary DDL, splitting multi-statement blobs first.
func (s *LocalStore) Exec(ctx context.Context, ddl string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stmt := range splitStatements(ddl) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			s.lastErr = err
			return fmt.Errorf("exec: %w", err)
		}
	}
	s.lastErr = nil
	return nil
}

// Batch runs every statement inside one all-or-nothing transaction.
func (s *LocalStore) Batch(ctx context.Context, stmts []BatchStatement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("batch begin: %w", err)
	}
	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, st.SQL, st.Args...); err != nil {
			tx.Rollback()
			s.lastErr = err
			return fmt.Errorf("batch statement failed: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		s.lastErr = err
		return fmt.Errorf("batch commit: %w", err)
	}
	s.lastErr = nil
	return nil
}

// Close closes the underlying database connection.
func (s *LocalStore) Close() error {
	logging.Store("closing store")
	return s.db.Close()
}

// IsHealthy reports whether the last call against this store succeeded.
func (s *LocalStore) IsHealthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr == nil
}

// DB exposes the underlying *sql.DB for callers that need driver-specific
// access.
func (s *LocalStore) DB() *sql.DB {
	return s.db
}

// GetStats returns row counts for the primary knowledge tables. A table
// that cannot be counted is logged and left out of the map.
func (s *LocalStore) GetStats() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int64)
	tables := []string{
		"projects", "files", "symbols", "call_edges", "decisions", "issues",
		"learnings", "sessions", "tool_calls", "git_commits", "error_events",
		"error_fix_pairs", "work_queue", "relationships", "risk_alerts",
	}
	for _, table := range tables {
		var count int64
		if err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
			logging.StoreDebug("stats: table %s unavailable: %v", table, err)
			continue
		}
		stats[table] = count
	}
	return stats, nil
}

func scanRow(rows *sql.Rows) (map[string]interface{}, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	vals := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	row := make(map[string]interface{}, len(cols))
	for i, col := range cols {
		row[col] = vals[i]
	}
	return row, nil
}
