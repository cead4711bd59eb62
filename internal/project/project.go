// Package project resolves the Project row for a working directory,
// creating it on first reference. Projects are never hard-deleted by the
// engine; only archival (outside this package's scope) retires them.
package project

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"muninn/internal/logging"
	"muninn/internal/store"
)

// GetOrCreate returns the project row for path, inserting one if this is
// the first time the engine has seen this working directory.
func GetOrCreate(ctx context.Context, s store.Store, path string) (*store.Project, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	row, err := s.Get(ctx, "SELECT id, path, name, type, stack, status, mode FROM projects WHERE path = ?", abs)
	if err != nil {
		return nil, fmt.Errorf("lookup project: %w", err)
	}
	if row != nil {
		return rowToProject(row), nil
	}

	name := filepath.Base(abs)
	res, err := s.Run(ctx,
		`INSERT INTO projects (path, name, status, mode) VALUES (?, ?, 'active', 'default')
		 ON CONFLICT(path) DO UPDATE SET path = excluded.path`,
		abs, name)
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	id := res.LastInsertID
	if id == 0 {
		row, err = s.Get(ctx, "SELECT id, path, name, type, stack, status, mode FROM projects WHERE path = ?", abs)
		if err != nil || row == nil {
			return nil, fmt.Errorf("reload project after insert: %w", err)
		}
		return rowToProject(row), nil
	}
	logging.Ingest("project created: id=%d path=%s", id, abs)
	return &store.Project{ID: id, Path: abs, Name: name, Status: "active", Mode: "default"}, nil
}

func rowToProject(row map[string]interface{}) *store.Project {
	p := &store.Project{}
	if v, ok := row["id"].(int64); ok {
		p.ID = v
	}
	if v, ok := row["path"].(string); ok {
		p.Path = v
	}
	if v, ok := row["name"].(string); ok {
		p.Name = v
	}
	if v, ok := row["type"].(string); ok {
		p.Type = v
	}
	if v, ok := row["stack"].(string); ok {
		p.Stack = v
	}
	if v, ok := row["status"].(string); ok {
		p.Status = v
	}
	if v, ok := row["mode"].(string); ok {
		p.Mode = v
	}
	return p
}

// AsInt64 coerces a store row's driver-returned value (int64 from SQLite,
// but float64 if ever proxied over the remote HTTP backend's JSON framing)
// into an int64.
func AsInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}

// AsString coerces a store row's driver-returned value into a string,
// treating nil/unexpected types as absent. DATETIME columns come back as
// time.Time from drivers that recognize the declared column affinity
// (mattn/go-sqlite3 does this for TIMESTAMP/DATETIME/DATE); those are
// formatted as RFC3339Nano, which every parseStoreTime/parseCreatedAt
// caller in this codebase already accepts via its time.RFC3339 layout
// (time.Parse matches an optional fractional-seconds suffix leniently).
func AsString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return ""
}

// AsBool coerces a store row's driver-returned int (SQLite has no native
// bool) into a Go bool.
func AsBool(v interface{}) bool {
	n, ok := AsInt64(v)
	return ok && n != 0
}
