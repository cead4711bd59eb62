package store

import "context"

// RunResult reports the effect of a single mutating statement.
type RunResult struct {
	LastInsertID int64
	Changes      int64
}

// Store is the capability set both backends implement; the variant is
// chosen at construction time: {get, all, run, exec, batch, init, close,
// isHealthy}.
type Store interface {
	Get(ctx context.Context, sql string, args ...interface{}) (map[string]interface{}, error)
	All(ctx context.Context, sql string, args ...interface{}) ([]map[string]interface{}, error)
	Run(ctx context.Context, sql string, args ...interface{}) (RunResult, error)
	Exec(ctx context.Context, ddl string) error
	Batch(ctx context.Context, stmts []BatchStatement) error
	Init(ctx context.Context) error
	Close() error
	IsHealthy() bool
}

// BatchStatement is one statement of an all-or-nothing transaction.
type BatchStatement struct {
	SQL  string
	Args []interface{}
}
