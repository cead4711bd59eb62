package store

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	"muninn/internal/logging"
)

// CurrentSchemaVersion is the schema version this binary expects. Every
// deferred analysis in internal/outcomes declares its own minSchemaVersion
// and is skipped, not crashed, below it -- the re-expression of the source's
// "dynamic capability probe" pattern as an explicit version field.
const CurrentSchemaVersion = 1

// Migration is an additive column addition applied if its table exists and
// its column does not.
type Migration struct {
	Table  string
	Column string
	Def    string
}

// pendingMigrations lists additive migrations applied on every open. New
// columns get appended here as Muninn's schema grows; nothing here ever
// drops or renames a column.
var pendingMigrations = []Migration{
	{"files", "last_referenced_at", "DATETIME DEFAULT CURRENT_TIMESTAMP"},
	{"decisions", "temperature", "TEXT DEFAULT 'warm'"},
	{"context_injections", "relevance_signal", "TEXT"},
	{"context_injections", "source_type", "TEXT"},
	{"context_injections", "source_id", "INTEGER"},
	{"agent_intents", "token", "TEXT NOT NULL DEFAULT ''"},
}

// runStoreMigrations takes a timestamped backup, applies pendingMigrations,
// and records the resulting schema version. On any migration failure it
// restores the pre-migration backup and returns the backup path alongside
// the error so the caller can report it.
func runStoreMigrations(db *sql.DB, dbPath string) (string, error) {
	timer := logging.StartTimer(logging.CategoryStore, "runStoreMigrations")
	defer timer.Stop()

	backupPath, err := CreateBackup(dbPath)
	if err != nil {
		logging.StoreWarn("could not create pre-migration backup: %v", err)
		backupPath = ""
	}

	applied := 0
	for _, m := range pendingMigrations {
		if !tableExists(db, m.Table) {
			continue
		}
		if columnExists(db, m.Table, m.Column) {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := db.Exec(stmt); err != nil {
			logging.StoreError("migration failed (%s.%s): %v", m.Table, m.Column, err)
			if backupPath != "" {
				if rerr := RestoreBackup(dbPath, backupPath); rerr != nil {
					logging.StoreError("restore after failed migration also failed: %v", rerr)
				}
			}
			return backupPath, fmt.Errorf("migration %s.%s: %w", m.Table, m.Column, err)
		}
		applied++
	}

	if err := SetSchemaVersion(db, CurrentSchemaVersion); err != nil {
		logging.StoreWarn("failed to record schema version: %v", err)
	}
	logging.Store("migrations complete: applied=%d", applied)
	return backupPath, nil
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}

func tableExists(db *sql.DB, table string) bool {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
	return err == nil && count > 0
}

// GetSchemaVersion returns the latest recorded schema version, or 0 if
// schema_versions has no rows yet (a freshly initialized database).
func GetSchemaVersion(db *sql.DB) int {
	if !tableExists(db, "schema_versions") {
		return 0
	}
	var version int
	err := db.QueryRow("SELECT version FROM schema_versions ORDER BY applied_at DESC LIMIT 1").Scan(&version)
	if err != nil {
		return 0
	}
	return version
}

// SetSchemaVersion records a new schema version.
func SetSchemaVersion(db *sql.DB, version int) error {
	_, err := db.Exec(
		"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
		version, fmt.Sprintf("migrated to schema version %d", version),
	)
	if err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return nil
}

// SchemaVersionOf returns the latest recorded schema version via the
// backend-agnostic Store contract (unlike GetSchemaVersion, which needs a
// concrete *sql.DB) -- every deferred analysis gates itself on this so it works
// uniformly against the local and remote backends.
func SchemaVersionOf(ctx context.Context, s Store) int {
	row, err := s.Get(ctx, "SELECT version FROM schema_versions ORDER BY applied_at DESC LIMIT 1")
	if err != nil || row == nil {
		return 0
	}
	switch v := row["version"].(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// CreateBackup copies the database file to a timestamped sibling path.
func CreateBackup(dbPath string) (string, error) {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return "", nil
	}
	backupPath := dbPath + fmt.Sprintf(".backup_%s", time.Now().Format("20060102_150405"))

	src, err := os.Open(dbPath)
	if err != nil {
		return "", fmt.Errorf("open source database: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(backupPath)
	if err != nil {
		return "", fmt.Errorf("create backup file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("copy database to backup: %w", err)
	}
	if err := dst.Sync(); err != nil {
		return "", fmt.Errorf("sync backup: %w", err)
	}
	return backupPath, nil
}

// RestoreBackup overwrites dbPath with the contents of backupPath.
func RestoreBackup(dbPath, backupPath string) error {
	src, err := os.Open(backupPath)
	if err != nil {
		return fmt.Errorf("open backup: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(dbPath)
	if err != nil {
		return fmt.Errorf("create database file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("restore from backup: %w", err)
	}
	return dst.Sync()
}
