// Package relate manages the relationships adjacency table: the
// cross-entity edges linking files, decisions, issues, learnings, and
// sessions (cyclic entity graphs are stored as an adjacency table,
// not as pointer graphs). Traversal is query-driven; nothing
// here walks an in-memory graph.
package relate

import (
	"context"
	"fmt"

	"muninn/internal/logging"
	"muninn/internal/project"
	"muninn/internal/store"
)

// entityTables maps a relationship endpoint's type name to the table and
// archival-column expression used to check it exists and is not archived,
// per invariant I2.
var entityTables = map[string]struct {
	table      string
	archivedOK string // SQL fragment: "1=1" if the table has no archival column
}{
	"file":     {"files", "archived_at IS NULL"},
	"decision": {"decisions", "archived_at IS NULL"},
	"issue":    {"issues", "1=1"},
	"learning": {"learnings", "archived_at IS NULL"},
	"session":  {"sessions", "1=1"},
}

// Insert upserts a relationship row after checking invariant I2: both
// endpoints must exist and not be archived at insert time. On conflict
// with an existing (source,target,relationship) tuple, the new strength
// and notes win -- last writer wins on concurrent
// derived-table writes.
func Insert(ctx context.Context, s store.Store, rel store.Relationship) error {
	if err := checkEndpoint(ctx, s, rel.SourceType, rel.SourceID); err != nil {
		return fmt.Errorf("relate: source: %w", err)
	}
	if err := checkEndpoint(ctx, s, rel.TargetType, rel.TargetID); err != nil {
		return fmt.Errorf("relate: target: %w", err)
	}
	if rel.Strength <= 0 {
		rel.Strength = 5
	}

	_, err := s.Run(ctx,
		`INSERT INTO relationships (source_type, source_id, target_type, target_id, relationship, strength, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source_type, source_id, target_type, target_id, relationship)
		 DO UPDATE SET strength = excluded.strength, notes = excluded.notes`,
		rel.SourceType, rel.SourceID, rel.TargetType, rel.TargetID, rel.Relationship, rel.Strength, rel.Notes)
	if err != nil {
		return fmt.Errorf("relate: upsert: %w", err)
	}
	logging.Query("related %s:%d -%s-> %s:%d", rel.SourceType, rel.SourceID, rel.Relationship, rel.TargetType, rel.TargetID)
	return nil
}

func checkEndpoint(ctx context.Context, s store.Store, entityType string, id int64) error {
	spec, ok := entityTables[entityType]
	if !ok {
		return fmt.Errorf("unknown entity type %q", entityType)
	}
	row, err := s.Get(ctx,
		fmt.Sprintf("SELECT id FROM %s WHERE id = ? AND (%s)", spec.table, spec.archivedOK), id)
	if err != nil {
		return fmt.Errorf("lookup %s %d: %w", entityType, id, err)
	}
	if row == nil {
		return fmt.Errorf("%s %d does not exist or is archived", entityType, id)
	}
	return nil
}

// List returns every relationship where the given entity is either the
// source or the target, optionally filtered to one relationship kind.
func List(ctx context.Context, s store.Store, entityType string, id int64, relationship string) ([]store.Relationship, error) {
	query := `SELECT source_type, source_id, target_type, target_id, relationship, strength, notes FROM relationships
		WHERE ((source_type = ? AND source_id = ?) OR (target_type = ? AND target_id = ?))`
	args := []interface{}{entityType, id, entityType, id}
	if relationship != "" {
		query += " AND relationship = ?"
		args = append(args, relationship)
	}
	query += " ORDER BY strength DESC"

	rows, err := s.All(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("relate: list: %w", err)
	}
	out := make([]store.Relationship, 0, len(rows))
	for _, row := range rows {
		srcID, _ := project.AsInt64(row["source_id"])
		tgtID, _ := project.AsInt64(row["target_id"])
		strength, _ := project.AsInt64(row["strength"])
		out = append(out, store.Relationship{
			SourceType: project.AsString(row["source_type"]), SourceID: srcID,
			TargetType: project.AsString(row["target_type"]), TargetID: tgtID,
			Relationship: project.AsString(row["relationship"]),
			Strength:     int(strength),
			Notes:        project.AsString(row["notes"]),
		})
	}
	return out, nil
}

// Delete removes a relationship's exact tuple (the CLI's `unrelate`).
func Delete(ctx context.Context, s store.Store, rel store.Relationship) error {
	_, err := s.Run(ctx,
		`DELETE FROM relationships WHERE source_type = ? AND source_id = ? AND target_type = ? AND target_id = ? AND relationship = ?`,
		rel.SourceType, rel.SourceID, rel.TargetType, rel.TargetID, rel.Relationship)
	if err != nil {
		return fmt.Errorf("relate: delete: %w", err)
	}
	return nil
}

// InsertBatch inserts every relationship in rels, logging and continuing
// past individual I2 failures rather than aborting the whole batch --
// used by codeintel's test/source relationship pass, which is best-effort
// derived data.
func InsertBatch(ctx context.Context, s store.Store, rels []store.Relationship) (inserted int) {
	for _, rel := range rels {
		if err := Insert(ctx, s, rel); err != nil {
			logging.QueryWarn("relate: batch insert skipped: %v", err)
			continue
		}
		inserted++
	}
	return inserted
}
