package context

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"muninn/internal/embedding"
	"muninn/internal/logging"
	"muninn/internal/project"
	"muninn/internal/store"
)

// maxCandidatePool caps retrieval regardless of the requested budget.
const maxCandidatePool = 200

// candidatePoolSize is min(max_tokens * 5, 200).
func candidatePoolSize(maxTokens int) int {
	n := maxTokens * 5
	if n <= 0 || n > maxCandidatePool {
		return maxCandidatePool
	}
	return n
}

// retrieveCandidates pulls the filtered candidate pool, preferring vector
// similarity over the embedded files table when an embedding is available
// for the request's prompt text, falling back to FTS5 ranking across
// files/decisions/issues/learnings otherwise.
func retrieveCandidates(ctx context.Context, s store.Store, engine embedding.EmbeddingEngine, req Request) ([]Memory, error) {
	poolSize := candidatePoolSize(req.MaxTokens)
	prompt := promptText(req)

	if prompt != "" && engine != nil && embedding.IsAvailable(ctx, engine) {
		if vec, err := engine.Embed(ctx, prompt); err == nil && vec != nil {
			memories, err := vectorRetrieve(ctx, s, req, vec, poolSize)
			if err != nil {
				logging.ContextWarn("vector retrieval failed, falling back to FTS: %v", err)
			} else if len(memories) > 0 {
				return memories, nil
			}
		}
	}

	return ftsRetrieve(ctx, s, req, prompt, poolSize)
}

// promptText derives the text to embed/search from whichever of
// query/task/files the request carries.
func promptText(req Request) string {
	if req.Query != "" {
		return req.Query
	}
	if req.Task != "" {
		return req.Task
	}
	if len(req.Files) > 0 {
		return strings.Join(req.Files, " ")
	}
	return ""
}

// vectorRetrieve scores the project's embedded files against vec by cosine
// similarity. Only files carry an embedding in this schema; other memory
// types always come from FTS, so a vector pass is necessarily file-only
// and is merged with a small FTS sweep over the other three tables.
func vectorRetrieve(ctx context.Context, s store.Store, req Request, vec []float32, poolSize int) ([]Memory, error) {
	rows, err := s.All(ctx,
		`SELECT id, path, purpose, fragility_reason, embedding FROM files
		 WHERE project_id = ? AND archived_at IS NULL AND embedding IS NOT NULL`,
		req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load embedded files: %w", err)
	}

	corpus := make([][]float32, 0, len(rows))
	for _, row := range rows {
		blob, ok := row["embedding"].([]byte)
		if !ok {
			corpus = append(corpus, nil)
			continue
		}
		corpus = append(corpus, store.DecodeEmbedding(blob))
	}

	top, err := embedding.FindTopK(vec, corpus, poolSize)
	if err != nil {
		return nil, err
	}

	memories := make([]Memory, 0, len(top)+poolSize/4)
	for _, r := range top {
		row := rows[r.Index]
		path := project.AsString(row["path"])
		memories = append(memories, Memory{
			ID:         mustInt64(row["id"]),
			Type:       "file",
			Title:      path,
			Entities:   []string{path},
			Content:    firstNonEmpty(project.AsString(row["purpose"]), project.AsString(row["fragility_reason"])),
			Similarity: r.Similarity,
		})
	}

	// Supplement with a lighter FTS sweep over non-file memory types, since
	// they carry no embedding in this schema.
	others, err := ftsRetrieveTypes(ctx, s, req, promptText(req), poolSize/2, []string{"decision", "issue", "learning"})
	if err != nil {
		logging.ContextWarn("supplemental FTS sweep failed: %v", err)
	}
	return append(memories, others...), nil
}

// ftsRetrieve is the pure-FTS path used when no embedding was available.
func ftsRetrieve(ctx context.Context, s store.Store, req Request, prompt string, poolSize int) ([]Memory, error) {
	return ftsRetrieveTypes(ctx, s, req, prompt, poolSize, []string{"file", "decision", "issue", "learning"})
}

func ftsRetrieveTypes(ctx context.Context, s store.Store, req Request, prompt string, poolSize int, types []string) ([]Memory, error) {
	if prompt == "" {
		return recentFallback(ctx, s, req, poolSize, types)
	}
	query := ftsEscape(prompt)
	perType := poolSize / len(types)
	if perType < 1 {
		perType = 1
	}

	var memories []Memory
	for _, t := range types {
		if !typeAllowed(req, t) {
			continue
		}
		rows, err := ftsQuery(ctx, s, t, req.ProjectID, query, perType)
		if err != nil {
			logging.ContextWarn("fts query for %s failed: %v", t, err)
			continue
		}
		memories = append(memories, rows...)
	}
	return memories, nil
}

func typeAllowed(req Request, t string) bool {
	return req.TypeFilter == "" || req.TypeFilter == t
}

func ftsQuery(ctx context.Context, s store.Store, memType string, projectID int64, query string, limit int) ([]Memory, error) {
	switch memType {
	case "file":
		rows, err := s.All(ctx,
			`SELECT f.id, f.path AS title, f.purpose AS content, f.fragility_reason, f.created_at
			 FROM fts_files ft JOIN files f ON f.id = ft.rowid
			 WHERE ft.fts_files MATCH ? AND f.project_id = ? AND f.archived_at IS NULL
			 ORDER BY bm25(ft.fts_files) LIMIT ?`, query, projectID, limit)
		if err != nil {
			return nil, err
		}
		return rowsToMemories(rows, "file", ""), nil
	case "decision":
		rows, err := s.All(ctx,
			`SELECT d.id, d.title, d.decision AS content, d.affects AS entities, d.created_at
			 FROM fts_decisions ft JOIN decisions d ON d.id = ft.rowid
			 WHERE ft.fts_decisions MATCH ? AND d.project_id = ? AND d.archived_at IS NULL AND d.status = 'active'
			 ORDER BY bm25(ft.fts_decisions) LIMIT ?`, query, projectID, limit)
		if err != nil {
			return nil, err
		}
		return rowsToMemories(rows, "decision", ""), nil
	case "issue":
		rows, err := s.All(ctx,
			`SELECT i.id, i.title, i.description AS content, i.affected_files AS entities, i.created_at
			 FROM fts_issues ft JOIN issues i ON i.id = ft.rowid
			 WHERE ft.fts_issues MATCH ? AND i.project_id = ? AND i.status = 'open'
			 ORDER BY bm25(ft.fts_issues) LIMIT ?`, query, projectID, limit)
		if err != nil {
			return nil, err
		}
		return rowsToMemories(rows, "issue", ""), nil
	case "learning":
		rows, err := s.All(ctx,
			`SELECT l.id, l.title, l.content, l.confidence AS raw_confidence, l.created_at
			 FROM fts_learnings ft JOIN learnings l ON l.id = ft.rowid
			 WHERE ft.fts_learnings MATCH ? AND (l.project_id = ? OR l.project_id IS NULL) AND l.archived_at IS NULL
			 ORDER BY bm25(ft.fts_learnings) LIMIT ?`, query, projectID, limit)
		if err != nil {
			return nil, err
		}
		return rowsToMemories(rows, "learning", ""), nil
	}
	return nil, nil
}

// recentFallback supplies a most-recently-touched candidate pool when the
// request carries no query/task/files text to search on.
func recentFallback(ctx context.Context, s store.Store, req Request, poolSize int, types []string) ([]Memory, error) {
	perType := poolSize / len(types)
	if perType < 1 {
		perType = 1
	}
	var memories []Memory
	for _, t := range types {
		if !typeAllowed(req, t) {
			continue
		}
		var rows []map[string]interface{}
		var err error
		switch t {
		case "file":
			rows, err = s.All(ctx,
				"SELECT id, path AS title, purpose AS content, created_at FROM files WHERE project_id = ? AND archived_at IS NULL ORDER BY last_referenced_at DESC LIMIT ?",
				req.ProjectID, perType)
		case "decision":
			rows, err = s.All(ctx,
				"SELECT id, title, decision AS content, affects AS entities, created_at FROM decisions WHERE project_id = ? AND status = 'active' ORDER BY updated_at DESC LIMIT ?",
				req.ProjectID, perType)
		case "issue":
			rows, err = s.All(ctx,
				"SELECT id, title, description AS content, affected_files AS entities, created_at FROM issues WHERE project_id = ? AND status = 'open' ORDER BY created_at DESC LIMIT ?",
				req.ProjectID, perType)
		case "learning":
			rows, err = s.All(ctx,
				"SELECT id, title, content, confidence AS raw_confidence, created_at FROM learnings WHERE (project_id = ? OR project_id IS NULL) AND archived_at IS NULL ORDER BY created_at DESC LIMIT ?",
				req.ProjectID, perType)
		}
		if err != nil {
			logging.ContextWarn("recent fallback for %s failed: %v", t, err)
			continue
		}
		memories = append(memories, rowsToMemories(rows, t, "")...)
	}
	return memories, nil
}

func rowsToMemories(rows []map[string]interface{}, memType, subtype string) []Memory {
	out := make([]Memory, 0, len(rows))
	for _, row := range rows {
		m := Memory{
			ID:       mustInt64(row["id"]),
			Type:     memType,
			Subtype:  subtype,
			Title:    project.AsString(row["title"]),
			Content:  project.AsString(row["content"]),
			Entities: parseEntities(memType, row),
		}
		if rc, ok := row["raw_confidence"].(float64); ok {
			m.RawConfidence = rc
		} else {
			m.RawConfidence = 5
		}
		m.CreatedAt = project.AsString(row["created_at"])
		out = append(out, m)
	}
	return out
}

func mustInt64(v interface{}) int64 {
	n, _ := project.AsInt64(v)
	return n
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseEntities extracts the file paths a memory concerns: a file is its
// own entity; decisions and issues carry a JSON array (or comma list) of
// affected paths.
func parseEntities(memType string, row map[string]interface{}) []string {
	if memType == "file" {
		if p := project.AsString(row["title"]); p != "" {
			return []string{p}
		}
		return nil
	}
	raw := strings.TrimSpace(project.AsString(row["entities"]))
	if raw == "" {
		return nil
	}
	var paths []string
	if err := json.Unmarshal([]byte(raw), &paths); err == nil {
		return paths
	}
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// ftsEscape double-quotes the query for FTS5's MATCH operator, escaping
// embedded quotes, so arbitrary prompt text never breaks the query syntax.
func ftsEscape(q string) string {
	q = strings.TrimSpace(q)
	if q == "" {
		return q
	}
	q = strings.ReplaceAll(q, `"`, `""`)
	return `"` + q + `"`
}
