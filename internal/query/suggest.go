package query

import (
	"context"
	"fmt"
	"strings"

	"muninn/internal/embedding"
	"muninn/internal/logging"
	"muninn/internal/project"
	"muninn/internal/store"
)

// SuggestedFile is one file ranked for a task.
type SuggestedFile struct {
	Path       string
	Purpose    string
	Similarity float64
}

// SuggestedSymbol is one symbol ranked for a task, only populated when
// includeSymbols is set.
type SuggestedSymbol struct {
	File       string
	Name       string
	Kind       string
	Signature  string
	Similarity float64
}

// SuggestResult is Suggest's return value.
type SuggestResult struct {
	Files   []SuggestedFile
	Symbols []SuggestedSymbol
}

// Suggest ranks a project's files (and, if includeSymbols, their symbols)
// by hybrid similarity to task: vector similarity against each file's
// embedding when the embedder is available, falling back to an FTS5 rank
// over the files table's purpose/path text.
func Suggest(ctx context.Context, s store.Store, engine embedding.EmbeddingEngine, projectID int64, task string, limit int, includeSymbols bool) (SuggestResult, error) {
	timer := logging.StartTimer(logging.CategoryQuery, "Suggest")
	defer timer.Stop()

	if limit <= 0 {
		limit = 10
	}

	var result SuggestResult
	var err error

	if task != "" && engine != nil && embedding.IsAvailable(ctx, engine) {
		if vec, embErr := engine.Embed(ctx, task); embErr == nil && vec != nil {
			result.Files, err = suggestFilesByVector(ctx, s, projectID, vec, limit)
			if err != nil {
				logging.QueryWarn("suggest: vector ranking failed, falling back to FTS: %v", err)
			} else if len(result.Files) > 0 {
				if includeSymbols {
					result.Symbols, err = suggestSymbolsByVector(ctx, s, projectID, vec, limit)
					if err != nil {
						logging.QueryWarn("suggest: symbol vector ranking failed: %v", err)
					}
				}
				return result, nil
			}
		}
	}

	result.Files, err = suggestFilesByFTS(ctx, s, projectID, task, limit)
	if err != nil {
		return result, fmt.Errorf("suggest files: %w", err)
	}
	if includeSymbols {
		result.Symbols, err = suggestSymbolsByFTS(ctx, s, projectID, task, limit)
		if err != nil {
			logging.QueryWarn("suggest: symbol FTS ranking failed: %v", err)
		}
	}
	return result, nil
}

func suggestFilesByVector(ctx context.Context, s store.Store, projectID int64, vec []float32, limit int) ([]SuggestedFile, error) {
	rows, err := s.All(ctx,
		"SELECT path, purpose, embedding FROM files WHERE project_id = ? AND archived_at IS NULL AND embedding IS NOT NULL",
		projectID)
	if err != nil {
		return nil, err
	}
	corpus := make([][]float32, len(rows))
	for i, row := range rows {
		if blob, ok := row["embedding"].([]byte); ok {
			corpus[i] = store.DecodeEmbedding(blob)
		}
	}
	top, err := embedding.FindTopK(vec, corpus, limit)
	if err != nil {
		return nil, err
	}
	out := make([]SuggestedFile, 0, len(top))
	for _, r := range top {
		row := rows[r.Index]
		out = append(out, SuggestedFile{
			Path:       project.AsString(row["path"]),
			Purpose:    project.AsString(row["purpose"]),
			Similarity: r.Similarity,
		})
	}
	return out, nil
}

func suggestSymbolsByVector(ctx context.Context, s store.Store, projectID int64, vec []float32, limit int) ([]SuggestedSymbol, error) {
	rows, err := s.All(ctx,
		`SELECT sy.name, sy.kind, sy.signature, sy.embedding, f.path
		 FROM symbols sy JOIN files f ON f.id = sy.file_id
		 WHERE f.project_id = ? AND f.archived_at IS NULL AND sy.embedding IS NOT NULL`,
		projectID)
	if err != nil {
		return nil, err
	}
	corpus := make([][]float32, len(rows))
	for i, row := range rows {
		if blob, ok := row["embedding"].([]byte); ok {
			corpus[i] = store.DecodeEmbedding(blob)
		}
	}
	top, err := embedding.FindTopK(vec, corpus, limit)
	if err != nil {
		return nil, err
	}
	out := make([]SuggestedSymbol, 0, len(top))
	for _, r := range top {
		row := rows[r.Index]
		out = append(out, SuggestedSymbol{
			File: project.AsString(row["path"]), Name: project.AsString(row["name"]),
			Kind: project.AsString(row["kind"]), Signature: project.AsString(row["signature"]),
			Similarity: r.Similarity,
		})
	}
	return out, nil
}

func suggestFilesByFTS(ctx context.Context, s store.Store, projectID int64, task string, limit int) ([]SuggestedFile, error) {
	if task == "" {
		rows, err := s.All(ctx,
			"SELECT path, purpose FROM files WHERE project_id = ? AND archived_at IS NULL ORDER BY velocity_score DESC LIMIT ?",
			projectID, limit)
		if err != nil {
			return nil, err
		}
		return fileRowsToSuggestions(rows), nil
	}
	rows, err := s.All(ctx,
		`SELECT f.path, f.purpose FROM fts_files ft JOIN files f ON f.id = ft.rowid
		 WHERE ft.fts_files MATCH ? AND f.project_id = ? AND f.archived_at IS NULL
		 ORDER BY bm25(ft.fts_files) LIMIT ?`,
		ftsEscapeLocal(task), projectID, limit)
	if err != nil {
		return nil, err
	}
	return fileRowsToSuggestions(rows), nil
}

func fileRowsToSuggestions(rows []map[string]interface{}) []SuggestedFile {
	out := make([]SuggestedFile, 0, len(rows))
	for _, row := range rows {
		out = append(out, SuggestedFile{Path: project.AsString(row["path"]), Purpose: project.AsString(row["purpose"])})
	}
	return out
}

func suggestSymbolsByFTS(ctx context.Context, s store.Store, projectID int64, task string, limit int) ([]SuggestedSymbol, error) {
	if task == "" {
		return nil, nil
	}
	rows, err := s.All(ctx,
		`SELECT sy.name, sy.kind, sy.signature, f.path FROM symbols sy
		 JOIN files f ON f.id = sy.file_id
		 WHERE f.project_id = ? AND f.archived_at IS NULL AND (sy.name LIKE ? OR sy.purpose LIKE ?)
		 LIMIT ?`,
		projectID, "%"+task+"%", "%"+task+"%", limit)
	if err != nil {
		return nil, err
	}
	out := make([]SuggestedSymbol, 0, len(rows))
	for _, row := range rows {
		out = append(out, SuggestedSymbol{
			File: project.AsString(row["path"]), Name: project.AsString(row["name"]),
			Kind: project.AsString(row["kind"]), Signature: project.AsString(row["signature"]),
		})
	}
	return out, nil
}

func ftsEscapeLocal(q string) string {
	return `"` + strings.ReplaceAll(strings.TrimSpace(q), `"`, `""`) + `"`
}
