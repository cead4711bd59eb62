package query

import (
	"context"
	"fmt"

	"muninn/internal/logging"
	"muninn/internal/outcomes"
	"muninn/internal/project"
	"muninn/internal/store"
)

// PredictedFile is a file likely to be touched next, alongside why it was
// surfaced.
type PredictedFile struct {
	Path   string
	Reason string
	Score  float64
}

// PredictedTest is a test file associated with a source file via a
// "tests" relationship edge.
type PredictedTest struct {
	Path string
}

// WorkflowPrediction carries the trigram-trained next-tool guess, when the
// model has enough confidence to offer one.
type WorkflowPrediction struct {
	Tool       string
	Confidence float64
}

// PredictResult is Predict's return value: everything known about what is
// likely to happen next given the current task and/or file set.
type PredictResult struct {
	RelatedFiles []PredictedFile
	Cochangers   []PredictedFile
	Decisions    []Result
	Issues       []Result
	Learnings    []Result
	Tests        []PredictedTest
	Workflow     *WorkflowPrediction
}

// Predict surfaces everything the store knows that bears on "what comes
// next": files historically co-changed with the given files, decisions and
// issues relevant to task, tests covering the given files, and (when
// recentTools carries at least a trigram) the trained workflow model's
// next-tool guess.
func Predict(ctx context.Context, s store.Store, projectID int64, task string, files []string, recentTools []string) (PredictResult, error) {
	timer := logging.StartTimer(logging.CategoryQuery, "Predict")
	defer timer.Stop()

	var result PredictResult

	fileIDs := make(map[string]int64, len(files))
	for _, f := range files {
		row, err := s.Get(ctx, "SELECT id FROM files WHERE project_id = ? AND path = ? AND archived_at IS NULL", projectID, f)
		if err != nil {
			logging.QueryWarn("predict: lookup file %s: %v", f, err)
			continue
		}
		if row == nil {
			continue
		}
		id, _ := project.AsInt64(row["id"])
		fileIDs[f] = id
	}

	for path, id := range fileIDs {
		cochangers, err := cochangedFiles(ctx, s, projectID, id)
		if err != nil {
			logging.QueryWarn("predict: cochangers for %s: %v", path, err)
			continue
		}
		result.Cochangers = append(result.Cochangers, cochangers...)

		tests, err := testsFor(ctx, s, id)
		if err != nil {
			logging.QueryWarn("predict: tests for %s: %v", path, err)
			continue
		}
		result.Tests = append(result.Tests, tests...)
	}

	if task != "" {
		decisions, err := ftsTopN(ctx, s, "decisions", "fts_decisions", "title", "decision", "decision", projectID, task, 5)
		if err != nil {
			logging.QueryWarn("predict: decisions fts: %v", err)
		}
		result.Decisions = decisions

		issues, err := ftsTopN(ctx, s, "issues", "fts_issues", "title", "description", "issue", projectID, task, 5)
		if err != nil {
			logging.QueryWarn("predict: issues fts: %v", err)
		}
		result.Issues = issues

		learnings, err := ftsTopNLearnings(ctx, s, projectID, task, 5)
		if err != nil {
			logging.QueryWarn("predict: learnings fts: %v", err)
		}
		result.Learnings = learnings
	}

	if len(recentTools) >= 3 {
		if tool, conf, ok := outcomes.PredictNextTool(ctx, s, projectID, recentTools); ok {
			result.Workflow = &WorkflowPrediction{Tool: tool, Confidence: conf}
		}
	}

	return result, nil
}

// cochangedFiles returns files that have historically changed alongside
// fileID in the same commit, ranked by how often that has happened.
func cochangedFiles(ctx context.Context, s store.Store, projectID, fileID int64) ([]PredictedFile, error) {
	rows, err := s.All(ctx,
		`SELECT f.path, fc.cochange_count FROM file_correlations fc
		 JOIN files f ON f.id = CASE WHEN fc.file_a = ? THEN fc.file_b ELSE fc.file_a END
		 WHERE fc.project_id = ? AND (fc.file_a = ? OR fc.file_b = ?) AND f.archived_at IS NULL
		 ORDER BY fc.cochange_count DESC LIMIT 10`,
		fileID, projectID, fileID, fileID)
	if err != nil {
		return nil, fmt.Errorf("cochanged files: %w", err)
	}
	out := make([]PredictedFile, 0, len(rows))
	for _, row := range rows {
		count, _ := project.AsInt64(row["cochange_count"])
		out = append(out, PredictedFile{
			Path:   project.AsString(row["path"]),
			Reason: fmt.Sprintf("co-changed %d times", count),
			Score:  float64(count),
		})
	}
	return out, nil
}

// testsFor returns source files' test counterparts via the "tests"
// relationship edge (populated by codeintel's test/source pass).
func testsFor(ctx context.Context, s store.Store, fileID int64) ([]PredictedTest, error) {
	rows, err := s.All(ctx,
		`SELECT f.path FROM relationships r
		 JOIN files f ON f.id = r.source_id AND r.source_type = 'file'
		 WHERE r.relationship = 'tests' AND r.target_type = 'file' AND r.target_id = ? AND f.archived_at IS NULL`,
		fileID)
	if err != nil {
		return nil, fmt.Errorf("tests for file: %w", err)
	}
	out := make([]PredictedTest, 0, len(rows))
	for _, row := range rows {
		out = append(out, PredictedTest{Path: project.AsString(row["path"])})
	}
	return out, nil
}

func ftsTopN(ctx context.Context, s store.Store, table, ftsTable, titleCol, contentCol, kind string, projectID int64, task string, limit int) ([]Result, error) {
	query := fmt.Sprintf(
		`SELECT t.id, t.%s AS title, t.%s AS content FROM %s ft JOIN %s t ON t.id = ft.rowid
		 WHERE ft.%s MATCH ? AND t.project_id = ? ORDER BY bm25(ft.%s) LIMIT ?`,
		titleCol, contentCol, ftsTable, table, ftsTable, ftsTable)
	rows, err := s.All(ctx, query, ftsEscapeLocal(task), projectID, limit)
	if err != nil {
		return nil, err
	}
	return rowsToResults(rows, kind), nil
}

func ftsTopNLearnings(ctx context.Context, s store.Store, projectID int64, task string, limit int) ([]Result, error) {
	rows, err := s.All(ctx,
		`SELECT l.id, l.title, l.content FROM fts_learnings ft JOIN learnings l ON l.id = ft.rowid
		 WHERE ft.fts_learnings MATCH ? AND (l.project_id = ? OR l.project_id IS NULL) AND l.archived_at IS NULL
		 ORDER BY bm25(ft.fts_learnings) LIMIT ?`,
		ftsEscapeLocal(task), projectID, limit)
	if err != nil {
		return nil, err
	}
	return rowsToResults(rows, "learning"), nil
}

func rowsToResults(rows []map[string]interface{}, kind string) []Result {
	out := make([]Result, 0, len(rows))
	for _, row := range rows {
		id, _ := project.AsInt64(row["id"])
		out = append(out, Result{ID: id, Type: kind, Title: project.AsString(row["title"]), Content: project.AsString(row["content"])})
	}
	return out
}
