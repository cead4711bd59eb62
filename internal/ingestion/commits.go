package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"muninn/internal/gitutil"
	"muninn/internal/logging"
	"muninn/internal/project"
	"muninn/internal/queue"
	"muninn/internal/store"
)

// callGraphExtensions are the languages codeintel.ParserFor resolves;
// build_call_graph is only enqueued when a commit touches at least one.
var callGraphExtensions = map[string]bool{
	".go": true, ".ts": true, ".tsx": true, ".js": true, ".jsx": true,
	".mjs": true, ".cjs": true,
}

// IngestCommit is the `ingest commit` CLI entry point: reads HEAD via
// gitutil, no-ops if the hash was already recorded for this project, and
// otherwise records the commit, updates file change stats and
// co-change correlations, and enqueues the fixed set of deferred analyses.
func IngestCommit(ctx context.Context, s store.Store, repoRoot string) error {
	timer := logging.StartTimer(logging.CategoryIngest, "IngestCommit")
	defer timer.Stop()

	proj, err := project.GetOrCreate(ctx, s, repoRoot)
	if err != nil {
		return fmt.Errorf("resolve project: %w", err)
	}

	info, err := gitutil.HeadCommit(ctx, repoRoot)
	if err != nil {
		return fmt.Errorf("read HEAD commit: %w", err)
	}

	existing, err := s.Get(ctx, "SELECT id FROM git_commits WHERE project_id = ? AND commit_hash = ?", proj.ID, info.Hash)
	if err != nil {
		return fmt.Errorf("check existing commit: %w", err)
	}
	if existing != nil {
		logging.Ingest("commit %s already ingested for project %d, no-op", info.Hash, proj.ID)
		return nil
	}

	sessionRow, _ := s.Get(ctx, "SELECT id FROM sessions WHERE project_id = ? AND ended_at IS NULL", proj.ID)
	var sessionID *int64
	if sessionRow != nil {
		if id, ok := project.AsInt64(sessionRow["id"]); ok {
			sessionID = &id
		}
	}

	paths := make([]string, 0, len(info.Files))
	for _, f := range info.Files {
		paths = append(paths, f.Path)
	}
	pathsJSON, _ := json.Marshal(paths)

	insertions, deletions := 0, 0
	for _, f := range info.Files {
		insertions += f.Insertions
		deletions += f.Deletions
	}

	res, err := s.Run(ctx,
		`INSERT INTO git_commits (project_id, commit_hash, author, message, files_changed, insertions, deletions, committed_at, session_id, analyzed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		proj.ID, info.Hash, info.Author, info.Message, string(pathsJSON), insertions, deletions, info.CommittedAt, sessionID)
	if err != nil {
		return fmt.Errorf("insert commit: %w", err)
	}
	commitID := res.LastInsertID

	for _, f := range info.Files {
		if err := touchChangedFile(ctx, s, proj.ID, f.Path); err != nil {
			logging.IngestWarn("commit %s: touch file %s failed: %v", info.Hash, f.Path, err)
		}
	}

	if len(paths) >= 2 {
		updateCochangePairs(ctx, s, proj.ID, paths)
	}

	enqueueCommitJobs(ctx, s, proj.ID, commitID, paths)

	logging.Ingest("ingested commit %s for project %d (%d files, +%d/-%d)", info.Hash, proj.ID, len(info.Files), insertions, deletions)
	return nil
}

// touchChangedFile increments change_count, marks the file hot, sets
// first_changed_at if unset, and recomputes velocity_score.
func touchChangedFile(ctx context.Context, s store.Store, projectID int64, path string) error {
	now := time.Now().UTC()
	_, err := s.Run(ctx,
		`INSERT INTO files (project_id, path, change_count, temperature, first_changed_at, last_referenced_at)
		 VALUES (?, ?, 1, 'hot', ?, ?)
		 ON CONFLICT(project_id, path) DO UPDATE SET
		   change_count = files.change_count + 1,
		   temperature = 'hot',
		   first_changed_at = COALESCE(files.first_changed_at, excluded.first_changed_at),
		   last_referenced_at = excluded.last_referenced_at`,
		projectID, path, now, now)
	if err != nil {
		return err
	}

	row, err := s.Get(ctx, "SELECT change_count, first_changed_at FROM files WHERE project_id = ? AND path = ?", projectID, path)
	if err != nil || row == nil {
		return err
	}
	changeCount, _ := project.AsInt64(row["change_count"])
	daysSince := 0.0
	if fc := project.AsString(row["first_changed_at"]); fc != "" {
		if t, perr := time.Parse(time.RFC3339, fc); perr == nil {
			daysSince = time.Since(t).Hours() / 24
		} else if t, perr := time.Parse("2006-01-02 15:04:05", fc); perr == nil {
			daysSince = time.Since(t).Hours() / 24
		}
	}
	velocity := float64(changeCount) / (1 + daysSince)
	_, err = s.Run(ctx, "UPDATE files SET velocity_score = ? WHERE project_id = ? AND path = ?", velocity, projectID, path)
	return err
}

// updateCochangePairs increments file_correlations.cochange_count for
// every unordered pair of files in a multi-file commit. Pairs are always
// stored with file_a < file_b so (A,B) and (B,A) never diverge.
func updateCochangePairs(ctx context.Context, s store.Store, projectID int64, paths []string) {
	ids := make([]int64, 0, len(paths))
	for _, p := range paths {
		row, err := s.Get(ctx, "SELECT id FROM files WHERE project_id = ? AND path = ?", projectID, p)
		if err != nil || row == nil {
			continue
		}
		id, ok := project.AsInt64(row["id"])
		if ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			_, err := s.Run(ctx,
				`INSERT INTO file_correlations (project_id, file_a, file_b, cochange_count) VALUES (?, ?, ?, 1)
				 ON CONFLICT(project_id, file_a, file_b) DO UPDATE SET cochange_count = cochange_count + 1`,
				projectID, ids[i], ids[j])
			if err != nil {
				logging.IngestWarn("cochange update failed for (%d,%d): %v", ids[i], ids[j], err)
			}
		}
	}
}

func enqueueCommitJobs(ctx context.Context, s store.Store, projectID, commitID int64, paths []string) {
	payload := map[string]interface{}{"project_id": projectID, "commit_id": commitID}

	hasParseable := false
	for _, p := range paths {
		if callGraphExtensions[filepath.Ext(p)] {
			hasParseable = true
			break
		}
	}

	// reindex_symbols before analyze_diffs: diff analysis reads symbols
	// for the touched files, so the reindex must have run first.
	jobs := []string{queue.JobReindexSymbols}
	if hasParseable {
		jobs = append(jobs, queue.JobBuildCallGraph)
	}
	jobs = append(jobs, queue.JobAnalyzeDiffs, queue.JobRunTests, queue.JobDetectReverts, queue.JobRefreshOwnership)

	for _, jt := range jobs {
		if err := queue.Enqueue(ctx, s, jt, payload, 3); err != nil {
			logging.IngestWarn("enqueue %s failed: %v", jt, err)
		}
	}
}
