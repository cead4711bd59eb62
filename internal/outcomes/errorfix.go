package outcomes

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"muninn/internal/logging"
	"muninn/internal/project"
	"muninn/internal/store"
)

// MinSchemaVersionErrorFix gates the error-fix mapper.
const MinSchemaVersionErrorFix = 1

// fixKeywordPattern matches a commit message referencing a fix, loosely,
// the way a developer writes "fix:" or "fixes #123" or "fixed the bug".
var fixKeywordPattern = regexp.MustCompile(`(?i)\bfix(e[sd])?\b`)

// maxConfidence caps error-fix confidence.
const maxConfidence = 0.95

// ProcessSessionErrors maps every error event from sessionID to the
// earliest qualifying commit, upserting error_fix_pairs by
// (project, error_signature). Called at session end.
func ProcessSessionErrors(ctx context.Context, s store.Store, projectID, sessionID int64) (int, error) {
	if store.SchemaVersionOf(ctx, s) < MinSchemaVersionErrorFix {
		return 0, nil
	}

	errRows, err := s.All(ctx,
		`SELECT id, error_type, error_message, error_signature, source_file, created_at
		 FROM error_events WHERE project_id = ? AND session_id = ? ORDER BY created_at ASC`,
		projectID, sessionID)
	if err != nil {
		return 0, fmt.Errorf("load session errors: %w", err)
	}
	if len(errRows) == 0 {
		return 0, nil
	}

	commitRows, err := s.All(ctx,
		`SELECT id, commit_hash, message, files_changed, committed_at FROM git_commits
		 WHERE project_id = ? AND session_id = ? ORDER BY committed_at ASC`,
		projectID, sessionID)
	if err != nil {
		return 0, fmt.Errorf("load session commits: %w", err)
	}

	mapped := 0
	for _, er := range errRows {
		errorAt := parseStoreTime(project.AsString(er["created_at"]))
		sourceFile := project.AsString(er["source_file"])

		var best map[string]interface{}
		var bestCommitAt time.Time
		for _, cr := range commitRows {
			committedAt := parseStoreTime(project.AsString(cr["committed_at"]))
			delta := committedAt.Sub(errorAt)
			if delta < 0 || delta > 30*time.Minute {
				continue
			}
			var files []string
			_ = json.Unmarshal([]byte(project.AsString(cr["files_changed"])), &files)
			touchesSource := sourceFile == ""
			for _, f := range files {
				if f == sourceFile {
					touchesSource = true
					break
				}
			}
			if !touchesSource {
				continue
			}
			if best == nil || committedAt.Before(bestCommitAt) {
				best = cr
				bestCommitAt = committedAt
			}
		}
		if best == nil {
			continue
		}

		if err := upsertErrorFixPair(ctx, s, projectID, sessionID, er, best, bestCommitAt.Sub(errorAt)); err != nil {
			logging.OutcomesWarn("upsert error_fix_pair failed: %v", err)
			continue
		}
		mapped++
	}
	return mapped, nil
}

func upsertErrorFixPair(ctx context.Context, s store.Store, projectID, sessionID int64, er, commit map[string]interface{}, delta time.Duration) error {
	signature := project.AsString(er["error_signature"])
	errorType := project.AsString(er["error_type"])
	errorMsg := project.AsString(er["error_message"])
	commitHash := project.AsString(commit["commit_hash"])
	message := project.AsString(commit["message"])
	sourceFile := project.AsString(er["source_file"])

	var files []string
	_ = json.Unmarshal([]byte(project.AsString(commit["files_changed"])), &files)
	filesJSON, _ := json.Marshal(files)

	confidence := confidenceFor(delta, message, sourceFile, files)

	existing, err := s.Get(ctx, "SELECT confidence, times_seen, times_fixed FROM error_fix_pairs WHERE project_id = ? AND error_signature = ?", projectID, signature)
	if err != nil {
		return err
	}

	if existing == nil {
		_, err = s.Run(ctx,
			`INSERT INTO error_fix_pairs (project_id, error_signature, error_type, error_example, fix_commit_hash, fix_description, fix_files, session_id, confidence, times_seen, times_fixed, last_seen_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 1, ?)`,
			projectID, signature, errorType, errorMsg, commitHash, message, string(filesJSON), sessionID, confidence, time.Now().UTC())
		return err
	}

	prevConfidence := 0.5
	if v, ok := existing["confidence"].(float64); ok {
		prevConfidence = v
	}
	newConfidence := prevConfidence + 0.1
	if newConfidence > maxConfidence {
		newConfidence = maxConfidence
	}
	_, err = s.Run(ctx,
		`UPDATE error_fix_pairs SET
		   times_seen = times_seen + 1,
		   times_fixed = times_fixed + 1,
		   fix_commit_hash = ?,
		   fix_description = ?,
		   fix_files = ?,
		   confidence = ?,
		   last_seen_at = ?
		 WHERE project_id = ? AND error_signature = ?`,
		commitHash, message, string(filesJSON), newConfidence, time.Now().UTC(), projectID, signature)
	return err
}

// confidenceFor implements the additive confidence formula, clamped at
// maxConfidence: base 0.5, +0.2 if delta<5m else +0.1 if delta<15m, +0.15
// if the commit message mentions a fix, +0.15 if the error's source file
// is among the commit's changed files.
func confidenceFor(delta time.Duration, message, sourceFile string, files []string) float64 {
	confidence := 0.5
	switch {
	case delta < 5*time.Minute:
		confidence += 0.2
	case delta < 15*time.Minute:
		confidence += 0.1
	}
	if fixKeywordPattern.MatchString(message) {
		confidence += 0.15
	}
	if sourceFile != "" {
		for _, f := range files {
			if f == sourceFile {
				confidence += 0.15
				break
			}
		}
	}
	if confidence > maxConfidence {
		confidence = maxConfidence
	}
	return confidence
}

// LookupFix returns the highest-confidence error_fix_pairs row for
// signature at confidence >= 0.4, or nil if none qualifies.
func LookupFix(ctx context.Context, s store.Store, projectID int64, signature string) (*store.ErrorFixPair, error) {
	row, err := s.Get(ctx,
		`SELECT error_signature, error_type, error_example, fix_commit_hash, fix_description, fix_files, confidence, times_seen, times_fixed, last_seen_at
		 FROM error_fix_pairs WHERE project_id = ? AND error_signature = ? AND confidence >= 0.4
		 ORDER BY confidence DESC LIMIT 1`,
		projectID, signature)
	if err != nil {
		return nil, fmt.Errorf("lookup fix: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	var files []string
	_ = json.Unmarshal([]byte(project.AsString(row["fix_files"])), &files)
	timesSeen, _ := project.AsInt64(row["times_seen"])
	timesFixed, _ := project.AsInt64(row["times_fixed"])
	confidence, _ := row["confidence"].(float64)
	return &store.ErrorFixPair{
		Project:        projectID,
		ErrorSignature: project.AsString(row["error_signature"]),
		ErrorType:      project.AsString(row["error_type"]),
		ErrorExample:   project.AsString(row["error_example"]),
		FixCommitHash:  project.AsString(row["fix_commit_hash"]),
		FixDescription: project.AsString(row["fix_description"]),
		FixFiles:       files,
		Confidence:     confidence,
		TimesSeen:      int(timesSeen),
		TimesFixed:     int(timesFixed),
	}, nil
}

func parseStoreTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02T15:04:05Z", s); err == nil {
		return t
	}
	return time.Time{}
}
