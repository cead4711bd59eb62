package outcomes

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"muninn/internal/logging"
	"muninn/internal/project"
	"muninn/internal/store"
)

// MinSchemaVersionPatterns gates the pattern detector.
const MinSchemaVersionPatterns = 1

// Insight categories the pattern detector produces.
const (
	PatternFileSequence     = "file_sequence"
	PatternErrorRecurrence  = "error_recurrence"
	PatternExplorationWaste = "exploration_waste"
	PatternToolPreference   = "tool_preference"
)

// minFileSequenceOccurrences, minErrorOccurrences, and
// explorationWasteSessions are the pattern-evidence thresholds.
const (
	minFileSequenceOccurrences = 5
	minErrorOccurrences        = 3
	autoIssueErrorOccurrences  = 5
	explorationWasteSessions   = 3
	toolPreferenceShare        = 0.30
)

// DetectPatterns runs the four pattern-detection passes: recurring
// file-edit sequences, unresolved error recurrence (auto-creating an
// issue past threshold), exploration waste, and tool preference (which
// also updates developer_profile).
func DetectPatterns(ctx context.Context, s store.Store, projectID int64) error {
	if store.SchemaVersionOf(ctx, s) < MinSchemaVersionPatterns {
		return nil
	}
	if err := detectFileSequences(ctx, s, projectID); err != nil {
		logging.OutcomesWarn("detectFileSequences: %v", err)
	}
	if err := detectErrorRecurrence(ctx, s, projectID); err != nil {
		logging.OutcomesWarn("detectErrorRecurrence: %v", err)
	}
	if err := detectExplorationWaste(ctx, s, projectID); err != nil {
		logging.OutcomesWarn("detectExplorationWaste: %v", err)
	}
	if err := detectToolPreference(ctx, s, projectID); err != nil {
		logging.OutcomesWarn("detectToolPreference: %v", err)
	}
	return nil
}

// detectFileSequences finds (readFile, writeFile) pairs where the read
// precedes the write within a session, across >=5 distinct sessions,
// skipping same-directory pairs.
func detectFileSequences(ctx context.Context, s store.Store, projectID int64) error {
	rows, err := s.All(ctx,
		`SELECT session_id, tool_name, files_involved, created_at FROM tool_calls
		 WHERE project_id = ? AND session_id IS NOT NULL ORDER BY session_id, created_at ASC`,
		projectID)
	if err != nil {
		return fmt.Errorf("load tool calls: %w", err)
	}

	type pairKey struct{ a, b string }
	sessionsBySeq := make(map[pairKey]map[int64]bool)

	var curSession int64 = -1
	var readFiles []string
	for _, row := range rows {
		sid, _ := project.AsInt64(row["session_id"])
		if sid != curSession {
			curSession = sid
			readFiles = nil
		}
		tool := project.AsString(row["tool_name"])
		var files []string
		_ = json.Unmarshal([]byte(project.AsString(row["files_involved"])), &files)

		if isReadTool(tool) {
			readFiles = append(readFiles, files...)
			continue
		}
		if isWriteTool(tool) {
			for _, w := range files {
				for _, r := range readFiles {
					if r == w || filepath.Dir(r) == filepath.Dir(w) {
						continue
					}
					key := pairKey{r, w}
					if sessionsBySeq[key] == nil {
						sessionsBySeq[key] = make(map[int64]bool)
					}
					sessionsBySeq[key][sid] = true
				}
			}
		}
	}

	for key, sessions := range sessionsBySeq {
		if len(sessions) < minFileSequenceOccurrences {
			continue
		}
		name := fmt.Sprintf("read-then-write: %s -> %s", key.a, key.b)
		confidence := confidenceFromEvidence(len(sessions))
		if err := upsertStrategy(ctx, s, projectID, name, PatternFileSequence, confidence, len(sessions)); err != nil {
			logging.OutcomesWarn("upsert file-sequence strategy failed: %v", err)
		}
	}
	return nil
}

func isReadTool(tool string) bool {
	switch tool {
	case "Read", "Grep", "Glob":
		return true
	}
	return false
}

func isWriteTool(tool string) bool {
	switch tool {
	case "Write", "Edit", "MultiEdit":
		return true
	}
	return false
}

// detectErrorRecurrence finds error signatures seen >=3 times with no
// known fix (no error_fix_pairs row at usable confidence), auto-creating
// an issue at >=5 occurrences with severity min(8, 5 + n/3).
func detectErrorRecurrence(ctx context.Context, s store.Store, projectID int64) error {
	rows, err := s.All(ctx,
		`SELECT error_signature, error_type, COUNT(*) AS n, MAX(error_message) AS example
		 FROM error_events WHERE project_id = ? GROUP BY error_signature HAVING n >= ?`,
		projectID, minErrorOccurrences)
	if err != nil {
		return fmt.Errorf("load recurring errors: %w", err)
	}

	for _, row := range rows {
		signature := project.AsString(row["error_signature"])
		n, _ := project.AsInt64(row["n"])

		fix, _ := LookupFix(ctx, s, projectID, signature)
		if fix != nil {
			continue
		}

		if n >= autoIssueErrorOccurrences {
			existing, _ := s.Get(ctx,
				"SELECT id FROM issues WHERE project_id = ? AND title = ? AND status = 'open'",
				projectID, "Recurring error: "+signature)
			if existing == nil {
				severity := 5 + int(n/3)
				if severity > 8 {
					severity = 8
				}
				_, err := s.Run(ctx,
					`INSERT INTO issues (project_id, title, description, type, severity, status)
					 VALUES (?, ?, ?, 'recurring_error', ?, 'open')`,
					projectID, "Recurring error: "+signature, project.AsString(row["example"]), severity)
				if err != nil {
					logging.OutcomesWarn("auto-create issue for %s failed: %v", signature, err)
				}
			}
		}

		name := "unresolved recurring error: " + signature
		if err := upsertStrategy(ctx, s, projectID, name, PatternErrorRecurrence, confidenceFromEvidence(int(n)), int(n)); err != nil {
			logging.OutcomesWarn("upsert error-recurrence strategy failed: %v", err)
		}
	}
	return nil
}

// detectExplorationWaste flags >=3 recent sessions with read_count>10
// and write_count<=1.
func detectExplorationWaste(ctx context.Context, s store.Store, projectID int64) error {
	sessionRows, err := s.All(ctx,
		"SELECT id FROM sessions WHERE project_id = ? ORDER BY started_at DESC LIMIT 10", projectID)
	if err != nil {
		return fmt.Errorf("load recent sessions: %w", err)
	}

	wasteful := 0
	for _, sr := range sessionRows {
		sid, _ := project.AsInt64(sr["id"])
		reads, _ := s.Get(ctx,
			`SELECT COUNT(*) AS n FROM tool_calls WHERE session_id = ? AND tool_name IN ('Read','Grep','Glob')`, sid)
		writes, _ := s.Get(ctx,
			`SELECT COUNT(*) AS n FROM tool_calls WHERE session_id = ? AND tool_name IN ('Write','Edit','MultiEdit')`, sid)
		readCount, _ := project.AsInt64(reads["n"])
		writeCount, _ := project.AsInt64(writes["n"])
		if readCount > 10 && writeCount <= 1 {
			wasteful++
		}
	}

	if wasteful >= explorationWasteSessions {
		name := "exploration without output"
		if err := upsertStrategy(ctx, s, projectID, name, PatternExplorationWaste, confidenceFromEvidence(wasteful), wasteful); err != nil {
			return err
		}
	}
	return nil
}

// detectToolPreference finds tools taking >=30% of a project's calls and
// records it in developer_profile.
func detectToolPreference(ctx context.Context, s store.Store, projectID int64) error {
	totalRow, err := s.Get(ctx, "SELECT COUNT(*) AS n FROM tool_calls WHERE project_id = ?", projectID)
	if err != nil || totalRow == nil {
		return err
	}
	total, _ := project.AsInt64(totalRow["n"])
	if total == 0 {
		return nil
	}

	rows, err := s.All(ctx,
		"SELECT tool_name, COUNT(*) AS n FROM tool_calls WHERE project_id = ? GROUP BY tool_name", projectID)
	if err != nil {
		return fmt.Errorf("load tool counts: %w", err)
	}

	for _, row := range rows {
		n, _ := project.AsInt64(row["n"])
		if float64(n)/float64(total) < toolPreferenceShare {
			continue
		}
		tool := project.AsString(row["tool_name"])
		_, err := s.Run(ctx,
			`INSERT INTO developer_profile (project_id, key, value, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(project_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			projectID, "preferred_tool:"+tool, fmt.Sprintf("%.2f", float64(n)/float64(total)), time.Now().UTC())
		if err != nil {
			logging.OutcomesWarn("update developer_profile for %s failed: %v", tool, err)
		}
	}
	return nil
}

func confidenceFromEvidence(n int) float64 {
	c := 0.4 + 0.05*float64(n)
	if c > 0.95 {
		c = 0.95
	}
	return c
}

func upsertStrategy(ctx context.Context, s store.Store, projectID int64, name, description string, confidence float64, evidence int) error {
	_, err := s.Run(ctx,
		`INSERT INTO strategy_catalog (project_id, name, description, confidence, evidence_count, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(project_id, name) DO UPDATE SET
		   confidence = excluded.confidence, evidence_count = excluded.evidence_count, updated_at = excluded.updated_at`,
		projectID, name, description, confidence, evidence, time.Now().UTC())
	return err
}
