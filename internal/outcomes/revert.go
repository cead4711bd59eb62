package outcomes

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"muninn/internal/gitutil"
	"muninn/internal/logging"
	"muninn/internal/project"
	"muninn/internal/store"
)

// MinSchemaVersionRevert gates the revert detector.
const MinSchemaVersionRevert = 1

var (
	revertQuotedPattern = regexp.MustCompile(`(?i)^revert\s+"(.+)"$`)
	revertHashPattern   = regexp.MustCompile(`(?i)^reverts?\s+([0-9a-f]{7,40})\b`)
	revertPrefixPattern = regexp.MustCompile(`(?i)^revert[:\-\s]`)
)

// DetectReverts scans every commit missing a revert_events row for the
// three recognised revert message shapes, resolves the original commit,
// and applies its impact: decays linked learnings' confidence and flags
// overlapping decisions for review.
func DetectReverts(ctx context.Context, s store.Store, projectID int64, repoRoot string) (int, error) {
	if store.SchemaVersionOf(ctx, s) < MinSchemaVersionRevert {
		return 0, nil
	}

	rows, err := s.All(ctx,
		`SELECT gc.id, gc.commit_hash, gc.message, gc.files_changed, gc.session_id
		 FROM git_commits gc
		 LEFT JOIN revert_events re ON re.project_id = gc.project_id AND re.commit_id = gc.id
		 WHERE gc.project_id = ? AND re.commit_id IS NULL`,
		projectID)
	if err != nil {
		return 0, fmt.Errorf("load candidate commits: %w", err)
	}

	detected := 0
	for _, row := range rows {
		commitID, _ := project.AsInt64(row["id"])
		commitHash := project.AsString(row["commit_hash"])
		message := project.AsString(row["message"])

		originalRef, ok := matchRevertMessage(message)
		if !ok {
			// Not a revert; record a processed=0 placeholder isn't needed --
			// only commits we positively classify consume a revert_events row.
			continue
		}

		originalHash := resolveOriginal(ctx, repoRoot, commitHash, originalRef)
		if err := applyRevertImpact(ctx, s, projectID, row, originalHash); err != nil {
			logging.OutcomesWarn("apply revert impact for commit %d failed: %v", commitID, err)
		}

		_, err := s.Run(ctx,
			`INSERT INTO revert_events (project_id, commit_id, original_commit_hash, processed)
			 VALUES (?, ?, ?, 1)
			 ON CONFLICT(project_id, commit_id) DO UPDATE SET original_commit_hash = excluded.original_commit_hash, processed = 1`,
			projectID, commitID, originalHash)
		if err != nil {
			logging.OutcomesWarn("record revert_event failed: %v", err)
			continue
		}
		detected++
	}
	return detected, nil
}

// matchRevertMessage recognises: `Revert "<subject>"`, `revert(s)
// <hash7+>`, or a leading `revert[: -]`. It returns the reference to
// resolve (a subject substring or a hash prefix) and whether any pattern
// matched.
func matchRevertMessage(message string) (ref string, matched bool) {
	message = strings.TrimSpace(message)
	if m := revertQuotedPattern.FindStringSubmatch(message); m != nil {
		return m[1], true
	}
	if m := revertHashPattern.FindStringSubmatch(message); m != nil {
		return m[1], true
	}
	if revertPrefixPattern.MatchString(message) {
		return message, true
	}
	return "", false
}

// resolveOriginal tries a hash-prefix lookup first (ref looks hash-like),
// then falls back to a subject-substring search.
func resolveOriginal(ctx context.Context, repoRoot, excludeHash, ref string) string {
	if regexp.MustCompile(`^[0-9a-f]{7,40}$`).MatchString(ref) {
		if hash, err := gitutil.CommitByHashPrefix(ctx, repoRoot, ref); err == nil && hash != "" {
			return hash
		}
	}
	if hash, err := gitutil.CommitBySubjectSubstring(ctx, repoRoot, ref, excludeHash); err == nil {
		return hash
	}
	return ""
}

// applyRevertImpact decays confidence for learnings reinforced by the
// original commit's session and flags decisions whose affected files
// overlap the revert's changed files as needing review.
func applyRevertImpact(ctx context.Context, s store.Store, projectID int64, revertRow map[string]interface{}, originalHash string) error {
	var revertedFiles []string
	_ = json.Unmarshal([]byte(project.AsString(revertRow["files_changed"])), &revertedFiles)

	if originalHash != "" {
		origRow, err := s.Get(ctx, "SELECT session_id FROM git_commits WHERE project_id = ? AND commit_hash = ?", projectID, originalHash)
		if err == nil && origRow != nil {
			if sessionID, ok := project.AsInt64(origRow["session_id"]); ok {
				if _, err := s.Run(ctx,
					`UPDATE learnings SET confidence = MAX(1, confidence * 0.7)
					 WHERE id IN (
					   SELECT target_id FROM relationships
					   WHERE source_type = 'session' AND source_id = ? AND target_type = 'learning'
					 )`, sessionID); err != nil {
					logging.OutcomesWarn("decay learnings for reverted session %d failed: %v", sessionID, err)
				}
			}
		}
	}

	decisionRows, err := s.All(ctx, "SELECT id, affects FROM decisions WHERE project_id = ? AND status = 'active'", projectID)
	if err != nil {
		return fmt.Errorf("load decisions for revert impact: %w", err)
	}
	for _, dr := range decisionRows {
		var affects []string
		_ = json.Unmarshal([]byte(project.AsString(dr["affects"])), &affects)
		if !overlaps(affects, revertedFiles) {
			continue
		}
		decisionID, _ := project.AsInt64(dr["id"])
		if _, err := s.Run(ctx, "UPDATE decisions SET outcome_status = ? WHERE id = ?", store.OutcomeNeedsReview, decisionID); err != nil {
			logging.OutcomesWarn("flag decision %d needs_review failed: %v", decisionID, err)
		}
	}
	return nil
}

func overlaps(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, x := range a {
		set[x] = true
	}
	for _, y := range b {
		if set[y] {
			return true
		}
	}
	return false
}
