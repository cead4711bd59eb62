package outcomes

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"muninn/internal/logging"
	"muninn/internal/project"
	"muninn/internal/store"
)

// MinSchemaVersionAggregate gates the lighter-weight analyses below.
const MinSchemaVersionAggregate = 1

// decisionObservationWindow is how long a decision is given to prove
// itself before the tracker infers succeeded/failed from surrounding
// signal when no explicit outcome_status has been set.
const decisionObservationWindow = 21 * 24 * time.Hour

// TrackDecisionOutcomes infers outcome_status for still-pending
// decisions past the observation window: failed if an open issue's
// affected_files names one of the decision's affected files, succeeded
// otherwise. Reverted decisions have already left 'pending' via the
// revert detector's needs_review flag.
func TrackDecisionOutcomes(ctx context.Context, s store.Store, projectID int64) (int, error) {
	if store.SchemaVersionOf(ctx, s) < MinSchemaVersionAggregate {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-decisionObservationWindow)
	rows, err := s.All(ctx,
		`SELECT id, affects FROM decisions
		 WHERE project_id = ? AND status = 'active' AND outcome_status = 'pending' AND created_at < ?`,
		projectID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("load pending decisions: %w", err)
	}

	updated := 0
	for _, row := range rows {
		decisionID, _ := project.AsInt64(row["id"])
		var affected []string
		_ = json.Unmarshal([]byte(project.AsString(row["affects"])), &affected)

		flagged := false
		for _, f := range affected {
			issueRow, err := s.Get(ctx,
				`SELECT COUNT(*) AS n FROM issues
				 WHERE project_id = ? AND status = 'open' AND affected_files LIKE '%' || ? || '%'`,
				projectID, f)
			if err == nil && issueRow != nil {
				if n, _ := project.AsInt64(issueRow["n"]); n > 0 {
					flagged = true
				}
			}
		}

		outcome := store.OutcomeSucceeded
		if flagged {
			outcome = store.OutcomeFailed
		}
		if _, err := s.Run(ctx, "UPDATE decisions SET outcome_status = ? WHERE id = ?", outcome, decisionID); err != nil {
			logging.OutcomesWarn("track decision outcome %d failed: %v", decisionID, err)
			continue
		}
		updated++
	}
	return updated, nil
}

// CalibrateConfidence compares each learning's historical reinforcement
// ratio (positive vs negative injections) against its current
// confidence, nudging confidence toward the observed ratio when they
// diverge by more than 20%, so the number stays meaningful rather than
// drifting purely from streak order.
func CalibrateConfidence(ctx context.Context, s store.Store, projectID int64) (int, error) {
	if store.SchemaVersionOf(ctx, s) < MinSchemaVersionAggregate {
		return 0, nil
	}
	rows, err := s.All(ctx,
		`SELECT l.id, l.confidence,
		   SUM(CASE WHEN ci.relevance_signal = 'positive' THEN 1 ELSE 0 END) AS pos,
		   SUM(CASE WHEN ci.relevance_signal = 'negative' THEN 1 ELSE 0 END) AS neg
		 FROM learnings l
		 JOIN context_injections ci ON ci.source_type = 'learning' AND ci.source_id = l.id
		 WHERE (l.project_id = ? OR l.project_id IS NULL)
		 GROUP BY l.id HAVING (pos + neg) >= 5`,
		projectID)
	if err != nil {
		return 0, fmt.Errorf("load calibration candidates: %w", err)
	}

	calibrated := 0
	for _, row := range rows {
		id, _ := project.AsInt64(row["id"])
		confidence, _ := row["confidence"].(float64)
		pos, _ := project.AsInt64(row["pos"])
		neg, _ := project.AsInt64(row["neg"])
		total := pos + neg
		if total == 0 {
			continue
		}
		observedRatio := float64(pos) / float64(total)
		targetConfidence := clampConfidence(observedRatio * confidenceMax)

		if absFloat(targetConfidence-confidence) <= 0.2*confidence {
			continue
		}
		blended := clampConfidence(confidence*0.7 + targetConfidence*0.3)
		if _, err := s.Run(ctx, "UPDATE learnings SET confidence = ? WHERE id = ?", blended, id); err != nil {
			logging.OutcomesWarn("calibrate learning %d failed: %v", id, err)
			continue
		}
		calibrated++
	}
	return calibrated, nil
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// ProcessContextFeedback reads explicit relevance feedback recorded
// against a context_injections row (set elsewhere by the query surface
// when an agent acts on or ignores injected context) and applies it:
// learnings get reinforced via reinforceLearning, and a file source gets
// its last_referenced_at bumped on a positive signal. Other source types
// (decisions, issues) are left unchanged.
func ProcessContextFeedback(ctx context.Context, s store.Store, injectionID int64, signal string) error {
	row, err := s.Get(ctx, "SELECT project_id, source_type, source_id FROM context_injections WHERE id = ?", injectionID)
	if err != nil || row == nil {
		return fmt.Errorf("load context injection %d: %w", injectionID, err)
	}
	sourceType := project.AsString(row["source_type"])
	sourceID, ok := project.AsInt64(row["source_id"])
	if !ok {
		return nil
	}

	switch sourceType {
	case "learning":
		return reinforceLearning(ctx, s, sourceID, signal)
	case "file":
		if signal == SignalPositive {
			_, err := s.Run(ctx, "UPDATE files SET last_referenced_at = ? WHERE id = ?", time.Now().UTC(), sourceID)
			return err
		}
	}
	return nil
}

// ProcessSessionContextFeedback applies every explicit relevance signal
// recorded against the session's context injections. Per-injection
// failures are logged and skipped so one bad row never stalls the pass.
func ProcessSessionContextFeedback(ctx context.Context, s store.Store, projectID, sessionID int64) (int, error) {
	if store.SchemaVersionOf(ctx, s) < MinSchemaVersionAggregate {
		return 0, nil
	}
	sessionRow, err := s.Get(ctx, "SELECT started_at, ended_at FROM sessions WHERE id = ?", sessionID)
	if err != nil || sessionRow == nil {
		return 0, fmt.Errorf("load session %d: %w", sessionID, err)
	}
	startedAt := parseStoreTime(project.AsString(sessionRow["started_at"]))
	endedAt := time.Now().UTC()
	if e := project.AsString(sessionRow["ended_at"]); e != "" {
		endedAt = parseStoreTime(e)
	}

	rows, err := s.All(ctx,
		`SELECT id, relevance_signal FROM context_injections
		 WHERE project_id = ? AND relevance_signal IS NOT NULL AND relevance_signal != ''
		   AND created_at BETWEEN ? AND ?`,
		projectID, startedAt, endedAt)
	if err != nil {
		return 0, fmt.Errorf("load session %d injections: %w", sessionID, err)
	}

	processed := 0
	for _, row := range rows {
		id, _ := project.AsInt64(row["id"])
		signal := project.AsString(row["relevance_signal"])
		if err := ProcessContextFeedback(ctx, s, id, signal); err != nil {
			logging.OutcomesWarn("context feedback for injection %d failed: %v", id, err)
			continue
		}
		processed++
	}
	return processed, nil
}

// DistillStrategies promotes strategy_catalog entries that have
// accumulated enough evidence and confidence into learnings, so a
// detected pattern graduates from raw signal into reusable guidance.
func DistillStrategies(ctx context.Context, s store.Store, projectID int64) (int, error) {
	if store.SchemaVersionOf(ctx, s) < MinSchemaVersionAggregate {
		return 0, nil
	}
	rows, err := s.All(ctx,
		"SELECT id, name, description, confidence, evidence_count FROM strategy_catalog WHERE project_id = ? AND confidence >= 0.8 AND evidence_count >= 8",
		projectID)
	if err != nil {
		return 0, fmt.Errorf("load strong strategies: %w", err)
	}

	distilled := 0
	for _, row := range rows {
		name := project.AsString(row["name"])
		existing, err := s.Get(ctx,
			"SELECT id FROM learnings WHERE project_id = ? AND title = ? AND category = 'strategy'", projectID, name)
		if err == nil && existing != nil {
			continue
		}
		description := project.AsString(row["description"])
		_, err = s.Run(ctx,
			`INSERT INTO learnings (project_id, category, title, content, confidence, times_applied, promotion_status)
			 VALUES (?, 'strategy', ?, ?, 2.0, 0, 'candidate')`,
			projectID, name, description)
		if err != nil {
			logging.OutcomesWarn("distill strategy %s failed: %v", name, err)
			continue
		}
		distilled++
	}
	return distilled, nil
}

// AggregateCrossProjectSignal copies global (project_id IS NULL)
// candidate learnings that have proven themselves independently across
// multiple projects' strategy_catalog entries, promoting cross-cutting
// patterns into the shared knowledge pool.
func AggregateCrossProjectSignal(ctx context.Context, s store.Store) (int, error) {
	if store.SchemaVersionOf(ctx, s) < MinSchemaVersionAggregate {
		return 0, nil
	}
	rows, err := s.All(ctx,
		`SELECT name, description, COUNT(DISTINCT project_id) AS n, AVG(confidence) AS avg_conf
		 FROM strategy_catalog GROUP BY name HAVING n >= 3 AND avg_conf >= 0.7`)
	if err != nil {
		return 0, fmt.Errorf("load cross-project strategies: %w", err)
	}

	promoted := 0
	for _, row := range rows {
		name := project.AsString(row["name"])
		existing, err := s.Get(ctx, "SELECT id FROM learnings WHERE project_id IS NULL AND title = ?", name)
		if err == nil && existing != nil {
			continue
		}
		description := project.AsString(row["description"])
		avgConf, _ := row["avg_conf"].(float64)
		_, err = s.Run(ctx,
			`INSERT INTO learnings (project_id, category, title, content, confidence, times_applied, promotion_status)
			 VALUES (NULL, 'strategy', ?, ?, ?, 0, 'candidate')`,
			name, description, clampConfidence(avgConf*confidenceMax))
		if err != nil {
			logging.OutcomesWarn("promote cross-project strategy %s failed: %v", name, err)
			continue
		}
		promoted++
	}
	return promoted, nil
}
