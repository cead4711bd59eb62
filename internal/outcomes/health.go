package outcomes

import (
	"context"
	"fmt"
	"time"

	"muninn/internal/logging"
	"muninn/internal/project"
	"muninn/internal/store"
)

// MinSchemaVersionHealth gates the health/ROI aggregator.
const MinSchemaVersionHealth = 1

// Health-score component weights: a weighted composite of
// fragility, stale-decision ratio, open-critical-issue ratio, and
// contradiction count, each normalized to [0,1] and inverted so higher
// is healthier.
const (
	weightFragility      = 0.30
	weightStaleDecisions = 0.25
	weightCriticalIssues = 0.25
	weightContradictions = 0.20
)

// ComputeMonthlyHealth aggregates this calendar month's health score and
// ROI into value_metrics, upserting idempotently.
func ComputeMonthlyHealth(ctx context.Context, s store.Store, projectID int64) error {
	if store.SchemaVersionOf(ctx, s) < MinSchemaVersionHealth {
		return nil
	}
	month := time.Now().UTC().Format("2006-01")

	fragilityScore, err := avgFragilityNormalized(ctx, s, projectID)
	if err != nil {
		return fmt.Errorf("avg fragility: %w", err)
	}
	staleRatio, err := staleDecisionRatio(ctx, s, projectID)
	if err != nil {
		return fmt.Errorf("stale decision ratio: %w", err)
	}
	criticalRatio, err := criticalIssueRatio(ctx, s, projectID)
	if err != nil {
		return fmt.Errorf("critical issue ratio: %w", err)
	}
	contradictions, err := contradictionCount(ctx, s, projectID)
	if err != nil {
		return fmt.Errorf("contradiction count: %w", err)
	}
	contradictionScore := normalizeCount(contradictions, 10)

	healthScore := 100 * (1 - (weightFragility*fragilityScore +
		weightStaleDecisions*staleRatio +
		weightCriticalIssues*criticalRatio +
		weightContradictions*contradictionScore))
	if healthScore < 0 {
		healthScore = 0
	}

	roiScore, contextHits, contextMisses, decisionsRecalled, learningsRecalled, err := computeROI(ctx, s, projectID)
	if err != nil {
		return fmt.Errorf("compute roi: %w", err)
	}

	sessionRow, err := s.Get(ctx,
		"SELECT COUNT(*) AS n FROM sessions WHERE project_id = ? AND strftime('%Y-%m', started_at) = ?",
		projectID, month)
	if err != nil {
		return fmt.Errorf("count sessions: %w", err)
	}
	sessionCount, _ := project.AsInt64(sessionRow["n"])

	_, err = s.Run(ctx,
		`INSERT INTO value_metrics (project_id, month, health_score, roi_score, contradictions,
		   context_hits, context_misses, decisions_recalled, learnings_recalled, session_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(project_id, month) DO UPDATE SET
		   health_score = excluded.health_score, roi_score = excluded.roi_score,
		   contradictions = excluded.contradictions, context_hits = excluded.context_hits,
		   context_misses = excluded.context_misses, decisions_recalled = excluded.decisions_recalled,
		   learnings_recalled = excluded.learnings_recalled, session_count = excluded.session_count`,
		projectID, month, healthScore, roiScore, contradictions,
		contextHits, contextMisses, decisionsRecalled, learningsRecalled, sessionCount)
	if err != nil {
		logging.OutcomesWarn("upsert value_metrics failed: %v", err)
	}
	return err
}

func avgFragilityNormalized(ctx context.Context, s store.Store, projectID int64) (float64, error) {
	row, err := s.Get(ctx,
		"SELECT AVG(fragility) AS avg_fragility FROM files WHERE project_id = ? AND archived_at IS NULL", projectID)
	if err != nil || row == nil {
		return 0, err
	}
	avg, _ := row["avg_fragility"].(float64)
	return avg / 10.0, nil
}

func staleDecisionRatio(ctx context.Context, s store.Store, projectID int64) (float64, error) {
	totalRow, err := s.Get(ctx, "SELECT COUNT(*) AS n FROM decisions WHERE project_id = ? AND status = 'active'", projectID)
	if err != nil || totalRow == nil {
		return 0, err
	}
	total, _ := project.AsInt64(totalRow["n"])
	if total == 0 {
		return 0, nil
	}
	staleRow, err := s.Get(ctx,
		"SELECT COUNT(*) AS n FROM decisions WHERE project_id = ? AND status = 'active' AND updated_at < ?",
		projectID, time.Now().UTC().Add(-staleDecisionWindow))
	if err != nil || staleRow == nil {
		return 0, err
	}
	stale, _ := project.AsInt64(staleRow["n"])
	return float64(stale) / float64(total), nil
}

func criticalIssueRatio(ctx context.Context, s store.Store, projectID int64) (float64, error) {
	totalRow, err := s.Get(ctx, "SELECT COUNT(*) AS n FROM issues WHERE project_id = ?", projectID)
	if err != nil || totalRow == nil {
		return 0, err
	}
	total, _ := project.AsInt64(totalRow["n"])
	if total == 0 {
		return 0, nil
	}
	criticalRow, err := s.Get(ctx,
		"SELECT COUNT(*) AS n FROM issues WHERE project_id = ? AND status = 'open' AND severity >= ?",
		projectID, criticalIssueSeverityMin)
	if err != nil || criticalRow == nil {
		return 0, err
	}
	critical, _ := project.AsInt64(criticalRow["n"])
	return float64(critical) / float64(total), nil
}

func contradictionCount(ctx context.Context, s store.Store, projectID int64) (int64, error) {
	row, err := s.Get(ctx,
		`SELECT COUNT(*) AS n FROM relationships
		 WHERE relationship = ? AND source_type = 'decision' AND source_id IN
		   (SELECT id FROM decisions WHERE project_id = ?)`,
		store.RelContradicts, projectID)
	if err != nil || row == nil {
		return 0, err
	}
	n, _ := project.AsInt64(row["n"])
	return n, nil
}

func normalizeCount(n int64, cap int64) float64 {
	if n >= cap {
		return 1.0
	}
	return float64(n) / float64(cap)
}

// computeROI derives a simple hit-rate-weighted ROI score from
// context_injections feedback recorded this month.
func computeROI(ctx context.Context, s store.Store, projectID int64) (roi float64, hits, misses, decisions, learnings int64, err error) {
	month := time.Now().UTC().Format("2006-01")
	row, err := s.Get(ctx,
		`SELECT
		   SUM(CASE WHEN relevance_signal = 'positive' THEN 1 ELSE 0 END) AS hits,
		   SUM(CASE WHEN relevance_signal = 'negative' THEN 1 ELSE 0 END) AS misses,
		   SUM(CASE WHEN source_type = 'decision' THEN 1 ELSE 0 END) AS decisions,
		   SUM(CASE WHEN source_type = 'learning' THEN 1 ELSE 0 END) AS learnings
		 FROM context_injections
		 WHERE project_id = ? AND strftime('%Y-%m', created_at) = ?`,
		projectID, month)
	if err != nil || row == nil {
		return 0, 0, 0, 0, 0, err
	}
	hits, _ = project.AsInt64(row["hits"])
	misses, _ = project.AsInt64(row["misses"])
	decisions, _ = project.AsInt64(row["decisions"])
	learnings, _ = project.AsInt64(row["learnings"])

	total := hits + misses
	if total == 0 {
		return 0, hits, misses, decisions, learnings, nil
	}
	roi = float64(hits) / float64(total) * 100
	return roi, hits, misses, decisions, learnings, nil
}
