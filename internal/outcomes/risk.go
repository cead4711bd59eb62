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

// MinSchemaVersionRisk gates the risk-alert scanner.
const MinSchemaVersionRisk = 1

// Risk alert type and severity vocabularies.
const (
	AlertFragileChurn     = "fragile_churn"
	AlertStaleDecision    = "stale_decision"
	AlertIssueBacklog     = "issue_backlog"
	AlertKnowledgeStale   = "knowledge_staleness"
	AlertLowConfidenceGlut = "low_confidence_glut"

	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

const (
	fragileChurnThreshold     = 8
	fragileChurnWindow        = 14 * 24 * time.Hour
	staleDecisionWindow       = 90 * 24 * time.Hour
	criticalIssueBacklogCount = 5
	criticalIssueSeverityMin  = 7
	staleKnowledgeWindow      = 180 * 24 * time.Hour
	lowConfidenceGlutCount    = 10
	lowConfidenceGlutMax      = 1.5
	dismissedAlertPurgeWindow = 30 * 24 * time.Hour
)

// ScanRiskAlerts runs every risk-detection pass and purges dismissed
// alerts older than 30 days.
func ScanRiskAlerts(ctx context.Context, s store.Store, projectID int64) (int, error) {
	if store.SchemaVersionOf(ctx, s) < MinSchemaVersionRisk {
		return 0, nil
	}

	raised := 0
	for _, scan := range []func(context.Context, store.Store, int64) (int, error){
		scanFragileChurn,
		scanStaleDecisions,
		scanIssueBacklog,
		scanKnowledgeStaleness,
		scanLowConfidenceGlut,
	} {
		n, err := scan(ctx, s, projectID)
		if err != nil {
			logging.OutcomesWarn("risk scan failed: %v", err)
			continue
		}
		raised += n
	}

	if _, err := s.Run(ctx,
		"DELETE FROM risk_alerts WHERE project_id = ? AND dismissed = 1 AND created_at < ?",
		projectID, time.Now().UTC().Add(-dismissedAlertPurgeWindow)); err != nil {
		logging.OutcomesWarn("purge dismissed alerts failed: %v", err)
	}
	return raised, nil
}

func raiseAlert(ctx context.Context, s store.Store, projectID int64, alertType, severity, title, details, sourceFile string) error {
	existing, err := s.Get(ctx,
		`SELECT id FROM risk_alerts WHERE project_id = ? AND alert_type = ? AND title = ? AND dismissed = 0`,
		projectID, alertType, title)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	_, err = s.Run(ctx,
		`INSERT INTO risk_alerts (project_id, alert_type, severity, title, details, source_file, dismissed)
		 VALUES (?, ?, ?, ?, ?, ?, 0)`,
		projectID, alertType, severity, title, details, sourceFile)
	return err
}

// scanFragileChurn flags files with fragility>=8 changed >=3 times in
// the last 14 days.
func scanFragileChurn(ctx context.Context, s store.Store, projectID int64) (int, error) {
	cutoff := time.Now().UTC().Add(-fragileChurnWindow)
	rows, err := s.All(ctx,
		`SELECT f.id, f.path, f.fragility,
		        (SELECT COUNT(*) FROM git_commits gc WHERE gc.project_id = f.project_id
		           AND gc.committed_at >= ? AND gc.files_changed LIKE '%' || f.path || '%') AS recent_changes
		 FROM files f WHERE f.project_id = ? AND f.fragility >= ? AND f.archived_at IS NULL`,
		cutoff, projectID, fragileChurnThreshold)
	if err != nil {
		return 0, fmt.Errorf("load fragile files: %w", err)
	}

	raised := 0
	for _, row := range rows {
		recent, _ := project.AsInt64(row["recent_changes"])
		if recent < 3 {
			continue
		}
		path := project.AsString(row["path"])
		details := fmt.Sprintf("changed %d times in the last 14 days", recent)
		if err := raiseAlert(ctx, s, projectID, AlertFragileChurn, SeverityHigh,
			"Fragile file under heavy churn: "+path, details, path); err != nil {
			logging.OutcomesWarn("raise fragile-churn alert for %s failed: %v", path, err)
			continue
		}
		raised++
	}
	return raised, nil
}

// scanStaleDecisions flags active decisions with no related session
// activity in 90 days.
func scanStaleDecisions(ctx context.Context, s store.Store, projectID int64) (int, error) {
	cutoff := time.Now().UTC().Add(-staleDecisionWindow)
	rows, err := s.All(ctx,
		"SELECT id, title FROM decisions WHERE project_id = ? AND status = 'active' AND updated_at < ?",
		projectID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("load stale decisions: %w", err)
	}

	raised := 0
	for _, row := range rows {
		title := project.AsString(row["title"])
		if err := raiseAlert(ctx, s, projectID, AlertStaleDecision, SeverityMedium,
			"Stale decision: "+title, "no activity in 90 days", ""); err != nil {
			logging.OutcomesWarn("raise stale-decision alert for %s failed: %v", title, err)
			continue
		}
		raised++
	}
	return raised, nil
}

// scanIssueBacklog flags projects with >=5 open issues at severity>=7.
func scanIssueBacklog(ctx context.Context, s store.Store, projectID int64) (int, error) {
	row, err := s.Get(ctx,
		"SELECT COUNT(*) AS n FROM issues WHERE project_id = ? AND status = 'open' AND severity >= ?",
		projectID, criticalIssueSeverityMin)
	if err != nil || row == nil {
		return 0, err
	}
	n, _ := project.AsInt64(row["n"])
	if n < criticalIssueBacklogCount {
		return 0, nil
	}
	details := fmt.Sprintf("%d open critical-severity issues", n)
	if err := raiseAlert(ctx, s, projectID, AlertIssueBacklog, SeverityCritical,
		"Critical issue backlog building up", details, ""); err != nil {
		return 0, err
	}
	return 1, nil
}

// scanKnowledgeStaleness flags hot/warm files never referenced in 180 days.
func scanKnowledgeStaleness(ctx context.Context, s store.Store, projectID int64) (int, error) {
	cutoff := time.Now().UTC().Add(-staleKnowledgeWindow)
	rows, err := s.All(ctx,
		`SELECT path FROM files WHERE project_id = ? AND temperature IN ('hot','warm')
		   AND last_referenced_at < ? AND archived_at IS NULL`,
		projectID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("load stale knowledge: %w", err)
	}

	raised := 0
	for _, row := range rows {
		path := project.AsString(row["path"])
		if err := raiseAlert(ctx, s, projectID, AlertKnowledgeStale, SeverityLow,
			"Knowledge going stale: "+path, "not referenced in 180 days", path); err != nil {
			logging.OutcomesWarn("raise knowledge-staleness alert for %s failed: %v", path, err)
			continue
		}
		raised++
	}
	return raised, nil
}

// scanLowConfidenceGlut flags a project with >=10 learnings at
// confidence<=1.5, suggesting noisy or unvetted reinforcement.
func scanLowConfidenceGlut(ctx context.Context, s store.Store, projectID int64) (int, error) {
	row, err := s.Get(ctx,
		`SELECT COUNT(*) AS n FROM learnings
		 WHERE (project_id = ? OR project_id IS NULL) AND archived_at IS NULL AND confidence <= ?`,
		projectID, lowConfidenceGlutMax)
	if err != nil || row == nil {
		return 0, err
	}
	n, _ := project.AsInt64(row["n"])
	if n < lowConfidenceGlutCount {
		return 0, nil
	}
	details := fmt.Sprintf("%d learnings at or below confidence %.1f", n, lowConfidenceGlutMax)
	if err := raiseAlert(ctx, s, projectID, AlertLowConfidenceGlut, SeverityMedium,
		"Low-confidence learning glut", details, ""); err != nil {
		return 0, err
	}
	return 1, nil
}

// marshalDetails is a small helper for alerts that want structured details.
func marshalDetails(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
