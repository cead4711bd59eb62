package query

import (
	"context"
	"fmt"
	"time"

	"muninn/internal/logging"
	"muninn/internal/project"
	"muninn/internal/store"
)

// Warning severities, matching the vocabulary risk_alerts already uses so
// callers can render both surfaces the same way.
const (
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityCritical = "critical"
)

// Warning kinds.
const (
	WarnFragile            = "fragile"
	WarnCriticalIssue      = "critical_issue"
	WarnStaleKnowledge     = "stale_knowledge"
	WarnSupersededDecision = "superseded_decision"
)

// fragileThreshold is the fragility score at or above
// which a file earns a "high" severity warning on its own.
const fragileThreshold = 7

// criticalIssueSeverity is the issue severity that counts as "critical"
// for check's per-file warning, matching risk.go's backlog threshold.
const criticalIssueSeverity = 7

// staleKnowledgeWindow mirrors risk.go's knowledge-staleness window.
const staleKnowledgeWindow = 180 * 24 * time.Hour

// Warning is one per-file caution surfaced by Check.
type Warning struct {
	File     string
	Kind     string
	Severity string
	Message  string
}

// Check inspects each named file and returns warnings for fragility>=7,
// open critical issues naming the file, knowledge staleness, and
// decisions affecting the file that have been superseded. A file with
// none of these conditions produces no warnings at all.
func Check(ctx context.Context, s store.Store, projectID int64, files []string) ([]Warning, error) {
	timer := logging.StartTimer(logging.CategoryQuery, "Check")
	defer timer.Stop()

	var warnings []Warning
	for _, f := range files {
		ws, err := checkOne(ctx, s, projectID, f)
		if err != nil {
			logging.QueryWarn("check %s failed: %v", f, err)
			continue
		}
		warnings = append(warnings, ws...)
	}
	return warnings, nil
}

func checkOne(ctx context.Context, s store.Store, projectID int64, path string) ([]Warning, error) {
	var out []Warning

	row, err := s.Get(ctx,
		"SELECT fragility, fragility_reason, temperature, last_referenced_at FROM files WHERE project_id = ? AND path = ? AND archived_at IS NULL",
		projectID, path)
	if err != nil {
		return nil, fmt.Errorf("load file %s: %w", path, err)
	}
	if row != nil {
		fragility, _ := project.AsInt64(row["fragility"])
		if fragility >= fragileThreshold {
			reason := project.AsString(row["fragility_reason"])
			msg := fmt.Sprintf("fragility %d/10", fragility)
			if reason != "" {
				msg += ": " + reason
			}
			out = append(out, Warning{File: path, Kind: WarnFragile, Severity: SeverityHigh, Message: msg})
		}
		if lr := project.AsString(row["last_referenced_at"]); lr != "" {
			if t, perr := parseStoreTimestamp(lr); perr == nil && time.Since(t) > staleKnowledgeWindow {
				temp := project.AsString(row["temperature"])
				if temp == "hot" || temp == "warm" {
					out = append(out, Warning{
						File: path, Kind: WarnStaleKnowledge, Severity: SeverityLow,
						Message: "not referenced in over 180 days",
					})
				}
			}
		}
	}

	issueRows, err := s.All(ctx,
		`SELECT title, severity FROM issues
		 WHERE project_id = ? AND status = 'open' AND severity >= ? AND affected_files LIKE '%' || ? || '%'`,
		projectID, criticalIssueSeverity, path)
	if err != nil {
		return out, fmt.Errorf("load issues for %s: %w", path, err)
	}
	for _, ir := range issueRows {
		sev, _ := project.AsInt64(ir["severity"])
		out = append(out, Warning{
			File: path, Kind: WarnCriticalIssue, Severity: SeverityCritical,
			Message: fmt.Sprintf("open issue (severity %d): %s", sev, project.AsString(ir["title"])),
		})
	}

	decisionRows, err := s.All(ctx,
		`SELECT title FROM decisions
		 WHERE project_id = ? AND status = 'superseded' AND affects LIKE '%' || ? || '%'`,
		projectID, path)
	if err != nil {
		return out, fmt.Errorf("load decisions for %s: %w", path, err)
	}
	for _, dr := range decisionRows {
		out = append(out, Warning{
			File: path, Kind: WarnSupersededDecision, Severity: SeverityMedium,
			Message: "affected by a superseded decision: " + project.AsString(dr["title"]),
		})
	}

	return out, nil
}

func parseStoreTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05Z"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
