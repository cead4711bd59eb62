package query

import (
	"context"
	"fmt"
	"strings"

	muctx "muninn/internal/context"
	"muninn/internal/embedding"
	"muninn/internal/logging"
	"muninn/internal/project"
	"muninn/internal/store"
)

// Resource URIs. Each is recomputed on every read -- none is
// cached beyond whatever caching its underlying query already does (e.g.
// the workflow prediction cache).
const (
	ResourceContextCurrent = "context/current"
	ResourceContextErrors  = "context/errors"
	ResourceWarningsActive = "warnings/active"
	ResourceContextShared  = "context/shared"
	ResourceBriefing       = "briefing"
)

// Resource renders one of the pull-only resource URIs as plain text.
func Resource(ctx context.Context, s store.Store, engine embedding.EmbeddingEngine, projectID int64, uri string) (string, error) {
	timer := logging.StartTimer(logging.CategoryQuery, "Resource:"+uri)
	defer timer.Stop()

	switch uri {
	case ResourceContextCurrent:
		return resourceContextCurrent(ctx, s, engine, projectID)
	case ResourceContextErrors:
		return resourceContextErrors(ctx, s, projectID)
	case ResourceWarningsActive:
		return resourceWarningsActive(ctx, s, projectID)
	case ResourceContextShared:
		return resourceContextShared(ctx, s, projectID)
	case ResourceBriefing:
		return resourceBriefing(ctx, s, projectID)
	default:
		return "", fmt.Errorf("unknown resource uri %q", uri)
	}
}

// resourceContextCurrent assembles a fresh, query-less context block: the
// assembler's recency fallback path over the project's most-referenced
// knowledge, formatted for direct human reading.
func resourceContextCurrent(ctx context.Context, s store.Store, engine embedding.EmbeddingEngine, projectID int64) (string, error) {
	req := muctx.Request{ProjectID: projectID, Format: muctx.FormatMarkdown, MaxTokens: 800, Strategy: muctx.StrategyBalanced}
	res, err := muctx.BuildContext(ctx, s, engine, req, nil, nil)
	if err != nil {
		return "", fmt.Errorf("context/current: %w", err)
	}
	return res.Text, nil
}

// resourceContextErrors lists the project's most recent error events.
func resourceContextErrors(ctx context.Context, s store.Store, projectID int64) (string, error) {
	rows, err := s.All(ctx,
		`SELECT error_type, error_message, source_file, created_at FROM error_events
		 WHERE project_id = ? ORDER BY created_at DESC LIMIT 20`, projectID)
	if err != nil {
		return "", fmt.Errorf("context/errors: %w", err)
	}
	if len(rows) == 0 {
		return "No recent errors.", nil
	}
	var b strings.Builder
	for _, row := range rows {
		file := project.AsString(row["source_file"])
		if file == "" {
			file = "(unknown file)"
		}
		fmt.Fprintf(&b, "[%s] %s: %s (%s)\n",
			project.AsString(row["created_at"]), project.AsString(row["error_type"]),
			truncate(project.AsString(row["error_message"]), 200), file)
	}
	return b.String(), nil
}

// resourceWarningsActive lists undismissed risk alerts (the risk scanner's output),
// most severe first.
func resourceWarningsActive(ctx context.Context, s store.Store, projectID int64) (string, error) {
	rows, err := s.All(ctx,
		`SELECT alert_type, severity, title, source_file, created_at FROM risk_alerts
		 WHERE project_id = ? AND dismissed = 0
		 ORDER BY CASE severity WHEN 'critical' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END, created_at DESC`,
		projectID)
	if err != nil {
		return "", fmt.Errorf("warnings/active: %w", err)
	}
	if len(rows) == 0 {
		return "No active warnings.", nil
	}
	var b strings.Builder
	for _, row := range rows {
		file := project.AsString(row["source_file"])
		suffix := ""
		if file != "" {
			suffix = " (" + file + ")"
		}
		fmt.Fprintf(&b, "[%s/%s] %s%s\n",
			strings.ToUpper(project.AsString(row["severity"])), project.AsString(row["alert_type"]),
			project.AsString(row["title"]), suffix)
	}
	return b.String(), nil
}

// resourceContextShared lists every other agent's currently declared
// intent, so a caller can avoid stepping on in-flight work.
func resourceContextShared(ctx context.Context, s store.Store, projectID int64) (string, error) {
	intents, err := muctx.QueryIntents(ctx, s, projectID, "")
	if err != nil {
		return "", fmt.Errorf("context/shared: %w", err)
	}
	if len(intents) == 0 {
		return "No other agents have declared active intents.", nil
	}
	var b strings.Builder
	for _, in := range intents {
		fmt.Fprintf(&b, "%s is %s on %s: %s (expires %s)\n",
			in.Agent, in.Type, strings.Join(in.TargetFiles, ", "), in.Description, in.ExpiresAt)
	}
	return b.String(), nil
}

// resourceBriefing composes a short session-start summary: open critical
// issues, active decisions, and the project's most often applied
// learnings -- the read-only equivalent of what a human teammate would
// tell you before you start working.
func resourceBriefing(ctx context.Context, s store.Store, projectID int64) (string, error) {
	var b strings.Builder

	projRow, err := s.Get(ctx, "SELECT name, stack FROM projects WHERE id = ?", projectID)
	if err != nil {
		return "", fmt.Errorf("briefing: load project: %w", err)
	}
	if projRow != nil {
		fmt.Fprintf(&b, "Project: %s (%s)\n\n", project.AsString(projRow["name"]), project.AsString(projRow["stack"]))
	}

	issueRows, err := s.All(ctx,
		"SELECT title, severity FROM issues WHERE project_id = ? AND status = 'open' AND severity >= 7 ORDER BY severity DESC LIMIT 5",
		projectID)
	if err != nil {
		return "", fmt.Errorf("briefing: load issues: %w", err)
	}
	if len(issueRows) > 0 {
		b.WriteString("Critical open issues:\n")
		for _, row := range issueRows {
			sev, _ := project.AsInt64(row["severity"])
			fmt.Fprintf(&b, "  - (%d) %s\n", sev, project.AsString(row["title"]))
		}
		b.WriteString("\n")
	}

	decisionRows, err := s.All(ctx,
		"SELECT title FROM decisions WHERE project_id = ? AND status = 'active' ORDER BY updated_at DESC LIMIT 5",
		projectID)
	if err != nil {
		return "", fmt.Errorf("briefing: load decisions: %w", err)
	}
	if len(decisionRows) > 0 {
		b.WriteString("Recent active decisions:\n")
		for _, row := range decisionRows {
			fmt.Fprintf(&b, "  - %s\n", project.AsString(row["title"]))
		}
		b.WriteString("\n")
	}

	learningRows, err := s.All(ctx,
		"SELECT title FROM learnings WHERE (project_id = ? OR project_id IS NULL) AND archived_at IS NULL ORDER BY times_applied DESC LIMIT 5",
		projectID)
	if err != nil {
		return "", fmt.Errorf("briefing: load learnings: %w", err)
	}
	if len(learningRows) > 0 {
		b.WriteString("Top applied learnings:\n")
		for _, row := range learningRows {
			fmt.Fprintf(&b, "  - %s\n", project.AsString(row["title"]))
		}
	}

	if b.Len() == 0 {
		return "Nothing notable to report.", nil
	}
	return b.String(), nil
}
