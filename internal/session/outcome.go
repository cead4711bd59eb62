package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"muninn/internal/project"
	"muninn/internal/store"
)

// OutcomeInferrer classifies a just-ended session from observable
// signals, returning a short outcome description and a success code:
// 2 = productive, 1 = mixed/neutral, 0 = failed.
type OutcomeInferrer func(ctx context.Context, s store.Store, projectID, sessionID int64) (outcome string, success int)

// InferOutcome is the default inferrer: it scores the session window on
// commits produced, the latest test result, the error-event rate per
// tool call, and time spent, then maps the balance to a success code.
func InferOutcome(ctx context.Context, s store.Store, projectID, sessionID int64) (string, int) {
	sessionRow, err := s.Get(ctx, "SELECT started_at FROM sessions WHERE id = ?", sessionID)
	if err != nil || sessionRow == nil {
		return "", 1
	}
	startedAt := parseSessionTime(project.AsString(sessionRow["started_at"]))

	commits := countRows(ctx, s,
		"SELECT COUNT(*) AS n FROM git_commits WHERE project_id = ? AND session_id = ?", projectID, sessionID)
	toolCalls := countRows(ctx, s,
		"SELECT COUNT(*) AS n FROM tool_calls WHERE project_id = ? AND session_id = ?", projectID, sessionID)
	errors := countRows(ctx, s,
		"SELECT COUNT(*) AS n FROM error_events WHERE project_id = ? AND session_id = ?", projectID, sessionID)

	testsPassed, testsSeen := latestTestOutcome(ctx, s, projectID, startedAt)

	score := 0
	if commits > 0 {
		score += 2
	}
	if testsSeen {
		if testsPassed {
			score++
		} else {
			score -= 2
		}
	}
	if toolCalls > 0 && float64(errors)/float64(toolCalls) > 0.3 {
		score -= 2
	}
	// Very short sessions with no commits carry no real signal.
	if commits == 0 && time.Since(startedAt) < 5*time.Minute {
		return describeOutcome(commits, errors, testsSeen, testsPassed), 1
	}

	switch {
	case score >= 2:
		return describeOutcome(commits, errors, testsSeen, testsPassed), 2
	case score <= -2:
		return describeOutcome(commits, errors, testsSeen, testsPassed), 0
	}
	return describeOutcome(commits, errors, testsSeen, testsPassed), 1
}

func describeOutcome(commits, errors int64, testsSeen, testsPassed bool) string {
	var parts []string
	if commits > 0 {
		parts = append(parts, fmt.Sprintf("%d commit(s)", commits))
	}
	if testsSeen {
		if testsPassed {
			parts = append(parts, "tests passing")
		} else {
			parts = append(parts, "tests failing")
		}
	}
	if errors > 0 {
		parts = append(parts, fmt.Sprintf("%d error(s) observed", errors))
	}
	if len(parts) == 0 {
		return "no observable changes"
	}
	return strings.Join(parts, ", ")
}

func latestTestOutcome(ctx context.Context, s store.Store, projectID int64, since time.Time) (passed, seen bool) {
	row, err := s.Get(ctx,
		`SELECT status FROM test_results WHERE project_id = ? AND created_at >= ?
		 ORDER BY created_at DESC LIMIT 1`, projectID, since)
	if err != nil || row == nil {
		return false, false
	}
	return project.AsString(row["status"]) == "passed", true
}

func countRows(ctx context.Context, s store.Store, query string, args ...interface{}) int64 {
	row, err := s.Get(ctx, query, args...)
	if err != nil || row == nil {
		return 0
	}
	n, _ := project.AsInt64(row["n"])
	return n
}

// summarizeToolCalls produces the top-10 tool-name summary written into
// the closing session row, e.g. "Edit x14, Read x9, Bash x3".
func summarizeToolCalls(ctx context.Context, s store.Store, sessionID int64) (string, error) {
	rows, err := s.All(ctx,
		`SELECT tool_name, COUNT(*) AS n FROM tool_calls WHERE session_id = ?
		 GROUP BY tool_name ORDER BY n DESC, tool_name ASC LIMIT 10`, sessionID)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", nil
	}

	type toolCount struct {
		name string
		n    int64
	}
	counts := make([]toolCount, 0, len(rows))
	for _, row := range rows {
		n, _ := project.AsInt64(row["n"])
		counts = append(counts, toolCount{name: project.AsString(row["tool_name"]), n: n})
	}
	sort.SliceStable(counts, func(i, j int) bool { return counts[i].n > counts[j].n })

	parts := make([]string, 0, len(counts))
	for _, c := range counts {
		parts = append(parts, fmt.Sprintf("%s x%d", c.name, c.n))
	}
	return strings.Join(parts, ", "), nil
}

func parseSessionTime(v string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02 15:04:05.999999999-07:00"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}
