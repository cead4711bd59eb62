package context

import (
	"context"
	"fmt"

	"muninn/internal/logging"
	"muninn/internal/outcomes"
	"muninn/internal/project"
	"muninn/internal/store"
)

// TrajectoryVerdict is what an external trajectory classifier reports
// about the last few tool calls: a stuck/failing pattern, how confident
// it is, and an optional suggestion. The classifier itself is injected;
// its thresholds live with its implementation.
type TrajectoryVerdict struct {
	Pattern    string
	Confidence float64
	Message    string
	Suggestion string
}

// TrajectoryClassifier evaluates the last few observed tool calls for a
// stuck/failing pattern. A nil classifier means no trajectory warning is
// ever produced -- callers without one configured simply omit that signal.
type TrajectoryClassifier func(recentTools []string) *TrajectoryVerdict

// Overlay is everything injected into a context response beyond the
// packed memories themselves.
type Overlay struct {
	MatchingStrategies []string
	StaleItemIDs       []int64
	Trajectory         *TrajectoryVerdict
	Prediction         *PredictionAdvisory
	TaskTypeWarning    string
}

// PredictionAdvisory surfaces the workflow predictor's next-tool guess
// when its confidence clears the advisory threshold.
type PredictionAdvisory struct {
	PredictedTool string
	Confidence    float64
}

const (
	trajectoryMinConfidence = 0.5
	predictionAdvisoryMin   = 0.7
	taskTypeWarnMaxSuccess  = 0.5
	taskTypeWarnMinSessions = 3
)

// buildOverlay assembles the intelligence overlay for a just-scored
// request: matching strategies, stale tags on already-included items,
// a trajectory warning, a prediction advisory, and a task-type warning.
func buildOverlay(ctx context.Context, s store.Store, req Request, packed []Memory, staleItemIDs []int64, recentTools []string, classifier TrajectoryClassifier) Overlay {
	overlay := Overlay{StaleItemIDs: staleItemIDs}

	strategies, err := matchingStrategies(ctx, s, req)
	if err != nil {
		logging.ContextWarn("load matching strategies failed: %v", err)
	}
	overlay.MatchingStrategies = strategies

	if classifier != nil && len(recentTools) >= 3 {
		if v := classifier(recentTools); v != nil && v.Confidence > trajectoryMinConfidence {
			overlay.Trajectory = v
		}
	}

	if tool, confidence, ok := outcomes.PredictNextTool(ctx, s, req.ProjectID, recentTools); ok && confidence > predictionAdvisoryMin {
		overlay.Prediction = &PredictionAdvisory{PredictedTool: tool, Confidence: confidence}
	}

	if req.Task != "" {
		if warning, err := taskTypeWarning(ctx, s, req.ProjectID, req.Task); err != nil {
			logging.ContextWarn("task type warning check failed: %v", err)
		} else {
			overlay.TaskTypeWarning = warning
		}
	}

	return overlay
}

func matchingStrategies(ctx context.Context, s store.Store, req Request) ([]string, error) {
	rows, err := s.All(ctx,
		"SELECT name FROM strategy_catalog WHERE project_id = ? AND confidence >= 0.5 ORDER BY confidence DESC LIMIT 5",
		req.ProjectID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, project.AsString(row["name"]))
	}
	return names, nil
}

// taskTypeWarning flags a task type whose historical success rate across
// at least 3 sessions is below 50%.
func taskTypeWarning(ctx context.Context, s store.Store, projectID int64, taskType string) (string, error) {
	row, err := s.Get(ctx,
		`SELECT COUNT(*) AS n, AVG(CASE WHEN success = ? THEN 1.0 ELSE 0.0 END) AS rate
		 FROM sessions WHERE project_id = ? AND task_type = ? AND ended_at IS NOT NULL`,
		store.SessionSuccess, projectID, taskType)
	if err != nil || row == nil {
		return "", err
	}
	n, _ := project.AsInt64(row["n"])
	if n < taskTypeWarnMinSessions {
		return "", nil
	}
	rate, _ := row["rate"].(float64)
	if rate >= taskTypeWarnMaxSuccess {
		return "", nil
	}
	return fmt.Sprintf("task type %q has historically succeeded in only %.0f%% of %d sessions", taskType, rate*100, n), nil
}
