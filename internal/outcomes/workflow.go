package outcomes

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"muninn/internal/logging"
	"muninn/internal/project"
	"muninn/internal/store"
)

// MinSchemaVersionWorkflow gates the workflow predictor.
const MinSchemaVersionWorkflow = 1

// Workflow model constants: trigram context, Laplace-smoothed
// confidence, a minimum confidence floor below which a prediction isn't
// worth surfacing, and a short in-process prediction cache.
const (
	trigramSize            = 3
	workflowLaplaceAlpha   = 1.0
	workflowMinConfidence  = 0.5
	workflowCacheTTL       = 60 * time.Second
	workflowTrainingWindow = 2000
)

type workflowCacheEntry struct {
	expires time.Time
	tool    string
	conf    float64
}

var (
	workflowCacheMu sync.Mutex
	workflowCache   = make(map[string]workflowCacheEntry)
)

// TrainWorkflowModel rebuilds workflow_predictions from the project's
// recent tool_calls sequence: every trigram of consecutive tool names is
// a trigger, the tool that followed is the predicted outcome, this pass's
// counts are upserted over the previous pass's, and confidence is
// Laplace-smoothed as (n+1)/(total+2) over the trigger's occurrences.
func TrainWorkflowModel(ctx context.Context, s store.Store, projectID int64) error {
	if store.SchemaVersionOf(ctx, s) < MinSchemaVersionWorkflow {
		return nil
	}

	rows, err := s.All(ctx,
		`SELECT tool_name FROM tool_calls WHERE project_id = ? ORDER BY created_at DESC LIMIT ?`,
		projectID, workflowTrainingWindow)
	if err != nil {
		return fmt.Errorf("load tool call sequence: %w", err)
	}

	// Rows came back newest-first; reverse to chronological order.
	tools := make([]string, len(rows))
	for i, row := range rows {
		tools[len(rows)-1-i] = project.AsString(row["tool_name"])
	}
	if len(tools) <= trigramSize {
		return nil
	}

	counts := make(map[string]map[string]int)
	for i := 0; i+trigramSize < len(tools); i++ {
		trigger := strings.Join(tools[i:i+trigramSize], ">")
		outcome := tools[i+trigramSize]
		if counts[trigger] == nil {
			counts[trigger] = make(map[string]int)
		}
		counts[trigger][outcome]++
	}

	for trigger, outcomes := range counts {
		var total int
		for _, n := range outcomes {
			total += n
		}
		for tool, n := range outcomes {
			if n < 2 {
				continue
			}
			confidence := (float64(n) + workflowLaplaceAlpha) / (float64(total) + 2*workflowLaplaceAlpha)
			_, err := s.Run(ctx,
				`INSERT INTO workflow_predictions (project_id, trigger_sequence, predicted_tool, times_correct, times_total, confidence)
				 VALUES (?, ?, ?, 0, ?, ?)
				 ON CONFLICT(project_id, trigger_sequence, predicted_tool) DO UPDATE SET
				   times_total = excluded.times_total, confidence = excluded.confidence`,
				projectID, trigger, tool, n, confidence)
			if err != nil {
				logging.OutcomesWarn("upsert workflow_predictions %s->%s failed: %v", trigger, tool, err)
			}
		}
	}

	workflowCacheMu.Lock()
	workflowCache = make(map[string]workflowCacheEntry)
	workflowCacheMu.Unlock()
	return nil
}

// PredictNextTool returns the highest-confidence predicted tool for the
// given trigger sequence (the last 3 observed tool names, oldest
// first), if its confidence clears workflowMinConfidence. Results are
// cached in-process for workflowCacheTTL to avoid hammering the store
// during bursty tool-call sequences within one session.
func PredictNextTool(ctx context.Context, s store.Store, projectID int64, recentTools []string) (tool string, confidence float64, ok bool) {
	if len(recentTools) < trigramSize {
		return "", 0, false
	}
	trigger := strings.Join(recentTools[len(recentTools)-trigramSize:], ">")
	cacheKey := fmt.Sprintf("%d:%s", projectID, trigger)

	workflowCacheMu.Lock()
	if entry, found := workflowCache[cacheKey]; found && time.Now().Before(entry.expires) {
		workflowCacheMu.Unlock()
		if entry.tool == "" {
			return "", 0, false
		}
		return entry.tool, entry.conf, true
	}
	workflowCacheMu.Unlock()

	row, err := s.Get(ctx,
		`SELECT predicted_tool, confidence FROM workflow_predictions
		 WHERE project_id = ? AND trigger_sequence = ? ORDER BY confidence DESC LIMIT 1`,
		projectID, trigger)

	var result workflowCacheEntry
	result.expires = time.Now().Add(workflowCacheTTL)
	if err == nil && row != nil {
		conf, _ := row["confidence"].(float64)
		if conf >= workflowMinConfidence {
			result.tool = project.AsString(row["predicted_tool"])
			result.conf = conf
		}
	}

	workflowCacheMu.Lock()
	workflowCache[cacheKey] = result
	workflowCacheMu.Unlock()

	if result.tool == "" {
		return "", 0, false
	}
	return result.tool, result.conf, true
}

// RecordPredictionOutcome updates times_correct for a trigger/tool pair
// once the actual next tool is observed, used to track the predictor's
// live accuracy.
func RecordPredictionOutcome(ctx context.Context, s store.Store, projectID int64, recentTools []string, actualTool string) error {
	if len(recentTools) < trigramSize {
		return nil
	}
	trigger := strings.Join(recentTools[len(recentTools)-trigramSize:], ">")
	_, err := s.Run(ctx,
		`UPDATE workflow_predictions SET times_correct = times_correct + 1
		 WHERE project_id = ? AND trigger_sequence = ? AND predicted_tool = ?`,
		projectID, trigger, actualTool)
	return err
}
