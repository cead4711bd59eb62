package outcomes

import (
	"context"
	"fmt"

	"muninn/internal/codeintel"
	"muninn/internal/logging"
	"muninn/internal/project"
	"muninn/internal/queue"
	"muninn/internal/relate"
	"muninn/internal/store"
)

// RegisterHandlers binds every job type the dispatcher knows about to its
// analysis function. repoRoot is the project's working tree, needed by the
// handlers that shell out to git or run project test scripts.
func RegisterHandlers(d *queue.Dispatcher, projectID int64, repoRoot string) {
	d.Register(queue.JobAnalyzeDiffs, func(ctx context.Context, s store.Store, _ map[string]interface{}) error {
		_, err := ProcessUnanalyzedCommits(ctx, s, projectID)
		return err
	})

	d.Register(queue.JobReindexSymbols, func(ctx context.Context, s store.Store, payload map[string]interface{}) error {
		paths := stringSlice(payload["paths"])
		if len(paths) == 0 {
			walked, err := codeintel.WalkSourceFiles(repoRoot)
			if err != nil {
				return fmt.Errorf("walk source files: %w", err)
			}
			paths = walked
		}
		_, _, failed, err := codeintel.ParseAndPersist(ctx, s, projectID, paths)
		if err != nil {
			return err
		}
		if failed > 0 {
			logging.CodeIntelWarn("reindex_symbols: %d of %d files failed to parse", failed, len(paths))
		}

		var testPaths []string
		for _, p := range paths {
			if codeintel.IsTestPath(p) {
				testPaths = append(testPaths, p)
			}
		}
		if len(testPaths) > 0 {
			rels, relErr := codeintel.TestSourceRelationships(ctx, s, projectID, testPaths)
			if relErr != nil {
				logging.CodeIntelWarn("reindex_symbols: test relationship detection failed: %v", relErr)
			} else if len(rels) > 0 {
				n := relate.InsertBatch(ctx, s, rels)
				logging.CodeIntel("reindex_symbols: linked %d test/source relationships", n)
			}
		}
		return nil
	})

	d.Register(queue.JobBuildCallGraph, func(ctx context.Context, s store.Store, payload map[string]interface{}) error {
		paths := stringSlice(payload["paths"])
		if len(paths) == 0 {
			walked, err := codeintel.WalkSourceFiles(repoRoot)
			if err != nil {
				return fmt.Errorf("walk source files: %w", err)
			}
			paths = walked
		}
		_, _, err := codeintel.ReindexCallGraph(ctx, s, projectID, paths)
		return err
	})

	d.Register(queue.JobRunTests, func(ctx context.Context, s store.Store, _ map[string]interface{}) error {
		_, err := RunTestsAfterCommit(ctx, s, projectID, repoRoot)
		return err
	})

	d.Register(queue.JobDetectReverts, func(ctx context.Context, s store.Store, _ map[string]interface{}) error {
		_, err := DetectReverts(ctx, s, projectID, repoRoot)
		return err
	})

	d.Register(queue.JobRefreshOwnership, func(ctx context.Context, s store.Store, _ map[string]interface{}) error {
		_, err := RefreshOwnership(ctx, s, projectID, repoRoot)
		return err
	})

	d.Register(queue.JobProcessSessionErr, func(ctx context.Context, s store.Store, payload map[string]interface{}) error {
		sessionID, ok := project.AsInt64(payload["session_id"])
		if !ok {
			return fmt.Errorf("process_session_errors: missing session_id")
		}
		_, err := ProcessSessionErrors(ctx, s, projectID, sessionID)
		return err
	})

	d.Register(queue.JobDetectPatterns, func(ctx context.Context, s store.Store, _ map[string]interface{}) error {
		return DetectPatterns(ctx, s, projectID)
	})

	d.Register(queue.JobTrackOutcomes, func(ctx context.Context, s store.Store, _ map[string]interface{}) error {
		_, err := TrackDecisionOutcomes(ctx, s, projectID)
		return err
	})

	d.Register(queue.JobCalibrate, func(ctx context.Context, s store.Store, _ map[string]interface{}) error {
		_, err := CalibrateConfidence(ctx, s, projectID)
		return err
	})

	d.Register(queue.JobContextFeedback, func(ctx context.Context, s store.Store, payload map[string]interface{}) error {
		if injectionID, ok := project.AsInt64(payload["injection_id"]); ok {
			signal, _ := payload["signal"].(string)
			return ProcessContextFeedback(ctx, s, injectionID, signal)
		}
		sessionID, ok := project.AsInt64(payload["session_id"])
		if !ok {
			return nil
		}
		_, err := ProcessSessionContextFeedback(ctx, s, projectID, sessionID)
		return err
	})

	d.Register(queue.JobReinforceLearning, func(ctx context.Context, s store.Store, payload map[string]interface{}) error {
		sessionID, ok := project.AsInt64(payload["session_id"])
		if !ok {
			return fmt.Errorf("reinforce_learnings: missing session_id")
		}
		_, err := ReinforceSessionLearnings(ctx, s, projectID, sessionID)
		if err != nil {
			return err
		}
		_, err = DecayStaleLearnings(ctx, s, projectID)
		return err
	})

	d.Register(queue.JobDistillStrategies, func(ctx context.Context, s store.Store, _ map[string]interface{}) error {
		_, err := DistillStrategies(ctx, s, projectID)
		if err != nil {
			return err
		}
		_, err = AggregateCrossProjectSignal(ctx, s)
		return err
	})

	d.Register(queue.JobBuildWorkflow, func(ctx context.Context, s store.Store, _ map[string]interface{}) error {
		return TrainWorkflowModel(ctx, s, projectID)
	})

	d.Register(queue.JobRegenerateDNA, func(ctx context.Context, s store.Store, _ map[string]interface{}) error {
		return RegenerateCodebaseDNA(ctx, s, projectID)
	})

	d.Register(queue.JobRiskAlerts, func(ctx context.Context, s store.Store, _ map[string]interface{}) error {
		_, err := ScanRiskAlerts(ctx, s, projectID)
		return err
	})

	d.Register(queue.JobHealthROI, func(ctx context.Context, s store.Store, _ map[string]interface{}) error {
		return ComputeMonthlyHealth(ctx, s, projectID)
	})
}

func stringSlice(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
