package outcomes

import (
	"context"
	"fmt"
	"math"
	"time"

	"muninn/internal/logging"
	"muninn/internal/project"
	"muninn/internal/store"
)

// MinSchemaVersionLearning gates the learning reinforcer.
const MinSchemaVersionLearning = 1

// Relevance signal values used to classify a context injection's feedback.
const (
	SignalPositive = "positive"
	SignalNegative = "negative"
	SignalNeutral  = "neutral"
)

// Reinforcement bases.
const (
	reinforcePositiveBase = 0.3
	reinforceNegativeBase = -0.4
	reinforceNeutralBase  = 0.0
	decayBase             = -0.1
	decayWindow           = 30 * 24 * time.Hour
	decayBatchLimit       = 20
	confidenceMin         = 0.5
	confidenceMax         = 10.0
)

// ReinforceSessionLearnings reinforces every learning injected into
// sessionID, classifying the signal from the context_injections row's
// explicit relevance_signal if present, else deriving it from the
// session's success code (2->positive, 0->negative, 1->neutral).
func ReinforceSessionLearnings(ctx context.Context, s store.Store, projectID, sessionID int64) (int, error) {
	if store.SchemaVersionOf(ctx, s) < MinSchemaVersionLearning {
		return 0, nil
	}

	sessionRow, err := s.Get(ctx, "SELECT success, started_at, ended_at FROM sessions WHERE id = ?", sessionID)
	if err != nil || sessionRow == nil {
		return 0, fmt.Errorf("load session %d: %w", sessionID, err)
	}
	successCode, _ := project.AsInt64(sessionRow["success"])
	defaultSignal := signalFromSuccess(int(successCode))

	startedAt := parseStoreTime(project.AsString(sessionRow["started_at"]))
	endedAt := time.Now().UTC()
	if e := project.AsString(sessionRow["ended_at"]); e != "" {
		endedAt = parseStoreTime(e)
	}

	injections, err := s.All(ctx,
		`SELECT id, source_id, relevance_signal FROM context_injections
		 WHERE project_id = ? AND source_type = 'learning' AND created_at BETWEEN ? AND ?`,
		projectID, startedAt, endedAt)
	if err != nil {
		return 0, fmt.Errorf("load context injections: %w", err)
	}

	reinforced := 0
	for _, inj := range injections {
		learningID, ok := project.AsInt64(inj["source_id"])
		if !ok {
			continue
		}
		signal := project.AsString(inj["relevance_signal"])
		if signal == "" {
			signal = defaultSignal
		}
		if err := reinforceLearning(ctx, s, learningID, signal); err != nil {
			logging.OutcomesWarn("reinforce learning %d failed: %v", learningID, err)
			continue
		}
		reinforced++
	}
	return reinforced, nil
}

func signalFromSuccess(success int) string {
	switch success {
	case store.SessionSuccess:
		return SignalPositive
	case store.SessionFailure:
		return SignalNegative
	default:
		return SignalNeutral
	}
}

func reinforceLearning(ctx context.Context, s store.Store, learningID int64, signal string) error {
	row, err := s.Get(ctx, "SELECT confidence, times_applied FROM learnings WHERE id = ?", learningID)
	if err != nil || row == nil {
		return err
	}
	confidence, _ := row["confidence"].(float64)
	timesApplied, _ := project.AsInt64(row["times_applied"])

	base := reinforceNeutralBase
	switch signal {
	case SignalPositive:
		base = reinforcePositiveBase
	case SignalNegative:
		base = reinforceNegativeBase
	}
	delta := base * (1 / math.Sqrt(float64(timesApplied)+1))
	newConfidence := clampConfidence(confidence + delta)

	_, err = s.Run(ctx,
		`UPDATE learnings SET confidence = ?, times_applied = times_applied + 1,
		   auto_reinforcement_count = auto_reinforcement_count + 1, last_reinforced_at = ?
		 WHERE id = ?`,
		newConfidence, time.Now().UTC(), learningID)
	return err
}

func clampConfidence(c float64) float64 {
	if c < confidenceMin {
		return confidenceMin
	}
	if c > confidenceMax {
		return confidenceMax
	}
	return c
}

// DecayStaleLearnings applies a decay pass to any learning not reinforced
// in 30 days, limited to decayBatchLimit rows per call.
func DecayStaleLearnings(ctx context.Context, s store.Store, projectID int64) (int, error) {
	cutoff := time.Now().UTC().Add(-decayWindow)
	rows, err := s.All(ctx,
		`SELECT id, confidence, times_applied FROM learnings
		 WHERE (project_id = ? OR project_id IS NULL) AND archived_at IS NULL
		   AND (last_reinforced_at IS NULL OR last_reinforced_at < ?)
		 LIMIT ?`,
		projectID, cutoff, decayBatchLimit)
	if err != nil {
		return 0, fmt.Errorf("load stale learnings: %w", err)
	}

	decayed := 0
	for _, row := range rows {
		id, _ := project.AsInt64(row["id"])
		confidence, _ := row["confidence"].(float64)
		timesApplied, _ := project.AsInt64(row["times_applied"])
		delta := decayBase * (1 / math.Sqrt(float64(timesApplied)+1))
		newConfidence := clampConfidence(confidence + delta)
		if _, err := s.Run(ctx, "UPDATE learnings SET confidence = ? WHERE id = ?", newConfidence, id); err != nil {
			logging.OutcomesWarn("decay learning %d failed: %v", id, err)
			continue
		}
		decayed++
	}
	return decayed, nil
}
