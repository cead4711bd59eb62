// Package promotion implements the CLI's `promote` subcommand: the
// lifecycle of a learning's promotion_status (not_ready -> candidate ->
// promoted, or demoted) beyond the automatic candidate-creation done by
// the outcomes package's strategy distillation passes.
package promotion

import (
	"context"
	"fmt"
	"time"

	"muninn/internal/logging"
	"muninn/internal/project"
	"muninn/internal/store"
)

// candidateConfidence and candidateTimesApplied are the thresholds a
// not_ready learning must clear for Sync to mark it a candidate. They are
// separate from the strategy_catalog thresholds outcomes.DistillStrategies
// uses (confidence >= 0.8, evidence_count >= 8).
const (
	candidateConfidence   = 7.0
	candidateTimesApplied = 3
	staleWindow           = 60 * 24 * time.Hour
	staleConfidenceFloor  = 4.0
)

// Candidate is one learning in the promotion pipeline.
type Candidate struct {
	ID           int64
	Title        string
	Category     string
	Confidence   float64
	TimesApplied int64
}

// Candidates lists learnings currently awaiting a promotion decision.
func Candidates(ctx context.Context, s store.Store, projectID int64) ([]Candidate, error) {
	rows, err := s.All(ctx,
		`SELECT id, title, category, confidence, times_applied FROM learnings
		 WHERE (project_id = ? OR project_id IS NULL) AND promotion_status = ? AND archived_at IS NULL
		 ORDER BY confidence DESC`,
		projectID, store.PromotionCandidate)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	return rowsToCandidates(rows), nil
}

// Sync scans not_ready learnings and promotes any that have cleared the
// candidate thresholds on their own merit (independent of the strategy
// distillation pass, which only looks at strategy_catalog). Returns how
// many learnings moved to candidate.
func Sync(ctx context.Context, s store.Store, projectID int64) (int, error) {
	rows, err := s.All(ctx,
		`SELECT id FROM learnings
		 WHERE (project_id = ? OR project_id IS NULL) AND promotion_status = ?
		   AND confidence >= ? AND times_applied >= ? AND archived_at IS NULL`,
		projectID, store.PromotionNotReady, candidateConfidence, candidateTimesApplied)
	if err != nil {
		return 0, fmt.Errorf("sync: find eligible learnings: %w", err)
	}
	synced := 0
	for _, row := range rows {
		id, _ := project.AsInt64(row["id"])
		if _, err := s.Run(ctx, "UPDATE learnings SET promotion_status = ? WHERE id = ?", store.PromotionCandidate, id); err != nil {
			logging.QueryWarn("sync: mark learning %d candidate failed: %v", id, err)
			continue
		}
		synced++
	}
	return synced, nil
}

// Stale lists promoted learnings whose confidence has since fallen below
// the floor, or that have gone unreinforced past the stale window -- both
// signs the promotion should be reconsidered.
func Stale(ctx context.Context, s store.Store, projectID int64) ([]Candidate, error) {
	cutoff := time.Now().UTC().Add(-staleWindow)
	rows, err := s.All(ctx,
		`SELECT id, title, category, confidence, times_applied FROM learnings
		 WHERE (project_id = ? OR project_id IS NULL) AND promotion_status = ?
		   AND (confidence < ? OR last_reinforced_at IS NULL OR last_reinforced_at < ?)
		 ORDER BY confidence ASC`,
		projectID, store.PromotionPromoted, staleConfidenceFloor, cutoff)
	if err != nil {
		return nil, fmt.Errorf("load stale promotions: %w", err)
	}
	return rowsToCandidates(rows), nil
}

// Demote marks a promoted (or candidate) learning as demoted, removing
// it from whatever promoted_to_section it occupied.
func Demote(ctx context.Context, s store.Store, id int64) error {
	row, err := s.Get(ctx, "SELECT id FROM learnings WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("demote: lookup learning %d: %w", id, err)
	}
	if row == nil {
		return fmt.Errorf("demote: learning %d does not exist", id)
	}
	_, err = s.Run(ctx,
		"UPDATE learnings SET promotion_status = ?, promoted_to_section = NULL WHERE id = ?",
		store.PromotionDemoted, id)
	if err != nil {
		return fmt.Errorf("demote learning %d: %w", id, err)
	}
	logging.Query("demoted learning %d", id)
	return nil
}

// Promote marks a candidate learning promoted, filing it under section.
// Only candidates may be promoted -- a not_ready or demoted learning
// must go through Sync (or another reinforcement pass) first.
func Promote(ctx context.Context, s store.Store, id int64, section string) error {
	row, err := s.Get(ctx, "SELECT promotion_status FROM learnings WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("promote: lookup learning %d: %w", id, err)
	}
	if row == nil {
		return fmt.Errorf("promote: learning %d does not exist", id)
	}
	status := project.AsString(row["promotion_status"])
	if status != store.PromotionCandidate {
		return fmt.Errorf("promote: learning %d is %q, not a candidate", id, status)
	}
	_, err = s.Run(ctx,
		"UPDATE learnings SET promotion_status = ?, promoted_to_section = ? WHERE id = ?",
		store.PromotionPromoted, section, id)
	if err != nil {
		return fmt.Errorf("promote learning %d: %w", id, err)
	}
	logging.Query("promoted learning %d to section %q", id, section)
	return nil
}

func rowsToCandidates(rows []map[string]interface{}) []Candidate {
	out := make([]Candidate, 0, len(rows))
	for _, row := range rows {
		id, _ := project.AsInt64(row["id"])
		timesApplied, _ := project.AsInt64(row["times_applied"])
		conf, _ := row["confidence"].(float64)
		out = append(out, Candidate{
			ID: id, Title: project.AsString(row["title"]), Category: project.AsString(row["category"]),
			Confidence: conf, TimesApplied: timesApplied,
		})
	}
	return out
}
