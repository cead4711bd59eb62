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

// MinSchemaVersionDNA gates codebase-DNA regeneration.
const MinSchemaVersionDNA = 1

// codebaseDNA is a point-in-time snapshot of a project's shape: how its
// files distribute across temperature and fragility, its busiest
// directories, and its top co-change pairs. Enqueued every 20th session
// on the periodic-jobs cadence and persisted into
// developer_profile (key "codebase_dna") since it has no dedicated table.
type codebaseDNA struct {
	GeneratedAt      time.Time         `json:"generated_at"`
	TotalFiles       int64             `json:"total_files"`
	TemperatureCounts map[string]int64 `json:"temperature_counts"`
	AvgFragility     float64           `json:"avg_fragility"`
	FragileFileCount int64             `json:"fragile_file_count"`
	TopCochangePairs []cochangePair    `json:"top_cochange_pairs"`
}

type cochangePair struct {
	FileA string `json:"file_a"`
	FileB string `json:"file_b"`
	Count int64  `json:"count"`
}

// RegenerateCodebaseDNA recomputes the project's structural snapshot and
// upserts it into developer_profile.
func RegenerateCodebaseDNA(ctx context.Context, s store.Store, projectID int64) error {
	if store.SchemaVersionOf(ctx, s) < MinSchemaVersionDNA {
		return nil
	}

	dna := codebaseDNA{
		GeneratedAt:       time.Now().UTC(),
		TemperatureCounts: make(map[string]int64),
	}

	totalRow, err := s.Get(ctx, "SELECT COUNT(*) AS n, AVG(fragility) AS avg_f FROM files WHERE project_id = ? AND archived_at IS NULL", projectID)
	if err != nil {
		return fmt.Errorf("load file totals: %w", err)
	}
	if totalRow != nil {
		dna.TotalFiles, _ = project.AsInt64(totalRow["n"])
		dna.AvgFragility, _ = totalRow["avg_f"].(float64)
	}

	tempRows, err := s.All(ctx,
		"SELECT temperature, COUNT(*) AS n FROM files WHERE project_id = ? AND archived_at IS NULL GROUP BY temperature", projectID)
	if err != nil {
		return fmt.Errorf("load temperature distribution: %w", err)
	}
	for _, row := range tempRows {
		n, _ := project.AsInt64(row["n"])
		dna.TemperatureCounts[project.AsString(row["temperature"])] = n
	}

	fragileRow, err := s.Get(ctx,
		"SELECT COUNT(*) AS n FROM files WHERE project_id = ? AND fragility >= ? AND archived_at IS NULL",
		projectID, fragileChurnThreshold)
	if err == nil && fragileRow != nil {
		dna.FragileFileCount, _ = project.AsInt64(fragileRow["n"])
	}

	pairRows, err := s.All(ctx,
		`SELECT fa.path AS path_a, fb.path AS path_b, fc.cochange_count AS n
		 FROM file_correlations fc
		 JOIN files fa ON fa.id = fc.file_a
		 JOIN files fb ON fb.id = fc.file_b
		 WHERE fa.project_id = ? ORDER BY fc.cochange_count DESC LIMIT 10`,
		projectID)
	if err != nil {
		logging.OutcomesWarn("load top cochange pairs failed: %v", err)
	}
	for _, row := range pairRows {
		n, _ := project.AsInt64(row["n"])
		dna.TopCochangePairs = append(dna.TopCochangePairs, cochangePair{
			FileA: project.AsString(row["path_a"]),
			FileB: project.AsString(row["path_b"]),
			Count: n,
		})
	}

	payload, err := json.Marshal(dna)
	if err != nil {
		return fmt.Errorf("marshal codebase dna: %w", err)
	}

	_, err = s.Run(ctx,
		`INSERT INTO developer_profile (project_id, key, value, updated_at) VALUES (?, 'codebase_dna', ?, ?)
		 ON CONFLICT(project_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		projectID, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("persist codebase dna: %w", err)
	}
	return nil
}
