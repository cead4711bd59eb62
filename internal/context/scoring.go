package context

import (
	"math"
	"sort"
	"time"
)

// strategyWeights holds the four 0-1 scoring components' weights for a
// named preset.
type strategyWeights struct {
	similarity, recency, confidence, diversity float64
}

var presetWeights = map[string]strategyWeights{
	StrategyBalanced: {0.5, 0.2, 0.2, 0.1},
	StrategyPrecise:  {0.7, 0.1, 0.15, 0.05},
	StrategyBroad:    {0.3, 0.2, 0.2, 0.3},
}

func weightsFor(strategy string) strategyWeights {
	if w, ok := presetWeights[strategy]; ok {
		return w
	}
	return presetWeights[StrategyBalanced]
}

// recencyWindowDays is the half-life denominator in exp(-age_days/90).
const recencyWindowDays = 90.0

// scoreCandidates computes each candidate's weighted score in place and
// returns the slice sorted by score descending, ties broken by similarity
// then recency then id, matching L1's order-independence law.
func scoreCandidates(memories []Memory, strategy string, now time.Time) []Memory {
	w := weightsFor(strategy)
	seenTypes := make(map[string]bool)

	for i := range memories {
		m := &memories[i]
		confidenceNorm := normalizeConfidence(m.Type, m.RawConfidence)
		recency := recencyScore(m.CreatedAt, now)
		diversity := 0.0
		if !seenTypes[m.Type] {
			diversity = 1.0
			seenTypes[m.Type] = true
		}
		m.Confidence = confidenceNorm
		m.Score = w.similarity*m.Similarity + w.recency*recency + w.confidence*confidenceNorm + w.diversity*diversity
	}

	sort.SliceStable(memories, func(i, j int) bool {
		if memories[i].Score != memories[j].Score {
			return memories[i].Score > memories[j].Score
		}
		if memories[i].Similarity != memories[j].Similarity {
			return memories[i].Similarity > memories[j].Similarity
		}
		ri := parseCreatedAt(memories[i].CreatedAt)
		rj := parseCreatedAt(memories[j].CreatedAt)
		if !ri.Equal(rj) {
			return ri.After(rj)
		}
		return memories[i].ID < memories[j].ID
	})
	return memories
}

// normalizeConfidence maps a type's native confidence scale to [0,1].
// Learnings use [0,10]; everything else carries no stored confidence, so
// a neutral midpoint is used.
func normalizeConfidence(memType string, raw float64) float64 {
	switch memType {
	case "learning":
		return clamp01(raw / 10.0)
	default:
		if raw == 0 {
			return 0.5
		}
		return clamp01(raw / 10.0)
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func recencyScore(createdAt string, now time.Time) float64 {
	t := parseCreatedAt(createdAt)
	if t.IsZero() {
		return 0.5
	}
	ageDays := now.Sub(t).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-ageDays / recencyWindowDays)
}

func parseCreatedAt(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05Z"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
