package context

import (
	"context"
	"time"

	"muninn/internal/embedding"
	"muninn/internal/store"
)

// defaultMaxTokens is used when a request specifies none.
const defaultMaxTokens = 2000

// BuildContext runs the full assembly pipeline: retrieve a
// candidate pool, score it against the requested strategy, greedily pack
// it into the token budget, render it in the requested wire format, log
// the injection, and attach the intelligence overlay.
func BuildContext(ctx context.Context, s store.Store, engine embedding.EmbeddingEngine, req Request, recentTools []string, classifier TrajectoryClassifier) (*Result, error) {
	start := time.Now()

	if req.MaxTokens <= 0 {
		req.MaxTokens = defaultMaxTokens
	}
	if req.Strategy == "" {
		req.Strategy = StrategyBalanced
	}
	if req.Format == "" {
		req.Format = FormatMarkdown
	}

	candidates, err := retrieveCandidates(ctx, s, engine, req)
	if err != nil {
		return nil, err
	}
	candidates = applyFilters(candidates, req)

	scored := scoreCandidates(candidates, req.Strategy, time.Now())
	packed, tokenCount := packCandidates(scored, req.MaxTokens, req.Format)

	text := Format(req.Format, req.App, req.Scope, packed, tokenCount)

	ids := make([]int64, 0, len(packed))
	for _, m := range packed {
		ids = append(ids, m.ID)
	}

	overlay := buildOverlay(ctx, s, req, packed, staleItemIDs(scored, packed), recentTools, classifier)

	logInjection(ctx, s, req, ids, len(candidates), tokenCount, time.Since(start), "", 0)

	return &Result{
		Text:            text,
		Format:          req.Format,
		TokenCount:      tokenCount,
		Packed:          packed,
		MemoryIDs:       ids,
		TotalCandidates: len(candidates),
		Overlay:         overlay,
	}, nil
}

// applyFilters narrows the candidate pool by type/subtype/min-confidence
// before scoring. The FTS paths already skip disallowed types; the vector
// path's file candidates are narrowed here. Tags are not filtered on.
func applyFilters(candidates []Memory, req Request) []Memory {
	if req.TypeFilter == "" && req.SubtypeFilter == "" && req.MinConfidence <= 0 {
		return candidates
	}
	out := candidates[:0]
	for _, m := range candidates {
		if !typeAllowed(req, m.Type) {
			continue
		}
		if req.SubtypeFilter != "" && m.Subtype != req.SubtypeFilter {
			continue
		}
		if req.MinConfidence > 0 && m.RawConfidence < req.MinConfidence {
			continue
		}
		out = append(out, m)
	}
	return out
}

// staleItemIDs flags packed decisions/learnings that were retrieved from
// the already-scored pool but scored in its bottom half -- a cheap proxy
// for "included but weakly relevant" the overlay surfaces as a stale tag.
func staleItemIDs(scored, packed []Memory) []int64 {
	if len(scored) == 0 {
		return nil
	}
	median := scored[len(scored)/2].Score
	var stale []int64
	for _, m := range packed {
		if (m.Type == "decision" || m.Type == "learning") && m.Score < median {
			stale = append(stale, m.ID)
		}
	}
	return stale
}
