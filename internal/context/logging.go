package context

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"muninn/internal/logging"
	"muninn/internal/store"
)

// logInjection computes a SHA-256 hash of the raw prompt (the prompt text
// itself is never stored) and fire-and-forgets a context_injections row.
// Best-effort per the error-handling taxonomy's "derived writes" class: a
// failure here never surfaces to the caller of BuildContext.
func logInjection(ctx context.Context, s store.Store, req Request, memoryIDs []int64, totalCandidates, tokenCount int, latency time.Duration, sourceType string, sourceID int64) {
	prompt := promptText(req)
	sum := sha256.Sum256([]byte(prompt))
	hash := hex.EncodeToString(sum[:])

	idsJSON, err := json.Marshal(memoryIDs)
	if err != nil {
		logging.ContextWarn("marshal memory ids failed: %v", err)
		return
	}

	_, err = s.Run(ctx,
		`INSERT INTO context_injections (project_id, app, prompt_hash, memory_ids, total_candidates, token_count, latency_ms, source_type, source_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ProjectID, req.App, hash, string(idsJSON), totalCandidates, tokenCount, latency.Milliseconds(), sourceType, nullableID(sourceID))
	if err != nil {
		logging.ContextWarn("log context injection failed: %v", err)
	}
}

func nullableID(id int64) interface{} {
	if id == 0 {
		return nil
	}
	return id
}
