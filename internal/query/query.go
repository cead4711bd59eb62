// Package query implements Muninn's read-only query surface: the
// stable-contract endpoints exposed to callers atop the engine's other
// components -- search/predict/suggest/check/enrich and the pull-only
// resource URIs. Nothing in this package mutates a primary event table;
// it reads derived and primary tables, and the only row it causes to be
// written is the context_injections log entry each assembler call adds.
package query

import (
	"context"
	"fmt"
	"strings"

	muctx "muninn/internal/context"
	"muninn/internal/embedding"
	"muninn/internal/logging"
	"muninn/internal/store"
)

// Query modes.
const (
	ModeAuto   = "auto"
	ModeFTS    = "fts"
	ModeVector = "vector"
	ModeSmart  = "smart"
)

// Result is one ranked memory snippet returned by Query.
type Result struct {
	ID      int64
	Type    string
	Title   string
	Content string
	Score   float64
}

// Query returns a ranked list of memory snippets matching text. mode
// selects the retrieval strategy: "fts" forces keyword search; "vector",
// "auto" and "smart" all take the context assembler's retrieval path
// (embedding similarity, falling back to FTS if the embedder is
// unavailable). "smart" differs only in its larger token budget (1000
// instead of 400), so more of the scored pool is packed. Every mode scores
// with the assembler's balanced weights.
func Query(ctx context.Context, s store.Store, engine embedding.EmbeddingEngine, projectID int64, text, mode string) ([]Result, error) {
	timer := logging.StartTimer(logging.CategoryQuery, "Query")
	defer timer.Stop()

	if mode == "" {
		mode = ModeAuto
	}
	maxTokens := 400
	if mode == ModeSmart {
		maxTokens = 1000
	}

	req := muctx.Request{
		ProjectID: projectID,
		Query:     text,
		Format:    muctx.FormatJSON,
		MaxTokens: maxTokens,
		Strategy:  muctx.StrategyBalanced,
	}

	var effectiveEngine embedding.EmbeddingEngine
	switch mode {
	case ModeFTS:
		effectiveEngine = nil
	case ModeVector, ModeSmart, ModeAuto:
		effectiveEngine = engine
	default:
		return nil, fmt.Errorf("query: unknown mode %q", mode)
	}

	res, err := muctx.BuildContext(ctx, s, effectiveEngine, req, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	// Packed memories already carry type/title/content/score; ids alone
	// would be ambiguous since every table numbers its own rows.
	out := make([]Result, 0, len(res.Packed))
	for _, m := range res.Packed {
		out = append(out, Result{ID: m.ID, Type: m.Type, Title: m.Title, Content: m.Content, Score: m.Score})
	}
	return out, nil
}

// truncate is a small display helper shared by the resource renderers.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
