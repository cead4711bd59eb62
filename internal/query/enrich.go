package query

import (
	"context"
	"encoding/json"
	"fmt"

	muctx "muninn/internal/context"
	"muninn/internal/embedding"
	"muninn/internal/logging"
	"muninn/internal/store"
)

// toolIntents maps known tool-call shapes to the intent the assembler
// should retrieve for, mirroring how the ambient tool-call
// logging recognises argument shapes.
var toolIntents = map[string]string{
	"edit_file":   muctx.IntentEdit,
	"write_file":  muctx.IntentEdit,
	"read_file":   muctx.IntentRead,
	"run_tests":   muctx.IntentDebug,
	"run_command": muctx.IntentDebug,
	"search":      muctx.IntentExplore,
	"grep":        muctx.IntentExplore,
	"plan":        muctx.IntentPlan,
}

// enrichInput is the JSON-embedded argument shape Enrich expects, loosely
// -- any subset of these fields may be present.
type enrichInput struct {
	Path     string   `json:"path"`
	FilePath string   `json:"file_path"`
	Files    []string `json:"files"`
	Query    string   `json:"query"`
	Task     string   `json:"task"`
}

// Enrich returns contextual fragments relevant to an about-to-run tool
// call, given the tool's name and its raw JSON input. It maps the tool
// name to an intent and the input's file/query fields to a context
// request, then defers entirely to the context assembler -- enrich
// adds no retrieval logic of its own, only the tool-name-to-intent
// translation layer.
func Enrich(ctx context.Context, s store.Store, engine embedding.EmbeddingEngine, projectID int64, tool, inputJSON string) (*muctx.Result, error) {
	timer := logging.StartTimer(logging.CategoryQuery, "Enrich")
	defer timer.Stop()

	var in enrichInput
	if inputJSON != "" {
		if err := json.Unmarshal([]byte(inputJSON), &in); err != nil {
			logging.QueryWarn("enrich: input for tool %s is not valid JSON, ignoring: %v", tool, err)
		}
	}

	files := in.Files
	if in.Path != "" {
		files = append(files, in.Path)
	}
	if in.FilePath != "" {
		files = append(files, in.FilePath)
	}

	query := in.Query
	if query == "" {
		query = in.Task
	}

	intent, ok := toolIntents[tool]
	if !ok {
		intent = muctx.IntentRead
	}

	req := muctx.Request{
		ProjectID: projectID,
		Intent:    intent,
		Files:     files,
		Query:     query,
		Format:    muctx.FormatJSON,
		MaxTokens: 600,
		Strategy:  muctx.StrategyBalanced,
	}

	res, err := muctx.BuildContext(ctx, s, engine, req, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("enrich %s: %w", tool, err)
	}
	return res, nil
}
