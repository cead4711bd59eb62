// Package ingestion turns external events -- tool calls, git commits, and
// raw error output -- into durable rows and queued jobs. Every path
// in this package is fire-and-forget: a failure to log must never fail
// the tool call, commit, or error scan that triggered it.
package ingestion

import (
	"context"
	"encoding/json"
	"time"

	"muninn/internal/logging"
	"muninn/internal/store"
)

const maxInputSummary = 500

// ToolCallRecord is what the caller passes to LogToolCall once a tool
// invocation has completed.
type ToolCallRecord struct {
	ToolName     string
	Input        map[string]interface{}
	Session      *int64
	Success      bool
	DurationMs   int64
	ErrorMessage string
}

// LogToolCall persists one tool_calls row: summarized input (truncated to
// 500 chars), deduplicated file paths extracted from the tool's argument
// shape, and outcome. Errors are logged and swallowed -- logging a tool
// call must never fail the tool call itself.
func LogToolCall(ctx context.Context, s store.Store, projectID int64, rec ToolCallRecord) {
	timer := logging.StartTimer(logging.CategoryIngest, "LogToolCall")
	defer timer.Stop()

	files := ExtractFilePaths(rec.Input)
	filesJSON, _ := json.Marshal(files)
	summary := summarizeInput(rec.Input)

	_, err := s.Run(ctx,
		`INSERT INTO tool_calls (project_id, session_id, tool_name, input_summary, files_involved, success, duration_ms, error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		projectID, rec.Session, rec.ToolName, summary, string(filesJSON), boolToInt(rec.Success), rec.DurationMs, rec.ErrorMessage, time.Now().UTC())
	if err != nil {
		logging.IngestError("LogToolCall: insert failed for tool=%s: %v", rec.ToolName, err)
		return
	}

	if len(files) > 0 {
		touchFiles(ctx, s, projectID, files)
	}
}

// touchFiles updates last_referenced_at for files a tool call mentioned,
// creating a bare row if this is the first time the engine has seen the
// path. Best-effort: a failure here never blocks tool-call logging.
func touchFiles(ctx context.Context, s store.Store, projectID int64, paths []string) {
	for _, p := range paths {
		_, err := s.Run(ctx,
			`INSERT INTO files (project_id, path, last_referenced_at) VALUES (?, ?, ?)
			 ON CONFLICT(project_id, path) DO UPDATE SET last_referenced_at = excluded.last_referenced_at`,
			projectID, p, time.Now().UTC())
		if err != nil {
			logging.IngestWarn("touchFiles: %s: %v", p, err)
		}
	}
}

// ExtractFilePaths extracts and deduplicates file paths from a tool's raw
// JSON argument shape: the `path`/`file_path` string fields, the `files`
// array, and any `file_path` fields nested inside an array-of-objects
// shape used by enrichment requests.
func ExtractFilePaths(input map[string]interface{}) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(v interface{}) {
		s, ok := v.(string)
		if !ok || s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}

	if v, ok := input["path"]; ok {
		add(v)
	}
	if v, ok := input["file_path"]; ok {
		add(v)
	}
	if v, ok := input["files"]; ok {
		if arr, ok := v.([]interface{}); ok {
			for _, item := range arr {
				switch t := item.(type) {
				case string:
					add(t)
				case map[string]interface{}:
					if fp, ok := t["file_path"]; ok {
						add(fp)
					}
					if p, ok := t["path"]; ok {
						add(p)
					}
				}
			}
		}
	}
	for _, key := range []string{"edits", "items", "requests"} {
		if v, ok := input[key]; ok {
			if arr, ok := v.([]interface{}); ok {
				for _, item := range arr {
					if m, ok := item.(map[string]interface{}); ok {
						if fp, ok := m["file_path"]; ok {
							add(fp)
						}
					}
				}
			}
		}
	}
	return out
}

// summarizeInput serializes a tool's input and truncates it at 500 chars.
func summarizeInput(input map[string]interface{}) string {
	if input == nil {
		return ""
	}
	data, err := json.Marshal(input)
	if err != nil {
		return ""
	}
	s := string(data)
	if len(s) <= maxInputSummary {
		return s
	}
	return s[:maxInputSummary]
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
