// Package outcomes implements the diff/intent classifier, error-fix
// mapper, revert detector, test runner, learning reinforcer, pattern
// detector, risk alerts, health/ROI aggregation, and workflow predictor.
// Each analysis follows the same shape -- read raw tables, compute a
// derived fact, upsert idempotently on its conflict key -- and each
// declares the schema version it requires, a no-op (not a crash) below it.
package outcomes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"muninn/internal/config"
	"muninn/internal/diff"
	"muninn/internal/gitutil"
	"muninn/internal/logging"
	"muninn/internal/project"
	"muninn/internal/store"
)

// MinSchemaVersionDiffIntent is the minimum schema version the diff/intent
// classifier requires; store.SchemaVersionOf gates this analysis.
const MinSchemaVersionDiffIntent = 1

// diffIntentBatchSize caps how many unanalyzed commits one pass handles.
const diffIntentBatchSize = 5

// AnalyzedBy values.
const (
	AnalyzedByLLM       = "llm"
	AnalyzedByHeuristic = "heuristic"
)

// conventionalPrefixes and keywordCategories are the prefix/keyword
// heuristics backing the rule-based fallback classifier.
var conventionalPrefixes = map[string]string{
	"feat":     "feature",
	"feature":  "feature",
	"fix":      "bugfix",
	"bugfix":   "bugfix",
	"refactor": "refactor",
	"docs":     "docs",
	"test":     "test",
	"chore":    "chore",
	"perf":     "performance",
	"style":    "style",
	"build":    "chore",
	"ci":       "chore",
}

var conventionalPrefixPattern = regexp.MustCompile(`^(\w+)(\([^)]*\))?!?:\s*(.+)$`)

var keywordCategories = []struct {
	category string
	keywords []string
}{
	{"bugfix", []string{"fix", "bug", "patch", "resolve", "correct"}},
	{"feature", []string{"add", "implement", "introduce", "new"}},
	{"refactor", []string{"refactor", "restructure", "simplify", "clean up", "rename"}},
	{"docs", []string{"document", "readme", "comment"}},
	{"test", []string{"test", "spec"}},
	{"performance", []string{"optimize", "performance", "speed up", "faster"}},
	{"chore", []string{"bump", "upgrade", "dependency", "chore"}},
}

// llmIntentResponse is the strict JSON shape requested from the small-LLM
// diff classifier.
type llmIntentResponse struct {
	Summary  string `json:"summary"`
	Category string `json:"category"`
}

// ProcessUnanalyzedCommits classifies up to diffIntentBatchSize commits
// with analyzed=0, persisting a diff_analyses row for each and marking
// the commit analyzed.
func ProcessUnanalyzedCommits(ctx context.Context, s store.Store, projectID int64) (int, error) {
	if store.SchemaVersionOf(ctx, s) < MinSchemaVersionDiffIntent {
		return 0, nil
	}

	rows, err := s.All(ctx,
		`SELECT id, commit_hash, message, files_changed, insertions, deletions FROM git_commits
		 WHERE project_id = ? AND analyzed = 0 ORDER BY committed_at ASC LIMIT ?`,
		projectID, diffIntentBatchSize)
	if err != nil {
		return 0, fmt.Errorf("load unanalyzed commits: %w", err)
	}

	processed := 0
	for _, row := range rows {
		commitID, _ := project.AsInt64(row["id"])
		if err := classifyCommit(ctx, s, projectID, commitID, row); err != nil {
			logging.OutcomesWarn("classify commit %d failed: %v", commitID, err)
			continue
		}
		processed++
	}
	return processed, nil
}

func classifyCommit(ctx context.Context, s store.Store, projectID, commitID int64, row map[string]interface{}) error {
	message := project.AsString(row["message"])
	var files []string
	_ = json.Unmarshal([]byte(project.AsString(row["files_changed"])), &files)
	insertions, _ := project.AsInt64(row["insertions"])
	deletions, _ := project.AsInt64(row["deletions"])

	summary, category, analyzedBy := classifyViaLLM(ctx, message, files, insertions, deletions)
	if analyzedBy == "" {
		summary, category = classifyHeuristic(message)
		analyzedBy = AnalyzedByHeuristic
	}

	changedFns := changedFunctionNames(ctx, s, projectID, commitID, files)
	changedFnsJSON, _ := json.Marshal(changedFns)

	_, err := s.Run(ctx,
		`INSERT INTO diff_analyses (project_id, commit_id, intent_summary, intent_category, changed_functions, analyzed_by)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(project_id, commit_id) DO UPDATE SET
		   intent_summary = excluded.intent_summary,
		   intent_category = excluded.intent_category,
		   changed_functions = excluded.changed_functions,
		   analyzed_by = excluded.analyzed_by`,
		projectID, commitID, summary, category, string(changedFnsJSON), analyzedBy)
	if err != nil {
		return fmt.Errorf("upsert diff_analyses: %w", err)
	}

	_, err = s.Run(ctx, "UPDATE git_commits SET analyzed = 1 WHERE id = ?", commitID)
	return err
}

// classifyViaLLM calls the configured remote small-LLM API with a 10s
// timeout if an API key is available. Any failure (no key, network,
// malformed JSON) returns analyzedBy="" so the caller falls back.
func classifyViaLLM(ctx context.Context, message string, files []string, insertions, deletions int64) (summary, category, analyzedBy string) {
	apiKey, ok := config.GetApiKey("anthropic")
	if !ok {
		return "", "", ""
	}

	displayFiles := files
	if len(displayFiles) > 15 {
		displayFiles = displayFiles[:15]
	}
	prompt := fmt.Sprintf(
		"Classify this commit. Subject: %q. Files: %s. +%d/-%d.\nRespond with strict JSON: {\"summary\": string, \"category\": one of feature|bugfix|refactor|docs|test|performance|style|chore}.",
		message, strings.Join(displayFiles, ", "), insertions, deletions)

	llmCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	body, err := callIntentLLM(llmCtx, apiKey, prompt)
	if err != nil {
		logging.OutcomesWarn("llm diff classification failed, falling back to heuristic: %v", config.RedactApiKeys(err.Error()))
		return "", "", ""
	}

	var parsed llmIntentResponse
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Category == "" {
		logging.OutcomesWarn("llm diff classification returned unparseable JSON, falling back to heuristic")
		return "", "", ""
	}
	return parsed.Summary, parsed.Category, AnalyzedByLLM
}

// intentLLMEndpoint is overridable in tests.
var intentLLMEndpoint = "https://api.anthropic.com/v1/messages"

// httpClientForIntent is package-level so tests can swap in a fake
// transport without touching global http.DefaultClient state.
var httpClientForIntent = &http.Client{}

func callIntentLLM(ctx context.Context, apiKey, prompt string) ([]byte, error) {
	reqBody, _ := json.Marshal(map[string]interface{}{
		"model":      "claude-haiku-4-5",
		"max_tokens": 256,
		"messages":   []map[string]string{{"role": "user", "content": prompt}},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, intentLLMEndpoint, strings.NewReader(string(reqBody)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("x-api-key", apiKey)
	resp, err := httpClientForIntent.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llm api returned status %d", resp.StatusCode)
	}
	var out struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Content) == 0 {
		return nil, fmt.Errorf("empty llm response")
	}
	return []byte(out.Content[0].Text), nil
}

// classifyHeuristic detects a conventional-commit prefix first, then
// falls back to keyword scanning per category.
func classifyHeuristic(message string) (summary, category string) {
	summary = message
	if m := conventionalPrefixPattern.FindStringSubmatch(message); m != nil {
		if cat, ok := conventionalPrefixes[strings.ToLower(m[1])]; ok {
			return m[3], cat
		}
	}
	lower := strings.ToLower(message)
	for _, kc := range keywordCategories {
		for _, kw := range kc.keywords {
			if strings.Contains(lower, kw) {
				return summary, kc.category
			}
		}
	}
	return summary, "chore"
}

// changedFunctionNames maps a commit's changed files to the set of
// function/method symbol names whose line ranges overlap the commit's
// diff hunks, using sergi/go-diff against the pre/post file content
// fetched via `git show`. Best-effort: a file with no prior revision or
// no registered symbols simply contributes nothing.
func changedFunctionNames(ctx context.Context, s store.Store, projectID, commitID int64, files []string) []string {
	row, err := s.Get(ctx, "SELECT commit_hash FROM git_commits WHERE id = ?", commitID)
	if err != nil || row == nil {
		return nil
	}
	hash := project.AsString(row["commit_hash"])
	parent := hash + "~1"

	var names []string
	seen := make(map[string]bool)
	for _, path := range files {
		fileRow, err := s.Get(ctx, "SELECT id FROM files WHERE project_id = ? AND path = ?", projectID, path)
		if err != nil || fileRow == nil {
			continue
		}
		fileID, _ := project.AsInt64(fileRow["id"])
		symbolRows, err := s.All(ctx, "SELECT name, line_start, line_end FROM symbols WHERE file_id = ? AND kind IN (?, ?)",
			fileID, store.SymbolFunction, store.SymbolMethod)
		if err != nil || len(symbolRows) == 0 {
			continue
		}

		changedLines := diffChangedLines(ctx, path, parent, hash)
		if len(changedLines) == 0 {
			continue
		}
		for _, sr := range symbolRows {
			start, _ := project.AsInt64(sr["line_start"])
			end, _ := project.AsInt64(sr["line_end"])
			name := project.AsString(sr["name"])
			if name == "" || seen[name] {
				continue
			}
			for _, ln := range changedLines {
				if int64(ln) >= start && int64(ln) <= end {
					names = append(names, name)
					seen[name] = true
					break
				}
			}
		}
	}
	return names
}

// diffChangedLines returns the 1-based new-file line numbers touched
// between two revisions of path, or nil if either revision's content
// could not be retrieved (e.g. the file was added or deleted).
func diffChangedLines(ctx context.Context, path, fromRev, toRev string) []int {
	// repoRoot resolution is left to the caller's working directory --
	// git show works relative to cwd when invoked from the project root.
	old, err := gitutil.ShowFile(ctx, ".", fromRev, path)
	if err != nil || old == "" {
		return nil
	}
	cur, err := gitutil.ShowFile(ctx, ".", toRev, path)
	if err != nil || cur == "" {
		return nil
	}
	return diff.AddedLines(old, cur)
}
