package outcomes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"muninn/internal/logging"
	"muninn/internal/project"
	"muninn/internal/store"
)

// MinSchemaVersionTestRunner gates the test runner.
const MinSchemaVersionTestRunner = 1

// testRunCooldown rate-limits test execution: at most one run
// per 5 minutes per project.
const testRunCooldown = 5 * time.Minute

// testWallClockTimeout force-kills the child if it runs past this.
const testWallClockTimeout = 2 * time.Minute

// Test result statuses.
const (
	TestStatusPassed  = "passed"
	TestStatusFailed  = "failed"
	TestStatusError   = "error"
	TestStatusSkipped = "skipped"
	TestStatusUnknown = "unknown"
)

// packageManifest is the minimal shape read from package.json to discover
// a test command.
type packageManifest struct {
	Scripts map[string]string `json:"scripts"`
}

// placeholderScript is npm's default `"test": "echo \"Error: no test specified\" && exit 1"`.
var placeholderScript = regexp.MustCompile(`no test specified`)

// DiscoverTestCommand reads projectRoot/package.json and returns the argv
// to run, preferring `test`, then `test:unit`, then `test:ci`, rejecting
// the default placeholder script. Returns nil if no usable script exists.
func DiscoverTestCommand(projectRoot string) []string {
	data, err := os.ReadFile(filepath.Join(projectRoot, "package.json"))
	if err != nil {
		return nil
	}
	var manifest packageManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil
	}
	for _, key := range []string{"test", "test:unit", "test:ci"} {
		script, ok := manifest.Scripts[key]
		if !ok || script == "" || placeholderScript.MatchString(script) {
			continue
		}
		return []string{"npm", "run", key}
	}
	return nil
}

// RunTestsAfterCommit rate-limits execution to once per 5 minutes per
// project (checked via the most recent test_results row), discovers the
// test command, runs it with a 2-minute wall-clock cap and CI=true, and
// persists the parsed result.
func RunTestsAfterCommit(ctx context.Context, s store.Store, projectID int64, projectRoot string) (*store.TestResult, error) {
	if store.SchemaVersionOf(ctx, s) < MinSchemaVersionTestRunner {
		return nil, nil
	}

	lastRow, err := s.Get(ctx, "SELECT created_at FROM test_results WHERE project_id = ? ORDER BY created_at DESC LIMIT 1", projectID)
	if err != nil {
		return nil, fmt.Errorf("check last test run: %w", err)
	}
	if lastRow != nil {
		last := parseStoreTime(project.AsString(lastRow["created_at"]))
		if time.Since(last) < testRunCooldown {
			logging.OutcomesDebug("test run skipped: rate-limited (<%s since last run)", testRunCooldown)
			return nil, nil
		}
	}

	argv := DiscoverTestCommand(projectRoot)
	if argv == nil {
		logging.OutcomesDebug("test run skipped: no usable test command for %s", projectRoot)
		return nil, nil
	}

	result := execTests(ctx, projectRoot, argv)

	_, err = s.Run(ctx,
		`INSERT INTO test_results (project_id, status, totals, duration_ms, output_summary, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		projectID, result.Status, result.Totals, result.DurationMs, result.OutputSummary, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("persist test_results: %w", err)
	}
	return result, nil
}

// TestTotals is the parsed pass/fail/skip count from a test run's output.
type TestTotals struct {
	Pass int `json:"pass"`
	Fail int `json:"fail"`
	Skip int `json:"skip"`
}

// store.TestResult mirrors the persisted row shape returned to callers
// that need the freshly computed result without re-querying.
func execTests(ctx context.Context, dir string, argv []string) *store.TestResult {
	runCtx, cancel := context.WithTimeout(ctx, testWallClockTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "CI=true")
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	output := out.String()
	status, totals := parseTestOutput(output, runErr, runCtx.Err())
	totalsJSON, _ := json.Marshal(totals)

	return &store.TestResult{
		Status:        status,
		Totals:        string(totalsJSON),
		DurationMs:    duration.Milliseconds(),
		OutputSummary: tail(output, 500),
	}
}

// testFormatRecognisers is an ordered list of output-format parsers, each
// returning ok=false if its pattern doesn't match so the next one tries.
var testFormatRecognisers = []func(string) (TestTotals, bool){
	parseGenericNPassFail,
	parseJestVitest,
	parseGenericPassFailCounts,
}

func parseTestOutput(output string, runErr error, ctxErr error) (string, TestTotals) {
	if ctxErr != nil {
		return TestStatusError, TestTotals{}
	}
	for _, recognise := range testFormatRecognisers {
		if totals, ok := recognise(output); ok {
			status := TestStatusPassed
			if totals.Fail > 0 {
				status = TestStatusFailed
			} else if totals.Pass == 0 && totals.Skip > 0 {
				status = TestStatusSkipped
			}
			return status, totals
		}
	}
	if runErr != nil {
		return TestStatusFailed, TestTotals{}
	}
	return TestStatusUnknown, TestTotals{}
}

var genericNPattern = regexp.MustCompile(`(\d+)\s+(pass(?:ed|ing)?|fail(?:ed|ing)?|skip(?:ped)?)`)

func parseGenericNPassFail(output string) (TestTotals, bool) {
	matches := genericNPattern.FindAllStringSubmatch(output, -1)
	if len(matches) == 0 {
		return TestTotals{}, false
	}
	var t TestTotals
	for _, m := range matches {
		n, _ := strconv.Atoi(m[1])
		switch {
		case regexp.MustCompile(`^pass`).MatchString(m[2]):
			t.Pass += n
		case regexp.MustCompile(`^fail`).MatchString(m[2]):
			t.Fail += n
		case regexp.MustCompile(`^skip`).MatchString(m[2]):
			t.Skip += n
		}
	}
	return t, true
}

var jestSummaryPattern = regexp.MustCompile(`Tests:\s*(?:(\d+)\s+failed,\s*)?(?:(\d+)\s+skipped,\s*)?(\d+)\s+passed,\s*(\d+)\s+total`)

func parseJestVitest(output string) (TestTotals, bool) {
	m := jestSummaryPattern.FindStringSubmatch(output)
	if m == nil {
		return TestTotals{}, false
	}
	fail, _ := strconv.Atoi(m[1])
	skip, _ := strconv.Atoi(m[2])
	pass, _ := strconv.Atoi(m[3])
	return TestTotals{Pass: pass, Fail: fail, Skip: skip}, true
}

var (
	passCountPattern = regexp.MustCompile(`(?m)^PASS\b`)
	failCountPattern = regexp.MustCompile(`(?m)^FAIL\b`)
)

func parseGenericPassFailCounts(output string) (TestTotals, bool) {
	passes := len(passCountPattern.FindAllString(output, -1))
	fails := len(failCountPattern.FindAllString(output, -1))
	if passes == 0 && fails == 0 {
		return TestTotals{}, false
	}
	return TestTotals{Pass: passes, Fail: fails}, true
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
