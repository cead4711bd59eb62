package ingestion

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"muninn/internal/logging"
	"muninn/internal/store"
)

// DetectedError is one error match extracted from a tool's raw output.
type DetectedError struct {
	ErrorType  string
	Message    string
	Signature  string
	SourceFile string
	StackTrace string
}

// errorPattern pairs a regex against one output line with the error type
// it signals and the capture group holding the message/source file.
type errorPattern struct {
	errorType string
	re        *regexp.Regexp
}

// errorPatterns is ordered most-specific first: TypeScript
// diagnostics, test failures, the <Kind>Error family, module resolution,
// SyntaxError, and finally a bare non-zero exit code.
var errorPatterns = []errorPattern{
	{store.ErrorType, regexp.MustCompile(`^(.+?)\((\d+),\d+\): error (TS\d+): (.+)$`)},
	{store.ErrorTest, regexp.MustCompile(`^\s*(FAIL|✗|✕)\s+(.+)$`)},
	{store.ErrorType, regexp.MustCompile(`\b(Type|Range|Reference)Error:\s*(.+)$`)},
	{store.ErrorRuntime, regexp.MustCompile(`\bError:\s*(.+)$`)},
	{store.ErrorImport, regexp.MustCompile(`(?i)(cannot find module|module not found|no such file or directory|import error)[:\s]+(.+)$`)},
	{store.ErrorSyntax, regexp.MustCompile(`SyntaxError:\s*(.+)$`)},
	{store.ErrorExitCode, regexp.MustCompile(`(?i)exit (?:code|status)[:\s]+([1-9]\d*)`)},
}

var (
	numberPattern = regexp.MustCompile(`\d+`)
	quotedPattern = regexp.MustCompile(`'[^']*'|"[^"]*"`)
	pathPattern   = regexp.MustCompile(`(?:/[\w.\-]+)+`)
	atLinePattern = regexp.MustCompile(`^\s*at\s`)
)

// ScanOutput scans a tool's raw textual output line by line against
// errorPatterns, deduplicating matches within this single output by
// signature. Each match's stack trace is the next up-to-five lines
// starting with "at ".
func ScanOutput(output string) []DetectedError {
	lines := strings.Split(output, "\n")
	seen := make(map[string]bool)
	var out []DetectedError

	for i, line := range lines {
		for _, p := range errorPatterns {
			m := p.re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			msg := strings.TrimSpace(m[len(m)-1])
			var sourceFile string
			if p.errorType == store.ErrorType && len(m) >= 5 {
				sourceFile = m[1]
				msg = m[3] + ": " + msg
			}
			sig := NormalizeSignature(msg)
			if seen[sig] {
				break
			}
			seen[sig] = true

			out = append(out, DetectedError{
				ErrorType:  p.errorType,
				Message:    msg,
				Signature:  sig,
				SourceFile: sourceFile,
				StackTrace: collectStackTrace(lines, i+1),
			})
			break
		}
	}
	return out
}

func collectStackTrace(lines []string, from int) string {
	var trace []string
	for i := from; i < len(lines) && len(trace) < 5; i++ {
		if atLinePattern.MatchString(lines[i]) {
			trace = append(trace, strings.TrimSpace(lines[i]))
		} else if len(trace) > 0 {
			break
		}
	}
	return strings.Join(trace, "\n")
}

// NormalizeSignature replaces variable parts of an error message --
// numbers, quoted strings, paths -- with wildcards and truncates to 200
// chars, producing the stable signature used for dedup and recall.
func NormalizeSignature(msg string) string {
	sig := quotedPattern.ReplaceAllString(msg, `"*"`)
	sig = pathPattern.ReplaceAllString(sig, "/*")
	sig = numberPattern.ReplaceAllString(sig, "*")
	sig = strings.TrimSpace(sig)
	if len(sig) > 200 {
		sig = sig[:200]
	}
	return sig
}

// RecordErrors persists every detected error from one tool's output,
// skipping any whose (project, signature) was already seen in the last
// hour (P4's dedup invariant). Fire-and-forget: failures are logged and
// swallowed.
func RecordErrors(ctx context.Context, s store.Store, projectID int64, sessionID *int64, toolCallID *int64, errs []DetectedError) {
	for _, e := range errs {
		cutoff := time.Now().UTC().Add(-1 * time.Hour)
		recent, err := s.Get(ctx,
			`SELECT id FROM error_events WHERE project_id = ? AND error_signature = ? AND created_at > ? LIMIT 1`,
			projectID, e.Signature, cutoff)
		if err != nil {
			logging.IngestWarn("RecordErrors: dedup check failed: %v", err)
			continue
		}
		if recent != nil {
			continue
		}

		_, err = s.Run(ctx,
			`INSERT INTO error_events (project_id, session_id, error_type, error_message, error_signature, source_file, stack_trace, tool_call_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			projectID, sessionID, e.ErrorType, e.Message, e.Signature, e.SourceFile, e.StackTrace, toolCallID, time.Now().UTC())
		if err != nil {
			logging.IngestWarn("RecordErrors: insert failed: %v", err)
		}
	}
}

// ParseExitCode extracts an integer exit code from a DetectedError whose
// ErrorType is ErrorExitCode, for callers that need the numeric value.
func ParseExitCode(msg string) (int, bool) {
	m := regexp.MustCompile(`([1-9]\d*)`).FindString(msg)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}
