package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"muninn/internal/store"
)

func TestScanOutput_TypeScriptDiagnostic(t *testing.T) {
	out := "src/a.ts(12,5): error TS2345: Argument of type 'string' is not assignable to parameter of type 'number'."
	found := ScanOutput(out)
	require.Len(t, found, 1)
	assert.Equal(t, store.ErrorType, found[0].ErrorType)
	assert.Equal(t, "src/a.ts", found[0].SourceFile)
	assert.Contains(t, found[0].Message, "TS2345")
}

func TestScanOutput_DedupesWithinOneOutput(t *testing.T) {
	msg := "error TS2345: Argument of type 'string' is not assignable to parameter of type 'number'."
	out := "src/a.ts(12,5): " + msg + "\n" + "src/a.ts(12,5): " + msg
	found := ScanOutput(out)
	assert.Len(t, found, 1)
}

func TestScanOutput_StackTraceCollectsUpToFiveLines(t *testing.T) {
	out := "TypeError: cannot read property 'x' of undefined\n" +
		"    at foo (a.js:1:1)\n" +
		"    at bar (b.js:2:2)\n" +
		"    at baz (c.js:3:3)\n" +
		"    at qux (d.js:4:4)\n" +
		"    at quux (e.js:5:5)\n" +
		"    at corge (f.js:6:6)\n" +
		"not a stack line\n"
	found := ScanOutput(out)
	require.Len(t, found, 1)
	lines := found[0].StackTrace
	assert.Equal(t, 5, len(splitLines(lines)))
}

func TestScanOutput_JestFailAndExitCode(t *testing.T) {
	out := "FAIL src/sum.test.ts\nprocess exited with exit code: 1"
	found := ScanOutput(out)
	require.Len(t, found, 2)
	assert.Equal(t, store.ErrorTest, found[0].ErrorType)
	assert.Equal(t, store.ErrorExitCode, found[1].ErrorType)
}

func TestNormalizeSignature_ReplacesVariableParts(t *testing.T) {
	msg := `Argument 42 of type "foo" at /home/user/project/src/a.ts is invalid`
	sig := NormalizeSignature(msg)
	assert.NotContains(t, sig, "42")
	assert.NotContains(t, sig, "/home/user/project/src/a.ts")
	assert.Contains(t, sig, "*")
}

func TestNormalizeSignature_TruncatesTo200(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'a'
	}
	sig := NormalizeSignature(string(long))
	assert.Len(t, sig, 200)
}

func TestParseExitCode(t *testing.T) {
	n, ok := ParseExitCode("process exited with exit code: 137")
	require.True(t, ok)
	assert.Equal(t, 137, n)

	_, ok = ParseExitCode("no digits here")
	assert.False(t, ok)
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
