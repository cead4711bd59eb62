package context

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMemories() []Memory {
	return []Memory{
		{ID: 1, Type: "decision", Title: "Use SQLite", Content: "We chose SQLite for <embedding>", Confidence: 0.8},
		{ID: 2, Type: "learning", Subtype: "bugfix", Title: "Null check", Content: "Always check & validate \"input\"", Confidence: 0.42},
	}
}

func TestFormatXML_IsBitStable(t *testing.T) {
	out := Format(FormatXML, "claude-code", "project", sampleMemories(), 123)
	require.True(t, strings.HasPrefix(out, `<muninn-context app="claude-code" scope="project" tokens="123">`))
	assert.True(t, strings.HasSuffix(out, "</muninn-context>"))
	assert.Contains(t, out, `<DECISION confidence="0.80">We chose SQLite for &lt;embedding&gt;</DECISION>`)
	assert.Contains(t, out, `subtype="bugfix"`)
	assert.Contains(t, out, "&amp;")
	assert.Contains(t, out, "&quot;")
}

func TestFormatMarkdown_HeaderAndBullets(t *testing.T) {
	out := Format(FormatMarkdown, "app", "", sampleMemories(), 10)
	assert.True(t, strings.HasPrefix(out, "## Relevant Context"))
	assert.Contains(t, out, "- **[decision, 0.80]**")
	assert.Contains(t, out, "- **[learning.bugfix, 0.42]**")
}

func TestFormatNative_EscapesAndRoundTrips(t *testing.T) {
	m := Memory{
		Type:       "decision",
		Title:      `a|weird[title]\with backslash`,
		Entities:   []string{"src/a.ts", `odd|path.ts`},
		Content:    "content",
		Confidence: 0.9,
	}
	out := formatNative([]Memory{m})
	require.True(t, strings.HasPrefix(out, "K["))

	fields := splitNativeFields(t, out)
	require.Len(t, fields, 4)
	assert.Equal(t, "decision", fields[0])
	assert.True(t, strings.HasPrefix(fields[1], "ent:"))
	assert.Equal(t, "src/a.ts,odd\\|path.ts", fields[1][len("ent:"):])
	assert.Equal(t, m.Title, nativeUnescape(fields[2]))
	assert.Equal(t, "conf:9", fields[3])
}

func TestFormatNative_EmptyEntities(t *testing.T) {
	out := formatNative([]Memory{{Type: "learning", Title: "t", Confidence: 0.5}})
	fields := splitNativeFields(t, out)
	require.Len(t, fields, 4)
	assert.Equal(t, "ent:", fields[1])
	assert.Equal(t, "t", fields[2])
}

func TestFormatJSON_EmitsArrayVerbatim(t *testing.T) {
	out := Format(FormatJSON, "app", "", sampleMemories(), 50)
	assert.True(t, strings.HasPrefix(out, "["))
	assert.Contains(t, out, `"id":1`)
	assert.Contains(t, out, `"confidence":0.8`)
}

func TestFormat_UnknownFallsBackToMarkdown(t *testing.T) {
	out := Format("nonsense", "app", "", sampleMemories(), 10)
	assert.True(t, strings.HasPrefix(out, "## Relevant Context"))
}

// splitNativeFields parses one K[...] record back into its pipe-delimited
// fields, honoring backslash-escaping, for round-trip assertions.
func splitNativeFields(t *testing.T, record string) []string {
	t.Helper()
	inner := strings.TrimSuffix(strings.TrimPrefix(record, "K["), "]")
	var fields []string
	var cur strings.Builder
	for i := 0; i < len(inner); i++ {
		if inner[i] == '\\' && i+1 < len(inner) {
			cur.WriteByte(inner[i])
			cur.WriteByte(inner[i+1])
			i++
			continue
		}
		if inner[i] == '|' {
			fields = append(fields, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(inner[i])
	}
	fields = append(fields, cur.String())
	return fields
}
