package context

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Format renders packed memories into the wire-level shape named by
// format, defaulting to markdown for an unrecognised value.
func Format(format, app, scope string, packed []Memory, tokenCount int) string {
	switch format {
	case FormatXML:
		return formatXML(app, scope, packed, tokenCount)
	case FormatNative:
		return formatNative(packed)
	case FormatJSON:
		return formatJSON(packed)
	default:
		return formatMarkdown(packed)
	}
}

// formatXML is bit-stable: one wrapper element with app/scope/tokens
// attributes, one child element per memory, all text XML-escaped.
func formatXML(app, scope string, packed []Memory, tokenCount int) string {
	var b strings.Builder
	b.WriteString(`<muninn-context app="`)
	b.WriteString(xmlEscape(app))
	b.WriteString(`"`)
	if scope != "" {
		b.WriteString(` scope="`)
		b.WriteString(xmlEscape(scope))
		b.WriteString(`"`)
	}
	fmt.Fprintf(&b, ` tokens="%d">`, tokenCount)
	b.WriteString("\n")

	for _, m := range packed {
		tag := strings.ToUpper(m.Type)
		b.WriteString("  <")
		b.WriteString(tag)
		if m.Subtype != "" {
			b.WriteString(` subtype="`)
			b.WriteString(xmlEscape(m.Subtype))
			b.WriteString(`"`)
		}
		fmt.Fprintf(&b, ` confidence="%.2f">`, m.Confidence)
		b.WriteString(xmlEscape(displayContent(m)))
		b.WriteString("</")
		b.WriteString(tag)
		b.WriteString(">\n")
	}
	b.WriteString("</muninn-context>")
	return b.String()
}

func xmlEscape(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
	)
	return r.Replace(s)
}

// formatMarkdown emits `- **[type[.subtype], conf]** content` lines under
// a "Relevant Context" header.
func formatMarkdown(packed []Memory) string {
	var b strings.Builder
	b.WriteString("## Relevant Context\n\n")
	for _, m := range packed {
		label := m.Type
		if m.Subtype != "" {
			label = label + "." + m.Subtype
		}
		fmt.Fprintf(&b, "- **[%s, %.2f]** %s\n", label, m.Confidence, displayContent(m))
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatNative emits compact bracketed records: K[type|ent:a,b|title|conf:N]
// with \, |, [, ] backslash-escaped in values. The ent: slot carries the
// memory's entities (file paths it concerns), comma-joined and escaped
// individually so a comma inside one entity stays distinguishable.
func formatNative(packed []Memory) string {
	lines := make([]string, 0, len(packed))
	for _, m := range packed {
		ents := make([]string, 0, len(m.Entities))
		for _, e := range m.Entities {
			ents = append(ents, nativeEscape(e))
		}
		lines = append(lines, fmt.Sprintf("K[%s|ent:%s|%s|conf:%d]",
			nativeEscape(m.Type), strings.Join(ents, ","), nativeEscape(m.Title), int(m.Confidence*10)))
	}
	return strings.Join(lines, "\n")
}

var nativeEscaper = strings.NewReplacer(
	`\`, `\\`,
	`|`, `\|`,
	`[`, `\[`,
	`]`, `\]`,
)

func nativeEscape(s string) string {
	return nativeEscaper.Replace(s)
}

// nativeUnescape reverses nativeEscape, used by tests asserting the
// round-trip property.
func nativeUnescape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// nativeMemoryRecord is what formatJSON emits per memory -- the memory
// array verbatim (ids + scores).
type nativeMemoryRecord struct {
	ID         int64   `json:"id"`
	Type       string  `json:"type"`
	Subtype    string  `json:"subtype,omitempty"`
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
	Score      float64 `json:"score"`
}

func formatJSON(packed []Memory) string {
	records := make([]nativeMemoryRecord, 0, len(packed))
	for _, m := range packed {
		records = append(records, nativeMemoryRecord{
			ID: m.ID, Type: m.Type, Subtype: m.Subtype, Title: m.Title,
			Content: m.Content, Confidence: m.Confidence, Score: m.Score,
		})
	}
	out, err := json.Marshal(records)
	if err != nil {
		return "[]"
	}
	return string(out)
}

func displayContent(m Memory) string {
	if m.Content != "" {
		return m.Content
	}
	return m.Title
}
