package store

import "strings"

// splitStatements breaks a multi-statement SQL text blob into individually
// executable statements. It is the re-expression of the "dynamic capability
// probe" pattern the source relies on for multi-statement exec: rather than
// delegating to the driver, it tracks string-quote state, `--` line and
// `/* */` block comments, and BEGIN/END nesting so semicolons inside a
// trigger body never split the trigger in two.
func splitStatements(script string) []string {
	var stmts []string
	var b strings.Builder

	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
		stateLineComment
		stateBlockComment
	)

	state := stateNormal
	beginDepth := 0
	runes := []rune(script)

	flush := func() {
		s := strings.TrimSpace(b.String())
		if s != "" && s != ";" {
			stmts = append(stmts, s)
		}
		b.Reset()
	}

	hasWordAt := func(i int, word string) bool {
		wr := []rune(word)
		if i+len(wr) > len(runes) {
			return false
		}
		for j, w := range wr {
			c := runes[i+j]
			if c >= 'A' && c <= 'Z' {
				c += 'a' - 'A'
			}
			wc := w
			if wc >= 'A' && wc <= 'Z' {
				wc += 'a' - 'A'
			}
			if c != wc {
				return false
			}
		}
		before := i == 0 || !isWordRune(runes[i-1])
		afterIdx := i + len(wr)
		after := afterIdx >= len(runes) || !isWordRune(runes[afterIdx])
		return before && after
	}

	for i := 0; i < len(runes); i++ {
		c := runes[i]

		switch state {
		case stateLineComment:
			b.WriteRune(c)
			if c == '\n' {
				state = stateNormal
			}
			continue
		case stateBlockComment:
			b.WriteRune(c)
			if c == '/' && i > 0 && runes[i-1] == '*' {
				state = stateNormal
			}
			continue
		case stateSingleQuote:
			b.WriteRune(c)
			if c == '\'' {
				if i+1 < len(runes) && runes[i+1] == '\'' {
					b.WriteRune(runes[i+1])
					i++
					continue
				}
				state = stateNormal
			}
			continue
		case stateDoubleQuote:
			b.WriteRune(c)
			if c == '"' {
				state = stateNormal
			}
			continue
		}

		// stateNormal
		if c == '-' && i+1 < len(runes) && runes[i+1] == '-' {
			state = stateLineComment
			b.WriteRune(c)
			continue
		}
		if c == '/' && i+1 < len(runes) && runes[i+1] == '*' {
			state = stateBlockComment
			b.WriteRune(c)
			continue
		}
		if c == '\'' {
			state = stateSingleQuote
			b.WriteRune(c)
			continue
		}
		if c == '"' {
			state = stateDoubleQuote
			b.WriteRune(c)
			continue
		}
		if hasWordAt(i, "BEGIN") {
			beginDepth++
		}
		if hasWordAt(i, "END") {
			if beginDepth > 0 {
				beginDepth--
			}
		}
		if c == ';' && beginDepth == 0 {
			b.WriteRune(c)
			flush()
			continue
		}
		b.WriteRune(c)
	}
	flush()
	return stmts
}

func isWordRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
