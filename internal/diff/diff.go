// Package diff computes line-level change sets between two revisions of
// a file's content. It backs the intent classifier's changed-function
// mapping, wrapping sergi/go-diff's line-mode diff instead of a
// hand-rolled LCS.
package diff

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Op classifies one line of a change set.
type Op int

const (
	OpEqual Op = iota
	OpAdd
	OpDelete
)

// LineChange is one line of the computed change set. OldLine and NewLine
// are 1-based; a line absent from one side carries 0 there.
type LineChange struct {
	Op      Op
	OldLine int
	NewLine int
	Text    string
}

var dmp = func() *diffmatchpatch.DiffMatchPatch {
	d := diffmatchpatch.New()
	// Source diffs favor accuracy over latency; inputs are bounded
	// upstream by the 50 KB file-scan cap.
	d.DiffTimeout = 0
	return d
}()

// Lines returns the full ordered change set between oldContent and
// newContent. Equal runs are included so callers can window context
// around a change.
func Lines(oldContent, newContent string) []LineChange {
	if oldContent == newContent {
		return nil
	}

	// Line-level reduction avoids newline-boundary artifacts when
	// mapping character diffs back onto line ops.
	a, b, lineArray := dmp.DiffLinesToChars(oldContent, newContent)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var changes []LineChange
	oldLine, newLine := 0, 0
	for _, d := range diffs {
		for _, text := range splitLines(d.Text) {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				oldLine++
				newLine++
				changes = append(changes, LineChange{Op: OpEqual, OldLine: oldLine, NewLine: newLine, Text: text})
			case diffmatchpatch.DiffDelete:
				oldLine++
				changes = append(changes, LineChange{Op: OpDelete, OldLine: oldLine, Text: text})
			case diffmatchpatch.DiffInsert:
				newLine++
				changes = append(changes, LineChange{Op: OpAdd, NewLine: newLine, Text: text})
			}
		}
	}
	return changes
}

// AddedLines returns the 1-based new-file line numbers of every added
// line. This is what the changed-function mapper intersects against
// symbol line ranges.
func AddedLines(oldContent, newContent string) []int {
	var lines []int
	for _, c := range Lines(oldContent, newContent) {
		if c.Op == OpAdd {
			lines = append(lines, c.NewLine)
		}
	}
	return lines
}

// Stats counts insertions and deletions between the two revisions.
func Stats(oldContent, newContent string) (insertions, deletions int) {
	for _, c := range Lines(oldContent, newContent) {
		switch c.Op {
		case OpAdd:
			insertions++
		case OpDelete:
			deletions++
		}
	}
	return insertions, deletions
}

// splitLines splits a diff segment into lines, dropping the phantom
// empty element a trailing newline produces.
func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
