package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinesIdenticalContent(t *testing.T) {
	content := "a\nb\nc\n"
	assert.Nil(t, Lines(content, content))
}

func TestLinesSingleAddition(t *testing.T) {
	old := "a\nb\nc\n"
	cur := "a\nb\nnew\nc\n"

	var adds []LineChange
	for _, c := range Lines(old, cur) {
		if c.Op == OpAdd {
			adds = append(adds, c)
		}
	}
	require.Len(t, adds, 1)
	assert.Equal(t, 3, adds[0].NewLine)
	assert.Equal(t, "new", adds[0].Text)
	assert.Equal(t, 0, adds[0].OldLine)
}

func TestLinesSingleDeletion(t *testing.T) {
	old := "a\nb\nc\n"
	cur := "a\nc\n"

	var dels []LineChange
	for _, c := range Lines(old, cur) {
		if c.Op == OpDelete {
			dels = append(dels, c)
		}
	}
	require.Len(t, dels, 1)
	assert.Equal(t, 2, dels[0].OldLine)
	assert.Equal(t, "b", dels[0].Text)
}

func TestLinesModificationCountsBothSides(t *testing.T) {
	old := "func a() {\n\treturn 1\n}\n"
	cur := "func a() {\n\treturn 2\n}\n"

	ins, del := Stats(old, cur)
	assert.Equal(t, 1, ins)
	assert.Equal(t, 1, del)
}

func TestAddedLinesNumbering(t *testing.T) {
	old := "one\ntwo\nthree\n"
	cur := "zero\none\ntwo\nthree\nfour\n"

	assert.Equal(t, []int{1, 5}, AddedLines(old, cur))
}

func TestAddedLinesFromEmpty(t *testing.T) {
	cur := "a\nb\n"
	assert.Equal(t, []int{1, 2}, AddedLines("", cur))
}

func TestLinesEqualRunsKeepBothNumbers(t *testing.T) {
	old := "a\nb\n"
	cur := "a\nx\n"

	changes := Lines(old, cur)
	require.NotEmpty(t, changes)
	first := changes[0]
	assert.Equal(t, OpEqual, first.Op)
	assert.Equal(t, 1, first.OldLine)
	assert.Equal(t, 1, first.NewLine)
}
