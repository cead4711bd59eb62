package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatementsSimple(t *testing.T) {
	stmts := splitStatements("CREATE TABLE a (id INTEGER); CREATE TABLE b (id INTEGER);")
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (id INTEGER);", stmts[0])
	assert.Equal(t, "CREATE TABLE b (id INTEGER);", stmts[1])
}

func TestSplitStatementsSemicolonInStringLiteral(t *testing.T) {
	stmts := splitStatements(`INSERT INTO t VALUES ('a;b'); SELECT 1;`)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "'a;b'")
}

func TestSplitStatementsEscapedQuote(t *testing.T) {
	stmts := splitStatements(`INSERT INTO t VALUES ('it''s; fine'); SELECT 1;`)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "it''s; fine")
}

func TestSplitStatementsLineComment(t *testing.T) {
	script := "CREATE TABLE a (id INTEGER); -- trailing; comment\nCREATE TABLE b (id INTEGER);"
	stmts := splitStatements(script)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[1], "-- trailing; comment")
}

func TestSplitStatementsBlockComment(t *testing.T) {
	script := "/* a; b;\nc; */ CREATE TABLE a (id INTEGER);"
	stmts := splitStatements(script)
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], "CREATE TABLE a")
}

func TestSplitStatementsTriggerBody(t *testing.T) {
	script := `
CREATE TABLE files (id INTEGER PRIMARY KEY, path TEXT);
CREATE TRIGGER files_ai AFTER INSERT ON files BEGIN
	INSERT INTO fts_files(rowid, path) VALUES (new.id, new.path);
	UPDATE files SET path = new.path WHERE id = new.id;
END;
CREATE TABLE other (id INTEGER);
`
	stmts := splitStatements(script)
	require.Len(t, stmts, 3)
	assert.Contains(t, stmts[1], "CREATE TRIGGER")
	assert.Contains(t, stmts[1], "END;")
	assert.Contains(t, stmts[2], "CREATE TABLE other")
}

func TestSplitStatementsBeginInsideIdentifierDoesNotNest(t *testing.T) {
	// "beginning" and "ended" contain BEGIN/END as substrings but not as
	// words; the splitter must not treat them as block delimiters.
	script := "CREATE TABLE beginning (ended INTEGER); SELECT 1;"
	stmts := splitStatements(script)
	require.Len(t, stmts, 2)
}

func TestSplitStatementsNoTrailingSemicolon(t *testing.T) {
	stmts := splitStatements("SELECT 1")
	require.Len(t, stmts, 1)
	assert.Equal(t, "SELECT 1", stmts[0])
}

func TestSplitStatementsEmptyAndWhitespace(t *testing.T) {
	assert.Empty(t, splitStatements(""))
	assert.Empty(t, splitStatements("  \n\t  "))
	assert.Empty(t, splitStatements(";;;"))
}

func TestSplitStatementsFullSchemaBundle(t *testing.T) {
	stmts := splitStatements(schemaDDL)
	require.NotEmpty(t, stmts)
	for _, stmt := range stmts {
		assert.NotEmpty(t, stmt)
	}
	// Every trigger in the bundle must come out whole.
	for _, stmt := range stmts {
		if containsWord(stmt, "TRIGGER") {
			assert.Contains(t, stmt, "END")
		}
	}
}

func containsWord(s, word string) bool {
	for i := 0; i+len(word) <= len(s); i++ {
		if s[i:i+len(word)] == word {
			return true
		}
	}
	return false
}
