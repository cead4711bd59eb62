// Package codeintel extracts symbols and call edges from source files.
// Go files use the standard go/ast toolchain; TypeScript/JavaScript files use
// tree-sitter. Heuristic regex matchers cover the rest of the parsing for
// calls and imports, in the style of fast, best-effort static
// analysis rather than full type checking.
package codeintel

import (
	"hash/fnv"
	"path/filepath"
	"strings"

	"muninn/internal/store"
)

// maxParseableBytes skips oversized files; they're rarely hand-written
// source and parsing them is wasted latency on every reindex pass.
const maxParseableBytes = 50 * 1024

// ParsedFile is parseFile's return value: the extracted symbols plus a
// content hash used to skip unchanged files on the next pass.
type ParsedFile struct {
	Path        string
	Symbols     []store.Symbol
	ContentHash string
	Imports     []Import
}

// Import is one resolved or unresolved import/require statement.
type Import struct {
	// Binding is the local name bound by the import (named, default, or
	// namespace alias). Empty for a bare side-effect import.
	Binding string
	// Namespace is true when Binding refers to an imported module object
	// whose members are accessed as Binding.member(...).
	Namespace bool
	// Path is the import specifier as written in source.
	Path string
	// ResolvedFile is the relative-import target file path, resolved
	// against the importing file's directory; empty if unresolved
	// (bare package specifiers are never resolved).
	ResolvedFile string
}

// LanguageParser extracts symbols and imports from one file's content.
type LanguageParser interface {
	Extensions() []string
	Parse(path string, content []byte) ([]store.Symbol, []Import, error)
}

var parsers = []LanguageParser{
	&GoParser{},
	&TSParser{},
}

// ParserFor returns the parser registered for path's extension, or nil if
// the language isn't supported.
func ParserFor(path string) LanguageParser {
	ext := strings.ToLower(filepath.Ext(path))
	for _, p := range parsers {
		for _, e := range p.Extensions() {
			if e == ext {
				return p
			}
		}
	}
	return nil
}

// ContentHash computes the FNV-1a 32-bit hex digest used to detect
// unchanged files between reindex passes.
func ContentHash(content []byte) string {
	h := fnv.New32a()
	h.Write(content)
	return fnvHex(h.Sum32())
}

func fnvHex(v uint32) string {
	const hexDigits = "0123456789abcdef"
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = hexDigits[v&0xf]
		v >>= 4
	}
	return string(b)
}

// ParseFile parses a single file into symbols and a content hash. Files
// above maxParseableBytes or with no registered parser are skipped (nil,
// nil) rather than erroring -- an unsupported language is not a failure.
func ParseFile(path string, content []byte) (*ParsedFile, error) {
	if len(content) > maxParseableBytes {
		return nil, nil
	}
	parser := ParserFor(path)
	if parser == nil {
		return nil, nil
	}
	symbols, imports, err := parser.Parse(path, content)
	if err != nil {
		return nil, err
	}
	return &ParsedFile{
		Path:        path,
		Symbols:     symbols,
		ContentHash: ContentHash(content),
		Imports:     imports,
	}, nil
}

// isExportedGoName reports whether a Go identifier is exported (starts
// with an upper-case ASCII letter). TS/JS export status is tracked by the
// TSParser itself from the `export` keyword.
func isExportedGoName(name string) bool {
	return name != "" && name[0] >= 'A' && name[0] <= 'Z'
}
