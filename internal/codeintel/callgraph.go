package codeintel

import (
	"path/filepath"
	"regexp"
	"strings"

	"muninn/internal/store"
)

// excludedCallKeywords are control-flow/builtin identifiers that look like
// calls but never resolve to a project symbol or import.
var excludedCallKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "return": true,
	"function": true, "catch": true, "func": true, "defer": true, "go": true,
}

var identCallPattern = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\(`)
var methodCallPattern = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)\(`)

// BuildCallEdges scans the body of every function/method symbol in a file
// for call expressions, resolving each against the file's imports and its
// own local symbol set. Edges for this file are wholly replaced on each
// pass -- ReindexCallGraph deletes the prior set before inserting.
func BuildCallEdges(fileID int64, body map[string]string, symbols []store.Symbol, imports []Import) []store.CallEdge {
	localCallable := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		if s.Kind == store.SymbolFunction || s.Kind == store.SymbolMethod {
			localCallable[s.Name] = true
		}
	}
	importsByBinding := make(map[string]Import, len(imports))
	for _, imp := range imports {
		if imp.Binding != "" {
			importsByBinding[imp.Binding] = imp
		}
	}

	var edges []store.CallEdge
	for _, sym := range symbols {
		if sym.Kind != store.SymbolFunction && sym.Kind != store.SymbolMethod {
			continue
		}
		text, ok := body[sym.Name]
		if !ok {
			continue
		}

		for _, m := range methodCallPattern.FindAllStringSubmatch(text, -1) {
			obj, method := m[1], m[2]
			if excludedCallKeywords[obj] {
				continue
			}
			if imp, ok := importsByBinding[obj]; ok && imp.Namespace {
				edges = append(edges, store.CallEdge{
					CallerFile:   fileID,
					CallerSymbol: sym.Name,
					CalleeSymbol: method,
					CallType:     store.CallMethod,
					Confidence:   0.75,
				})
			}
		}

		for _, m := range identCallPattern.FindAllStringSubmatch(text, -1) {
			name := m[1]
			if excludedCallKeywords[name] {
				continue
			}
			if _, ok := importsByBinding[name]; ok {
				edges = append(edges, store.CallEdge{
					CallerFile:   fileID,
					CallerSymbol: sym.Name,
					CalleeSymbol: name,
					CallType:     store.CallDirect,
					Confidence:   0.85,
				})
				continue
			}
			if localCallable[name] && name != sym.Name {
				edges = append(edges, store.CallEdge{
					CallerFile:   fileID,
					CallerSymbol: sym.Name,
					CalleeSymbol: name,
					CallType:     store.CallDirect,
					Confidence:   0.9,
				})
			}
		}
	}
	return edges
}

// ResolveImportPath probes a relative import specifier against the usual
// extension and index-file conventions, returning the first candidate that
// exists among candidateFiles (the project's known file set, keyed by
// relative path) -- bare package specifiers are never resolved.
func ResolveImportPath(fromDir, spec string, candidateFiles map[string]bool) string {
	if !strings.HasPrefix(spec, ".") {
		return ""
	}
	base := filepath.Join(fromDir, spec)
	candidates := []string{base}
	for _, ext := range []string{".ts", ".tsx", ".js", ".jsx", ".go"} {
		candidates = append(candidates, base+ext)
	}
	for _, ext := range []string{".ts", ".tsx", ".js", ".jsx"} {
		candidates = append(candidates, filepath.Join(base, "index"+ext))
	}
	for _, c := range candidates {
		if candidateFiles[c] {
			return c
		}
	}
	return ""
}

// testSuffixPattern matches the foo.test.ext / foo.spec.ext naming rule;
// InferSourceFromTest tries it before the __tests__ directory rule.
var testSuffixPattern = regexp.MustCompile(`\.(test|spec)(\.[A-Za-z0-9]+)$`)

// InferSourceFromTest implements the two naming conventions: foo.test.ext
// (or foo.spec.ext) -> foo.ext, and dir/__tests__/x -> dir/x. Returns ""
// if neither rule matches.
func InferSourceFromTest(testPath string) string {
	if m := testSuffixPattern.FindStringSubmatchIndex(testPath); m != nil {
		return testSuffixPattern.ReplaceAllString(testPath, "$2")
	}
	dir := filepath.Dir(testPath)
	base := filepath.Base(testPath)
	if filepath.Base(dir) == "__tests__" {
		return filepath.Join(filepath.Dir(dir), base)
	}
	return ""
}
