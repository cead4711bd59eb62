package codeintel

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"muninn/internal/logging"
	"muninn/internal/store"
)

// ReindexCallGraph reparses every path already recorded in the project's
// files table, builds its call edges from the freshly parsed symbols and
// imports (resolving callee files against the recorded paths), and wholly
// replaces the
// file's prior call_edges rows -- mirroring ParseAndPersist's
// delete-then-reinsert pattern for the caller side of one file.
func ReindexCallGraph(ctx context.Context, s store.Store, projectID int64, paths []string) (built, failed int, err error) {
	fileIDs := make(map[string]int64, len(paths))
	rows, qerr := s.All(ctx, "SELECT id, path FROM files WHERE project_id = ?", projectID)
	if qerr != nil {
		return 0, 0, qerr
	}
	for _, row := range rows {
		id, ok := asInt64(row["id"])
		if !ok {
			continue
		}
		fileIDs[row["path"].(string)] = id
	}

	for _, path := range paths {
		fileID, ok := fileIDs[path]
		if !ok {
			continue
		}
		content, rerr := os.ReadFile(path)
		if rerr != nil {
			failed++
			continue
		}
		pf, perr := ParseFile(path, content)
		if perr != nil || pf == nil {
			failed++
			continue
		}

		body := symbolBodies(content, pf.Symbols)
		edges := BuildCallEdges(fileID, body, pf.Symbols, pf.Imports)

		dir := filepath.Dir(path)
		for i, e := range edges {
			imp := importFor(pf.Imports, e.CalleeSymbol)
			target := ""
			if imp.ResolvedFile != "" {
				target = imp.ResolvedFile
			} else if imp.Path != "" {
				target = ResolveImportPath(dir, imp.Path, pathExists(fileIDs))
			}
			if target != "" {
				if id, ok := fileIDs[target]; ok {
					edges[i].CalleeFile = id
				}
			}
			edges[i].Project = projectID
		}

		if _, err := s.Run(ctx, "DELETE FROM call_edges WHERE caller_file = ?", fileID); err != nil {
			logging.CodeIntelWarn("reindexCallGraph: delete prior edges for %s failed: %v", path, err)
		}
		for _, e := range edges {
			if _, err := s.Run(ctx,
				`INSERT INTO call_edges (project_id, caller_file, caller_symbol, callee_file, callee_symbol, call_type, confidence)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				e.Project, e.CallerFile, e.CallerSymbol, nullableFileID(e.CalleeFile), e.CalleeSymbol, e.CallType, e.Confidence); err != nil {
				logging.CodeIntelWarn("reindexCallGraph: insert edge failed for %s: %v", path, err)
			}
		}
		built++
	}
	return built, failed, nil
}

func nullableFileID(id int64) interface{} {
	if id == 0 {
		return nil
	}
	return id
}

func importFor(imports []Import, binding string) Import {
	for _, imp := range imports {
		if imp.Binding == binding {
			return imp
		}
	}
	return Import{}
}

func pathExists(fileIDs map[string]int64) map[string]bool {
	out := make(map[string]bool, len(fileIDs))
	for p := range fileIDs {
		out[p] = true
	}
	return out
}

// symbolBodies slices the raw content by each symbol's recorded line
// range into the text BuildCallEdges scans for call expressions.
func symbolBodies(content []byte, symbols []store.Symbol) map[string]string {
	lines := strings.Split(string(content), "\n")
	body := make(map[string]string, len(symbols))
	for _, sym := range symbols {
		start := sym.LineStart - 1
		end := sym.LineEnd
		if start < 0 {
			start = 0
		}
		if end > len(lines) {
			end = len(lines)
		}
		if start >= end {
			continue
		}
		body[sym.Name] = strings.Join(lines[start:end], "\n")
	}
	return body
}
