package codeintel

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"muninn/internal/logging"
	"muninn/internal/store"
)

var skippedDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, "dist": true,
	"build": true, ".next": true, "__pycache__": true,
}

// Walk bounds: at most maxWalkFiles files, directories at most
// maxWalkDepth levels below root.
const (
	maxWalkFiles = 2000
	maxWalkDepth = 15
)

// WalkSourceFiles returns parseable files under root, skipping VCS and
// dependency directories, stopping after maxWalkFiles files and not
// descending more than maxWalkDepth directory levels.
func WalkSourceFiles(root string) ([]string, error) {
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if skippedDirs[info.Name()] {
				return filepath.SkipDir
			}
			if rel, rerr := filepath.Rel(root, path); rerr == nil && rel != "." &&
				strings.Count(rel, string(filepath.Separator))+1 > maxWalkDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if len(files) >= maxWalkFiles {
			return filepath.SkipAll
		}
		if ParserFor(path) != nil {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// ParseAndPersist batches files in groups of 10 and incrementally updates
// the store: a file whose content hash is unchanged from the last pass is
// skipped entirely; otherwise its prior symbols are deleted and the new
// set inserted. A per-file read or parse failure is counted as failed and
// leaves the previous symbols in place.
func ParseAndPersist(ctx context.Context, s store.Store, projectID int64, paths []string) (parsed, skipped, failed int, err error) {
	const batchSize = 10

	for start := 0; start < len(paths); start += batchSize {
		end := start + batchSize
		if end > len(paths) {
			end = len(paths)
		}
		for _, path := range paths[start:end] {
			content, rerr := os.ReadFile(path)
			if rerr != nil {
				failed++
				logging.CodeIntelWarn("parseAndPersist: read failed for %s: %v", path, rerr)
				continue
			}

			relPath := path
			existing, _ := s.Get(ctx, "SELECT id, content_hash FROM files WHERE project_id = ? AND path = ?", projectID, relPath)

			pf, perr := ParseFile(path, content)
			if perr != nil {
				failed++
				logging.CodeIntelWarn("parseAndPersist: parse failed for %s: %v", path, perr)
				continue
			}
			if pf == nil {
				skipped++
				continue
			}

			if existing != nil {
				if hash, ok := existing["content_hash"].(string); ok && hash == pf.ContentHash {
					skipped++
					continue
				}
			}

			fileID, uerr := upsertFile(ctx, s, projectID, relPath, pf.ContentHash, existing)
			if uerr != nil {
				failed++
				logging.CodeIntelWarn("parseAndPersist: upsert failed for %s: %v", path, uerr)
				continue
			}

			if _, err := s.Run(ctx, "DELETE FROM symbols WHERE file_id = ?", fileID); err != nil {
				logging.CodeIntelWarn("parseAndPersist: symbol delete failed for %s: %v", path, err)
			}
			for _, sym := range pf.Symbols {
				_, _ = s.Run(ctx,
					`INSERT INTO symbols (file_id, name, kind, signature, parameters, returns, parent_class, line_start, line_end, is_exported)
					 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
					fileID, sym.Name, sym.Kind, sym.Signature, sym.Parameters, sym.Returns, sym.ParentClass,
					sym.LineStart, sym.LineEnd, sym.IsExported)
			}
			parsed++
		}
	}
	return parsed, skipped, failed, nil
}

func upsertFile(ctx context.Context, s store.Store, projectID int64, path, contentHash string, existing map[string]interface{}) (int64, error) {
	if existing != nil {
		if id, ok := asInt64(existing["id"]); ok {
			_, err := s.Run(ctx, "UPDATE files SET content_hash = ? WHERE id = ?", contentHash, id)
			return id, err
		}
	}
	res, err := s.Run(ctx,
		`INSERT INTO files (project_id, path, content_hash, temperature) VALUES (?, ?, ?, ?)
		 ON CONFLICT(project_id, path) DO UPDATE SET content_hash = excluded.content_hash`,
		projectID, path, contentHash, store.TemperatureWarm)
	if err != nil {
		return 0, err
	}
	if res.LastInsertID != 0 {
		return res.LastInsertID, nil
	}
	row, err := s.Get(ctx, "SELECT id FROM files WHERE project_id = ? AND path = ?", projectID, path)
	if err != nil || row == nil {
		return 0, err
	}
	id, _ := asInt64(row["id"])
	return id, nil
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}

// TestSourceRelationships infers tests-relates-to-source edges for a batch
// of test file paths, looking each inferred source path up among the
// project's known files.
func TestSourceRelationships(ctx context.Context, s store.Store, projectID int64, testPaths []string) ([]store.Relationship, error) {
	var rels []store.Relationship
	for _, tp := range testPaths {
		src := InferSourceFromTest(tp)
		if src == "" {
			continue
		}
		testRow, _ := s.Get(ctx, "SELECT id FROM files WHERE project_id = ? AND path = ?", projectID, tp)
		srcRow, _ := s.Get(ctx, "SELECT id FROM files WHERE project_id = ? AND path = ?", projectID, src)
		if testRow == nil || srcRow == nil {
			continue
		}
		testID, _ := asInt64(testRow["id"])
		srcID, _ := asInt64(srcRow["id"])
		rels = append(rels, store.Relationship{
			SourceType:   "file",
			SourceID:     testID,
			TargetType:   "file",
			TargetID:     srcID,
			Relationship: store.RelTests,
			Strength:     9,
		})
	}
	return rels, nil
}

// IsTestPath reports whether a file path matches one of the test-naming
// conventions InferSourceFromTest understands.
func IsTestPath(path string) bool {
	base := filepath.Base(path)
	if strings.Contains(base, ".test.") || strings.Contains(base, ".spec.") {
		return true
	}
	return filepath.Base(filepath.Dir(path)) == "__tests__"
}
