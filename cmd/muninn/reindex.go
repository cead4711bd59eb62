package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"muninn/internal/codeintel"
	"muninn/internal/relate"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Walk the project and rebuild symbols, call graph, and test/source links",
	Long: `Walks the project tree (bounded: 50KB/file, 2000 files, depth
15, build-dir ignore set), re-extracts symbols for any file whose content
hash changed since the last pass, rebuilds that file's call-graph edges,
and re-links test files to their inferred source counterparts.

This is the synchronous, on-demand equivalent of the reindex_symbols and
build_call_graph work-queue jobs a commit otherwise enqueues.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		paths, err := codeintel.WalkSourceFiles(a.repoRoot)
		if err != nil {
			return fmt.Errorf("walk source files: %w", err)
		}

		parsed, skipped, failed, err := codeintel.ParseAndPersist(ctx, a.store, a.project.ID, paths)
		if err != nil {
			return fmt.Errorf("parse and persist: %w", err)
		}

		built, cgFailed, err := codeintel.ReindexCallGraph(ctx, a.store, a.project.ID, paths)
		if err != nil {
			return fmt.Errorf("build call graph: %w", err)
		}

		var testPaths []string
		for _, p := range paths {
			if codeintel.IsTestPath(p) {
				testPaths = append(testPaths, p)
			}
		}
		linked := 0
		if len(testPaths) > 0 {
			rels, relErr := codeintel.TestSourceRelationships(ctx, a.store, a.project.ID, testPaths)
			if relErr == nil {
				linked = relate.InsertBatch(ctx, a.store, rels)
			}
		}

		fmt.Printf("reindex: %d files walked, %d parsed, %d unchanged, %d failed\n", len(paths), parsed, skipped, failed)
		fmt.Printf("reindex: call graph rebuilt for %d files (%d failed)\n", built, cgFailed)
		fmt.Printf("reindex: %d test/source relationships linked\n", linked)
		return nil
	},
}
