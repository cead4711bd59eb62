package main

import (
	"github.com/spf13/cobra"

	"muninn/internal/ingestion"
	"muninn/internal/logging"
)

// ingestCmd is the parent for the engine's external-event entry points.
// Today that's just "commit", invoked by the post-commit git hook; the
// engine never mutates the working tree itself.
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Record an external event (git hook entry point)",
}

var ingestCommitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Ingest HEAD as a git commit event",
	Long: `Reads the repository's HEAD commit and records it: author, message,
per-file change stats, and pairwise file co-change counts. No-ops if the
commit hash is already recorded for this project. Enqueues the fixed set
of deferred analyses (diff classification, symbol/call-graph reindex,
test run, revert detection, ownership refresh).

Intended to be invoked by a post-commit git hook with the repository
root as the current working directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := ingestion.IngestCommit(ctx, a.store, a.repoRoot); err != nil {
			return err
		}
		logging.Ingest("ingest commit: done for %s", a.repoRoot)
		return nil
	},
}
