// Package main implements the muninn CLI: the one-shot entry point for
// git-hook-driven ingestion, background reindexing, learning promotion,
// and the relationship/query/resource surface exposed to callers that
// would otherwise talk to the long-lived server over stdio.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"muninn/internal/logging"
)

var (
	verbose   bool
	workspace string
	timeout   time.Duration
	projectDB bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "muninn",
	Short: "Muninn - persistent memory for coding assistants",
	Long: `Muninn gives a coding assistant durable, queryable memory of a
codebase: files, decisions, issues, learnings, and the outcomes of past
changes, assembled into budget-packed context on demand.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		}
		if err := logging.Initialize(ws); err != nil {
			fmt.Fprintf(os.Stderr, "warning: file logging init failed: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "project root (default: current directory)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "operation timeout")
	rootCmd.PersistentFlags().BoolVar(&projectDB, "project-db", false, "use <workspace>/.muninn/memory.db instead of the shared home database")

	ingestCmd.AddCommand(ingestCommitCmd)

	relateCmd.AddCommand(relateAddCmd)

	promoteCmd.AddCommand(
		promoteCandidatesCmd,
		promoteSyncCmd,
		promoteStaleCmd,
		promoteDemoteCmd,
	)

	rootCmd.AddCommand(
		ingestCmd,
		reindexCmd,
		promoteCmd,
		relateCmd,
		relationsCmd,
		unrelateCmd,
		queryCmd,
		checkCmd,
		suggestCmd,
		predictCmd,
		resourceCmd,
		statsCmd,
		passthroughCmd,
		serveCmd,
		workerCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}
