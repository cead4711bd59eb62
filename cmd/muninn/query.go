package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"muninn/internal/query"
)

var queryMode string

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Search the project's knowledge for a ranked list of memory snippets",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		results, err := query.Query(ctx, a.store, a.engine, a.project.ID, args[0], queryMode)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("no matches")
			return nil
		}
		for _, r := range results {
			fmt.Printf("[%s %.2f] %s: %s\n", r.Type, r.Score, r.Title, truncate(r.Content, 160))
		}
		return nil
	},
}

func init() {
	queryCmd.Flags().StringVar(&queryMode, "mode", query.ModeAuto, "retrieval mode: auto, fts, vector, smart")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
