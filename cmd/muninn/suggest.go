package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"muninn/internal/query"
)

var (
	suggestLimit   int
	suggestSymbols bool
)

var suggestCmd = &cobra.Command{
	Use:   "suggest <task>",
	Short: "Rank files (and optionally symbols) by hybrid similarity to a task description",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := query.Suggest(ctx, a.store, a.engine, a.project.ID, args[0], suggestLimit, suggestSymbols)
		if err != nil {
			return err
		}
		for _, f := range result.Files {
			fmt.Printf("%.3f\t%s\t%s\n", f.Similarity, f.Path, f.Purpose)
		}
		for _, sym := range result.Symbols {
			fmt.Printf("%.3f\t%s:%s (%s)\t%s\n", sym.Similarity, sym.File, sym.Name, sym.Kind, sym.Signature)
		}
		if len(result.Files) == 0 && len(result.Symbols) == 0 {
			fmt.Println("no suggestions")
		}
		return nil
	},
}

func init() {
	suggestCmd.Flags().IntVar(&suggestLimit, "limit", 10, "maximum results")
	suggestCmd.Flags().BoolVar(&suggestSymbols, "symbols", false, "also rank symbols")
}
