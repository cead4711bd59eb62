package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"muninn/internal/query"
)

var checkCmd = &cobra.Command{
	Use:   "check <file> [file...]",
	Short: "Warn about fragility, open critical issues, staleness, and superseded decisions for files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		warnings, err := query.Check(ctx, a.store, a.project.ID, args)
		if err != nil {
			return err
		}
		if len(warnings) == 0 {
			fmt.Println("no warnings")
			return nil
		}
		for _, w := range warnings {
			fmt.Printf("[%s] %s: %s\n", w.Severity, w.File, w.Message)
		}
		return nil
	},
}
