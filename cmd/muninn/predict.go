package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"muninn/internal/query"
)

var (
	predictTask  string
	predictFiles []string
	predictTools []string
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Bundle related files, co-changers, decisions, issues, learnings, tests, and a workflow guess",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := query.Predict(ctx, a.store, a.project.ID, predictTask, predictFiles, predictTools)
		if err != nil {
			return err
		}

		if len(result.RelatedFiles) > 0 {
			fmt.Println("related files:")
			for _, f := range result.RelatedFiles {
				fmt.Printf("  %s\t%s\n", f.Path, f.Reason)
			}
		}
		if len(result.Cochangers) > 0 {
			fmt.Println("cochangers:")
			for _, f := range result.Cochangers {
				fmt.Printf("  %s\t%s\n", f.Path, f.Reason)
			}
		}
		if len(result.Tests) > 0 {
			fmt.Println("tests:")
			for _, t := range result.Tests {
				fmt.Printf("  %s\n", t.Path)
			}
		}
		for _, label := range []struct {
			name string
			rs   []query.Result
		}{{"decisions", result.Decisions}, {"issues", result.Issues}, {"learnings", result.Learnings}} {
			if len(label.rs) == 0 {
				continue
			}
			fmt.Println(label.name + ":")
			for _, r := range label.rs {
				fmt.Printf("  [%.2f] %s\n", r.Score, r.Title)
			}
		}
		if result.Workflow != nil {
			fmt.Printf("workflow: next likely tool %q (confidence %.2f)\n", result.Workflow.Tool, result.Workflow.Confidence)
		}
		return nil
	},
}

func init() {
	predictCmd.Flags().StringVar(&predictTask, "task", "", "task description to rank decisions/issues/learnings against")
	predictCmd.Flags().StringSliceVar(&predictFiles, "files", nil, "files to find co-changers and tests for")
	predictCmd.Flags().StringSliceVar(&predictTools, "recent-tools", nil, "last tool names, oldest first, for the workflow predictor")
}
