package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"muninn/internal/query"
)

var resourceCmd = &cobra.Command{
	Use:   "resource <uri>",
	Short: "Render one of the pull-only resource URIs as plain text",
	Long: fmt.Sprintf(`Each resource is recomputed fresh on every read. Known URIs:
  %s
  %s
  %s
  %s
  %s`,
		query.ResourceContextCurrent, query.ResourceContextErrors, query.ResourceWarningsActive,
		query.ResourceContextShared, query.ResourceBriefing),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		text, err := query.Resource(ctx, a.store, a.engine, a.project.ID, args[0])
		if err != nil {
			return err
		}
		fmt.Println(text)
		return nil
	},
}
