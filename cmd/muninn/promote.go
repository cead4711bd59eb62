package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"muninn/internal/promotion"
)

// promoteCmd is the parent for the learning promotion lifecycle: the
// not_ready -> candidate -> promoted (or demoted) pipeline (the
// learning reinforcer writes confidence; promote moves status). Called
// bare with an id ("promote 42") it promotes that candidate directly;
// its subcommands cover the rest of the lifecycle.
var promoteCmd = &cobra.Command{
	Use:   "promote [learning-id]",
	Short: "Manage the promotion lifecycle of distilled learnings",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return usagef("invalid learning id %q: %v", args[0], err)
		}
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := promotion.Promote(ctx, a.store, id, promoteSection); err != nil {
			return err
		}
		fmt.Printf("promoted learning %d to section %q\n", id, promoteSection)
		return nil
	},
}

var promoteCandidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "List learnings awaiting a promotion decision",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		candidates, err := promotion.Candidates(ctx, a.store, a.project.ID)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			fmt.Println("no candidates")
			return nil
		}
		for _, c := range candidates {
			fmt.Printf("%d\t%-10s\tconf=%.1f\tapplied=%d\t%s\n", c.ID, c.Category, c.Confidence, c.TimesApplied, c.Title)
		}
		return nil
	},
}

var promoteSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Promote not_ready learnings that have cleared the candidate thresholds on their own",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := promotion.Sync(ctx, a.store, a.project.ID)
		if err != nil {
			return err
		}
		fmt.Printf("sync: %d learning(s) moved to candidate\n", n)
		return nil
	},
}

var promoteStaleCmd = &cobra.Command{
	Use:   "stale",
	Short: "List promoted learnings whose confidence has slipped or gone unreinforced",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		stale, err := promotion.Stale(ctx, a.store, a.project.ID)
		if err != nil {
			return err
		}
		if len(stale) == 0 {
			fmt.Println("no stale promotions")
			return nil
		}
		for _, c := range stale {
			fmt.Printf("%d\t%-10s\tconf=%.1f\t%s\n", c.ID, c.Category, c.Confidence, c.Title)
		}
		return nil
	},
}

var promoteDemoteCmd = &cobra.Command{
	Use:   "demote <learning-id>",
	Short: "Demote a promoted or candidate learning",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return usagef("invalid learning id %q: %v", args[0], err)
		}
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := promotion.Demote(ctx, a.store, id); err != nil {
			return err
		}
		fmt.Printf("demoted learning %d\n", id)
		return nil
	},
}

var promoteSection string

func init() {
	promoteCmd.Flags().StringVar(&promoteSection, "section", "general", "section to file the promoted learning under")
}
