package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"muninn/internal/relate"
	"muninn/internal/store"
)

// relateCmd is the parent for adding a relationship edge; `relate add`
// is the only form (bare `relate` prints usage), kept as its own parent
// so a future relate subcommand has somewhere to live without breaking
// this one's argument shape.
var relateCmd = &cobra.Command{
	Use:   "relate",
	Short: "Manage the relationships adjacency table",
}

var (
	relateStrength int
	relateNotes    string
)

var relateAddCmd = &cobra.Command{
	Use:   "add <source-type> <source-id> <relationship> <target-type> <target-id>",
	Short: "Insert (or update) a relationship edge between two entities",
	Long: fmt.Sprintf(`Inserts a relationship row after checking both endpoints exist and
are not archived (invariant I2). On conflict with an existing edge for
the same (source, target, relationship) tuple, the new strength and
notes win.

Entity types: file, decision, issue, learning, session.
Relationship kinds: %s.`, relationshipKindsList()),
	Args: cobra.ExactArgs(5),
	RunE: func(cmd *cobra.Command, args []string) error {
		rel, err := parseRelationArgs(args)
		if err != nil {
			return err
		}
		rel.Strength = relateStrength
		rel.Notes = relateNotes

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := relate.Insert(ctx, a.store, rel); err != nil {
			return err
		}
		fmt.Printf("related %s:%d -%s-> %s:%d\n", rel.SourceType, rel.SourceID, rel.Relationship, rel.TargetType, rel.TargetID)
		return nil
	},
}

// relationsCmd lists every relationship touching one entity.
var relationsCmd = &cobra.Command{
	Use:   "relations <entity-type> <entity-id>",
	Short: "List relationships touching one entity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return usagef("invalid entity id %q: %v", args[1], err)
		}
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		rels, err := relate.List(ctx, a.store, args[0], id, relationFilter)
		if err != nil {
			return err
		}
		if len(rels) == 0 {
			fmt.Println("no relationships")
			return nil
		}
		for _, r := range rels {
			fmt.Printf("%s:%d -%s(%d)-> %s:%d\t%s\n", r.SourceType, r.SourceID, r.Relationship, r.Strength, r.TargetType, r.TargetID, r.Notes)
		}
		return nil
	},
}

var relationFilter string

// unrelateCmd removes one exact relationship tuple.
var unrelateCmd = &cobra.Command{
	Use:   "unrelate <source-type> <source-id> <relationship> <target-type> <target-id>",
	Short: "Remove a relationship edge",
	Args:  cobra.ExactArgs(5),
	RunE: func(cmd *cobra.Command, args []string) error {
		rel, err := parseRelationArgs(args)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := relate.Delete(ctx, a.store, rel); err != nil {
			return err
		}
		fmt.Printf("unrelated %s:%d -%s-> %s:%d\n", rel.SourceType, rel.SourceID, rel.Relationship, rel.TargetType, rel.TargetID)
		return nil
	},
}

func parseRelationArgs(args []string) (store.Relationship, error) {
	sourceID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return store.Relationship{}, usagef("invalid source id %q: %v", args[1], err)
	}
	targetID, err := strconv.ParseInt(args[4], 10, 64)
	if err != nil {
		return store.Relationship{}, usagef("invalid target id %q: %v", args[4], err)
	}
	return store.Relationship{
		SourceType:   args[0],
		SourceID:     sourceID,
		Relationship: args[2],
		TargetType:   args[3],
		TargetID:     targetID,
	}, nil
}

func relationshipKindsList() string {
	kinds := []string{
		store.RelCauses, store.RelFixes, store.RelSupersedes, store.RelDependsOn,
		store.RelContradicts, store.RelSupports, store.RelFollows, store.RelRelated,
		store.RelMade, store.RelFound, store.RelResolved, store.RelLearned,
		store.RelOftenChangesWith, store.RelTests,
	}
	out := ""
	for i, k := range kinds {
		if i > 0 {
			out += ", "
		}
		out += k
	}
	return out
}

func init() {
	relateAddCmd.Flags().IntVar(&relateStrength, "strength", 5, "relationship strength (1-10)")
	relateAddCmd.Flags().StringVar(&relateNotes, "notes", "", "free-text note on the relationship")
	relationsCmd.Flags().StringVar(&relationFilter, "type", "", "filter to one relationship kind")
}
