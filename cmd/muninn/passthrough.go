package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
)

// passthroughAllowed is the closed set of read-only subcommands a
// `muninn <passthrough>` invocation may dispatch to. Anything that
// mutates a primary table -- ingest, reindex, promote, relate, unrelate
// -- is deliberately excluded.
var passthroughAllowed = map[string]bool{
	"query":    true,
	"check":    true,
	"suggest":  true,
	"predict":  true,
	"resource": true,
	"stats":    true,
}

// passthroughCmd accepts one raw command-line string (as an MCP bridge
// or similar caller might forward verbatim) and tokenizes it itself --
// quoted-string aware, no shell expansion, no `/bin/sh -c` -- before
// re-invoking this same binary with the parsed argv. The first token
// must name an allow-listed read-only subcommand.
var passthroughCmd = &cobra.Command{
	Use:   "muninn <command-line>",
	Short: "Parse and dispatch a single read-only subcommand line without shell interpretation",
	Long: `Accepts one string containing an entire command line (e.g.
"query \"how do we handle sessions\" --mode smart") and dispatches it to
the named read-only subcommand. The line is tokenized by this process --
quote-aware, backslash-escape aware -- and never passed to a shell, so
no shell metacharacter in the input can expand, glob, or chain commands.

Only query, check, suggest, predict, resource, and stats may be named;
any other first token is rejected before anything runs.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tokens, err := tokenizeCommandLine(args[0])
		if err != nil {
			return fmt.Errorf("passthrough: %w", err)
		}
		if len(tokens) == 0 {
			return usagef("passthrough: empty command line")
		}
		if !passthroughAllowed[tokens[0]] {
			return usagef("passthrough: %q is not an allow-listed read-only subcommand", tokens[0])
		}

		self, err := os.Executable()
		if err != nil {
			return fmt.Errorf("passthrough: resolve self executable: %w", err)
		}

		// argv execution, never a shell: tokens were already split by
		// tokenizeCommandLine, so nothing here re-interprets quoting or
		// metacharacters.
		c := exec.CommandContext(cmd.Context(), self, tokens...)
		if workspace != "" {
			c.Args = append(c.Args, "--workspace", workspace)
		}
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		c.Stdin = os.Stdin
		return c.Run()
	},
}

// tokenizeCommandLine splits s into argv-style tokens honoring single
// and double quotes and backslash escapes, without ever handing the
// string to a shell. An unterminated quote is an error.
func tokenizeCommandLine(s string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	hasToken := false

	var quote rune
	escaped := false

	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
			hasToken = true
		case r == '\\' && quote != '\'':
			escaped = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			hasToken = true
		case r == ' ' || r == '\t':
			if hasToken {
				tokens = append(tokens, cur.String())
				cur.Reset()
				hasToken = false
			}
		default:
			cur.WriteRune(r)
			hasToken = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if escaped {
		return nil, fmt.Errorf("trailing backslash escape")
	}
	if hasToken {
		tokens = append(tokens, cur.String())
	}
	return tokens, nil
}
