package main

import "testing"

func TestTokenizeCommandLine(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{`query foo`, []string{"query", "foo"}},
		{`query "how do we handle sessions" --mode smart`, []string{"query", "how do we handle sessions", "--mode", "smart"}},
		{`check 'src/a.ts' 'src/b.ts'`, []string{"check", "src/a.ts", "src/b.ts"}},
		{`query foo\ bar`, []string{"query", "foo bar"}},
		{`  query   foo  `, []string{"query", "foo"}},
		{``, nil},
	}
	for _, tc := range cases {
		got, err := tokenizeCommandLine(tc.in)
		if err != nil {
			t.Fatalf("tokenizeCommandLine(%q): %v", tc.in, err)
		}
		if len(got) != len(tc.want) {
			t.Fatalf("tokenizeCommandLine(%q) = %#v, want %#v", tc.in, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("tokenizeCommandLine(%q)[%d] = %q, want %q", tc.in, i, got[i], tc.want[i])
			}
		}
	}
}

func TestTokenizeCommandLineUnterminatedQuote(t *testing.T) {
	if _, err := tokenizeCommandLine(`query "unterminated`); err == nil {
		t.Fatal("expected error for unterminated quote")
	}
}

func TestPassthroughAllowlistRejectsMutatingCommands(t *testing.T) {
	for _, blocked := range []string{"ingest", "reindex", "promote", "relate", "unrelate"} {
		if passthroughAllowed[blocked] {
			t.Fatalf("passthrough allowlist must not include %q", blocked)
		}
	}
}
