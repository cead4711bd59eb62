// Package context assembles scored, budget-packed context blocks from the
// store's knowledge tables for injection into an assistant's prompt.
package context

// Memory is one candidate knowledge row pulled from files, decisions,
// issues, or learnings, carrying whatever scoring/formatting metadata has
// been computed on it so far.
type Memory struct {
	ID         int64
	Type       string // "file" | "decision" | "issue" | "learning"
	Subtype    string
	Title      string
	Content    string
	Entities   []string // file paths the memory concerns (its own path, affects, affected_files)
	Confidence float64  // normalized to [0,1] for scoring; kept raw for display
	RawConfidence float64
	CreatedAt  string
	Similarity float64
	Score      float64
}

// Request is the input to BuildContext.
type Request struct {
	ProjectID int64
	App       string
	Intent    string // edit | read | debug | explore | plan
	Files     []string
	Query     string
	Task      string
	Format    string // xml | markdown | native | json
	MaxTokens int
	Strategy  string // balanced | precise | broad

	Scope         string
	TypeFilter    string
	SubtypeFilter string
	Tags          []string
	MinConfidence float64
}

// Result is BuildContext's return value. Packed carries the included
// memories in score order; MemoryIDs is the flat id list persisted to
// context_injections (ids are only unique per type -- use Packed when the
// type matters).
type Result struct {
	Text            string
	Format          string
	TokenCount      int
	Packed          []Memory
	MemoryIDs       []int64
	TotalCandidates int
	Overlay         Overlay
}

// Intent kinds recognised by the assembler's request shape.
const (
	IntentEdit    = "edit"
	IntentRead    = "read"
	IntentDebug   = "debug"
	IntentExplore = "explore"
	IntentPlan    = "plan"
)

// Format kinds.
const (
	FormatXML      = "xml"
	FormatMarkdown = "markdown"
	FormatNative   = "native"
	FormatJSON     = "json"
)

// Strategy presets.
const (
	StrategyBalanced = "balanced"
	StrategyPrecise  = "precise"
	StrategyBroad    = "broad"
)
