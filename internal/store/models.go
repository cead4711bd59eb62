package store

import "time"

// Project is the root scope for all other tables.
type Project struct {
	ID        int64
	Path      string
	Name      string
	Type      string
	Stack     string
	Status    string
	Mode      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// File temperature states.
const (
	TemperatureHot  = "hot"
	TemperatureWarm = "warm"
	TemperatureCold = "cold"
)

// File tracks a single path's knowledge: fragility, change velocity, and
// its optional embedding.
type File struct {
	ID               int64
	Project          int64
	Path             string
	Purpose          string
	Type             string
	Fragility        int
	FragilityReason  string
	Temperature      string
	ChangeCount       int
	VelocityScore    float64
	FirstChangedAt   *time.Time
	ContentHash      string
	Embedding        []float32
	ArchivedAt       *time.Time
	LastReferencedAt time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Symbol kinds.
const (
	SymbolFunction  = "function"
	SymbolClass     = "class"
	SymbolInterface = "interface"
	SymbolType      = "type"
	SymbolConstant  = "constant"
	SymbolEnum      = "enum"
	SymbolMethod    = "method"
)

// Symbol is owned by its file; deleted and reinserted wholesale on reparse.
type Symbol struct {
	ID           int64
	File         int64
	Name         string
	Kind         string
	Signature    string
	Purpose      string
	Parameters   string // JSON array
	Returns      string
	ParentClass  string
	Embedding    []float32
	LineStart    int
	LineEnd      int
	IsExported   bool
}

// Call edge types.
const (
	CallDirect   = "direct"
	CallMethod   = "method"
	CallCallback = "callback"
	CallDynamic  = "dynamic"
)

// CallEdge is wholly replaced for a caller file on each reparse pass.
type CallEdge struct {
	Project      int64
	CallerFile   int64
	CallerSymbol string
	CalleeFile   int64
	CalleeSymbol string
	CallType     string
	Confidence   float64
}

// Decision statuses.
const (
	DecisionActive     = "active"
	DecisionSuperseded = "superseded"
)

// Decision outcome statuses.
const (
	OutcomePending     = "pending"
	OutcomeSucceeded   = "succeeded"
	OutcomeFailed      = "failed"
	OutcomeRevised     = "revised"
	OutcomeNeedsReview = "needs_review"
)

// Decision is a recorded engineering decision and its eventual outcome.
type Decision struct {
	ID            int64
	Project       int64
	Title         string
	DecisionText  string
	Reasoning     string
	Alternatives  string
	Consequences  string
	Affects       []string
	Status        string
	OutcomeStatus string
	OutcomeNotes  string
	SupersededBy  *int64
	Temperature   string
	ArchivedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Issue statuses.
const (
	IssueOpen     = "open"
	IssueResolved = "resolved"
)

// Issue is a recorded problem affecting one or more files.
type Issue struct {
	ID            int64
	Project       int64
	Title         string
	Description   string
	Type          string
	Severity      int
	Status        string
	AffectedFiles []string
	Workaround    string
	Resolution    string
	ResolvedAt    *time.Time
	CreatedAt     time.Time
}

// Learning promotion statuses.
const (
	PromotionNotReady  = "not_ready"
	PromotionCandidate = "candidate"
	PromotionPromoted  = "promoted"
	PromotionDemoted   = "demoted"
)

// Learning is a reinforced, optionally project-scoped (NULL = global) insight.
type Learning struct {
	ID                     int64
	Project                *int64
	Category               string
	Title                  string
	Content                string
	Context                string
	Confidence             float64
	TimesApplied           int
	AutoReinforcementCount int
	LastReinforcedAt       *time.Time
	Foundational           bool
	PromotionStatus        string
	PromotedToSection      string
	ArchivedAt             *time.Time
	CreatedAt              time.Time
}

// Session success codes.
const (
	SessionFailure = 0
	SessionNeutral = 1
	SessionSuccess = 2
)

// Session is a bounded interval of assistant activity.
type Session struct {
	ID             int64
	Project        int64
	SessionNumber  int
	StartedAt      time.Time
	EndedAt        *time.Time
	Goal           string
	Outcome        string
	FilesTouched   int
	DecisionsMade  int
	IssuesFound    int
	IssuesResolved int
	Learnings      int
	NextSteps      string
	Success        int
	TaskType       string
}

// ToolCall is a single observed tool invocation.
type ToolCall struct {
	ID            int64
	Project       int64
	Session       *int64
	ToolName      string
	InputSummary  string
	FilesInvolved []string
	Success       bool
	DurationMs    int64
	ErrorMessage  string
	CreatedAt     time.Time
}

// GitCommit is one ingested commit.
type GitCommit struct {
	Project      int64
	CommitHash   string
	Author       string
	Message      string
	FilesChanged []string
	Insertions   int
	Deletions    int
	CommittedAt  time.Time
	Session      *int64
	Analyzed     bool
}

// Error event types.
const (
	ErrorBuild     = "build_error"
	ErrorTest      = "test_failure"
	ErrorRuntime   = "runtime_error"
	ErrorType      = "type_error"
	ErrorExitCode  = "exit_code"
	ErrorSyntax    = "syntax_error"
	ErrorImport    = "import_error"
)

// ErrorEvent is a single detected error occurrence.
type ErrorEvent struct {
	ID             int64
	Project        int64
	Session        *int64
	ErrorType      string
	ErrorMessage   string
	ErrorSignature string
	SourceFile     string
	StackTrace     string
	ToolCall       *int64
	CreatedAt      time.Time
}

// ErrorFixPair links a recurring error signature to its most confident fix.
type ErrorFixPair struct {
	Project         int64
	ErrorSignature  string
	ErrorType       string
	ErrorExample    string
	FixCommitHash   string
	FixDescription  string
	FixFiles        []string
	Session         *int64
	Confidence      float64
	TimesSeen       int
	TimesFixed      int
	LastSeenAt      time.Time
}

// TestResult is one recorded test-run outcome.
type TestResult struct {
	ID            int64
	Project       int64
	Status        string
	Totals        string // JSON-encoded {pass,fail,skip}
	DurationMs    int64
	OutputSummary string
	CreatedAt     time.Time
}

// Work queue job statuses.
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// WorkQueueItem is a durable, at-least-once job.
type WorkQueueItem struct {
	ID           int64
	JobType      string
	Payload      string // opaque JSON
	Status       string
	Attempts     int
	MaxAttempts  int
	ErrorMessage string
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// Relationship kinds.
const (
	RelCauses          = "causes"
	RelFixes           = "fixes"
	RelSupersedes      = "supersedes"
	RelDependsOn       = "depends_on"
	RelContradicts     = "contradicts"
	RelSupports        = "supports"
	RelFollows         = "follows"
	RelRelated         = "related"
	RelMade            = "made"
	RelFound           = "found"
	RelResolved        = "resolved"
	RelLearned         = "learned"
	RelOftenChangesWith = "often_changes_with"
	RelTests           = "tests"
)

// Relationship is an adjacency-table edge between any two typed entities.
type Relationship struct {
	SourceType   string
	SourceID     int64
	TargetType   string
	TargetID     int64
	Relationship string
	Strength     int
	Notes        string
}
