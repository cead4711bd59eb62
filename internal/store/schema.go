package store

// schemaDDL is the single idempotent bundle that creates every primary,
// derived, and FTS5 mirror table plus the triggers that keep the mirrors
// in sync. (*LocalStore).Init runs it through splitStatements (and
// (*RemoteStore).Init through Exec, which uses the same splitter), which
// understands string/comment/BEGIN...END semantics well enough not to
// split a trigger body on an internal semicolon.
const schemaDDL = `
-- sentinel table used by checkSchemaExists
CREATE TABLE IF NOT EXISTS schema_sentinel (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	initialized_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS schema_versions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	version INTEGER NOT NULL,
	applied_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	description TEXT
);

CREATE TABLE IF NOT EXISTS projects (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT NOT NULL UNIQUE,
	name TEXT,
	type TEXT,
	stack TEXT,
	status TEXT DEFAULT 'active',
	mode TEXT DEFAULT 'default',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL,
	path TEXT NOT NULL,
	purpose TEXT,
	type TEXT,
	fragility INTEGER DEFAULT 0,
	fragility_reason TEXT,
	temperature TEXT DEFAULT 'cold',
	change_count INTEGER DEFAULT 0,
	velocity_score REAL DEFAULT 0,
	first_changed_at DATETIME,
	content_hash TEXT,
	embedding BLOB,
	archived_at DATETIME,
	last_referenced_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(project_id, path)
);
CREATE INDEX IF NOT EXISTS idx_files_project ON files(project_id);
CREATE INDEX IF NOT EXISTS idx_files_fragility ON files(fragility);
CREATE INDEX IF NOT EXISTS idx_files_temperature ON files(temperature);
CREATE INDEX IF NOT EXISTS idx_files_content_hash ON files(content_hash);

CREATE TABLE IF NOT EXISTS symbols (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	kind TEXT NOT NULL,
	signature TEXT,
	purpose TEXT,
	parameters TEXT,
	returns TEXT,
	parent_class TEXT,
	embedding BLOB,
	line_start INTEGER,
	line_end INTEGER,
	is_exported INTEGER DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file_id);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);

CREATE TABLE IF NOT EXISTS call_edges (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL,
	caller_file INTEGER NOT NULL,
	caller_symbol TEXT,
	callee_file INTEGER,
	callee_symbol TEXT,
	call_type TEXT NOT NULL,
	confidence REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_call_edges_caller ON call_edges(caller_file);
CREATE INDEX IF NOT EXISTS idx_call_edges_callee ON call_edges(callee_file);

CREATE TABLE IF NOT EXISTS decisions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL,
	title TEXT NOT NULL,
	decision TEXT,
	reasoning TEXT,
	alternatives TEXT,
	consequences TEXT,
	affects TEXT,
	status TEXT DEFAULT 'active',
	outcome_status TEXT DEFAULT 'pending',
	outcome_notes TEXT,
	superseded_by INTEGER,
	temperature TEXT DEFAULT 'warm',
	archived_at DATETIME,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_decisions_project ON decisions(project_id);
CREATE INDEX IF NOT EXISTS idx_decisions_status ON decisions(status);

CREATE TABLE IF NOT EXISTS issues (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL,
	title TEXT NOT NULL,
	description TEXT,
	type TEXT,
	severity INTEGER DEFAULT 5,
	status TEXT DEFAULT 'open',
	affected_files TEXT,
	workaround TEXT,
	resolution TEXT,
	resolved_at DATETIME,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_issues_project ON issues(project_id);
CREATE INDEX IF NOT EXISTS idx_issues_status ON issues(status);

CREATE TABLE IF NOT EXISTS learnings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER,
	category TEXT,
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	context TEXT,
	confidence REAL DEFAULT 5,
	times_applied INTEGER DEFAULT 0,
	auto_reinforcement_count INTEGER DEFAULT 0,
	last_reinforced_at DATETIME,
	foundational INTEGER DEFAULT 0,
	promotion_status TEXT DEFAULT 'not_ready',
	promoted_to_section TEXT,
	archived_at DATETIME,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_learnings_project ON learnings(project_id);
CREATE INDEX IF NOT EXISTS idx_learnings_confidence ON learnings(confidence);

CREATE TABLE IF NOT EXISTS sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL,
	session_number INTEGER NOT NULL,
	started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	ended_at DATETIME,
	goal TEXT,
	outcome TEXT,
	files_touched INTEGER DEFAULT 0,
	decisions_made INTEGER DEFAULT 0,
	issues_found INTEGER DEFAULT 0,
	issues_resolved INTEGER DEFAULT 0,
	learnings INTEGER DEFAULT 0,
	next_steps TEXT,
	success INTEGER,
	task_type TEXT
);
CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_open ON sessions(project_id) WHERE ended_at IS NULL;

CREATE TABLE IF NOT EXISTS tool_calls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL,
	session_id INTEGER,
	tool_name TEXT NOT NULL,
	input_summary TEXT,
	files_involved TEXT,
	success INTEGER,
	duration_ms INTEGER,
	error_message TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_tool_calls_project ON tool_calls(project_id);
CREATE INDEX IF NOT EXISTS idx_tool_calls_session ON tool_calls(session_id);
CREATE INDEX IF NOT EXISTS idx_tool_calls_created ON tool_calls(created_at);

CREATE TABLE IF NOT EXISTS git_commits (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL,
	commit_hash TEXT NOT NULL,
	author TEXT,
	message TEXT,
	files_changed TEXT,
	insertions INTEGER DEFAULT 0,
	deletions INTEGER DEFAULT 0,
	committed_at DATETIME,
	session_id INTEGER,
	analyzed INTEGER DEFAULT 0,
	UNIQUE(project_id, commit_hash)
);
CREATE INDEX IF NOT EXISTS idx_commits_project ON git_commits(project_id);
CREATE INDEX IF NOT EXISTS idx_commits_analyzed ON git_commits(analyzed);

CREATE TABLE IF NOT EXISTS error_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL,
	session_id INTEGER,
	error_type TEXT NOT NULL,
	error_message TEXT,
	error_signature TEXT NOT NULL,
	source_file TEXT,
	stack_trace TEXT,
	tool_call_id INTEGER,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_errors_project_sig ON error_events(project_id, error_signature);
CREATE INDEX IF NOT EXISTS idx_errors_created ON error_events(created_at);

CREATE TABLE IF NOT EXISTS error_fix_pairs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL,
	error_signature TEXT NOT NULL,
	error_type TEXT,
	error_example TEXT,
	fix_commit_hash TEXT,
	fix_description TEXT,
	fix_files TEXT,
	session_id INTEGER,
	confidence REAL DEFAULT 0.5,
	times_seen INTEGER DEFAULT 1,
	times_fixed INTEGER DEFAULT 0,
	last_seen_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(project_id, error_signature)
);

CREATE TABLE IF NOT EXISTS work_queue (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_type TEXT NOT NULL,
	payload TEXT,
	status TEXT DEFAULT 'pending',
	attempts INTEGER DEFAULT 0,
	max_attempts INTEGER DEFAULT 3,
	error_message TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	started_at DATETIME,
	completed_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_queue_status_created ON work_queue(status, created_at);
CREATE INDEX IF NOT EXISTS idx_queue_job_type ON work_queue(job_type);

CREATE TABLE IF NOT EXISTS relationships (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_type TEXT NOT NULL,
	source_id INTEGER NOT NULL,
	target_type TEXT NOT NULL,
	target_id INTEGER NOT NULL,
	relationship TEXT NOT NULL,
	strength INTEGER DEFAULT 5,
	notes TEXT,
	UNIQUE(source_type, source_id, target_type, target_id, relationship)
);
CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(source_type, source_id);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_type, target_id);

-- Derived tables
CREATE TABLE IF NOT EXISTS file_correlations (
	project_id INTEGER NOT NULL,
	file_a INTEGER NOT NULL,
	file_b INTEGER NOT NULL,
	cochange_count INTEGER DEFAULT 1,
	PRIMARY KEY(project_id, file_a, file_b)
);

CREATE TABLE IF NOT EXISTS blast_radius (
	project_id INTEGER NOT NULL,
	file_id INTEGER NOT NULL,
	affected_file_id INTEGER NOT NULL,
	score REAL DEFAULT 0,
	PRIMARY KEY(project_id, file_id, affected_file_id)
);

CREATE TABLE IF NOT EXISTS blast_summary (
	project_id INTEGER NOT NULL,
	file_id INTEGER NOT NULL PRIMARY KEY,
	total_affected INTEGER DEFAULT 0,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS strategy_catalog (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	description TEXT,
	confidence REAL DEFAULT 0.5,
	evidence_count INTEGER DEFAULT 0,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(project_id, name)
);

CREATE TABLE IF NOT EXISTS workflow_predictions (
	project_id INTEGER NOT NULL,
	trigger_sequence TEXT NOT NULL,
	predicted_tool TEXT NOT NULL,
	times_correct INTEGER DEFAULT 0,
	times_total INTEGER DEFAULT 0,
	confidence REAL DEFAULT 0,
	PRIMARY KEY(project_id, trigger_sequence, predicted_tool)
);

CREATE TABLE IF NOT EXISTS context_injections (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL,
	app TEXT,
	prompt_hash TEXT,
	memory_ids TEXT,
	total_candidates INTEGER,
	token_count INTEGER,
	latency_ms INTEGER,
	relevance_signal TEXT,
	source_type TEXT,
	source_id INTEGER,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_context_injections_project ON context_injections(project_id);

CREATE TABLE IF NOT EXISTS diff_analyses (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL,
	commit_id INTEGER NOT NULL,
	intent_summary TEXT,
	intent_category TEXT,
	changed_functions TEXT,
	analyzed_by TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(project_id, commit_id)
);

CREATE TABLE IF NOT EXISTS revert_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL,
	commit_id INTEGER NOT NULL,
	original_commit_hash TEXT,
	processed INTEGER DEFAULT 0,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(project_id, commit_id)
);

CREATE TABLE IF NOT EXISTS test_results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL,
	status TEXT NOT NULL,
	totals TEXT,
	duration_ms INTEGER,
	output_summary TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_test_results_project_created ON test_results(project_id, created_at);

CREATE TABLE IF NOT EXISTS risk_alerts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL,
	alert_type TEXT NOT NULL,
	severity TEXT NOT NULL,
	title TEXT NOT NULL,
	details TEXT,
	source_file TEXT,
	dismissed INTEGER DEFAULT 0,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_risk_alerts_project ON risk_alerts(project_id, dismissed);

CREATE TABLE IF NOT EXISTS value_metrics (
	project_id INTEGER NOT NULL,
	month TEXT NOT NULL,
	health_score REAL,
	roi_score REAL,
	contradictions INTEGER DEFAULT 0,
	context_hits INTEGER DEFAULT 0,
	context_misses INTEGER DEFAULT 0,
	decisions_recalled INTEGER DEFAULT 0,
	learnings_recalled INTEGER DEFAULT 0,
	session_count INTEGER DEFAULT 0,
	PRIMARY KEY(project_id, month)
);

CREATE TABLE IF NOT EXISTS developer_profile (
	project_id INTEGER NOT NULL,
	key TEXT NOT NULL,
	value TEXT,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY(project_id, key)
);

CREATE TABLE IF NOT EXISTS agent_intents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL,
	agent TEXT NOT NULL,
	token TEXT NOT NULL DEFAULT '',
	intent_type TEXT,
	description TEXT,
	target_files TEXT,
	expires_at DATETIME NOT NULL,
	released_at DATETIME,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_agent_intents_project ON agent_intents(project_id, expires_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_agent_intents_token ON agent_intents(token) WHERE token != '';

-- FTS5 mirrors
CREATE VIRTUAL TABLE IF NOT EXISTS fts_files USING fts5(
	path, purpose, fragility_reason, content='files', content_rowid='id'
);
CREATE VIRTUAL TABLE IF NOT EXISTS fts_decisions USING fts5(
	title, decision, reasoning, content='decisions', content_rowid='id'
);
CREATE VIRTUAL TABLE IF NOT EXISTS fts_issues USING fts5(
	title, description, content='issues', content_rowid='id'
);
CREATE VIRTUAL TABLE IF NOT EXISTS fts_learnings USING fts5(
	title, content, context, content='learnings', content_rowid='id'
);
CREATE VIRTUAL TABLE IF NOT EXISTS fts_patterns USING fts5(
	name, description, content='strategy_catalog', content_rowid='id'
);
CREATE VIRTUAL TABLE IF NOT EXISTS fts_global_learnings USING fts5(
	title, content, content='learnings', content_rowid='id'
);

-- Triggers keeping the FTS mirrors in sync on insert.
CREATE TRIGGER IF NOT EXISTS trg_files_ai AFTER INSERT ON files BEGIN
	INSERT INTO fts_files(rowid, path, purpose, fragility_reason)
	VALUES (new.id, new.path, new.purpose, new.fragility_reason);
END;

CREATE TRIGGER IF NOT EXISTS trg_decisions_ai AFTER INSERT ON decisions BEGIN
	INSERT INTO fts_decisions(rowid, title, decision, reasoning)
	VALUES (new.id, new.title, new.decision, new.reasoning);
END;

CREATE TRIGGER IF NOT EXISTS trg_issues_ai AFTER INSERT ON issues BEGIN
	INSERT INTO fts_issues(rowid, title, description)
	VALUES (new.id, new.title, new.description);
END;

CREATE TRIGGER IF NOT EXISTS trg_learnings_ai AFTER INSERT ON learnings BEGIN
	INSERT INTO fts_learnings(rowid, title, content, context)
	VALUES (new.id, new.title, new.content, new.context);
	INSERT INTO fts_global_learnings(rowid, title, content)
	VALUES (new.id, new.title, new.content);
END;

CREATE TRIGGER IF NOT EXISTS trg_strategy_ai AFTER INSERT ON strategy_catalog BEGIN
	INSERT INTO fts_patterns(rowid, name, description)
	VALUES (new.id, new.name, new.description);
END;
`
