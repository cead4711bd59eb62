// Package server implements the long-lived stdio entry point: a
// JSON-RPC-style loop that advertises the query-surface tools and
// resource URIs, logs every tool call through ingestion, and flushes the
// open session on shutdown.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"muninn/internal/config"
	muctx "muninn/internal/context"
	"muninn/internal/embedding"
	"muninn/internal/ingestion"
	"muninn/internal/logging"
	"muninn/internal/query"
	"muninn/internal/queue"
	"muninn/internal/session"
	"muninn/internal/store"
)

// rpcRequest is a JSON-RPC style request envelope, one per input line.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

const (
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
)

// systemicWindow / systemicThreshold implement the "repeated exceptions
// exceeding a sliding-window threshold" terminal condition: more than 30
// internal errors inside 120 seconds shuts the server down.
const (
	systemicWindow    = 120 * time.Second
	systemicThreshold = 30
)

// ToolSpec describes one advertised tool.
type ToolSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Server is the long-lived stdio loop. One per process.
type Server struct {
	store    store.Store
	engine   embedding.EmbeddingEngine
	project  *store.Project
	sessions *session.Manager
	repoRoot string

	mu         sync.Mutex
	errorTimes []time.Time

	// Systemic is closed when the sliding-window error threshold trips;
	// the owning process should exit non-zero.
	Systemic chan struct{}
}

// New wires a server over an opened store and project.
func New(s store.Store, engine embedding.EmbeddingEngine, proj *store.Project, sessions *session.Manager, repoRoot string) *Server {
	return &Server{
		store:    s,
		engine:   engine,
		project:  proj,
		sessions: sessions,
		repoRoot: repoRoot,
		Systemic: make(chan struct{}),
	}
}

// Tools returns the advertised tool list.
func (srv *Server) Tools() []ToolSpec {
	return []ToolSpec{
		{Name: "query", Description: "Search project knowledge for ranked memory snippets"},
		{Name: "check", Description: "Per-file warnings: fragility, open critical issues, staleness"},
		{Name: "suggest", Description: "Files and symbols ranked by similarity to a task"},
		{Name: "predict", Description: "Related files, co-changers, decisions, issues, learnings, tests, workflow"},
		{Name: "enrich", Description: "Contextual fragments for a specific upcoming tool invocation"},
		{Name: "build_context", Description: "Assemble a token-budgeted context block"},
		{Name: "declare_intent", Description: "Declare upcoming file activity for multi-agent conflict detection"},
		{Name: "query_intents", Description: "List other agents' active intents"},
		{Name: "release_intent", Description: "Release a previously declared intent"},
		{Name: "log_tool_call", Description: "Record an external tool invocation and scan its output for errors"},
		{Name: "end_session", Description: "Explicitly close the current session"},
	}
}

// Resources returns the advertised pull-only resource URIs.
func (srv *Server) Resources() []string {
	return []string{
		query.ResourceContextCurrent,
		query.ResourceContextErrors,
		query.ResourceWarningsActive,
		query.ResourceContextShared,
		query.ResourceBriefing,
	}
}

// Run reads one JSON-RPC request per line from r and writes one response
// per line to w, until EOF, ctx cancellation, or a systemic error storm.
// Recoverable errors never end the loop.
func (srv *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		case <-srv.Systemic:
			return fmt.Errorf("systemic error threshold exceeded")
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req rpcRequest
		if err := json.Unmarshal(line, &req); err != nil {
			_ = enc.Encode(rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: codeInvalidRequest, Message: "parse error", Details: err.Error()}})
			continue
		}

		resp := srv.handle(ctx, &req)
		if resp != nil {
			if err := enc.Encode(resp); err != nil {
				return fmt.Errorf("write response: %w", err)
			}
		}
	}
	return scanner.Err()
}

func (srv *Server) handle(ctx context.Context, req *rpcRequest) *rpcResponse {
	resp := &rpcResponse{JSONRPC: "2.0", ID: req.ID}

	switch req.Method {
	case "initialize":
		resp.Result = map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"serverInfo":      map[string]string{"name": "muninn", "version": "1.0.0"},
			"capabilities":    map[string]interface{}{"tools": map[string]bool{}, "resources": map[string]bool{}},
		}
	case "tools/list":
		resp.Result = map[string]interface{}{"tools": srv.Tools()}
	case "resources/list":
		resp.Result = map[string]interface{}{"resources": srv.Resources()}
	case "resources/read":
		var params struct {
			URI string `json:"uri"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil || params.URI == "" {
			resp.Error = &rpcError{Code: codeInvalidParams, Message: "resources/read requires a uri"}
			return resp
		}
		text, err := query.Resource(ctx, srv.store, srv.engine, srv.project.ID, params.URI)
		if err != nil {
			resp.Error = srv.internalError(err)
			return resp
		}
		resp.Result = map[string]interface{}{"contents": text}
	case "tools/call":
		srv.handleToolCall(ctx, req, resp)
	case "shutdown":
		resp.Result = map[string]bool{"ok": true}
	default:
		resp.Error = &rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("unknown method %q", req.Method)}
	}
	return resp
}

func (srv *Server) handleToolCall(ctx context.Context, req *rpcRequest, resp *rpcResponse) {
	var params struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		resp.Error = &rpcError{Code: codeInvalidParams, Message: "tools/call requires name and arguments"}
		return
	}

	start := time.Now()
	sessionID, err := srv.sessions.EnsureStarted(ctx)
	if err != nil {
		logging.QueryWarn("session auto-start failed: %v", err)
	}

	result, callErr := srv.dispatchTool(ctx, sessionID, params.Name, params.Arguments)

	// Fire-and-forget: the tool's own logging must never fail the call.
	rec := ingestion.ToolCallRecord{
		ToolName:   params.Name,
		Input:      params.Arguments,
		Success:    callErr == nil,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if sessionID != 0 {
		rec.Session = &sessionID
	}
	if callErr != nil {
		rec.ErrorMessage = config.RedactApiKeys(callErr.Error())
	}
	go ingestion.LogToolCall(context.Background(), srv.store, srv.project.ID, rec)

	if callErr != nil {
		if isUserError(callErr) {
			resp.Error = &rpcError{Code: codeInvalidParams, Message: callErr.Error()}
			return
		}
		resp.Error = srv.internalError(callErr)
		return
	}
	resp.Result = result
}

func (srv *Server) dispatchTool(ctx context.Context, sessionID int64, name string, args map[string]interface{}) (interface{}, error) {
	switch name {
	case "query":
		text, _ := args["text"].(string)
		if text == "" {
			return nil, userErrorf("query requires text")
		}
		mode, _ := args["mode"].(string)
		return query.Query(ctx, srv.store, srv.engine, srv.project.ID, text, mode)
	case "check":
		files := stringArg(args, "files")
		if len(files) == 0 {
			return nil, userErrorf("check requires files")
		}
		return query.Check(ctx, srv.store, srv.project.ID, files)
	case "suggest":
		task, _ := args["task"].(string)
		if task == "" {
			return nil, userErrorf("suggest requires a task")
		}
		limit := intArg(args, "limit", 10)
		includeSymbols, _ := args["include_symbols"].(bool)
		return query.Suggest(ctx, srv.store, srv.engine, srv.project.ID, task, limit, includeSymbols)
	case "predict":
		task, _ := args["task"].(string)
		return query.Predict(ctx, srv.store, srv.project.ID, task, stringArg(args, "files"), srv.recentToolNames(ctx, sessionID))
	case "enrich":
		tool, _ := args["tool"].(string)
		inputJSON, _ := args["input"].(string)
		if tool == "" {
			return nil, userErrorf("enrich requires a tool name")
		}
		return query.Enrich(ctx, srv.store, srv.engine, srv.project.ID, tool, inputJSON)
	case "build_context":
		return srv.buildContext(ctx, sessionID, args)
	case "declare_intent":
		agent, _ := args["agent"].(string)
		intentType, _ := args["type"].(string)
		description, _ := args["description"].(string)
		files := stringArg(args, "files")
		if agent == "" || len(files) == 0 {
			return nil, userErrorf("declare_intent requires agent and files")
		}
		intent, conflicts, err := muctx.DeclareIntent(ctx, srv.store, srv.project.ID, agent, files, intentType, description)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"intent": intent, "conflicts": conflicts}, nil
	case "query_intents":
		agent, _ := args["agent"].(string)
		return muctx.QueryIntents(ctx, srv.store, srv.project.ID, agent)
	case "release_intent":
		token, _ := args["token"].(string)
		if token == "" {
			return nil, userErrorf("release_intent requires the declared intent's token")
		}
		if err := muctx.ReleaseIntent(ctx, srv.store, token); err != nil {
			return nil, userErrorf("%v", err)
		}
		return map[string]bool{"ok": true}, nil
	case "log_tool_call":
		return srv.logExternalToolCall(ctx, sessionID, args), nil
	case "end_session":
		if err := srv.sessions.End(ctx); err != nil {
			return nil, err
		}
		return map[string]bool{"ok": true}, nil
	}
	return nil, userErrorf("unknown tool %q", name)
}

func (srv *Server) buildContext(ctx context.Context, sessionID int64, args map[string]interface{}) (interface{}, error) {
	prompt, _ := args["prompt"].(string)
	queryText, _ := args["query"].(string)
	if queryText == "" {
		queryText = prompt
	}
	req := muctx.Request{
		ProjectID: srv.project.ID,
		App:       srv.project.Name,
		Intent:    stringOr(args, "intent", muctx.IntentRead),
		Files:     stringArg(args, "files"),
		Query:     queryText,
		Task:      stringOr(args, "task", ""),
		Format:    stringOr(args, "format", muctx.FormatXML),
		MaxTokens: intArg(args, "max_tokens", 0),
		Strategy:  stringOr(args, "strategy", muctx.StrategyBalanced),
	}
	return muctx.BuildContext(ctx, srv.store, srv.engine, req, srv.recentToolNames(ctx, sessionID), nil)
}

// logExternalToolCall records a tool invocation made by the connected
// assistant, scanning its raw output for error events. Always succeeds
// from the caller's point of view.
func (srv *Server) logExternalToolCall(ctx context.Context, sessionID int64, args map[string]interface{}) map[string]interface{} {
	toolName, _ := args["tool_name"].(string)
	success, _ := args["success"].(bool)
	durationMs := int64(intArg(args, "duration_ms", 0))
	input, _ := args["input"].(map[string]interface{})
	output, _ := args["output"].(string)

	rec := ingestion.ToolCallRecord{
		ToolName:   toolName,
		Input:      input,
		Success:    success,
		DurationMs: durationMs,
	}
	if sessionID != 0 {
		rec.Session = &sessionID
	}
	ingestion.LogToolCall(ctx, srv.store, srv.project.ID, rec)

	detected := 0
	if output != "" {
		var sessPtr *int64
		if sessionID != 0 {
			sessPtr = &sessionID
		}
		errs := ingestion.ScanOutput(output)
		detected = len(errs)
		ingestion.RecordErrors(ctx, srv.store, srv.project.ID, sessPtr, nil, errs)
	}

	queue.MaybeSpawnWorker(queue.SelfExecutable(), []string{"worker", "--once", "--workspace", srv.repoRoot}, 0)
	return map[string]interface{}{"logged": true, "errors_detected": detected}
}

func (srv *Server) recentToolNames(ctx context.Context, sessionID int64) []string {
	if sessionID == 0 {
		return nil
	}
	rows, err := srv.store.All(ctx,
		"SELECT tool_name FROM tool_calls WHERE session_id = ? ORDER BY id DESC LIMIT 3", sessionID)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		if n, ok := rows[i]["tool_name"].(string); ok {
			names = append(names, n)
		}
	}
	return names
}

// internalError records the failure against the systemic sliding window
// and renders a redacted structured error.
func (srv *Server) internalError(err error) *rpcError {
	srv.recordSystemic()
	return &rpcError{Code: codeInternal, Message: "internal error", Details: config.RedactApiKeys(err.Error())}
}

func (srv *Server) recordSystemic() {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-systemicWindow)
	kept := srv.errorTimes[:0]
	for _, t := range srv.errorTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	srv.errorTimes = append(kept, now)

	if len(srv.errorTimes) > systemicThreshold {
		select {
		case <-srv.Systemic:
		default:
			logging.QueryError("systemic error threshold exceeded: %d errors in %s", len(srv.errorTimes), systemicWindow)
			close(srv.Systemic)
		}
	}
}

type userError struct{ msg string }

func (e *userError) Error() string { return e.msg }

func userErrorf(format string, args ...interface{}) error {
	return &userError{msg: fmt.Sprintf(format, args...)}
}

func isUserError(err error) bool {
	_, ok := err.(*userError)
	return ok
}

func stringArg(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func stringOr(args map[string]interface{}, key, fallback string) string {
	if s, ok := args[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

func intArg(args map[string]interface{}, key string, fallback int) int {
	switch n := args[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	}
	return fallback
}
