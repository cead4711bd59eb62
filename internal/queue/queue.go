// Package queue implements Muninn's durable, at-least-once work queue
// job table: rows flow pending -> processing -> completed|failed, a single
// dispatcher pulls a bounded batch oldest-first, and a closed set of job
// type strings maps to registered handlers. Unknown job types fail
// immediately rather than retrying forever.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"muninn/internal/logging"
	"muninn/internal/store"
)

// Job type strings -- the closed set the dispatcher matches exactly.
const (
	JobAnalyzeDiffs      = "analyze_diffs"
	JobReindexSymbols    = "reindex_symbols"
	JobBuildCallGraph    = "build_call_graph"
	JobRunTests          = "run_tests"
	JobDetectReverts     = "detect_reverts"
	JobRefreshOwnership  = "refresh_ownership"
	JobProcessSessionErr = "process_session_errors"
	JobDetectPatterns    = "detect_patterns"
	JobTrackOutcomes     = "track_decision_outcomes"
	JobCalibrate         = "calibrate_confidence"
	JobContextFeedback   = "process_context_feedback"
	JobReinforceLearning = "reinforce_learnings"
	JobDistillStrategies = "distill_strategies"
	JobBuildWorkflow     = "build_workflow_model"
	JobRegenerateDNA     = "regenerate_codebase_dna"
	JobRiskAlerts        = "compute_risk_alerts"
	JobHealthROI         = "aggregate_health_roi"
)

// batchSize is the number of pending rows the dispatcher pulls per pass.
const batchSize = 20

// errTruncateLen bounds how much of a handler failure's error string is
// persisted to work_queue.error_message.
const errTruncateLen = 1000

// Handler processes one job's decoded payload. A returned error retries
// the job (subject to max_attempts); a nil return completes it.
type Handler func(ctx context.Context, s store.Store, payload map[string]interface{}) error

// Dispatcher owns the handler registry and drains work_queue in batches.
type Dispatcher struct {
	store    store.Store
	handlers map[string]Handler
}

// NewDispatcher creates a dispatcher bound to s. Register handlers before
// calling Run or RunOnce.
func NewDispatcher(s store.Store) *Dispatcher {
	return &Dispatcher{store: s, handlers: make(map[string]Handler)}
}

// Register binds a handler to a job type string. Registering the same
// type twice overwrites the previous handler.
func (d *Dispatcher) Register(jobType string, h Handler) {
	d.handlers[jobType] = h
}

// Enqueue inserts a new pending job. maxAttempts <= 0 defaults to 3.
// Every payload is stamped with a correlation_id so a job's log lines can
// be tied together across the enqueuing process and the worker process
// that eventually runs it.
func Enqueue(ctx context.Context, s store.Store, jobType string, payload map[string]interface{}, maxAttempts int) error {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	stamped := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		stamped[k] = v
	}
	corr, _ := stamped["correlation_id"].(string)
	if corr == "" {
		corr = uuid.NewString()
		stamped["correlation_id"] = corr
	}
	data, err := json.Marshal(stamped)
	if err != nil {
		return fmt.Errorf("marshal job payload: %w", err)
	}
	_, err = s.Run(ctx,
		`INSERT INTO work_queue (job_type, payload, status, max_attempts) VALUES (?, ?, 'pending', ?)`,
		jobType, string(data), maxAttempts)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", jobType, err)
	}
	logging.Queue("enqueued job type=%s corr=%s", jobType, corr)
	return nil
}

// RunOnce pulls up to batchSize pending jobs (optionally filtered by
// jobTypeFilter) and processes every one of them to a terminal state
// before returning. This backs the worker "once" mode.
func (d *Dispatcher) RunOnce(ctx context.Context, jobTypeFilter string) (processed int, err error) {
	rows, err := d.pullPending(ctx, jobTypeFilter)
	if err != nil {
		return 0, fmt.Errorf("pull pending jobs: %w", err)
	}
	for _, row := range rows {
		d.processOne(ctx, row)
		processed++
	}
	return processed, nil
}

func (d *Dispatcher) pullPending(ctx context.Context, jobTypeFilter string) ([]map[string]interface{}, error) {
	if jobTypeFilter != "" {
		return d.store.All(ctx,
			`SELECT id, job_type, payload, attempts, max_attempts FROM work_queue
			 WHERE status = 'pending' AND job_type = ? ORDER BY created_at ASC LIMIT ?`,
			jobTypeFilter, batchSize)
	}
	return d.store.All(ctx,
		`SELECT id, job_type, payload, attempts, max_attempts FROM work_queue
		 WHERE status = 'pending' ORDER BY created_at ASC LIMIT ?`,
		batchSize)
}

func (d *Dispatcher) processOne(ctx context.Context, row map[string]interface{}) {
	id, _ := asInt64(row["id"])
	jobType, _ := row["job_type"].(string)
	payloadStr, _ := row["payload"].(string)
	attempts, _ := asInt64(row["attempts"])
	maxAttempts, _ := asInt64(row["max_attempts"])

	now := time.Now().UTC()
	if _, err := d.store.Run(ctx,
		"UPDATE work_queue SET status = 'processing', attempts = attempts + 1, started_at = ? WHERE id = ?",
		now, id); err != nil {
		logging.QueueError("job %d: mark processing failed: %v", id, err)
		return
	}
	attempts++

	handler, ok := d.handlers[jobType]
	if !ok {
		logging.QueueWarn("job %d: unknown job type %q, marking failed", id, jobType)
		d.fail(ctx, id, "unknown job type")
		return
	}

	var payload map[string]interface{}
	if payloadStr != "" {
		if err := json.Unmarshal([]byte(payloadStr), &payload); err != nil {
			logging.QueueError("job %d: payload unmarshal failed: %v", id, err)
			d.fail(ctx, id, err.Error())
			return
		}
	}

	corr, _ := payload["correlation_id"].(string)

	if err := handler(ctx, d.store, payload); err != nil {
		logging.QueueWarn("job %d (%s) corr=%s attempt %d failed: %v", id, jobType, corr, attempts, err)
		if attempts >= maxAttempts {
			d.fail(ctx, id, err.Error())
			return
		}
		if _, rerr := d.store.Run(ctx, "UPDATE work_queue SET status = 'pending' WHERE id = ?", id); rerr != nil {
			logging.QueueError("job %d: requeue after failure failed: %v", id, rerr)
		}
		return
	}

	if _, err := d.store.Run(ctx,
		"UPDATE work_queue SET status = 'completed', completed_at = ? WHERE id = ?", time.Now().UTC(), id); err != nil {
		logging.QueueError("job %d: mark completed failed: %v", id, err)
	}
}

func (d *Dispatcher) fail(ctx context.Context, id int64, msg string) {
	if len(msg) > errTruncateLen {
		msg = msg[:errTruncateLen]
	}
	if _, err := d.store.Run(ctx,
		"UPDATE work_queue SET status = 'failed', error_message = ?, completed_at = ? WHERE id = ?",
		msg, time.Now().UTC(), id); err != nil {
		logging.QueueError("job %d: mark failed failed: %v", id, err)
	}
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}
