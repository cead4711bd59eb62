// Package session implements Muninn's session lifecycle: lazy
// auto-start on the first tool call, auto-end on process shutdown with
// outcome inference and a fixed cascade of end-of-session analysis jobs.
package session

import (
	"context"
	"fmt"
	"sync"

	"muninn/internal/logging"
	"muninn/internal/project"
	"muninn/internal/queue"
	"muninn/internal/store"
)

// Manager owns the current session for one running process. One Manager
// exists per project per server/worker process.
type Manager struct {
	mu        sync.Mutex
	store     store.Store
	projectID int64
	id        int64
	started   bool
	endOnce   sync.Once

	// Inferrer classifies a session's outcome from observable signals.
	// Nil means no automatic success/outcome classification is attempted.
	Inferrer OutcomeInferrer

	// SelfExe/SpawnArgs back the opportunistic worker spawn at end-of-session.
	SelfExe   string
	SpawnArgs []string
}

// NewManager constructs a session manager bound to one project.
func NewManager(s store.Store, projectID int64) *Manager {
	return &Manager{store: s, projectID: projectID}
}

// EnsureStarted opens a session lazily: the first call for a project with
// no unended session inserts one with the default auto-start goal. Safe
// to call on every tool invocation; a no-op once a session is open.
func (m *Manager) EnsureStarted(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return m.id, nil
	}

	row, err := m.store.Get(ctx,
		"SELECT id FROM sessions WHERE project_id = ? AND ended_at IS NULL", m.projectID)
	if err != nil {
		return 0, fmt.Errorf("check open session: %w", err)
	}
	if row != nil {
		id, _ := project.AsInt64(row["id"])
		m.id = id
		m.started = true
		return m.id, nil
	}

	num, err := m.nextSessionNumber(ctx)
	if err != nil {
		return 0, err
	}
	res, err := m.store.Run(ctx,
		`INSERT INTO sessions (project_id, session_number, goal) VALUES (?, ?, ?)`,
		m.projectID, num, "Auto-started session")
	if err != nil {
		return 0, fmt.Errorf("auto-start session: %w", err)
	}
	m.id = res.LastInsertID
	m.started = true
	logging.Session("auto-started session %d (#%d) for project %d", m.id, num, m.projectID)
	return m.id, nil
}

func (m *Manager) nextSessionNumber(ctx context.Context) (int64, error) {
	row, err := m.store.Get(ctx,
		"SELECT COALESCE(MAX(session_number), 0) AS n FROM sessions WHERE project_id = ?", m.projectID)
	if err != nil {
		return 0, err
	}
	n, _ := project.AsInt64(row["n"])
	return n + 1, nil
}

// ID returns the currently open session id, or 0 if none is open.
func (m *Manager) ID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id
}

// End closes the current session, if one is open: summarises tool calls,
// optionally infers a success/outcome classification, writes the closing
// row, enqueues the fixed end-of-session job cascade, and opportunistically
// spawns a worker. Safe to call multiple times -- only the first has effect.
func (m *Manager) End(ctx context.Context) error {
	var endErr error
	m.endOnce.Do(func() {
		endErr = m.endOnceImpl(ctx)
	})
	return endErr
}

func (m *Manager) endOnceImpl(ctx context.Context) error {
	m.mu.Lock()
	id := m.id
	started := m.started
	m.mu.Unlock()

	if !started || id == 0 {
		return nil
	}

	summary, err := summarizeToolCalls(ctx, m.store, id)
	if err != nil {
		logging.SessionWarn("summarize tool calls for session %d failed: %v", id, err)
	}

	outcome, success := "", 1
	if m.Inferrer != nil {
		outcome, success = m.Inferrer(ctx, m.store, m.projectID, id)
	}

	if _, err := m.store.Run(ctx,
		`UPDATE sessions SET ended_at = CURRENT_TIMESTAMP, outcome = ?, success = ?, next_steps = ? WHERE id = ?`,
		outcome, success, summary, id); err != nil {
		return fmt.Errorf("close session %d: %w", id, err)
	}
	logging.Session("ended session %d outcome=%q success=%d", id, outcome, success)

	m.enqueueEndOfSessionJobs(ctx, id)
	return nil
}

// enqueueEndOfSessionJobs enqueues the fixed end-of-session cascade and,
// when the session number is a multiple of 5, 10 or 20, the heavier
// periodic analyses.
// Enqueue failures are logged, never propagated -- a missed analysis job
// is not worth failing session close over.
func (m *Manager) enqueueEndOfSessionJobs(ctx context.Context, sessionID int64) {
	fixed := []string{
		queue.JobProcessSessionErr,
		queue.JobDetectPatterns,
		queue.JobTrackOutcomes,
		queue.JobCalibrate,
		queue.JobContextFeedback,
		queue.JobReinforceLearning,
		queue.JobRiskAlerts,
	}
	for _, jobType := range fixed {
		payload := map[string]interface{}{"project_id": m.projectID, "session_id": sessionID}
		if err := queue.Enqueue(ctx, m.store, jobType, payload, 0); err != nil {
			logging.SessionWarn("enqueue %s failed: %v", jobType, err)
		}
	}

	row, err := m.store.Get(ctx, "SELECT session_number FROM sessions WHERE id = ?", sessionID)
	if err != nil || row == nil {
		return
	}
	num, _ := row["session_number"].(int64)
	if num == 0 {
		if f, ok := row["session_number"].(float64); ok {
			num = int64(f)
		}
	}

	projectPayload := map[string]interface{}{"project_id": m.projectID}
	if num%5 == 0 {
		if err := queue.Enqueue(ctx, m.store, queue.JobDistillStrategies, projectPayload, 0); err != nil {
			logging.SessionWarn("enqueue strategy distillation failed: %v", err)
		}
	}
	if num%10 == 0 {
		if err := queue.Enqueue(ctx, m.store, queue.JobBuildWorkflow, projectPayload, 0); err != nil {
			logging.SessionWarn("enqueue workflow model build failed: %v", err)
		}
		if err := queue.Enqueue(ctx, m.store, queue.JobHealthROI, projectPayload, 0); err != nil {
			logging.SessionWarn("enqueue health/ROI computation failed: %v", err)
		}
	}
	if num%20 == 0 {
		if err := queue.Enqueue(ctx, m.store, queue.JobRegenerateDNA, projectPayload, 0); err != nil {
			logging.SessionWarn("enqueue codebase DNA regeneration failed: %v", err)
		}
	}

	if m.SelfExe != "" {
		queue.MaybeSpawnWorker(m.SelfExe, m.SpawnArgs, 0)
	}
}

// Touch records the side-effects of one completed tool call against the
// open session's running counters. Best-effort: failures are logged only.
func (m *Manager) Touch(ctx context.Context, filesTouched, decisions, issuesFound, issuesResolved, learnings int) {
	id := m.ID()
	if id == 0 {
		return
	}
	if _, err := m.store.Run(ctx,
		`UPDATE sessions SET files_touched = files_touched + ?, decisions_made = decisions_made + ?,
		 issues_found = issues_found + ?, issues_resolved = issues_resolved + ?, learnings = learnings + ?
		 WHERE id = ?`,
		filesTouched, decisions, issuesFound, issuesResolved, learnings, id); err != nil {
		logging.SessionWarn("touch session %d counters failed: %v", id, err)
	}
}
