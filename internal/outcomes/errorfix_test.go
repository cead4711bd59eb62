package outcomes

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// An error at t=0 and a same-file fix commit at t=+7m whose message
// contains "fix" yields confidence 0.5+0.1+0.15+0.15 = 0.9.
func TestProcessSessionErrorsConfidenceFormula(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	projectID := insertProject(t, s, "/tmp/proj-errorfix")

	res, err := s.Run(ctx,
		`INSERT INTO sessions (project_id, session_number, started_at) VALUES (?, 1, ?)`,
		projectID, time.Now().UTC())
	require.NoError(t, err)
	sessionID := res.LastInsertID

	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	_, err = s.Run(ctx,
		`INSERT INTO error_events (project_id, session_id, error_type, error_message, error_signature, source_file, created_at)
		 VALUES (?, ?, 'type_error', 'Argument of type string', 'arg-type-sig', 'src/id.ts', ?)`,
		projectID, sessionID, t0)
	require.NoError(t, err)

	_, err = s.Run(ctx,
		`INSERT INTO git_commits (project_id, commit_hash, message, files_changed, committed_at, session_id)
		 VALUES (?, 'abc1234', 'fix: coerce id', ?, ?, ?)`,
		projectID, `["src/id.ts"]`, t0.Add(7*time.Minute), sessionID)
	require.NoError(t, err)

	mapped, err := ProcessSessionErrors(ctx, s, projectID, sessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, mapped)

	pair, err := LookupFix(ctx, s, projectID, "arg-type-sig")
	require.NoError(t, err)
	require.NotNil(t, pair)
	assert.InDelta(t, 0.9, pair.Confidence, 1e-9)
	assert.Equal(t, "abc1234", pair.FixCommitHash)
}

func TestLookupFix_RejectsBelowMinConfidence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	projectID := insertProject(t, s, "/tmp/proj-errorfix-2")

	_, err := s.Run(ctx,
		`INSERT INTO error_fix_pairs (project_id, error_signature, confidence, last_seen_at) VALUES (?, 'sig', 0.2, ?)`,
		projectID, time.Now().UTC())
	require.NoError(t, err)

	pair, err := LookupFix(ctx, s, projectID, "sig")
	require.NoError(t, err)
	assert.Nil(t, pair)
}

func TestUpsertErrorFixPair_ReinforcesOnRepeat(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	projectID := insertProject(t, s, "/tmp/proj-errorfix-3")

	er := map[string]interface{}{
		"error_signature": "sig", "error_type": "type_error", "error_message": "msg",
		"source_file": "", "created_at": "2026-01-01 00:00:00",
	}
	commit := map[string]interface{}{
		"commit_hash": "h1", "message": "unrelated change", "files_changed": `[]`,
		"committed_at": "2026-01-01 00:01:00",
	}
	require.NoError(t, upsertErrorFixPair(ctx, s, projectID, 0, er, commit, 1*time.Minute))

	row, err := s.Get(ctx, "SELECT confidence, times_seen FROM error_fix_pairs WHERE project_id = ? AND error_signature = 'sig'", projectID)
	require.NoError(t, err)
	require.NotNil(t, row)
	firstConf := row["confidence"].(float64)

	require.NoError(t, upsertErrorFixPair(ctx, s, projectID, 0, er, commit, 1*time.Minute))
	row, err = s.Get(ctx, "SELECT confidence, times_seen FROM error_fix_pairs WHERE project_id = ? AND error_signature = 'sig'", projectID)
	require.NoError(t, err)
	secondConf := row["confidence"].(float64)
	timesSeen, _ := row["times_seen"].(int64)

	assert.Greater(t, secondConf, firstConf)
	assert.InDelta(t, firstConf+0.1, secondConf, 1e-9)
	assert.EqualValues(t, 2, timesSeen)
}

func TestConfidenceFor_ClampsAtMax(t *testing.T) {
	conf := confidenceFor(1*time.Minute, "fix: something", "a.ts", []string{"a.ts"})
	assert.Equal(t, 0.95, conf)
}

func TestConfidenceFor_BaseCaseNoBonuses(t *testing.T) {
	conf := confidenceFor(20*time.Minute, "unrelated change", "a.ts", []string{"b.ts"})
	assert.Equal(t, 0.5, conf)
}
