package context

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"muninn/internal/project"
	"muninn/internal/store"
)

// intentTTL is the lifetime of a declared intent before it stops
// counting as active.
const intentTTL = 30 * time.Minute

// Intent is an agent's declared upcoming activity on a set of files.
// Token is the opaque handle DeclareIntent minted for it; releasing the
// intent requires presenting the token back.
type Intent struct {
	ID          int64
	Token       string
	Agent       string
	Type        string
	Description string
	TargetFiles []string
	ExpiresAt   string
}

// DeclareIntent inserts an agent_intents row with a 30-minute TTL and
// returns any still-active intents from other agents whose target files
// intersect the declared set -- the caller surfaces these as conflicts.
func DeclareIntent(ctx context.Context, s store.Store, projectID int64, agent string, files []string, intentType, description string) (Intent, []Intent, error) {
	filesJSON, err := json.Marshal(files)
	if err != nil {
		return Intent{}, nil, err
	}
	expiresAt := time.Now().UTC().Add(intentTTL)
	token := uuid.NewString()

	res, err := s.Run(ctx,
		`INSERT INTO agent_intents (project_id, agent, token, intent_type, description, target_files, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		projectID, agent, token, intentType, description, string(filesJSON), expiresAt.Format(time.RFC3339))
	if err != nil {
		return Intent{}, nil, err
	}
	id := res.LastInsertID

	active, err := QueryIntents(ctx, s, projectID, "")
	if err != nil {
		return Intent{}, nil, err
	}

	mine := Intent{ID: id, Token: token, Agent: agent, Type: intentType, Description: description, TargetFiles: files, ExpiresAt: expiresAt.Format(time.RFC3339)}

	var conflicts []Intent
	for _, other := range active {
		if other.ID == id || other.Agent == agent {
			continue
		}
		if intersects(other.TargetFiles, files) {
			conflicts = append(conflicts, other)
		}
	}
	return mine, conflicts, nil
}

// QueryIntents returns all currently active (unexpired, unreleased)
// intents for the project, optionally filtered to one agent.
func QueryIntents(ctx context.Context, s store.Store, projectID int64, agent string) ([]Intent, error) {
	query := `SELECT id, token, agent, intent_type, description, target_files, expires_at FROM agent_intents
		WHERE project_id = ? AND released_at IS NULL AND expires_at > ?`
	args := []interface{}{projectID, time.Now().UTC().Format(time.RFC3339)}
	if agent != "" {
		query += " AND agent = ?"
		args = append(args, agent)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.All(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	out := make([]Intent, 0, len(rows))
	for _, row := range rows {
		var files []string
		_ = json.Unmarshal([]byte(project.AsString(row["target_files"])), &files)
		id, _ := project.AsInt64(row["id"])
		out = append(out, Intent{
			ID:          id,
			Token:       project.AsString(row["token"]),
			Agent:       project.AsString(row["agent"]),
			Type:        project.AsString(row["intent_type"]),
			Description: project.AsString(row["description"]),
			TargetFiles: files,
			ExpiresAt:   project.AsString(row["expires_at"]),
		})
	}
	return out, nil
}

// ReleaseIntent marks an intent released before its TTL expires. The
// caller must present the token DeclareIntent minted; an unknown token is
// reported rather than silently ignored.
func ReleaseIntent(ctx context.Context, s store.Store, token string) error {
	if token == "" {
		return fmt.Errorf("release intent: token is required")
	}
	res, err := s.Run(ctx,
		"UPDATE agent_intents SET released_at = CURRENT_TIMESTAMP WHERE token = ? AND released_at IS NULL", token)
	if err != nil {
		return err
	}
	if res.Changes == 0 {
		return fmt.Errorf("release intent: no active intent holds this token")
	}
	return nil
}

func intersects(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, f := range a {
		set[strings.TrimSpace(f)] = true
	}
	for _, f := range b {
		if set[strings.TrimSpace(f)] {
			return true
		}
	}
	return false
}
