package outcomes

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"muninn/internal/gitutil"
	"muninn/internal/logging"
	"muninn/internal/project"
	"muninn/internal/store"
)

// MinSchemaVersionOwnership gates the ownership refresher.
const MinSchemaVersionOwnership = 1

// ownershipLookback caps how many of the most recently updated files one
// refresh pass covers; each file's attribution reads its last 20 commits.
const ownershipLookback = 200

// RefreshOwnership recomputes each recently-touched file's primary
// author from the project's commit history and records it in
// developer_profile under key "owner:<path>".
func RefreshOwnership(ctx context.Context, s store.Store, projectID int64, repoRoot string) (int, error) {
	if store.SchemaVersionOf(ctx, s) < MinSchemaVersionOwnership {
		return 0, nil
	}

	rows, err := s.All(ctx,
		`SELECT id, path FROM files WHERE project_id = ? AND archived_at IS NULL
		 ORDER BY updated_at DESC LIMIT ?`,
		projectID, ownershipLookback)
	if err != nil {
		return 0, fmt.Errorf("load recently touched files: %w", err)
	}

	updated := 0
	for _, row := range rows {
		path := project.AsString(row["path"])
		commits, err := gitutil.FileAuthorHistory(ctx, repoRoot, path, 20)
		if err != nil || len(commits) == 0 {
			continue
		}
		owner := primaryAuthor(commits)
		if owner == "" {
			continue
		}
		_, err = s.Run(ctx,
			`INSERT INTO developer_profile (project_id, key, value, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(project_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			projectID, "owner:"+path, owner, time.Now().UTC())
		if err != nil {
			logging.OutcomesWarn("refresh ownership for %s failed: %v", path, err)
			continue
		}
		updated++
	}
	return updated, nil
}

// primaryAuthor returns the most frequent author among a file's commit
// history, ties broken by whoever appears first (most recent).
func primaryAuthor(commits []gitutil.CommitInfo) string {
	counts := make(map[string]int)
	var authors []string
	for _, c := range commits {
		a := strings.TrimSpace(c.Author)
		if counts[a] == 0 {
			authors = append(authors, a)
		}
		counts[a]++
	}
	sort.SliceStable(authors, func(i, j int) bool { return counts[authors[i]] > counts[authors[j]] })
	if len(authors) == 0 {
		return ""
	}
	return authors[0]
}
