package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// upsertStagingPK is the generic implementation behind spec.md §4.1's
// `upsert_staging(entity_kind, id, columns…)`: insert on the primary key, or
// update on conflict — updating only the columns actually supplied, so
// columns not passed are left untouched (not reset to NULL).
func (s *Store) upsertStagingPK(ctx context.Context, tx *sql.Tx, table, pkCol string, cols map[string]any) error {
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)

	placeholders := make([]string, len(names))
	values := make([]any, len(names))
	updateCols := make([]string, 0, len(names))
	for i, name := range names {
		placeholders[i] = "?"
		values[i] = cols[name]
		if name != pkCol {
			updateCols = append(updateCols, name)
		}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) %s", table,
		strings.Join(names, ", "), strings.Join(placeholders, ", "),
		s.upsertClause(pkCol, updateCols))

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, values...)
	} else {
		_, err = s.db.ExecContext(ctx, query, values...)
	}
	return wrapDBError("upsert staging "+table, err)
}

// StagingProject is one row of staging_jira_projects.
type StagingProject struct {
	JiraProjectID string
	RawPayload    json.RawMessage
	ExtractedAt   time.Time
}

func (s *Store) UpsertStagingProject(ctx context.Context, tx *sql.Tx, p StagingProject) error {
	return s.upsertStagingPK(ctx, tx, "staging_jira_projects", "jira_project_id", map[string]any{
		"jira_project_id": p.JiraProjectID,
		"raw_payload":     string(p.RawPayload),
		"extracted_at":    p.ExtractedAt,
	})
}

// StagingUser is one row of staging_jira_users.
type StagingUser struct {
	JiraAccountID string
	RawPayload    json.RawMessage
	ExtractedAt   time.Time
}

func (s *Store) UpsertStagingUser(ctx context.Context, tx *sql.Tx, u StagingUser) error {
	return s.upsertStagingPK(ctx, tx, "staging_jira_users", "jira_account_id", map[string]any{
		"jira_account_id": u.JiraAccountID,
		"raw_payload":     string(u.RawPayload),
		"extracted_at":    u.ExtractedAt,
	})
}

// StagingIssue is one row of staging_jira_issues.
type StagingIssue struct {
	JiraIssueID   string
	JiraIssueKey  string
	JiraProjectID string
	RawPayload    json.RawMessage
	ExtractedAt   time.Time
}

func (s *Store) UpsertStagingIssue(ctx context.Context, tx *sql.Tx, i StagingIssue) error {
	return s.upsertStagingPK(ctx, tx, "staging_jira_issues", "jira_issue_id", map[string]any{
		"jira_issue_id":   i.JiraIssueID,
		"jira_issue_key":  i.JiraIssueKey,
		"jira_project_id": i.JiraProjectID,
		"raw_payload":     string(i.RawPayload),
		"extracted_at":    i.ExtractedAt,
	})
}

// StagingComment is one row of staging_jira_comments.
type StagingComment struct {
	JiraCommentID string
	JiraIssueID   string
	RawPayload    json.RawMessage
	ExtractedAt   time.Time
}

func (s *Store) UpsertStagingComment(ctx context.Context, tx *sql.Tx, c StagingComment) error {
	return s.upsertStagingPK(ctx, tx, "staging_jira_comments", "jira_comment_id", map[string]any{
		"jira_comment_id": c.JiraCommentID,
		"jira_issue_id":   c.JiraIssueID,
		"raw_payload":     string(c.RawPayload),
		"extracted_at":    c.ExtractedAt,
	})
}

// StagingChangelog is one row of staging_jira_changelog.
type StagingChangelog struct {
	JiraChangelogID string
	JiraIssueID     string
	RawPayload      json.RawMessage
	ExtractedAt     time.Time
}

func (s *Store) UpsertStagingChangelog(ctx context.Context, tx *sql.Tx, c StagingChangelog) error {
	return s.upsertStagingPK(ctx, tx, "staging_jira_changelog", "jira_changelog_id", map[string]any{
		"jira_changelog_id": c.JiraChangelogID,
		"jira_issue_id":     c.JiraIssueID,
		"raw_payload":       string(c.RawPayload),
		"extracted_at":      c.ExtractedAt,
	})
}

// StagingWatcher is one row of staging_jira_watchers.
type StagingWatcher struct {
	JiraIssueID   string
	JiraAccountID string
	RawPayload    json.RawMessage
	ExtractedAt   time.Time
}

func (s *Store) UpsertStagingWatcher(ctx context.Context, tx *sql.Tx, w StagingWatcher) error {
	query := `INSERT INTO staging_jira_watchers (jira_issue_id, jira_account_id, raw_payload, extracted_at)
		VALUES (?, ?, ?, ?) ` + s.upsertClause("jira_issue_id, jira_account_id", []string{"raw_payload", "extracted_at"})
	var err error
	args := []any{w.JiraIssueID, w.JiraAccountID, string(w.RawPayload), w.ExtractedAt}
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, args...)
	} else {
		_, err = s.db.ExecContext(ctx, query, args...)
	}
	return wrapDBError("upsert staging_jira_watchers", err)
}

// StagingAttachment is one row of staging_jira_attachments.
type StagingAttachment struct {
	JiraAttachmentID string
	JiraIssueID      string
	RawPayload       json.RawMessage
	ExtractedAt      time.Time
}

func (s *Store) UpsertStagingAttachment(ctx context.Context, tx *sql.Tx, a StagingAttachment) error {
	return s.upsertStagingPK(ctx, tx, "staging_jira_attachments", "jira_attachment_id", map[string]any{
		"jira_attachment_id": a.JiraAttachmentID,
		"jira_issue_id":      a.JiraIssueID,
		"raw_payload":        string(a.RawPayload),
		"extracted_at":       a.ExtractedAt,
	})
}

// ReplaceRedmineProjects truncates and bulk-loads staging_redmine_projects,
// per spec.md §3 ("Redmine snapshot tables are truncate-and-reload").
func (s *Store) ReplaceRedmineProjects(ctx context.Context, rows []StagingRedmineProject) error {
	return s.WithBatch(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM staging_redmine_projects`); err != nil {
			return wrapDBError("truncate staging_redmine_projects", err)
		}
		for _, r := range rows {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO staging_redmine_projects (redmine_project_id, raw_payload, extracted_at) VALUES (?, ?, ?)`,
				r.RedmineProjectID, string(r.RawPayload), r.ExtractedAt,
			); err != nil {
				return wrapDBError("insert staging_redmine_projects", err)
			}
		}
		return nil
	})
}

// StagingRedmineProject is one row of staging_redmine_projects.
type StagingRedmineProject struct {
	RedmineProjectID int64
	RawPayload       json.RawMessage
	ExtractedAt      time.Time
}

// ReplaceRedmineUsers truncates and bulk-loads staging_redmine_users.
func (s *Store) ReplaceRedmineUsers(ctx context.Context, rows []StagingRedmineUser) error {
	return s.WithBatch(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM staging_redmine_users`); err != nil {
			return wrapDBError("truncate staging_redmine_users", err)
		}
		for _, r := range rows {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO staging_redmine_users (redmine_user_id, raw_payload, extracted_at) VALUES (?, ?, ?)`,
				r.RedmineUserID, string(r.RawPayload), r.ExtractedAt,
			); err != nil {
				return wrapDBError("insert staging_redmine_users", err)
			}
		}
		return nil
	})
}

// StagingRedmineUser is one row of staging_redmine_users.
type StagingRedmineUser struct {
	RedmineUserID int64
	RawPayload    json.RawMessage
	ExtractedAt   time.Time
}

// SetIssueExtractState records the outcome of a per-issue comment/changelog/
// watcher fetch, per spec.md §4.3: WARNING on 401/403/404 (non-blocking),
// FAILED on any other error (eligible for retry on a later run).
func (s *Store) SetIssueExtractState(ctx context.Context, jiraIssueID, kind, status, message string) error {
	query := `INSERT INTO issue_extract_state (jira_issue_id, kind, status, message, updated_at)
		VALUES (?, ?, ?, ?, ?) ` +
		s.upsertClause("jira_issue_id, kind", []string{"status", "message", "updated_at"})
	_, err := s.db.ExecContext(ctx, query, jiraIssueID, kind, status, message, nowUTC())
	return wrapDBError("set issue_extract_state", err)
}

// NeedsRetry reports whether a prior comment/changelog/watcher fetch for
// jiraIssueID failed in a way that should be retried on the next run: only
// a recorded FAILED (non-4xx transport failure); a WARNING (401/403/404)
// is treated as a stable "this endpoint is unreachable for this issue" and
// is not retried automatically, per spec.md §4.3.
func (s *Store) NeedsRetry(ctx context.Context, jiraIssueID, kind string) (bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM issue_extract_state WHERE jira_issue_id = ? AND kind = ?`,
		jiraIssueID, kind,
	).Scan(&status)
	if err == sql.ErrNoRows {
		return true, nil // never attempted
	}
	if err != nil {
		return false, wrapDBError("read issue_extract_state", err)
	}
	return status == "FAILED", nil
}
