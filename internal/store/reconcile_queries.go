package store

import (
	"context"
	"database/sql"
	"encoding/json"
)

// ProjectReconcileRow is one migration_mapping_projects row joined with its
// staging payload, carrying the currently-persisted proposed_* fields so
// the Reconciler can recompute automation_hash over them for the manual-
// override check (spec.md §4.6) before deriving a new proposal.
type ProjectReconcileRow struct {
	MappingID           int64
	JiraProjectID       string
	RedmineProjectID    sql.NullInt64
	Status              Status
	Notes               sql.NullString
	AutomationHash      string
	ProposedIdentifier  sql.NullString
	ProposedName        sql.NullString
	ProposedDescription sql.NullString
	ProposedIsPublic    sql.NullBool
	RawPayload          json.RawMessage
}

// FetchProjectsForReconcile returns every project mapping row for the
// Reconciler's Transform pass.
func (s *Store) FetchProjectsForReconcile(ctx context.Context) ([]ProjectReconcileRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mp.mapping_id, mp.jira_project_id, mp.redmine_project_id, mp.migration_status, mp.notes,
		       mp.automation_hash, mp.proposed_identifier, mp.proposed_name, mp.proposed_description,
		       mp.proposed_is_public, st.raw_payload
		FROM migration_mapping_projects mp
		JOIN staging_jira_projects st ON st.jira_project_id = mp.jira_project_id`)
	if err != nil {
		return nil, wrapDBError("fetch projects for reconcile", err)
	}
	defer rows.Close()

	var out []ProjectReconcileRow
	for rows.Next() {
		var r ProjectReconcileRow
		var hash sql.NullString
		var isPublic sql.NullInt64
		if err := rows.Scan(&r.MappingID, &r.JiraProjectID, &r.RedmineProjectID, &r.Status, &r.Notes, &hash,
			&r.ProposedIdentifier, &r.ProposedName, &r.ProposedDescription, &isPublic, &r.RawPayload); err != nil {
			return nil, wrapDBError("scan project reconcile row", err)
		}
		r.AutomationHash = hash.String
		if isPublic.Valid {
			r.ProposedIsPublic = sql.NullBool{Bool: isPublic.Int64 != 0, Valid: true}
		}
		out = append(out, r)
	}
	return out, wrapDBError("iterate project reconcile rows", rows.Err())
}

// UserReconcileRow is one migration_mapping_users row joined with staging.
type UserReconcileRow struct {
	MappingID          int64
	JiraAccountID      string
	RedmineUserID      sql.NullInt64
	Status             Status
	Notes              sql.NullString
	AutomationHash     string
	MatchType          sql.NullString
	ProposedLogin      sql.NullString
	ProposedMail       sql.NullString
	ProposedFirstname  sql.NullString
	ProposedLastname   sql.NullString
	ProposedStatus     sql.NullString
	RawPayload         json.RawMessage
}

func (s *Store) FetchUsersForReconcile(ctx context.Context) ([]UserReconcileRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mp.mapping_id, mp.jira_account_id, mp.redmine_user_id, mp.migration_status, mp.notes,
		       mp.automation_hash, mp.match_type, mp.proposed_redmine_login, mp.proposed_redmine_mail,
		       mp.proposed_firstname, mp.proposed_lastname, mp.proposed_redmine_status, st.raw_payload
		FROM migration_mapping_users mp
		JOIN staging_jira_users st ON st.jira_account_id = mp.jira_account_id`)
	if err != nil {
		return nil, wrapDBError("fetch users for reconcile", err)
	}
	defer rows.Close()

	var out []UserReconcileRow
	for rows.Next() {
		var r UserReconcileRow
		var hash sql.NullString
		if err := rows.Scan(&r.MappingID, &r.JiraAccountID, &r.RedmineUserID, &r.Status, &r.Notes, &hash,
			&r.MatchType, &r.ProposedLogin, &r.ProposedMail, &r.ProposedFirstname, &r.ProposedLastname,
			&r.ProposedStatus, &r.RawPayload); err != nil {
			return nil, wrapDBError("scan user reconcile row", err)
		}
		r.AutomationHash = hash.String
		out = append(out, r)
	}
	return out, wrapDBError("iterate user reconcile rows", rows.Err())
}

// RedmineProjectSnapshot is one row of staging_redmine_projects decoded
// enough for identifier/name/description/is_public matching.
type RedmineProjectSnapshot struct {
	RedmineProjectID int64
	Identifier       string
	Name             string
	Description      string
	IsPublic         bool
}

// FetchRedmineProjectSnapshot returns the Redmine project snapshot decoded
// from raw_payload, for the Reconciler's identifier-match lookup.
func (s *Store) FetchRedmineProjectSnapshot(ctx context.Context) ([]RedmineProjectSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT redmine_project_id, raw_payload FROM staging_redmine_projects`)
	if err != nil {
		return nil, wrapDBError("fetch redmine project snapshot", err)
	}
	defer rows.Close()

	var out []RedmineProjectSnapshot
	for rows.Next() {
		var id int64
		var raw json.RawMessage
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, wrapDBError("scan redmine project snapshot", err)
		}
		var decoded struct {
			Identifier  string `json:"identifier"`
			Name        string `json:"name"`
			Description string `json:"description"`
			IsPublic    bool   `json:"is_public"`
		}
		json.Unmarshal(raw, &decoded)
		out = append(out, RedmineProjectSnapshot{
			RedmineProjectID: id,
			Identifier:       decoded.Identifier,
			Name:             decoded.Name,
			Description:      decoded.Description,
			IsPublic:         decoded.IsPublic,
		})
	}
	return out, wrapDBError("iterate redmine project snapshot", rows.Err())
}

// RedmineUserSnapshot is one row of staging_redmine_users decoded enough
// for login/mail matching.
type RedmineUserSnapshot struct {
	RedmineUserID int64
	Login         string
	Mail          string
}

func (s *Store) FetchRedmineUserSnapshot(ctx context.Context) ([]RedmineUserSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT redmine_user_id, raw_payload FROM staging_redmine_users`)
	if err != nil {
		return nil, wrapDBError("fetch redmine user snapshot", err)
	}
	defer rows.Close()

	var out []RedmineUserSnapshot
	for rows.Next() {
		var id int64
		var raw json.RawMessage
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, wrapDBError("scan redmine user snapshot", err)
		}
		var decoded struct {
			Login string `json:"login"`
			Mail  string `json:"mail"`
		}
		json.Unmarshal(raw, &decoded)
		out = append(out, RedmineUserSnapshot{RedmineUserID: id, Login: decoded.Login, Mail: decoded.Mail})
	}
	return out, wrapDBError("iterate redmine user snapshot", rows.Err())
}

// IssueReconcileRow is one migration_mapping_issues row joined with staging,
// carrying both the Jira-side dependency ids and the currently-persisted
// proposal.
type IssueReconcileRow struct {
	MappingID             int64
	JiraIssueID           string
	JiraIssueKey          sql.NullString
	JiraProjectID         sql.NullString
	JiraIssueTypeID       sql.NullString
	JiraStatusID          sql.NullString
	JiraPriorityID        sql.NullString
	JiraReporterAccountID sql.NullString
	JiraAssigneeAccountID sql.NullString
	JiraParentIssueID     sql.NullString
	RedmineIssueID        sql.NullInt64
	Status                Status
	Notes                 sql.NullString
	AutomationHash        string
	RawPayload            json.RawMessage

	ProposedProjectID      sql.NullInt64
	ProposedTrackerID      sql.NullInt64
	ProposedStatusID       sql.NullInt64
	ProposedPriorityID     sql.NullInt64
	ProposedAuthorID       sql.NullInt64
	ProposedAssignedToID   sql.NullInt64
	ProposedParentIssueID  sql.NullInt64
	ProposedSubject        sql.NullString
	ProposedDescription    sql.NullString
	ProposedStartDate      sql.NullString
	ProposedDueDate        sql.NullString
	ProposedDoneRatio      sql.NullInt64
	ProposedEstimatedHours sql.NullFloat64
	ProposedIsPrivate      sql.NullInt64
}

func (s *Store) FetchIssuesForReconcile(ctx context.Context) ([]IssueReconcileRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mp.mapping_id, mp.jira_issue_id, mp.jira_issue_key, mp.jira_project_id, mp.jira_issue_type_id,
		       mp.jira_status_id, mp.jira_priority_id, mp.jira_reporter_account_id, mp.jira_assignee_account_id,
		       mp.jira_parent_issue_id, mp.redmine_issue_id, mp.migration_status, mp.notes, mp.automation_hash,
		       st.raw_payload, mp.proposed_project_id, mp.proposed_tracker_id, mp.proposed_status_id,
		       mp.proposed_priority_id, mp.proposed_author_id, mp.proposed_assigned_to_id, mp.proposed_parent_issue_id,
		       mp.proposed_subject, mp.proposed_description, mp.proposed_start_date, mp.proposed_due_date,
		       mp.proposed_done_ratio, mp.proposed_estimated_hours, mp.proposed_is_private
		FROM migration_mapping_issues mp
		JOIN staging_jira_issues st ON st.jira_issue_id = mp.jira_issue_id`)
	if err != nil {
		return nil, wrapDBError("fetch issues for reconcile", err)
	}
	defer rows.Close()

	var out []IssueReconcileRow
	for rows.Next() {
		var r IssueReconcileRow
		var hash sql.NullString
		if err := rows.Scan(&r.MappingID, &r.JiraIssueID, &r.JiraIssueKey, &r.JiraProjectID, &r.JiraIssueTypeID,
			&r.JiraStatusID, &r.JiraPriorityID, &r.JiraReporterAccountID, &r.JiraAssigneeAccountID,
			&r.JiraParentIssueID, &r.RedmineIssueID, &r.Status, &r.Notes, &hash, &r.RawPayload,
			&r.ProposedProjectID, &r.ProposedTrackerID, &r.ProposedStatusID, &r.ProposedPriorityID,
			&r.ProposedAuthorID, &r.ProposedAssignedToID, &r.ProposedParentIssueID, &r.ProposedSubject,
			&r.ProposedDescription, &r.ProposedStartDate, &r.ProposedDueDate, &r.ProposedDoneRatio,
			&r.ProposedEstimatedHours, &r.ProposedIsPrivate); err != nil {
			return nil, wrapDBError("scan issue reconcile row", err)
		}
		r.AutomationHash = hash.String
		out = append(out, r)
	}
	return out, wrapDBError("iterate issue reconcile rows", rows.Err())
}

// UpdateIssueJiraFields backfills the jira_* dependency columns extracted
// from raw_payload the first time a row is seen, so later reconcile passes
// and DependencyResolver.ResolveParentIssueID don't need to re-parse JSON.
func (s *Store) UpdateIssueJiraFields(ctx context.Context, mappingID int64, fields IssueJiraFields) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE migration_mapping_issues SET
			jira_issue_key = ?, jira_project_id = ?, jira_issue_type_id = ?, jira_status_id = ?,
			jira_priority_id = ?, jira_reporter_account_id = ?, jira_assignee_account_id = ?, jira_parent_issue_id = ?
		WHERE mapping_id = ?`,
		nullString(fields.IssueKey), nullString(fields.ProjectID), nullString(fields.IssueTypeID),
		nullString(fields.StatusID), nullString(fields.PriorityID), nullString(fields.ReporterAccountID),
		nullString(fields.AssigneeAccountID), nullString(fields.ParentIssueID), mappingID)
	return wrapDBError("update issue jira fields", err)
}

// IssueJiraFields is the set of dependency-bearing fields parsed out of a
// Jira issue's raw_payload.
type IssueJiraFields struct {
	IssueKey          string
	ProjectID         string
	IssueTypeID       string
	StatusID          string
	PriorityID        string
	ReporterAccountID string
	AssigneeAccountID string
	ParentIssueID     string
}

// AttachmentReconcileRow is one migration_mapping_attachments row joined
// with staging and its owning issue's raw payload, so the Reconciler can
// compare the attachment's `created` field against the issue's to refresh
// association_hint (spec.md §4.6).
type AttachmentReconcileRow struct {
	MappingID        int64
	JiraAttachmentID string
	JiraIssueID      string
	Status           Status
	AutomationHash   string
	RawPayload       json.RawMessage
	IssueRawPayload  json.RawMessage
}

func (s *Store) FetchAttachmentsForReconcile(ctx context.Context) ([]AttachmentReconcileRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mp.mapping_id, mp.jira_attachment_id, mp.jira_issue_id, mp.migration_status, mp.automation_hash,
		       st.raw_payload, si.raw_payload
		FROM migration_mapping_attachments mp
		JOIN staging_jira_attachments st ON st.jira_attachment_id = mp.jira_attachment_id
		LEFT JOIN staging_jira_issues si ON si.jira_issue_id = mp.jira_issue_id`)
	if err != nil {
		return nil, wrapDBError("fetch attachments for reconcile", err)
	}
	defer rows.Close()

	var out []AttachmentReconcileRow
	for rows.Next() {
		var r AttachmentReconcileRow
		var hash sql.NullString
		if err := rows.Scan(&r.MappingID, &r.JiraAttachmentID, &r.JiraIssueID, &r.Status, &hash,
			&r.RawPayload, &r.IssueRawPayload); err != nil {
			return nil, wrapDBError("scan attachment reconcile row", err)
		}
		r.AutomationHash = hash.String
		out = append(out, r)
	}
	return out, wrapDBError("iterate attachment reconcile rows", rows.Err())
}

// JournalReconcileRow is one migration_mapping_journals row joined with its
// comment or changelog staging payload, plus the owning issue's Redmine id.
type JournalReconcileRow struct {
	MappingID      int64
	JiraEntityID   string
	JiraIssueID    string
	EntityType     JournalEntityType
	Status         Status
	Notes          sql.NullString
	AutomationHash string
	RawPayload     json.RawMessage
	IssueRedmineID sql.NullInt64

	RedmineJournalID  sql.NullInt64
	ProposedNotes     sql.NullString
	ProposedAuthorID  sql.NullInt64
	ProposedCreatedOn sql.NullString
	ProposedUpdatedOn sql.NullString
}

func (s *Store) FetchJournalsForReconcile(ctx context.Context) ([]JournalReconcileRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mp.mapping_id, mp.jira_entity_id, mp.jira_issue_id, mp.entity_type, mp.migration_status,
		       mp.notes, mp.automation_hash, mp.proposed_notes, mp.proposed_author_id, mp.proposed_created_on,
		       mp.proposed_updated_on, mp.redmine_journal_id,
		       CASE mp.entity_type
		         WHEN 'COMMENT' THEN (SELECT raw_payload FROM staging_jira_comments st WHERE st.jira_comment_id = mp.jira_entity_id)
		         ELSE (SELECT raw_payload FROM staging_jira_changelog st WHERE st.jira_changelog_id = mp.jira_entity_id)
		       END,
		       mi.redmine_issue_id
		FROM migration_mapping_journals mp
		LEFT JOIN migration_mapping_issues mi ON mi.jira_issue_id = mp.jira_issue_id`)
	if err != nil {
		return nil, wrapDBError("fetch journals for reconcile", err)
	}
	defer rows.Close()

	var out []JournalReconcileRow
	for rows.Next() {
		var r JournalReconcileRow
		var hash sql.NullString
		if err := rows.Scan(&r.MappingID, &r.JiraEntityID, &r.JiraIssueID, &r.EntityType, &r.Status, &r.Notes, &hash,
			&r.ProposedNotes, &r.ProposedAuthorID, &r.ProposedCreatedOn, &r.ProposedUpdatedOn, &r.RedmineJournalID,
			&r.RawPayload, &r.IssueRedmineID); err != nil {
			return nil, wrapDBError("scan journal reconcile row", err)
		}
		r.AutomationHash = hash.String
		out = append(out, r)
	}
	return out, wrapDBError("iterate journal reconcile rows", rows.Err())
}

// WatcherReconcileRow is one migration_mapping_watchers row joined with the
// issue and user mapping rows it depends on.
type WatcherReconcileRow struct {
	MappingID      int64
	JiraIssueID    string
	JiraAccountID  string
	Status         Status
	Notes          sql.NullString
	IssueRedmineID sql.NullInt64
	UserRedmineID  sql.NullInt64
}

func (s *Store) FetchWatchersForReconcile(ctx context.Context) ([]WatcherReconcileRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mp.mapping_id, mp.jira_issue_id, mp.jira_account_id, mp.migration_status,
		       mp.notes, mi.redmine_issue_id, mu.redmine_user_id
		FROM migration_mapping_watchers mp
		LEFT JOIN migration_mapping_issues mi ON mi.jira_issue_id = mp.jira_issue_id
		LEFT JOIN migration_mapping_users mu ON mu.jira_account_id = mp.jira_account_id`)
	if err != nil {
		return nil, wrapDBError("fetch watchers for reconcile", err)
	}
	defer rows.Close()

	var out []WatcherReconcileRow
	for rows.Next() {
		var r WatcherReconcileRow
		if err := rows.Scan(&r.MappingID, &r.JiraIssueID, &r.JiraAccountID, &r.Status,
			&r.Notes, &r.IssueRedmineID, &r.UserRedmineID); err != nil {
			return nil, wrapDBError("scan watcher reconcile row", err)
		}
		out = append(out, r)
	}
	return out, wrapDBError("iterate watcher reconcile rows", rows.Err())
}

// UpdateWatcherStatus writes a watcher mapping row's status and note
// directly; watchers have no automation_hash column (spec.md §4.6: "pure
// join", never a manual-override target) so this bypasses UpdateMapping's
// automation_hash write entirely.
func (s *Store) UpdateWatcherStatus(ctx context.Context, mappingID int64, status Status, notes string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE migration_mapping_watchers SET migration_status = ?, notes = ?, last_updated_at = ? WHERE mapping_id = ?`,
		string(status), nullString(notes), nowUTC(), mappingID)
	return wrapDBError("update watcher status", err)
}
