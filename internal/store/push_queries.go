package store

import (
	"context"
	"database/sql"
)

// The types and queries below are read by internal/redmine's Pusher
// (spec.md §4.9). They live in this package rather than in redmine because
// they read proposed_* mapping columns directly — the same columns
// internal/reconcile writes — keeping all mapping-table SQL in one place
// alongside mapping.go's generic accessors.

// ProjectForPush is a project mapping row ready to create, spec.md §4.9.
type ProjectForPush struct {
	MappingID      int64
	Identifier     string
	Name           string
	Description    string
	IsPublic       bool
	AutomationHash string
}

// FetchProjectsForPush returns every project mapping row in
// READY_FOR_CREATION — the set the Pusher's projects step consumes.
func (s *Store) FetchProjectsForPush(ctx context.Context) ([]ProjectForPush, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mapping_id, proposed_identifier, proposed_name, proposed_description,
		       proposed_is_public, automation_hash
		FROM migration_mapping_projects
		WHERE migration_status = 'READY_FOR_CREATION'
		ORDER BY mapping_id`)
	if err != nil {
		return nil, wrapDBError("fetch projects for push", err)
	}
	defer rows.Close()

	var out []ProjectForPush
	for rows.Next() {
		var p ProjectForPush
		var desc, hash sql.NullString
		var isPublic sql.NullInt64
		if err := rows.Scan(&p.MappingID, &p.Identifier, &p.Name, &desc, &isPublic, &hash); err != nil {
			return nil, wrapDBError("scan project for push", err)
		}
		p.Description = desc.String
		p.IsPublic = isPublic.Int64 != 0
		p.AutomationHash = hash.String
		out = append(out, p)
	}
	return out, wrapDBError("iterate projects for push", rows.Err())
}

// UserForPush is a user mapping row ready to create, spec.md §4.9.
type UserForPush struct {
	MappingID      int64
	Login          string
	Mail           string
	Firstname      string
	Lastname       string
	Status         string
	AutomationHash string
}

// FetchUsersForPush returns every user mapping row in READY_FOR_CREATION.
func (s *Store) FetchUsersForPush(ctx context.Context) ([]UserForPush, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mapping_id, proposed_redmine_login, proposed_redmine_mail,
		       proposed_firstname, proposed_lastname, proposed_redmine_status, automation_hash
		FROM migration_mapping_users
		WHERE migration_status = 'READY_FOR_CREATION'
		ORDER BY mapping_id`)
	if err != nil {
		return nil, wrapDBError("fetch users for push", err)
	}
	defer rows.Close()

	var out []UserForPush
	for rows.Next() {
		var u UserForPush
		var status, hash sql.NullString
		if err := rows.Scan(&u.MappingID, &u.Login, &u.Mail, &u.Firstname, &u.Lastname, &status, &hash); err != nil {
			return nil, wrapDBError("scan user for push", err)
		}
		u.Status = status.String
		u.AutomationHash = hash.String
		out = append(out, u)
	}
	return out, wrapDBError("iterate users for push", rows.Err())
}

// IssueForPush is an issue mapping row ready to create, spec.md §4.9.
type IssueForPush struct {
	MappingID      int64
	JiraIssueID    string
	ProjectID      int64
	TrackerID      int64
	StatusID       sql.NullInt64
	PriorityID     sql.NullInt64
	AuthorID       sql.NullInt64
	AssignedToID   sql.NullInt64
	ParentIssueID  sql.NullInt64
	Subject        string
	Description    string
	StartDate      sql.NullString
	DueDate        sql.NullString
	DoneRatio      int
	EstimatedHours sql.NullFloat64
	IsPrivate      bool
	AutomationHash string
}

// FetchIssuesForPush returns every issue mapping row in READY_FOR_CREATION.
func (s *Store) FetchIssuesForPush(ctx context.Context) ([]IssueForPush, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mapping_id, jira_issue_id, proposed_project_id, proposed_tracker_id,
		       proposed_status_id, proposed_priority_id, proposed_author_id,
		       proposed_assigned_to_id, proposed_parent_issue_id, proposed_subject,
		       proposed_description, proposed_start_date, proposed_due_date,
		       proposed_done_ratio, proposed_estimated_hours, proposed_is_private,
		       automation_hash
		FROM migration_mapping_issues
		WHERE migration_status = 'READY_FOR_CREATION'
		ORDER BY mapping_id`)
	if err != nil {
		return nil, wrapDBError("fetch issues for push", err)
	}
	defer rows.Close()

	var out []IssueForPush
	for rows.Next() {
		var r IssueForPush
		var desc, hash sql.NullString
		var doneRatio sql.NullInt64
		var isPrivate sql.NullInt64
		if err := rows.Scan(&r.MappingID, &r.JiraIssueID, &r.ProjectID, &r.TrackerID,
			&r.StatusID, &r.PriorityID, &r.AuthorID, &r.AssignedToID, &r.ParentIssueID,
			&r.Subject, &desc, &r.StartDate, &r.DueDate, &doneRatio, &r.EstimatedHours,
			&isPrivate, &hash); err != nil {
			return nil, wrapDBError("scan issue for push", err)
		}
		r.Description = desc.String
		r.DoneRatio = int(doneRatio.Int64)
		r.IsPrivate = isPrivate.Int64 != 0
		r.AutomationHash = hash.String
		out = append(out, r)
	}
	return out, wrapDBError("iterate issues for push", rows.Err())
}

// AttachmentForAssociation is a PENDING_ASSOCIATION attachment row carrying
// an unconsumed upload token, spec.md §4.8.
type AttachmentForAssociation struct {
	MappingID        int64
	JiraAttachmentID string
	LocalFilepath    string
	JiraFilesize     int64
	UploadToken      string
}

// FetchAttachmentsPendingAssociation returns PENDING_ASSOCIATION rows for
// one issue whose association_hint matches hint, for the Pusher to attach
// to an issue-create (hint=ISSUE) or a later journal push (hint=JOURNAL).
func (s *Store) FetchAttachmentsPendingAssociation(ctx context.Context, jiraIssueID string, hint AssociationHint) ([]AttachmentForAssociation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mapping_id, jira_attachment_id, local_filepath, jira_filesize, redmine_upload_token
		FROM migration_mapping_attachments
		WHERE jira_issue_id = ? AND association_hint = ? AND migration_status = 'PENDING_ASSOCIATION'
		  AND redmine_upload_token IS NOT NULL
		ORDER BY mapping_id`, jiraIssueID, string(hint))
	if err != nil {
		return nil, wrapDBError("fetch attachments pending association", err)
	}
	defer rows.Close()

	var out []AttachmentForAssociation
	for rows.Next() {
		var a AttachmentForAssociation
		var local, token sql.NullString
		var size sql.NullInt64
		if err := rows.Scan(&a.MappingID, &a.JiraAttachmentID, &local, &size, &token); err != nil {
			return nil, wrapDBError("scan attachment for association", err)
		}
		a.LocalFilepath = local.String
		a.JiraFilesize = size.Int64
		a.UploadToken = token.String
		out = append(out, a)
	}
	return out, wrapDBError("iterate attachments for association", rows.Err())
}

// MarkAttachmentAssociated transitions an attachment mapping row to SUCCESS
// once matched against the issue's returned attachment list, spec.md §4.8
// step 4.
func (s *Store) MarkAttachmentAssociated(ctx context.Context, mappingID, redmineAttachmentID, redmineIssueID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE migration_mapping_attachments
		SET migration_status = 'SUCCESS', redmine_attachment_id = ?, redmine_issue_id = ?, last_updated_at = ?
		WHERE mapping_id = ?`,
		redmineAttachmentID, redmineIssueID, nowUTC(), mappingID)
	return wrapDBError("mark attachment associated", err)
}

// MarkAttachmentAssociationFailed leaves an attachment row in
// PENDING_ASSOCIATION with a diagnostic note when no (filename, filesize)
// match is found, spec.md §4.8 step 4.
func (s *Store) MarkAttachmentAssociationFailed(ctx context.Context, mappingID int64, note string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE migration_mapping_attachments
		SET notes = ?, last_updated_at = ?
		WHERE mapping_id = ?`,
		note, nowUTC(), mappingID)
	return wrapDBError("mark attachment association failed", err)
}

// JournalForPush is a journal mapping row ready to push, spec.md §4.9 —
// joined against its owning issue's redmine_issue_id, which must be set.
type JournalForPush struct {
	MappingID      int64
	JiraIssueID    string
	EntityType     string
	RedmineIssueID int64
	Notes          string
	AuthorID       sql.NullInt64
	CreatedOn      sql.NullTime
	UpdatedOn      sql.NullTime
	AutomationHash string
}

// FetchJournalsForPush returns every journal mapping row in
// READY_FOR_PUSH whose owning issue already has a redmine_issue_id.
func (s *Store) FetchJournalsForPush(ctx context.Context) ([]JournalForPush, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mp.mapping_id, mp.jira_issue_id, mp.entity_type, mi.redmine_issue_id,
		       mp.proposed_notes, mp.proposed_author_id, mp.proposed_created_on,
		       mp.proposed_updated_on, mp.automation_hash
		FROM migration_mapping_journals mp
		JOIN migration_mapping_issues mi ON mi.jira_issue_id = mp.jira_issue_id
		WHERE mp.migration_status = 'READY_FOR_PUSH' AND mi.redmine_issue_id IS NOT NULL
		ORDER BY mp.mapping_id`)
	if err != nil {
		return nil, wrapDBError("fetch journals for push", err)
	}
	defer rows.Close()

	var out []JournalForPush
	for rows.Next() {
		var j JournalForPush
		var notes, hash sql.NullString
		if err := rows.Scan(&j.MappingID, &j.JiraIssueID, &j.EntityType, &j.RedmineIssueID,
			&notes, &j.AuthorID, &j.CreatedOn, &j.UpdatedOn, &hash); err != nil {
			return nil, wrapDBError("scan journal for push", err)
		}
		j.Notes = notes.String
		j.AutomationHash = hash.String
		out = append(out, j)
	}
	return out, wrapDBError("iterate journals for push", rows.Err())
}

// WatcherForPush is a watcher mapping row ready to push, spec.md §4.9.
type WatcherForPush struct {
	MappingID      int64
	RedmineIssueID int64
	RedmineUserID  int64
}

// FetchWatchersForPush returns every watcher mapping row in READY_FOR_PUSH.
func (s *Store) FetchWatchersForPush(ctx context.Context) ([]WatcherForPush, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mapping_id, redmine_issue_id, redmine_user_id
		FROM migration_mapping_watchers
		WHERE migration_status = 'READY_FOR_PUSH'
		ORDER BY mapping_id`)
	if err != nil {
		return nil, wrapDBError("fetch watchers for push", err)
	}
	defer rows.Close()

	var out []WatcherForPush
	for rows.Next() {
		var w WatcherForPush
		if err := rows.Scan(&w.MappingID, &w.RedmineIssueID, &w.RedmineUserID); err != nil {
			return nil, wrapDBError("scan watcher for push", err)
		}
		out = append(out, w)
	}
	return out, wrapDBError("iterate watchers for push", rows.Err())
}

// MarkWatcherPushed records a watcher push outcome.
func (s *Store) MarkWatcherPushed(ctx context.Context, mappingID int64, ok bool, note string) error {
	status := "SUCCESS"
	if !ok {
		status = "FAILED"
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE migration_mapping_watchers
		SET migration_status = ?, notes = ?, last_updated_at = ?
		WHERE mapping_id = ?`,
		status, nullString(note), nowUTC(), mappingID)
	return wrapDBError("mark watcher pushed", err)
}

// SubtaskForPush is an issue whose resolved parent differs from its last
// pushed parent, spec.md §4.9's subtask step.
type SubtaskForPush struct {
	MappingID            int64
	ChildRedmineIssueID  int64
	ParentRedmineIssueID int64
}

// FetchSubtasksForPush returns issues with a resolved parent (set by the
// Reconciler only once the parent mapping is ready) whose Redmine record
// doesn't yet reflect it.
func (s *Store) FetchSubtasksForPush(ctx context.Context) ([]SubtaskForPush, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mapping_id, redmine_issue_id, proposed_parent_issue_id
		FROM migration_mapping_issues
		WHERE redmine_issue_id IS NOT NULL
		  AND proposed_parent_issue_id IS NOT NULL
		  AND (redmine_parent_issue_id IS NULL OR redmine_parent_issue_id != proposed_parent_issue_id)
		ORDER BY mapping_id`)
	if err != nil {
		return nil, wrapDBError("fetch subtasks for push", err)
	}
	defer rows.Close()

	var out []SubtaskForPush
	for rows.Next() {
		var r SubtaskForPush
		if err := rows.Scan(&r.MappingID, &r.ChildRedmineIssueID, &r.ParentRedmineIssueID); err != nil {
			return nil, wrapDBError("scan subtask for push", err)
		}
		out = append(out, r)
	}
	return out, wrapDBError("iterate subtasks for push", rows.Err())
}

// MarkSubtaskPushed stamps redmine_parent_issue_id after a successful PUT.
func (s *Store) MarkSubtaskPushed(ctx context.Context, mappingID, parentRedmineIssueID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE migration_mapping_issues
		SET redmine_parent_issue_id = ?, last_updated_at = ?
		WHERE mapping_id = ?`,
		parentRedmineIssueID, nowUTC(), mappingID)
	return wrapDBError("mark subtask pushed", err)
}

// MarkJournalPushed records a journal push outcome.
func (s *Store) MarkJournalPushed(ctx context.Context, mappingID int64, redmineJournalID int64, notes string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE migration_mapping_journals
		SET migration_status = 'SUCCESS', redmine_journal_id = ?, notes = ?, last_updated_at = ?
		WHERE mapping_id = ?`,
		redmineJournalID, nullString(notes), nowUTC(), mappingID)
	return wrapDBError("mark journal pushed", err)
}

// MarkJournalFailed records a failed journal push.
func (s *Store) MarkJournalFailed(ctx context.Context, mappingID int64, notes string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE migration_mapping_journals
		SET migration_status = 'FAILED', notes = ?, last_updated_at = ?
		WHERE mapping_id = ?`,
		notes, nowUTC(), mappingID)
	return wrapDBError("mark journal failed", err)
}
