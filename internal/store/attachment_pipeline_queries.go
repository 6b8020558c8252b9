package store

import (
	"context"
	"database/sql"
	"encoding/json"
)

// AttachmentForSync is a migration_mapping_attachments row joined with its
// staged Jira payload, for the AttachmentPipeline's sync step (spec.md
// §4.8 step 1) to recompute jira_filesize and association_hint without
// touching migration_status, which Transform owns.
type AttachmentForSync struct {
	MappingID        int64
	JiraAttachmentID string
	RawPayload       json.RawMessage
	IssueRawPayload  json.RawMessage
}

// FetchAttachmentsForSync returns every attachment mapping row alongside
// its owning issue's raw payload.
func (s *Store) FetchAttachmentsForSync(ctx context.Context) ([]AttachmentForSync, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mp.mapping_id, mp.jira_attachment_id, st.raw_payload, si.raw_payload
		FROM migration_mapping_attachments mp
		JOIN staging_jira_attachments st ON st.jira_attachment_id = mp.jira_attachment_id
		JOIN staging_jira_issues si ON si.jira_issue_id = mp.jira_issue_id`)
	if err != nil {
		return nil, wrapDBError("fetch attachments for sync", err)
	}
	defer rows.Close()

	var out []AttachmentForSync
	for rows.Next() {
		var a AttachmentForSync
		if err := rows.Scan(&a.MappingID, &a.JiraAttachmentID, &a.RawPayload, &a.IssueRawPayload); err != nil {
			return nil, wrapDBError("scan attachment for sync", err)
		}
		out = append(out, a)
	}
	return out, wrapDBError("iterate attachments for sync", rows.Err())
}

// UpdateAttachmentSync writes the recomputed jira_filesize and
// association_hint for one attachment row, deliberately leaving
// migration_status untouched (see Store.MarkIssuesExtracted for the same
// single-column-update reasoning).
func (s *Store) UpdateAttachmentSync(ctx context.Context, mappingID, jiraFilesize int64, hint AssociationHint) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE migration_mapping_attachments
		SET jira_filesize = ?, association_hint = ?, last_updated_at = ?
		WHERE mapping_id = ?`,
		jiraFilesize, string(hint), nowUTC(), mappingID)
	return wrapDBError("update attachment sync", err)
}

// AttachmentForDownload is a PENDING_DOWNLOAD row ready for the pull step
// (spec.md §4.8 step 2); RawPayload carries the `content` URL and
// `filename` the downloader needs.
type AttachmentForDownload struct {
	MappingID        int64
	JiraAttachmentID string
	RawPayload       json.RawMessage
}

// FetchAttachmentsPendingDownload returns every download-enabled row
// sitting in PENDING_DOWNLOAD.
func (s *Store) FetchAttachmentsPendingDownload(ctx context.Context) ([]AttachmentForDownload, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mp.mapping_id, mp.jira_attachment_id, st.raw_payload
		FROM migration_mapping_attachments mp
		JOIN staging_jira_attachments st ON st.jira_attachment_id = mp.jira_attachment_id
		WHERE mp.migration_status = 'PENDING_DOWNLOAD' AND mp.download_enabled = 1
		ORDER BY mp.mapping_id`)
	if err != nil {
		return nil, wrapDBError("fetch attachments pending download", err)
	}
	defer rows.Close()

	var out []AttachmentForDownload
	for rows.Next() {
		var a AttachmentForDownload
		if err := rows.Scan(&a.MappingID, &a.JiraAttachmentID, &a.RawPayload); err != nil {
			return nil, wrapDBError("scan attachment for download", err)
		}
		out = append(out, a)
	}
	return out, wrapDBError("iterate attachments pending download", rows.Err())
}

// MarkAttachmentDownloaded transitions a row to PENDING_UPLOAD once its
// content has been streamed to local_filepath.
func (s *Store) MarkAttachmentDownloaded(ctx context.Context, mappingID int64, localFilepath string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE migration_mapping_attachments
		SET migration_status = 'PENDING_UPLOAD', local_filepath = ?, notes = NULL, last_updated_at = ?
		WHERE mapping_id = ?`,
		localFilepath, nowUTC(), mappingID)
	return wrapDBError("mark attachment downloaded", err)
}

// MarkAttachmentDownloadFailed leaves a row in FAILED with a diagnostic
// note; the Reconciler's RunAttachments resets it back to PENDING_DOWNLOAD
// on the next Transform pass (spec.md §4.6).
func (s *Store) MarkAttachmentDownloadFailed(ctx context.Context, mappingID int64, note string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE migration_mapping_attachments
		SET migration_status = 'FAILED', notes = ?, last_updated_at = ?
		WHERE mapping_id = ?`,
		note, nowUTC(), mappingID)
	return wrapDBError("mark attachment download failed", err)
}

// AttachmentForUpload is a PENDING_UPLOAD row ready for the push step
// (spec.md §4.8 step 3).
type AttachmentForUpload struct {
	MappingID        int64
	JiraAttachmentID string
	LocalFilepath    string
	JiraFilesize     int64
	RawPayload       json.RawMessage
}

// FetchAttachmentsPendingUpload returns every upload-enabled row sitting
// in PENDING_UPLOAD.
func (s *Store) FetchAttachmentsPendingUpload(ctx context.Context) ([]AttachmentForUpload, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mp.mapping_id, mp.jira_attachment_id, mp.local_filepath, mp.jira_filesize, st.raw_payload
		FROM migration_mapping_attachments mp
		JOIN staging_jira_attachments st ON st.jira_attachment_id = mp.jira_attachment_id
		WHERE mp.migration_status = 'PENDING_UPLOAD' AND mp.upload_enabled = 1
		ORDER BY mp.mapping_id`)
	if err != nil {
		return nil, wrapDBError("fetch attachments pending upload", err)
	}
	defer rows.Close()

	var out []AttachmentForUpload
	for rows.Next() {
		var a AttachmentForUpload
		var local string
		var size sql.NullInt64
		if err := rows.Scan(&a.MappingID, &a.JiraAttachmentID, &local, &size, &a.RawPayload); err != nil {
			return nil, wrapDBError("scan attachment for upload", err)
		}
		a.LocalFilepath = local
		a.JiraFilesize = size.Int64
		out = append(out, a)
	}
	return out, wrapDBError("iterate attachments pending upload", rows.Err())
}

// MarkAttachmentUploadedToRedmine transitions a row to PENDING_ASSOCIATION
// after a direct Redmine /uploads.json POST, storing the returned token
// Pusher.associateAttachments later consumes. redmineAttachmentID carries
// the numeric id Redmine sometimes prefixes the token with (spec.md §4.8
// step 3); it's a NULL hint until step 4 confirms the real id by matching
// (filename, filesize) against the pushed issue.
func (s *Store) MarkAttachmentUploadedToRedmine(ctx context.Context, mappingID int64, token string, redmineAttachmentID sql.NullInt64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE migration_mapping_attachments
		SET migration_status = 'PENDING_ASSOCIATION', redmine_upload_token = ?, redmine_attachment_id = ?, notes = NULL, last_updated_at = ?
		WHERE mapping_id = ?`,
		token, redmineAttachmentID, nowUTC(), mappingID)
	return wrapDBError("mark attachment uploaded to redmine", err)
}

// MarkAttachmentUploadedToSharePoint transitions a row straight to SUCCESS:
// spec.md §4.8 is explicit that an offloaded attachment is never also
// uploaded to Redmine, so it never earns a redmine_upload_token and has
// nothing for step 4's (filename, filesize) association to match against.
// sharepoint_url is its permanent record of where the content lives.
func (s *Store) MarkAttachmentUploadedToSharePoint(ctx context.Context, mappingID int64, sharepointURL string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE migration_mapping_attachments
		SET migration_status = 'SUCCESS', sharepoint_url = ?, notes = NULL, last_updated_at = ?
		WHERE mapping_id = ?`,
		sharepointURL, nowUTC(), mappingID)
	return wrapDBError("mark attachment uploaded to sharepoint", err)
}

// MarkAttachmentUploadFailed leaves a row in FAILED with a diagnostic note.
func (s *Store) MarkAttachmentUploadFailed(ctx context.Context, mappingID int64, note string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE migration_mapping_attachments
		SET migration_status = 'FAILED', notes = ?, last_updated_at = ?
		WHERE mapping_id = ?`,
		note, nowUTC(), mappingID)
	return wrapDBError("mark attachment upload failed", err)
}
