package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// AttachmentLookupRow is one resolved attachment mapping, enough for a
// caller to build a rewrite.AttachmentRef without this package importing
// internal/rewrite.
type AttachmentLookupRow struct {
	JiraAttachmentID string
	Filename         string
	SharePointURL    string
}

// FetchAttachmentLookupRows returns every attachment mapping row with a
// staged Jira payload (the source of the filename the unique filename token
// is derived from), whatever its download state, for building the
// ContentRewriter's attachment
// lookup ahead of a journals/issues transform pass (spec.md §4.5 rule 2).
func (s *Store) FetchAttachmentLookupRows(ctx context.Context) ([]AttachmentLookupRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mp.jira_attachment_id, st.raw_payload, COALESCE(mp.sharepoint_url, '')
		FROM migration_mapping_attachments mp
		JOIN staging_jira_attachments st ON st.jira_attachment_id = mp.jira_attachment_id`)
	if err != nil {
		return nil, wrapDBError("fetch attachment lookup rows", err)
	}
	defer rows.Close()

	var out []AttachmentLookupRow
	for rows.Next() {
		var r AttachmentLookupRow
		var raw json.RawMessage
		if err := rows.Scan(&r.JiraAttachmentID, &raw, &r.SharePointURL); err != nil {
			return nil, wrapDBError("scan attachment lookup row", err)
		}
		filename, err := rawFieldString(raw, "filename")
		if err != nil {
			continue
		}
		r.Filename = filename
		out = append(out, r)
	}
	return out, wrapDBError("iterate attachment lookup rows", rows.Err())
}

// FetchUserRedmineIDs returns every jira_account_id -> redmine_user_id pair
// that has been resolved so far, for the ContentRewriter's user-mention
// lookup (spec.md §4.5 rule 3). Unlinked users are simply absent from the
// map; ContentRewriter leaves their references untouched.
func (s *Store) FetchUserRedmineIDs(ctx context.Context) (map[string]int64, error) {
	return s.readIDMap(ctx, "migration_mapping_users", "jira_account_id", "redmine_user_id", "redmine_user_id IS NOT NULL")
}

// FetchIssueRedmineIDsByKey returns every jira_issue_key -> redmine_issue_id
// pair that has been resolved so far, for the ContentRewriter's issue-key
// lookup (spec.md §4.5 rule 4).
func (s *Store) FetchIssueRedmineIDsByKey(ctx context.Context) (map[string]int64, error) {
	return s.readIDMap(ctx, "migration_mapping_issues", "jira_issue_key", "redmine_issue_id", "redmine_issue_id IS NOT NULL AND jira_issue_key IS NOT NULL")
}

// rawFieldString mirrors internal/extract's helper of the same name; store
// must not import extract, so the one-field read is duplicated here rather
// than shared.
func rawFieldString(raw json.RawMessage, field string) (string, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}
	v, ok := m[field]
	if !ok {
		return "", fmt.Errorf("field %q not present", field)
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", err
	}
	return s, nil
}
