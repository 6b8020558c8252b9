package store

import (
	"context"
	"encoding/json"
)

// ProjectForIssueExtraction is one project mapping row JiraExtractor needs
// to drive ExtractIssues: the mapping id MarkIssuesExtracted writes to, and
// the staged project payload ExtractIssues reads the JQL project key from.
type ProjectForIssueExtraction struct {
	MappingID  int64
	RawPayload json.RawMessage
}

// FetchProjectsForIssueExtraction returns every staged project alongside its
// mapping row, for a full issues/jira phase run across every project.
func (s *Store) FetchProjectsForIssueExtraction(ctx context.Context) ([]ProjectForIssueExtraction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mp.mapping_id, st.raw_payload
		FROM migration_mapping_projects mp
		JOIN staging_jira_projects st ON st.jira_project_id = mp.jira_project_id`)
	if err != nil {
		return nil, wrapDBError("fetch projects for issue extraction", err)
	}
	defer rows.Close()

	var out []ProjectForIssueExtraction
	for rows.Next() {
		var p ProjectForIssueExtraction
		if err := rows.Scan(&p.MappingID, &p.RawPayload); err != nil {
			return nil, wrapDBError("scan project for issue extraction", err)
		}
		out = append(out, p)
	}
	return out, wrapDBError("iterate projects for issue extraction", rows.Err())
}

// StagedIssue is one row of staging_jira_issues, for ExtractAttachments
// which derives attachment staging rows from each issue's own
// fields.attachment array rather than a separate Jira endpoint.
type StagedIssue struct {
	JiraIssueID string
	RawPayload  json.RawMessage
}

// FetchStagedIssues returns every staged issue's id and raw payload.
func (s *Store) FetchStagedIssues(ctx context.Context) ([]StagedIssue, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT jira_issue_id, raw_payload FROM staging_jira_issues`)
	if err != nil {
		return nil, wrapDBError("fetch staged issues", err)
	}
	defer rows.Close()

	var out []StagedIssue
	for rows.Next() {
		var r StagedIssue
		if err := rows.Scan(&r.JiraIssueID, &r.RawPayload); err != nil {
			return nil, wrapDBError("scan staged issue", err)
		}
		out = append(out, r)
	}
	return out, wrapDBError("iterate staged issues", rows.Err())
}
