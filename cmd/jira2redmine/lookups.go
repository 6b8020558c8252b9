package main

import (
	"context"
	"fmt"

	"github.com/jcatrysse/jira2redmine/internal/attachments"
	"github.com/jcatrysse/jira2redmine/internal/rewrite"
)

// buildLookups assembles the rewrite.Lookups value the ContentRewriter
// needs to turn Jira-relative references into Redmine-relative ones,
// spec.md §4.5 rules 2-4, from the three store queries built for this
// purpose. It is re-run immediately before every journals/transform pass
// so newly-resolved attachments/users/issues are reflected.
func (a *App) buildLookups(ctx context.Context) (rewrite.Lookups, error) {
	attachRows, err := a.Store.FetchAttachmentLookupRows(ctx)
	if err != nil {
		return rewrite.Lookups{}, fmt.Errorf("load attachment lookups: %w", err)
	}
	attachmentRefs := make(map[string]rewrite.AttachmentRef, len(attachRows))
	for _, row := range attachRows {
		attachmentRefs[row.JiraAttachmentID] = rewrite.AttachmentRef{
			UniqueFilename: attachments.UniqueFilename(row.JiraAttachmentID, row.Filename),
			SharePointURL:  row.SharePointURL,
		}
	}

	users, err := a.Store.FetchUserRedmineIDs(ctx)
	if err != nil {
		return rewrite.Lookups{}, fmt.Errorf("load user lookups: %w", err)
	}

	issueIDs, err := a.Store.FetchIssueRedmineIDsByKey(ctx)
	if err != nil {
		return rewrite.Lookups{}, fmt.Errorf("load issue lookups: %w", err)
	}
	issues := make(map[string]rewrite.IssueRef, len(issueIDs))
	for key, id := range issueIDs {
		issues[key] = rewrite.IssueRef{RedmineIssueID: id}
	}

	return rewrite.Lookups{Attachments: attachmentRefs, Users: users, Issues: issues}, nil
}
