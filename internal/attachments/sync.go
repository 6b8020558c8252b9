package attachments

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jcatrysse/jira2redmine/internal/store"
)

type jiraIssueCreatedEnvelope struct {
	Fields struct {
		Created string `json:"created"`
	} `json:"fields"`
}

// Sync runs step 1 of the AttachmentPipeline, spec.md §4.8: insert any
// mapping rows missing for newly-staged attachments, then recompute
// jira_filesize and association_hint for every row from the current
// staging payload.
func (p *Pipeline) Sync(ctx context.Context) (Summary, error) {
	inserted, err := p.Store.SyncMapping(ctx, store.KindAttachment)
	if err != nil {
		return Summary{}, fmt.Errorf("sync attachment mappings: %w", err)
	}

	rows, err := p.Store.FetchAttachmentsForSync(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("fetch attachments for sync: %w", err)
	}

	sum := Summary{Updated: int(inserted)}
	for _, row := range rows {
		att, err := decodeAttachmentPayload(row.RawPayload)
		if err != nil {
			return sum, fmt.Errorf("attachment %s: %w", row.JiraAttachmentID, err)
		}
		var issue jiraIssueCreatedEnvelope
		if err := json.Unmarshal(row.IssueRawPayload, &issue); err != nil {
			return sum, fmt.Errorf("attachment %s: decode owning issue: %w", row.JiraAttachmentID, err)
		}

		hint := associationHint(att.Created, issue.Fields.Created)
		if err := p.Store.UpdateAttachmentSync(ctx, row.MappingID, att.Size, hint); err != nil {
			return sum, fmt.Errorf("attachment %s: %w", row.JiraAttachmentID, err)
		}
		sum.Updated++
	}
	return sum, nil
}

// associationHint mirrors internal/reconcile's derivation: an attachment
// created within 60 seconds of its issue is treated as attached at issue
// creation time (ISSUE); otherwise it's attached later, via a journal entry
// (JOURNAL). Parse failures default to JOURNAL.
func associationHint(attachmentCreated, issueCreated string) store.AssociationHint {
	at, err1 := time.Parse("2006-01-02T15:04:05.000-0700", attachmentCreated)
	it, err2 := time.Parse("2006-01-02T15:04:05.000-0700", issueCreated)
	if err1 != nil || err2 != nil {
		return store.HintJournal
	}
	diff := at.Sub(it)
	if diff < 0 {
		diff = -diff
	}
	if diff <= 60*time.Second {
		return store.HintIssue
	}
	return store.HintJournal
}
