package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jcatrysse/jira2redmine/internal/store"
)

type jiraAttachmentFields struct {
	Created string `json:"created"`
}

type jiraIssueCreatedEnvelope struct {
	Fields struct {
		Created string `json:"created"`
	} `json:"fields"`
}

// RunAttachments executes one Transform pass over every attachment mapping
// row, per spec.md §4.6: a FAILED row is normalised back to
// PENDING_DOWNLOAD with its transient download/upload state cleared, and
// association_hint is refreshed by comparing the attachment's `created`
// against its owning issue's `created`.
func (r *Reconciler) RunAttachments(ctx context.Context) (Summary, error) {
	rows, err := r.Store.FetchAttachmentsForReconcile(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("reconcile attachments: %w", err)
	}

	var sum Summary
	for _, row := range rows {
		if !transformableAttachments(row.Status) {
			sum.Skipped++
			continue
		}

		upd := attachmentResetUpdate(row)
		if err := r.Store.UpdateMapping(ctx, store.KindAttachment, row.MappingID, upd); err != nil {
			return sum, fmt.Errorf("reconcile attachment %s: %w", row.JiraAttachmentID, err)
		}
		sum.Updated++
	}
	return sum, nil
}

func attachmentResetUpdate(row store.AttachmentReconcileRow) store.MappingUpdate {
	var att jiraAttachmentFields
	var issue jiraIssueCreatedEnvelope
	json.Unmarshal(row.RawPayload, &att)
	json.Unmarshal(row.IssueRawPayload, &issue)

	return store.MappingUpdate{
		Status:         store.StatusPendingDownload,
		AutomationHash: row.AutomationHash,
		ProposedFields: map[string]any{
			"association_hint":     string(associationHint(att.Created, issue.Fields.Created)),
			"local_filepath":       nil,
			"redmine_upload_token": nil,
			"notes":                nil,
		},
	}
}

// associationHint implements spec.md §4.6/§8: an attachment created within
// 60 seconds of its issue is treated as attached at issue creation time
// (ISSUE); otherwise it's attached later, via a journal entry (JOURNAL).
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
