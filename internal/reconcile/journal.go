package reconcile

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jcatrysse/jira2redmine/internal/hashguard"
	"github.com/jcatrysse/jira2redmine/internal/rewrite"
	"github.com/jcatrysse/jira2redmine/internal/store"
)

type jiraJournalAuthor struct {
	AccountID string `json:"accountId"`
}

type jiraCommentFields struct {
	Author  jiraJournalAuthor `json:"author"`
	Body    json.RawMessage   `json:"body"`
	Created string            `json:"created"`
	Updated string            `json:"updated"`
}

type jiraChangelogItem struct {
	Field      string `json:"field"`
	From       string `json:"from"`
	To         string `json:"to"`
	FromString string `json:"fromString"`
	ToString   string `json:"toString"`
}

type jiraChangelogFields struct {
	Author  jiraJournalAuthor   `json:"author"`
	Created string              `json:"created"`
	Items   []jiraChangelogItem `json:"items"`
}

// RunJournals executes one Transform pass over every journal mapping row,
// per spec.md §4.6: a journal is ready for push once its owning issue has a
// Redmine id, and its notes are derived either by running ContentRewriter
// over a comment body or by formatting changelog items as bullet lines.
func (r *Reconciler) RunJournals(ctx context.Context, lookups rewrite.Lookups) (Summary, error) {
	rows, err := r.Store.FetchJournalsForReconcile(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("reconcile journals: %w", err)
	}

	var sum Summary
	for _, row := range rows {
		current := journalHashFields(row.Status, row.Notes.String, row.ProposedNotes.String,
			nullInt(row.ProposedAuthorID), row.ProposedCreatedOn.String, row.ProposedUpdatedOn.String,
			row.RedmineJournalID)
		if checkOverride(row.AutomationHash, current) {
			sum.Overrides++
			continue
		}
		if !transformableJournals(row.Status) {
			sum.Skipped++
			continue
		}

		upd, err := r.deriveJournalProposal(row, lookups)
		if err != nil {
			return sum, fmt.Errorf("reconcile journal %s: %w", row.JiraEntityID, err)
		}
		if err := r.Store.UpdateMapping(ctx, store.KindJournal, row.MappingID, upd); err != nil {
			return sum, fmt.Errorf("reconcile journal %s: %w", row.JiraEntityID, err)
		}
		sum.Updated++
	}
	return sum, nil
}

func (r *Reconciler) deriveJournalProposal(row store.JournalReconcileRow, lookups rewrite.Lookups) (store.MappingUpdate, error) {
	status := store.StatusPending
	if row.IssueRedmineID.Valid {
		status = store.StatusReadyForPush
	}

	var notes string
	var authorAccountID, created, updated string

	switch row.EntityType {
	case store.JournalComment:
		var fields jiraCommentFields
		if err := json.Unmarshal(row.RawPayload, &fields); err != nil {
			return store.MappingUpdate{}, fmt.Errorf("decode comment payload: %w", err)
		}
		authorAccountID, created, updated = fields.Author.AccountID, fields.Created, fields.Updated
		notes = convertCommentBody(fields.Body)

	case store.JournalChangelog:
		var fields jiraChangelogFields
		if err := json.Unmarshal(row.RawPayload, &fields); err != nil {
			return store.MappingUpdate{}, fmt.Errorf("decode changelog payload: %w", err)
		}
		authorAccountID, created, updated = fields.Author.AccountID, fields.Created, fields.Created
		if attachmentAnnouncement(fields.Items) {
			notes, status = attachmentAnnouncementNotes(fields.Items, lookups, status)
		} else {
			notes = formatChangelogBullets(fields.Items)
		}
	}

	var authorID any
	if id, ok := lookups.Users[authorAccountID]; ok {
		authorID = id
	}

	newHash := hashguard.Compute(journalHashFields(status, row.Notes.String, notes, authorID, created, updated, row.RedmineJournalID))

	return store.MappingUpdate{
		Status:         status,
		AutomationHash: newHash,
		ProposedFields: map[string]any{
			"proposed_notes":      notes,
			"proposed_author_id":  authorID,
			"proposed_created_on": nullString(created),
			"proposed_updated_on": nullString(updated),
		},
	}, nil
}

// journalHashFields covers every automated column on the row, per spec.md
// §3 Invariant 2: migration_status, notes, every proposed_* field, and
// redmine_journal_id, in the frozen declaration order from §6.
func journalHashFields(status store.Status, notes, proposedNotes string, authorID any, createdOn, updatedOn string, redmineJournalID sql.NullInt64) []hashguard.Field {
	return []hashguard.Field{
		hashguard.F("migration_status", string(status)),
		hashguard.F("notes", nullString(notes)),
		hashguard.F("proposed_notes", proposedNotes),
		hashguard.F("proposed_author_id", authorID),
		hashguard.F("proposed_created_on", nullString(createdOn)),
		hashguard.F("proposed_updated_on", nullString(updatedOn)),
		hashguard.F("redmine_journal_id", nullInt(redmineJournalID)),
	}
}

// convertCommentBody runs ContentRewriter over a Jira comment body, which
// may be ADF (Jira Cloud) or a rendered-HTML string.
func convertCommentBody(raw json.RawMessage) string {
	var html string
	if json.Unmarshal(raw, &html) == nil {
		return rewrite.Rewrite(rewrite.Input{HTML: html})
	}
	return rewrite.Rewrite(rewrite.Input{ADF: raw})
}

// attachmentAnnouncement reports whether every item in a changelog entry is
// an Attachment field change — i.e. the entry only announces attachments
// being added or removed, per spec.md §4.6/§4.8.
func attachmentAnnouncement(items []jiraChangelogItem) bool {
	if len(items) == 0 {
		return false
	}
	for _, it := range items {
		if it.Field != "Attachment" {
			return false
		}
	}
	return true
}

func attachmentAnnouncementNotes(items []jiraChangelogItem, lookups rewrite.Lookups, status store.Status) (string, store.Status) {
	var lines []string
	for _, it := range items {
		id := it.To
		if id == "" {
			id = it.From
		}
		if ref, ok := lookups.Attachments[id]; ok {
			lines = append(lines, "attachment:"+ref.UniqueFilename)
		}
	}
	if len(lines) == 0 {
		return "", status
	}
	return strings.Join(lines, "\n"), status
}

func formatChangelogBullets(items []jiraChangelogItem) string {
	var lines []string
	for _, it := range items {
		lines = append(lines, fmt.Sprintf("• %s: %s → %s", it.Field, it.FromString, it.ToString))
	}
	return strings.Join(lines, "\n")
}
