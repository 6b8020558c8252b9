package redmine

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jcatrysse/jira2redmine/internal/store"
)

// Pusher implements the Pusher component, spec.md §4.9: it consumes
// mapping rows the Reconciler left in READY_FOR_CREATION/READY_FOR_PUSH
// and performs the corresponding Redmine writes, one row at a time so
// progress commits individually and is never lost on a later failure.
type Pusher struct {
	Client *Client
	Store  *store.Store
	now    func() time.Time
}

// NewPusher constructs a Pusher.
func NewPusher(client *Client, st *store.Store) *Pusher {
	return &Pusher{Client: client, Store: st, now: time.Now}
}

// Summary tallies one push pass.
type Summary struct {
	Pushed int
	Failed int
}

// PushProjects pushes every READY_FOR_CREATION project row.
func (p *Pusher) PushProjects(ctx context.Context) (Summary, error) {
	rows, err := p.Store.FetchProjectsForPush(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("push projects: %w", err)
	}

	var sum Summary
	for _, r := range rows {
		id, err := p.Client.CreateProject(ctx, ProjectPayload{
			Name:        r.Name,
			Identifier:  r.Identifier,
			Description: r.Description,
			IsPublic:    r.IsPublic,
		})
		if err != nil {
			sum.Failed++
			p.markFailed(ctx, store.KindProject, r.MappingID, store.StatusCreationFailed, r.AutomationHash, err)
			continue
		}
		sum.Pushed++
		p.markSuccess(ctx, store.KindProject, r.MappingID, store.StatusCreationSuccess, r.AutomationHash, id)
	}
	return sum, nil
}

// PushUsers pushes every READY_FOR_CREATION user row.
func (p *Pusher) PushUsers(ctx context.Context) (Summary, error) {
	rows, err := p.Store.FetchUsersForPush(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("push users: %w", err)
	}

	var sum Summary
	for _, r := range rows {
		status := 3
		if strings.EqualFold(r.Status, "ACTIVE") {
			status = 1
		}
		id, err := p.Client.CreateUser(ctx, UserPayload{
			Login:            r.Login,
			Firstname:        r.Firstname,
			Lastname:         r.Lastname,
			Mail:             r.Mail,
			GeneratePassword: true,
			MustChangePasswd: true,
			Status:           status,
		})
		if err != nil {
			sum.Failed++
			p.markFailed(ctx, store.KindUser, r.MappingID, store.StatusCreationFailed, r.AutomationHash, err)
			continue
		}
		sum.Pushed++
		p.markSuccess(ctx, store.KindUser, r.MappingID, store.StatusCreationSuccess, r.AutomationHash, id)
	}
	return sum, nil
}

// PushIssues pushes every READY_FOR_CREATION issue row, attaching any
// PENDING_ASSOCIATION uploads hinted at this issue, then runs the
// attachment-association step (§4.8 step 4) against the created issue.
func (p *Pusher) PushIssues(ctx context.Context) (Summary, error) {
	rows, err := p.Store.FetchIssuesForPush(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("push issues: %w", err)
	}

	var sum Summary
	for _, r := range rows {
		uploads, err := p.Store.FetchAttachmentsPendingAssociation(ctx, r.JiraIssueID, store.HintIssue)
		if err != nil {
			sum.Failed++
			p.markFailed(ctx, store.KindIssue, r.MappingID, store.StatusCreationFailed, r.AutomationHash, err)
			continue
		}

		payload := IssuePayload{
			ProjectID:      r.ProjectID,
			TrackerID:      r.TrackerID,
			StatusID:       r.StatusID.Int64,
			PriorityID:     r.PriorityID.Int64,
			AuthorID:       r.AuthorID.Int64,
			AssignedToID:   r.AssignedToID.Int64,
			ParentIssueID:  r.ParentIssueID.Int64,
			Subject:        r.Subject,
			Description:    r.Description,
			StartDate:      r.StartDate.String,
			DueDate:        r.DueDate.String,
			DoneRatio:      r.DoneRatio,
			EstimatedHours: r.EstimatedHours.Float64,
			IsPrivate:      r.IsPrivate,
		}
		for _, u := range uploads {
			payload.Uploads = append(payload.Uploads, Upload{Token: u.UploadToken})
		}

		redmineID, err := p.Client.CreateIssue(ctx, payload)
		if err != nil {
			sum.Failed++
			p.markFailed(ctx, store.KindIssue, r.MappingID, store.StatusCreationFailed, r.AutomationHash, err)
			continue
		}
		sum.Pushed++
		p.markSuccess(ctx, store.KindIssue, r.MappingID, store.StatusCreationSuccess, r.AutomationHash, redmineID)

		if len(uploads) > 0 {
			p.associateAttachments(ctx, redmineID, uploads)
		}
	}
	return sum, nil
}

// associateAttachments implements spec.md §4.8 step 4: after an issue (or
// journal) push returns the updated issue, match PENDING_ASSOCIATION rows
// against the issue's attachment list by (filename, filesize) and record
// the resolved redmine_attachment_id.
func (p *Pusher) associateAttachments(ctx context.Context, redmineIssueID int64, pending []store.AttachmentForAssociation) {
	detail, err := p.Client.GetIssueDetail(ctx, redmineIssueID, "attachments")
	if err != nil {
		return
	}

	byKey := make(map[string]IssueDetailAttachment, len(detail.Issue.Attachments))
	for _, a := range detail.Issue.Attachments {
		byKey[fmt.Sprintf("%s:%d", a.Filename, a.Filesize)] = a
	}

	for _, row := range pending {
		key := fmt.Sprintf("%s:%d", filepath.Base(row.LocalFilepath), row.JiraFilesize)
		if match, ok := byKey[key]; ok {
			_ = p.Store.MarkAttachmentAssociated(ctx, row.MappingID, match.ID, redmineIssueID)
			continue
		}
		_ = p.Store.MarkAttachmentAssociationFailed(ctx, row.MappingID,
			fmt.Sprintf("no matching (filename,filesize) on issue %d attachment list", redmineIssueID))
	}
}

// PushJournals pushes every READY_FOR_PUSH journal row whose owning issue
// has a redmine_issue_id, spec.md §4.9.
func (p *Pusher) PushJournals(ctx context.Context) (Summary, error) {
	rows, err := p.Store.FetchJournalsForPush(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("push journals: %w", err)
	}

	useExtended := p.Client.HasExtendedAPI()
	var sum Summary
	for _, r := range rows {
		notes := r.Notes
		if !useExtended {
			notes = fmt.Sprintf("%s\n<!-- MIGRATE:%d -->", notes, r.MappingID)
		}

		payload := IssueUpdatePayload{Notes: notes}
		if useExtended {
			payload.Journal = &JournalField{
				UserID:    r.AuthorID.Int64,
				CreatedOn: formatNullTime(r.CreatedOn),
				UpdatedOn: formatNullTime(r.UpdatedOn),
			}
		}

		if err := p.Client.UpdateIssueJournal(ctx, r.RedmineIssueID, payload, useExtended); err != nil {
			sum.Failed++
			_ = p.Store.MarkJournalFailed(ctx, r.MappingID, describePushError(err))
			continue
		}

		journalID, err := p.locateJournal(ctx, r.RedmineIssueID, r.MappingID, r.CreatedOn)
		if err != nil {
			sum.Failed++
			_ = p.Store.MarkJournalFailed(ctx, r.MappingID, err.Error())
			continue
		}
		sum.Pushed++
		_ = p.Store.MarkJournalPushed(ctx, r.MappingID, journalID, "")
	}
	return sum, nil
}

// locateJournal re-fetches the issue's journals and finds the one just
// written, per spec.md §4.9: substring-match the hidden MIGRATE token,
// else the single journal within ±30s of the Jira timestamp, else the
// journal with the largest id.
func (p *Pusher) locateJournal(ctx context.Context, redmineIssueID, mappingID int64, jiraCreatedOn sql.NullTime) (int64, error) {
	detail, err := p.Client.GetIssueDetail(ctx, redmineIssueID, "journals")
	if err != nil {
		return 0, err
	}
	if len(detail.Issue.Journals) == 0 {
		return 0, fmt.Errorf("redmine: no journals on issue %d after push", redmineIssueID)
	}

	token := fmt.Sprintf("<!-- MIGRATE:%d -->", mappingID)
	for _, j := range detail.Issue.Journals {
		if strings.Contains(j.Notes, token) {
			return j.ID, nil
		}
	}

	if jiraCreatedOn.Valid {
		var best *IssueDetailJournal
		var bestDelta time.Duration
		for i := range detail.Issue.Journals {
			j := &detail.Issue.Journals[i]
			ts, err := time.Parse(time.RFC3339, j.CreatedOn)
			if err != nil {
				continue
			}
			delta := ts.Sub(jiraCreatedOn.Time)
			if delta < 0 {
				delta = -delta
			}
			if delta <= 30*time.Second && (best == nil || delta < bestDelta) {
				best, bestDelta = j, delta
			}
		}
		if best != nil {
			return best.ID, nil
		}
	}

	largest := detail.Issue.Journals[0]
	for _, j := range detail.Issue.Journals[1:] {
		if j.ID > largest.ID {
			largest = j
		}
	}
	return largest.ID, nil
}

// PushWatchers pushes every READY_FOR_PUSH watcher row.
func (p *Pusher) PushWatchers(ctx context.Context) (Summary, error) {
	rows, err := p.Store.FetchWatchersForPush(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("push watchers: %w", err)
	}

	var sum Summary
	for _, r := range rows {
		err := p.Client.AddWatcher(ctx, r.RedmineIssueID, r.RedmineUserID)
		if err != nil {
			sum.Failed++
			_ = p.Store.MarkWatcherPushed(ctx, r.MappingID, false, describePushError(err))
			continue
		}
		sum.Pushed++
		_ = p.Store.MarkWatcherPushed(ctx, r.MappingID, true, "")
	}
	return sum, nil
}

// PushSubtasks attaches resolved parents onto child issues whose Redmine
// record doesn't yet reflect them, spec.md §4.9.
func (p *Pusher) PushSubtasks(ctx context.Context) (Summary, error) {
	rows, err := p.Store.FetchSubtasksForPush(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("push subtasks: %w", err)
	}

	var sum Summary
	for _, r := range rows {
		if err := p.Client.SetParentIssue(ctx, r.ChildRedmineIssueID, r.ParentRedmineIssueID); err != nil {
			sum.Failed++
			continue
		}
		sum.Pushed++
		_ = p.Store.MarkSubtaskPushed(ctx, r.MappingID, r.ParentRedmineIssueID)
	}
	return sum, nil
}

func (p *Pusher) markSuccess(ctx context.Context, kind store.EntityKind, mappingID int64, status store.Status, hash string, redmineID int64) {
	_ = p.Store.UpdateMapping(ctx, kind, mappingID, store.MappingUpdate{
		Status:         status,
		AutomationHash: hash,
		RedmineID:      sql.NullInt64{Int64: redmineID, Valid: true},
	})
}

func (p *Pusher) markFailed(ctx context.Context, kind store.EntityKind, mappingID int64, status store.Status, hash string, err error) {
	_ = p.Store.UpdateMapping(ctx, kind, mappingID, store.MappingUpdate{
		Status:         status,
		AutomationHash: hash,
		Notes:          sql.NullString{String: describePushError(err), Valid: true},
	})
}

func formatNullTime(t sql.NullTime) string {
	if !t.Valid {
		return ""
	}
	return t.Time.UTC().Format(time.RFC3339)
}
