package reconcile

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jcatrysse/jira2redmine/internal/hashguard"
	"github.com/jcatrysse/jira2redmine/internal/rewrite"
	"github.com/jcatrysse/jira2redmine/internal/store"
)

type jiraIssueFields struct {
	Summary     string          `json:"summary"`
	Description json.RawMessage `json:"description"`
	Project     struct {
		ID string `json:"id"`
	} `json:"project"`
	IssueType struct {
		ID string `json:"id"`
	} `json:"issuetype"`
	Status struct {
		ID             string `json:"id"`
		StatusCategory struct {
			Key string `json:"key"`
		} `json:"statusCategory"`
	} `json:"status"`
	Priority struct {
		ID string `json:"id"`
	} `json:"priority"`
	Reporter *struct {
		AccountID string `json:"accountId"`
	} `json:"reporter"`
	Assignee *struct {
		AccountID string `json:"accountId"`
	} `json:"assignee"`
	Parent *struct {
		ID string `json:"id"`
	} `json:"parent"`
	DueDate              string          `json:"duedate"`
	Created              string          `json:"created"`
	TimeOriginalEstimate *float64        `json:"timeoriginalestimate"`
	Security             json.RawMessage `json:"security"`
}

type jiraIssueEnvelope struct {
	Key    string          `json:"key"`
	Fields jiraIssueFields `json:"fields"`
}

// RunIssues executes one Transform pass over every issue mapping row, per
// spec.md §4.6.
func (r *Reconciler) RunIssues(ctx context.Context) (Summary, error) {
	rows, err := r.Store.FetchIssuesForReconcile(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("reconcile issues: %w", err)
	}

	var sum Summary
	for _, row := range rows {
		var env jiraIssueEnvelope
		json.Unmarshal(row.RawPayload, &env)

		current := issueProposalHashFields(row.RedmineIssueID, row.Status, row.Notes.String,
			row.ProposedProjectID.Int64, row.ProposedTrackerID.Int64,
			row.ProposedStatusID.Int64, row.ProposedPriorityID.Int64, row.ProposedAuthorID.Int64,
			row.ProposedAssignedToID, row.ProposedParentIssueID, row.ProposedSubject.String,
			row.ProposedDescription.String, row.ProposedStartDate.String, row.ProposedDueDate.String,
			int(row.ProposedDoneRatio.Int64), row.ProposedEstimatedHours, row.ProposedIsPrivate.Int64 != 0)
		if checkOverride(row.AutomationHash, current) {
			sum.Overrides++
			continue
		}
		if !transformableIssues(row.Status) {
			sum.Skipped++
			continue
		}

		if err := r.Store.UpdateIssueJiraFields(ctx, row.MappingID, jiraFieldsFrom(env)); err != nil {
			return sum, fmt.Errorf("reconcile issue %s: backfill jira fields: %w", row.JiraIssueID, err)
		}

		upd := r.deriveIssueProposal(ctx, row, env)
		if err := r.Store.UpdateMapping(ctx, store.KindIssue, row.MappingID, upd); err != nil {
			return sum, fmt.Errorf("reconcile issue %s: %w", row.JiraIssueID, err)
		}
		sum.Updated++
	}
	return sum, nil
}

func jiraFieldsFrom(env jiraIssueEnvelope) store.IssueJiraFields {
	f := env.Fields
	fields := store.IssueJiraFields{
		IssueKey:    env.Key,
		ProjectID:   f.Project.ID,
		IssueTypeID: f.IssueType.ID,
		StatusID:    f.Status.ID,
		PriorityID:  f.Priority.ID,
	}
	if f.Reporter != nil {
		fields.ReporterAccountID = f.Reporter.AccountID
	}
	if f.Assignee != nil {
		fields.AssigneeAccountID = f.Assignee.AccountID
	}
	if f.Parent != nil {
		fields.ParentIssueID = f.Parent.ID
	}
	return fields
}

func (r *Reconciler) deriveIssueProposal(ctx context.Context, row store.IssueReconcileRow, env jiraIssueEnvelope) store.MappingUpdate {
	f := env.Fields
	var missing []string

	projectID, ok := r.resolveOrDefault(f.Project.ID, r.Resolver.ResolveProject, r.Defaults.ProjectID)
	if !ok {
		missing = append(missing, "project")
	}
	trackerID, ok := r.resolveOrDefault(f.IssueType.ID, r.Resolver.ResolveTracker, r.Defaults.TrackerID)
	if !ok {
		missing = append(missing, "tracker")
	}
	statusID, ok := r.resolveOrDefault(f.Status.ID, r.Resolver.ResolveStatus, r.Defaults.StatusID)
	if !ok {
		missing = append(missing, "status")
	}
	priorityID, ok := r.resolveOrDefault(f.Priority.ID, r.Resolver.ResolvePriority, r.Defaults.PriorityID)
	if !ok {
		missing = append(missing, "priority")
	}

	var authorID int64
	if f.Reporter != nil {
		id, resolved := r.resolveOrDefault(f.Reporter.AccountID, r.Resolver.ResolveUser, r.Defaults.AuthorID)
		authorID = id
		if !resolved {
			missing = append(missing, "author")
		}
	} else if r.Defaults.AuthorID != 0 {
		authorID = r.Defaults.AuthorID
	} else {
		missing = append(missing, "author")
	}

	var assignedToID sql.NullInt64
	if f.Assignee != nil {
		if id, ok := r.Resolver.ResolveUser(f.Assignee.AccountID); ok {
			assignedToID = sql.NullInt64{Int64: id, Valid: true}
		} else if r.Defaults.AssignedToID != 0 {
			assignedToID = sql.NullInt64{Int64: r.Defaults.AssignedToID, Valid: true}
		}
	}

	var parentID sql.NullInt64
	if f.Parent != nil {
		if id, ok := r.Resolver.ResolveParentIssueID(ctx, f.Parent.ID); ok {
			parentID = sql.NullInt64{Int64: id, Valid: true}
		}
	}

	if len(missing) > 0 {
		return manualIssueUpdate(row, "unresolved dependencies: "+strings.Join(missing, ", "))
	}

	subject := f.Summary
	if len(subject) > 255 {
		subject = subject[:255]
	}

	description := rewrite.Rewrite(rewrite.Input{ADF: f.Description})

	startDate := issueDateOnly(f.Created)
	doneRatio := 0
	if f.Status.StatusCategory.Key == "done" {
		doneRatio = 100
	}
	var estimatedHours sql.NullFloat64
	if f.TimeOriginalEstimate != nil {
		estimatedHours = sql.NullFloat64{Float64: roundTo2(*f.TimeOriginalEstimate / 3600), Valid: true}
	}
	isPrivate := len(f.Security) > 0 && string(f.Security) != "null"
	if len(f.Security) == 0 {
		isPrivate = r.Defaults.IsPrivate
	}

	newHash := hashguard.Compute(issueProposalHashFields(row.RedmineIssueID, store.StatusReadyForCreation, row.Notes.String,
		projectID, trackerID, statusID, priorityID, authorID,
		assignedToID, parentID, subject, description, startDate, f.DueDate, doneRatio, estimatedHours, isPrivate))

	return store.MappingUpdate{
		Status:         store.StatusReadyForCreation,
		AutomationHash: newHash,
		ProposedFields: map[string]any{
			"proposed_project_id":      projectID,
			"proposed_tracker_id":      trackerID,
			"proposed_status_id":       statusID,
			"proposed_priority_id":     priorityID,
			"proposed_author_id":       authorID,
			"proposed_assigned_to_id":  nullInt(assignedToID),
			"proposed_parent_issue_id": nullInt(parentID),
			"proposed_subject":         subject,
			"proposed_description":     nullString(description),
			"proposed_start_date":      nullString(startDate),
			"proposed_due_date":        nullString(f.DueDate),
			"proposed_done_ratio":      doneRatio,
			"proposed_estimated_hours": nullFloat(estimatedHours),
			"proposed_is_private":      boolToInt(isPrivate),
		},
	}
}

// resolveOrDefault resolves jiraID via resolve; if unresolved, falls back to
// def when def is non-zero (an operator-configured default), per spec.md
// §4.6.
func (r *Reconciler) resolveOrDefault(jiraID string, resolve func(string) (int64, bool), def int64) (int64, bool) {
	if jiraID != "" {
		if id, ok := resolve(jiraID); ok {
			return id, true
		}
	}
	if def != 0 {
		return def, true
	}
	return 0, false
}

func manualIssueUpdate(row store.IssueReconcileRow, reason string) store.MappingUpdate {
	return store.MappingUpdate{
		Status:         store.StatusManualReq,
		Notes:          sql.NullString{String: reason, Valid: true},
		AutomationHash: row.AutomationHash,
	}
}

func issueDateOnly(created string) string {
	if created == "" {
		return ""
	}
	t, err := time.Parse("2006-01-02T15:04:05.000-0700", created)
	if err != nil {
		if len(created) >= 10 {
			return created[:10]
		}
		return ""
	}
	return t.Format("2006-01-02")
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}

func nullInt(n sql.NullInt64) any {
	if !n.Valid {
		return nil
	}
	return n.Int64
}

func nullFloat(n sql.NullFloat64) any {
	if !n.Valid {
		return nil
	}
	return n.Float64
}

// issueProposalHashFields covers every automated column on the row, per
// spec.md §3 Invariant 2: redmine_issue_id, every proposed_* field,
// migration_status, and notes, in the frozen declaration order from §6.
func issueProposalHashFields(redmineIssueID sql.NullInt64, status store.Status, notes string,
	projectID, trackerID, statusID, priorityID, authorID int64, assignedToID, parentID sql.NullInt64,
	subject, description, startDate, dueDate string, doneRatio int, estimatedHours sql.NullFloat64, isPrivate bool) []hashguard.Field {
	return []hashguard.Field{
		hashguard.F("redmine_issue_id", nullInt(redmineIssueID)),
		hashguard.F("project_id", projectID),
		hashguard.F("tracker_id", trackerID),
		hashguard.F("status_id", statusID),
		hashguard.F("priority_id", priorityID),
		hashguard.F("author_id", authorID),
		hashguard.F("assigned_to_id", nullInt(assignedToID)),
		hashguard.F("parent_issue_id", nullInt(parentID)),
		hashguard.F("subject", subject),
		hashguard.F("description", description),
		hashguard.F("start_date", startDate),
		hashguard.F("due_date", dueDate),
		hashguard.F("done_ratio", doneRatio),
		hashguard.F("estimated_hours", nullFloat(estimatedHours)),
		hashguard.F("is_private", isPrivate),
		hashguard.F("migration_status", string(status)),
		hashguard.F("notes", nullString(notes)),
	}
}
