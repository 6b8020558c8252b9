package reconcile

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jcatrysse/jira2redmine/internal/hashguard"
	"github.com/jcatrysse/jira2redmine/internal/store"
)

type jiraProjectFields struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPrivate   bool   `json:"isPrivate"`
}

// RunProjects executes one Transform pass over every project mapping row,
// per spec.md §4.6.
func (r *Reconciler) RunProjects(ctx context.Context) (Summary, error) {
	rows, err := r.Store.FetchProjectsForReconcile(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("reconcile projects: %w", err)
	}
	snapshot, err := r.Store.FetchRedmineProjectSnapshot(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("reconcile projects: redmine snapshot: %w", err)
	}
	byIdentifier := make(map[string]store.RedmineProjectSnapshot, len(snapshot))
	for _, s := range snapshot {
		byIdentifier[s.Identifier] = s
	}

	var sum Summary
	for _, row := range rows {
		current := projectHashFields(row.RedmineProjectID, row.Status, row.Notes.String,
			row.ProposedIdentifier.String, row.ProposedName.String,
			row.ProposedDescription.String, row.ProposedIsPublic.Bool)
		if checkOverride(row.AutomationHash, current) {
			sum.Overrides++
			continue
		}
		if !transformableProjectsUsers(row.Status) {
			sum.Skipped++
			continue
		}

		upd, changed := r.deriveProjectProposal(row, byIdentifier)
		if !changed {
			sum.Skipped++
			continue
		}
		if err := r.Store.UpdateMapping(ctx, store.KindProject, row.MappingID, upd); err != nil {
			return sum, fmt.Errorf("reconcile project %s: %w", row.JiraProjectID, err)
		}
		sum.Updated++
	}
	return sum, nil
}

func (r *Reconciler) deriveProjectProposal(row store.ProjectReconcileRow, byIdentifier map[string]store.RedmineProjectSnapshot) (store.MappingUpdate, bool) {
	var fields jiraProjectFields
	json.Unmarshal(row.RawPayload, &fields)

	if fields.Key == "" {
		return manualProjectUpdate(row, "missing Jira project key"), true
	}

	identifier := deriveProjectIdentifier(fields.Key)
	if identifier == "" {
		return manualProjectUpdate(row, "derived identifier is empty"), true
	}

	var status store.Status
	name, description := fields.Name, fields.Description
	isPublic := !fields.IsPrivate
	var redmineID sql.NullInt64

	if snap, ok := byIdentifier[identifier]; ok {
		status = store.StatusMatchFound
		name, description, isPublic = snap.Name, snap.Description, snap.IsPublic
		redmineID = sql.NullInt64{Int64: snap.RedmineProjectID, Valid: true}
	} else {
		status = store.StatusReadyForCreation
	}

	effectiveRedmineID := row.RedmineProjectID
	if redmineID.Valid {
		effectiveRedmineID = redmineID
	}
	newHash := hashguard.Compute(projectHashFields(effectiveRedmineID, status, row.Notes.String,
		identifier, name, description, isPublic))
	upd := store.MappingUpdate{
		Status:         status,
		RedmineID:      redmineID,
		AutomationHash: newHash,
		ProposedFields: map[string]any{
			"proposed_identifier":  identifier,
			"proposed_name":        nullString(name),
			"proposed_description": nullString(description),
			"proposed_is_public":   boolToInt(isPublic),
		},
	}
	return upd, true
}

func manualProjectUpdate(row store.ProjectReconcileRow, reason string) store.MappingUpdate {
	return store.MappingUpdate{
		Status:         store.StatusManualReq,
		Notes:          sql.NullString{String: reason, Valid: true},
		AutomationHash: row.AutomationHash,
	}
}

// projectHashFields covers every automated column on the row, per spec.md
// §3 Invariant 2: redmine_project_id, migration_status, notes, and every
// proposed_* field, in the frozen declaration order from §6.
func projectHashFields(redmineID sql.NullInt64, status store.Status, notes, identifier, name, description string, isPublic bool) []hashguard.Field {
	return []hashguard.Field{
		hashguard.F("redmine_project_id", nullInt(redmineID)),
		hashguard.F("migration_status", string(status)),
		hashguard.F("notes", nullString(notes)),
		hashguard.F("identifier", identifier),
		hashguard.F("name", name),
		hashguard.F("description", description),
		hashguard.F("is_public", isPublic),
	}
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
