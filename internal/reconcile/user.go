package reconcile

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jcatrysse/jira2redmine/internal/hashguard"
	"github.com/jcatrysse/jira2redmine/internal/store"
)

type jiraUserFields struct {
	AccountID    string `json:"accountId"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
}

// RunUsers executes one Transform pass over every user mapping row, per
// spec.md §4.6.
func (r *Reconciler) RunUsers(ctx context.Context) (Summary, error) {
	rows, err := r.Store.FetchUsersForReconcile(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("reconcile users: %w", err)
	}
	snapshot, err := r.Store.FetchRedmineUserSnapshot(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("reconcile users: redmine snapshot: %w", err)
	}
	byLogin := map[string][]store.RedmineUserSnapshot{}
	byMail := map[string][]store.RedmineUserSnapshot{}
	for _, s := range snapshot {
		byLogin[strings.ToLower(s.Login)] = append(byLogin[strings.ToLower(s.Login)], s)
		byMail[strings.ToLower(s.Mail)] = append(byMail[strings.ToLower(s.Mail)], s)
	}

	var sum Summary
	for _, row := range rows {
		current := userHashFields(row.RedmineUserID, row.Status, row.MatchType.String, row.Notes.String,
			row.ProposedLogin.String, row.ProposedMail.String,
			row.ProposedFirstname.String, row.ProposedLastname.String, row.ProposedStatus.String)
		if checkOverride(row.AutomationHash, current) {
			sum.Overrides++
			continue
		}
		if !transformableProjectsUsers(row.Status) {
			sum.Skipped++
			continue
		}

		upd := r.deriveUserProposal(row, byLogin, byMail)
		if err := r.Store.UpdateMapping(ctx, store.KindUser, row.MappingID, upd); err != nil {
			return sum, fmt.Errorf("reconcile user %s: %w", row.JiraAccountID, err)
		}
		sum.Updated++
	}
	return sum, nil
}

func (r *Reconciler) deriveUserProposal(row store.UserReconcileRow, byLogin, byMail map[string][]store.RedmineUserSnapshot) store.MappingUpdate {
	var fields jiraUserFields
	json.Unmarshal(row.RawPayload, &fields)

	email := strings.ToLower(strings.TrimSpace(fields.EmailAddress))
	if email == "" {
		return manualUserUpdate(row, "missing Jira email address")
	}

	if matches := byLogin[email]; len(matches) == 1 {
		return matchedUserUpdate(row, "LOGIN", matches[0])
	} else if len(matches) > 1 {
		return manualUserUpdate(row, "multiple Redmine users share login "+email)
	}

	if matches := byMail[email]; len(matches) == 1 {
		return matchedUserUpdate(row, "MAIL", matches[0])
	} else if len(matches) > 1 {
		return manualUserUpdate(row, "multiple Redmine users share mail "+email)
	}

	first, last, ok := splitDisplayName(fields.DisplayName)
	if !ok {
		return manualUserUpdate(row, "could not split Jira display name into first/last")
	}

	status := r.Defaults.userStatus()
	newHash := hashguard.Compute(userHashFields(row.RedmineUserID, store.StatusReadyForCreation, "", row.Notes.String,
		email, email, first, last, status))
	return store.MappingUpdate{
		Status:         store.StatusReadyForCreation,
		AutomationHash: newHash,
		ProposedFields: map[string]any{
			"match_type":              nil,
			"proposed_redmine_login":  email,
			"proposed_redmine_mail":   email,
			"proposed_firstname":      first,
			"proposed_lastname":       last,
			"proposed_redmine_status": status,
		},
	}
}

func matchedUserUpdate(row store.UserReconcileRow, matchType string, snap store.RedmineUserSnapshot) store.MappingUpdate {
	redmineID := sql.NullInt64{Int64: snap.RedmineUserID, Valid: true}
	newHash := hashguard.Compute(userHashFields(redmineID, store.StatusMatchFound, matchType, row.Notes.String,
		snap.Login, snap.Mail, "", "", ""))
	return store.MappingUpdate{
		Status:         store.StatusMatchFound,
		RedmineID:      redmineID,
		AutomationHash: newHash,
		ProposedFields: map[string]any{
			"match_type":             matchType,
			"proposed_redmine_login": snap.Login,
			"proposed_redmine_mail":  snap.Mail,
		},
	}
}

func manualUserUpdate(row store.UserReconcileRow, reason string) store.MappingUpdate {
	return store.MappingUpdate{
		Status:         store.StatusManualReq,
		Notes:          sql.NullString{String: reason, Valid: true},
		AutomationHash: row.AutomationHash,
	}
}

// splitDisplayName implements spec.md §4.6: "Last, First" splits on the
// first comma; otherwise the first and last whitespace-separated tokens.
func splitDisplayName(name string) (first, last string, ok bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", false
	}
	if idx := strings.Index(name, ","); idx >= 0 {
		last = strings.TrimSpace(name[:idx])
		first = strings.TrimSpace(name[idx+1:])
		if last == "" || first == "" {
			return "", "", false
		}
		return first, last, true
	}

	parts := strings.Fields(name)
	if len(parts) < 2 {
		return "", "", false
	}
	return parts[0], parts[len(parts)-1], true
}

// userHashFields covers every automated column on the row, per spec.md §3
// Invariant 2: redmine_user_id, migration_status, notes, and every
// proposed_*/match_type field, in the frozen declaration order from §6.
func userHashFields(redmineID sql.NullInt64, migrationStatus store.Status, matchType, notes, login, mail, firstname, lastname, status string) []hashguard.Field {
	return []hashguard.Field{
		hashguard.F("redmine_user_id", nullInt(redmineID)),
		hashguard.F("migration_status", string(migrationStatus)),
		hashguard.F("match_type", matchType),
		hashguard.F("notes", nullString(notes)),
		hashguard.F("login", login),
		hashguard.F("mail", mail),
		hashguard.F("firstname", firstname),
		hashguard.F("lastname", lastname),
		hashguard.F("status", status),
	}
}
