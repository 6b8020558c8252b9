package reconcile

import (
	"context"
	"fmt"

	"github.com/jcatrysse/jira2redmine/internal/store"
)

// RunWatchers executes one Transform pass over every watcher mapping row,
// per spec.md §4.6: watchers are a pure join with no automation_hash
// protection, so a row is ready for push once both its issue and its user
// have Redmine ids, and PENDING_ANALYSIS with an itemised note otherwise.
func (r *Reconciler) RunWatchers(ctx context.Context) (Summary, error) {
	rows, err := r.Store.FetchWatchersForReconcile(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("reconcile watchers: %w", err)
	}

	var sum Summary
	for _, row := range rows {
		status, note := watcherClassify(row)
		if status == row.Status && note == row.Notes.String {
			sum.Skipped++
			continue
		}
		if err := r.Store.UpdateWatcherStatus(ctx, row.MappingID, status, note); err != nil {
			return sum, fmt.Errorf("reconcile watcher %s/%s: %w", row.JiraIssueID, row.JiraAccountID, err)
		}
		sum.Updated++
	}
	return sum, nil
}

func watcherClassify(row store.WatcherReconcileRow) (store.Status, string) {
	if row.IssueRedmineID.Valid && row.UserRedmineID.Valid {
		return store.StatusReadyForPush, ""
	}
	switch {
	case !row.IssueRedmineID.Valid && !row.UserRedmineID.Valid:
		return store.StatusPendingAnalysis, "issue and user not yet mapped"
	case !row.IssueRedmineID.Valid:
		return store.StatusPendingAnalysis, "issue not yet mapped"
	default:
		return store.StatusPendingAnalysis, "user not yet mapped"
	}
}
