package reconcile

import (
	"context"
	"testing"
	"time"
)

func TestRunWatchersClassifiesByMappingAvailability(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	now := time.Now()

	if _, err := st.DB().Exec(`
		INSERT INTO migration_mapping_watchers (jira_issue_id, jira_account_id, migration_status, last_updated_at) VALUES
		('ISSUE-1', 'U1', 'PENDING_ANALYSIS', ?),
		('ISSUE-2', 'U2', 'PENDING_ANALYSIS', ?)`, now, now); err != nil {
		t.Fatalf("seed mapping watchers: %v", err)
	}
	if _, err := st.DB().Exec(`
		INSERT INTO migration_mapping_issues (jira_issue_id, migration_status, redmine_issue_id, last_updated_at)
		VALUES ('ISSUE-1', 'CREATION_SUCCESS', 100, ?), ('ISSUE-2', 'PENDING_ANALYSIS', NULL, ?)`, now, now); err != nil {
		t.Fatalf("seed mapping issues: %v", err)
	}
	if _, err := st.DB().Exec(`
		INSERT INTO migration_mapping_users (jira_account_id, migration_status, redmine_user_id, last_updated_at)
		VALUES ('U1', 'CREATION_SUCCESS', 50, ?), ('U2', 'PENDING_ANALYSIS', NULL, ?)`, now, now); err != nil {
		t.Fatalf("seed mapping users: %v", err)
	}

	r := New(st, nil, Defaults{})
	sum, err := r.RunWatchers(ctx)
	if err != nil {
		t.Fatalf("RunWatchers: %v", err)
	}
	if sum.Updated != 2 {
		t.Fatalf("expected 2 updates, got %+v", sum)
	}

	var status string
	if err := st.DB().QueryRow(`SELECT migration_status FROM migration_mapping_watchers WHERE jira_issue_id = 'ISSUE-1' AND jira_account_id = 'U1'`).Scan(&status); err != nil {
		t.Fatalf("query ISSUE-1/U1: %v", err)
	}
	if status != "READY_FOR_PUSH" {
		t.Fatalf("expected READY_FOR_PUSH, got %s", status)
	}

	var notes string
	if err := st.DB().QueryRow(`SELECT migration_status, notes FROM migration_mapping_watchers WHERE jira_issue_id = 'ISSUE-2' AND jira_account_id = 'U2'`).Scan(&status, &notes); err != nil {
		t.Fatalf("query ISSUE-2/U2: %v", err)
	}
	if status != "PENDING_ANALYSIS" || notes == "" {
		t.Fatalf("expected PENDING_ANALYSIS with a reason, got %s/%q", status, notes)
	}
}

func TestRunWatchersSkipsUnchangedRows(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	now := time.Now()

	if _, err := st.DB().Exec(`
		INSERT INTO migration_mapping_watchers (jira_issue_id, jira_account_id, migration_status, last_updated_at)
		VALUES ('ISSUE-3', 'U3', 'READY_FOR_PUSH', ?)`, now); err != nil {
		t.Fatalf("seed mapping watcher: %v", err)
	}
	if _, err := st.DB().Exec(`
		INSERT INTO migration_mapping_issues (jira_issue_id, migration_status, redmine_issue_id, last_updated_at)
		VALUES ('ISSUE-3', 'CREATION_SUCCESS', 200, ?)`, now); err != nil {
		t.Fatalf("seed mapping issue: %v", err)
	}
	if _, err := st.DB().Exec(`
		INSERT INTO migration_mapping_users (jira_account_id, migration_status, redmine_user_id, last_updated_at)
		VALUES ('U3', 'CREATION_SUCCESS', 60, ?)`, now); err != nil {
		t.Fatalf("seed mapping user: %v", err)
	}

	r := New(st, nil, Defaults{})
	sum, err := r.RunWatchers(ctx)
	if err != nil {
		t.Fatalf("RunWatchers: %v", err)
	}
	if sum.Skipped != 1 || sum.Updated != 0 {
		t.Fatalf("expected the already-ready row to be skipped, got %+v", sum)
	}
}
