package reconcile

import (
	"context"
	"testing"
	"time"
)

func TestRunUsersMatchesByLoginThenMail(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	now := time.Now()

	if _, err := st.DB().Exec(`
		INSERT INTO staging_jira_users (jira_account_id, raw_payload, extracted_at) VALUES
		('U1', '{"accountId":"U1","displayName":"Ann Example","emailAddress":"ann@example.com"}', ?),
		('U2', '{"accountId":"U2","displayName":"Bob Example","emailAddress":"bob@example.com"}', ?),
		('U3', '{"accountId":"U3","displayName":"New, Person","emailAddress":"new@example.com"}', ?)`,
		now, now, now); err != nil {
		t.Fatalf("seed staging users: %v", err)
	}
	if _, err := st.DB().Exec(`
		INSERT INTO migration_mapping_users (jira_account_id, migration_status, last_updated_at) VALUES
		('U1', 'PENDING_ANALYSIS', ?), ('U2', 'PENDING_ANALYSIS', ?), ('U3', 'PENDING_ANALYSIS', ?)`,
		now, now, now); err != nil {
		t.Fatalf("seed mapping users: %v", err)
	}
	if _, err := st.DB().Exec(`
		INSERT INTO staging_redmine_users (redmine_user_id, raw_payload, extracted_at) VALUES
		(1, '{"login":"ann@example.com","mail":"ann-alt@example.com"}', ?),
		(2, '{"login":"someone-else","mail":"bob@example.com"}', ?)`,
		now, now); err != nil {
		t.Fatalf("seed redmine users: %v", err)
	}

	r := New(st, nil, Defaults{})
	sum, err := r.RunUsers(ctx)
	if err != nil {
		t.Fatalf("RunUsers: %v", err)
	}
	if sum.Updated != 3 {
		t.Fatalf("expected 3 updates, got %+v", sum)
	}

	cases := []struct {
		account     string
		wantStatus  string
		wantMatch   string
		wantRedmine int64
	}{
		{"U1", "MATCH_FOUND", "LOGIN", 1},
		{"U2", "MATCH_FOUND", "MAIL", 2},
	}
	for _, c := range cases {
		var status string
		var matchType string
		var redmineID int64
		if err := st.DB().QueryRow(`SELECT migration_status, match_type, redmine_user_id FROM migration_mapping_users WHERE jira_account_id = ?`, c.account).
			Scan(&status, &matchType, &redmineID); err != nil {
			t.Fatalf("query %s: %v", c.account, err)
		}
		if status != c.wantStatus || matchType != c.wantMatch || redmineID != c.wantRedmine {
			t.Fatalf("%s: expected %s/%s/%d, got %s/%s/%d", c.account, c.wantStatus, c.wantMatch, c.wantRedmine, status, matchType, redmineID)
		}
	}

	var status, login, first, last string
	if err := st.DB().QueryRow(`SELECT migration_status, proposed_redmine_login, proposed_firstname, proposed_lastname FROM migration_mapping_users WHERE jira_account_id = 'U3'`).
		Scan(&status, &login, &first, &last); err != nil {
		t.Fatalf("query U3: %v", err)
	}
	if status != "READY_FOR_CREATION" || login != "new@example.com" || first != "Person" || last != "New" {
		t.Fatalf("expected READY_FOR_CREATION/new@example.com/Person/New, got %s/%s/%s/%s", status, login, first, last)
	}
}

func TestRunUsersManualOnMissingEmail(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	now := time.Now()

	if _, err := st.DB().Exec(`
		INSERT INTO staging_jira_users (jira_account_id, raw_payload, extracted_at)
		VALUES ('U9', '{"accountId":"U9","displayName":"No Email"}', ?)`, now); err != nil {
		t.Fatalf("seed staging user: %v", err)
	}
	if _, err := st.DB().Exec(`
		INSERT INTO migration_mapping_users (jira_account_id, migration_status, last_updated_at)
		VALUES ('U9', 'PENDING_ANALYSIS', ?)`, now); err != nil {
		t.Fatalf("seed mapping user: %v", err)
	}

	r := New(st, nil, Defaults{})
	if _, err := r.RunUsers(ctx); err != nil {
		t.Fatalf("RunUsers: %v", err)
	}

	var status, notes string
	if err := st.DB().QueryRow(`SELECT migration_status, notes FROM migration_mapping_users WHERE jira_account_id = 'U9'`).
		Scan(&status, &notes); err != nil {
		t.Fatalf("query U9: %v", err)
	}
	if status != "MANUAL_INTERVENTION_REQUIRED" || notes == "" {
		t.Fatalf("expected manual intervention with a reason, got %s/%q", status, notes)
	}
}
