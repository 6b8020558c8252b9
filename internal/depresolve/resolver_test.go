package depresolve

import (
	"context"
	"testing"
	"time"

	"github.com/jcatrysse/jira2redmine/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	st, err := store.OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := st.MigrateSchema(ctx); err != nil {
		t.Fatalf("MigrateSchema: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestBuildLoadsOnlyReadyRows(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	now := time.Now()

	if _, err := st.DB().Exec(`
		INSERT INTO staging_jira_projects (jira_project_id, raw_payload, extracted_at)
		VALUES ('P1', '{}', ?), ('P2', '{}', ?)`, now, now); err != nil {
		t.Fatalf("seed staging projects: %v", err)
	}
	if _, err := st.DB().Exec(`
		INSERT INTO migration_mapping_projects (jira_project_id, migration_status, redmine_project_id, last_updated_at)
		VALUES ('P1', 'MATCH_FOUND', 10, ?), ('P2', 'PENDING_ANALYSIS', NULL, ?)`, now, now); err != nil {
		t.Fatalf("seed projects: %v", err)
	}
	if _, err := st.DB().Exec(`
		INSERT INTO staging_jira_users (jira_account_id, raw_payload, extracted_at)
		VALUES ('U1', '{}', ?)`, now); err != nil {
		t.Fatalf("seed staging users: %v", err)
	}
	if _, err := st.DB().Exec(`
		INSERT INTO migration_mapping_users (jira_account_id, migration_status, redmine_user_id, last_updated_at)
		VALUES ('U1', 'CREATION_SUCCESS', 20, ?)`, now); err != nil {
		t.Fatalf("seed users: %v", err)
	}

	r, err := Build(ctx, st, map[string]int64{"10000": 1}, map[string]int64{"1": 1}, map[string]int64{"2": 1})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if id, ok := r.ResolveProject("P1"); !ok || id != 10 {
		t.Fatalf("expected P1 -> 10, got %d/%v", id, ok)
	}
	if _, ok := r.ResolveProject("P2"); ok {
		t.Fatal("expected P2 (not ready) to be absent from the cache")
	}
	if id, ok := r.ResolveUser("U1"); !ok || id != 20 {
		t.Fatalf("expected U1 -> 20, got %d/%v", id, ok)
	}
	if id, ok := r.ResolveTracker("10000"); !ok || id != 1 {
		t.Fatalf("expected passthrough tracker lookup, got %d/%v", id, ok)
	}
}

func TestResolveParentIssueIDReadsLiveTable(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	now := time.Now()

	if _, err := st.DB().Exec(`
		INSERT INTO migration_mapping_issues (jira_issue_id, migration_status, redmine_issue_id, last_updated_at)
		VALUES ('20001', 'PENDING_ANALYSIS', NULL, ?)`, now); err != nil {
		t.Fatalf("seed issue: %v", err)
	}

	r, err := Build(ctx, st, nil, nil, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if _, ok := r.ResolveParentIssueID(ctx, "20001"); ok {
		t.Fatal("expected not-yet-ready parent to be unresolved")
	}

	if _, err := st.DB().Exec(`
		UPDATE migration_mapping_issues SET migration_status = 'CREATION_SUCCESS', redmine_issue_id = 900 WHERE jira_issue_id = '20001'`); err != nil {
		t.Fatalf("update issue: %v", err)
	}

	id, ok := r.ResolveParentIssueID(ctx, "20001")
	if !ok || id != 900 {
		t.Fatalf("expected live lookup to reflect the now-ready parent, got %d/%v", id, ok)
	}
}
