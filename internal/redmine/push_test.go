package redmine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jcatrysse/jira2redmine/internal/store"
)

func testPusher(t *testing.T, handler http.HandlerFunc) (*Pusher, *store.Store) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(srv.URL, "test-api-key")
	c.HTTPClient = srv.Client()

	ctx := context.Background()
	st, err := store.OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := st.MigrateSchema(ctx); err != nil {
		t.Fatalf("MigrateSchema: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	p := NewPusher(c, st)
	p.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return p, st
}

func seedProjectReady(t *testing.T, st *store.Store, identifier, name string) int64 {
	t.Helper()
	res, err := st.DB().Exec(`
		INSERT INTO migration_mapping_projects
			(jira_project_id, migration_status, proposed_identifier, proposed_name, proposed_is_public, last_updated_at)
		VALUES (?, 'READY_FOR_CREATION', ?, ?, 1, ?)`,
		identifier, identifier, name, time.Now())
	if err != nil {
		t.Fatalf("seed project: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func TestPushProjectsCreatesAndMarksSuccess(t *testing.T) {
	p, st := testPusher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"project":{"id":100}}`))
	})
	mappingID := seedProjectReady(t, st, "demo", "Demo")

	sum, err := p.PushProjects(context.Background())
	if err != nil {
		t.Fatalf("PushProjects: %v", err)
	}
	if sum.Pushed != 1 || sum.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}

	var status string
	var redmineID int64
	err = st.DB().QueryRow(`SELECT migration_status, redmine_project_id FROM migration_mapping_projects WHERE mapping_id = ?`, mappingID).
		Scan(&status, &redmineID)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if status != "CREATION_SUCCESS" || redmineID != 100 {
		t.Fatalf("expected CREATION_SUCCESS/100, got %s/%d", status, redmineID)
	}
}

func TestPushProjectsMarksFailureWithNotes(t *testing.T) {
	p, st := testPusher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"errors":["Identifier has already been taken"]}`))
	})
	mappingID := seedProjectReady(t, st, "demo", "Demo")

	sum, err := p.PushProjects(context.Background())
	if err != nil {
		t.Fatalf("PushProjects: %v", err)
	}
	if sum.Failed != 1 {
		t.Fatalf("expected 1 failure, got %+v", sum)
	}

	var status, notes string
	err = st.DB().QueryRow(`SELECT migration_status, notes FROM migration_mapping_projects WHERE mapping_id = ?`, mappingID).
		Scan(&status, &notes)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if status != "CREATION_FAILED" {
		t.Fatalf("expected CREATION_FAILED, got %s", status)
	}
	if notes != "HTTP 422: Identifier has already been taken" {
		t.Fatalf("unexpected notes: %q", notes)
	}
}

func TestPushWatchersSkipsAlreadyWatching(t *testing.T) {
	p, st := testPusher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"errors":["User is already watching"]}`))
	})

	res, err := st.DB().Exec(`
		INSERT INTO migration_mapping_watchers (jira_issue_id, jira_account_id, redmine_issue_id, redmine_user_id, migration_status, last_updated_at)
		VALUES ('10001', 'acc1', 500, 7, 'READY_FOR_PUSH', ?)`, time.Now())
	if err != nil {
		t.Fatalf("seed watcher: %v", err)
	}
	mappingID, _ := res.LastInsertId()

	sum, err := p.PushWatchers(context.Background())
	if err != nil {
		t.Fatalf("PushWatchers: %v", err)
	}
	if sum.Pushed != 1 || sum.Failed != 0 {
		t.Fatalf("expected already-watching to count as pushed, got %+v", sum)
	}

	var status string
	st.DB().QueryRow(`SELECT migration_status FROM migration_mapping_watchers WHERE mapping_id = ?`, mappingID).Scan(&status)
	if status != "SUCCESS" {
		t.Fatalf("expected SUCCESS, got %s", status)
	}
}

func TestPushIssuesAttachesUploadsAndAssociates(t *testing.T) {
	p, st := testPusher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/issues.json":
			w.Write([]byte(`{"issue":{"id":900}}`))
		case r.Method == http.MethodGet && r.URL.Path == "/issues/900.json":
			w.Write([]byte(`{"issue":{"id":900,"attachments":[{"id":55,"filename":"30001__file.txt","filesize":12}]}}`))
		default:
			http.NotFound(w, r)
		}
	})

	now := time.Now()
	res, err := st.DB().Exec(`
		INSERT INTO migration_mapping_issues
			(jira_issue_id, migration_status, proposed_project_id, proposed_tracker_id, proposed_subject, last_updated_at)
		VALUES ('20001', 'READY_FOR_CREATION', 1, 2, 'Test issue', ?)`, now)
	if err != nil {
		t.Fatalf("seed issue: %v", err)
	}
	issueMappingID, _ := res.LastInsertId()

	attRes, err := st.DB().Exec(`
		INSERT INTO migration_mapping_attachments
			(jira_attachment_id, jira_issue_id, jira_filesize, association_hint, migration_status, local_filepath, redmine_upload_token, last_updated_at)
		VALUES ('30001', '20001', 12, 'ISSUE', 'PENDING_ASSOCIATION', '/tmp/attachments/jira/30001__file.txt', 'abc.xyz', ?)`, now)
	if err != nil {
		t.Fatalf("seed attachment: %v", err)
	}
	attMappingID, _ := attRes.LastInsertId()

	sum, err := p.PushIssues(context.Background())
	if err != nil {
		t.Fatalf("PushIssues: %v", err)
	}
	if sum.Pushed != 1 {
		t.Fatalf("expected 1 pushed issue, got %+v", sum)
	}

	var issueStatus string
	st.DB().QueryRow(`SELECT migration_status FROM migration_mapping_issues WHERE mapping_id = ?`, issueMappingID).Scan(&issueStatus)
	if issueStatus != "CREATION_SUCCESS" {
		t.Fatalf("expected issue CREATION_SUCCESS, got %s", issueStatus)
	}

	var attStatus string
	var redmineAttachmentID int64
	st.DB().QueryRow(`SELECT migration_status, redmine_attachment_id FROM migration_mapping_attachments WHERE mapping_id = ?`, attMappingID).
		Scan(&attStatus, &redmineAttachmentID)
	if attStatus != "SUCCESS" || redmineAttachmentID != 55 {
		t.Fatalf("expected attachment SUCCESS/55, got %s/%d", attStatus, redmineAttachmentID)
	}
}
