package attachments

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jcatrysse/jira2redmine/internal/jiraclient"
	"github.com/jcatrysse/jira2redmine/internal/redmine"
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
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSyncRecomputesFilesizeAndHint(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	now := time.Now()

	issuePayload := `{"fields":{"created":"2024-01-01T09:00:00.000+0000"}}`
	attPayload := `{"filename":"report.pdf","size":2048,"content":"http://example.invalid/content/1","created":"2024-01-01T09:00:30.000+0000"}`

	if _, err := st.DB().Exec(`INSERT INTO staging_jira_issues (jira_issue_id, raw_payload, extracted_at) VALUES ('ISSUE-1', ?, ?)`, issuePayload, now); err != nil {
		t.Fatalf("seed issue: %v", err)
	}
	if _, err := st.DB().Exec(`INSERT INTO staging_jira_attachments (jira_attachment_id, jira_issue_id, raw_payload, extracted_at) VALUES ('A1', 'ISSUE-1', ?, ?)`, attPayload, now); err != nil {
		t.Fatalf("seed attachment: %v", err)
	}
	if _, err := st.DB().Exec(`INSERT INTO migration_mapping_attachments (jira_attachment_id, jira_issue_id, migration_status, last_updated_at) VALUES ('A1', 'ISSUE-1', 'PENDING_DOWNLOAD', ?)`, now); err != nil {
		t.Fatalf("seed mapping: %v", err)
	}

	p := New(st, nil, nil, Config{})
	if _, err := p.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	var size int64
	var hint string
	if err := st.DB().QueryRow(`SELECT jira_filesize, association_hint FROM migration_mapping_attachments WHERE jira_attachment_id = 'A1'`).Scan(&size, &hint); err != nil {
		t.Fatalf("query: %v", err)
	}
	if size != 2048 || hint != "ISSUE" {
		t.Fatalf("expected filesize 2048/hint ISSUE, got %d/%s", size, hint)
	}
}

func TestPullDownloadsContentAndMarksPendingUpload(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	now := time.Now()

	const body = "hello attachment body"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, body)
	}))
	defer srv.Close()

	attPayload := fmt.Sprintf(`{"filename":"notes.txt","size":%d,"content":%q,"created":"2024-01-01T09:00:00.000+0000"}`, len(body), srv.URL+"/content/1")
	if _, err := st.DB().Exec(`INSERT INTO staging_jira_attachments (jira_attachment_id, jira_issue_id, raw_payload, extracted_at) VALUES ('A2', 'ISSUE-2', ?, ?)`, attPayload, now); err != nil {
		t.Fatalf("seed attachment: %v", err)
	}
	if _, err := st.DB().Exec(`INSERT INTO migration_mapping_attachments (jira_attachment_id, jira_issue_id, migration_status, download_enabled, last_updated_at) VALUES ('A2', 'ISSUE-2', 'PENDING_DOWNLOAD', 1, ?)`, now); err != nil {
		t.Fatalf("seed mapping: %v", err)
	}

	tmp := t.TempDir()
	p := New(st, jiraclient.New(srv.URL, "user@example.com", "token"), nil, Config{TmpDir: tmp, PullConcurrency: 2})
	sum, err := p.Pull(ctx)
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if sum.Updated != 1 || sum.Failed != 0 {
		t.Fatalf("expected 1 successful pull, got %+v", sum)
	}

	var status, localPath string
	if err := st.DB().QueryRow(`SELECT migration_status, local_filepath FROM migration_mapping_attachments WHERE jira_attachment_id = 'A2'`).Scan(&status, &localPath); err != nil {
		t.Fatalf("query: %v", err)
	}
	if status != "PENDING_UPLOAD" {
		t.Fatalf("expected PENDING_UPLOAD, got %s", status)
	}
	if filepath.Base(localPath) != "A2__notes.txt" {
		t.Fatalf("expected local path to use the {id}__{name} scheme, got %s", localPath)
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(data) != body {
		t.Fatalf("expected downloaded content %q, got %q", body, string(data))
	}
}

func TestPushUploadsSmallFileToRedmine(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	now := time.Now()

	var gotFilename string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFilename = r.URL.Query().Get("filename")
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"upload":{"token":"99.abcdef"}}`)
	}))
	defer srv.Close()

	tmp := t.TempDir()
	localPath := filepath.Join(tmp, "A3__small.txt")
	if err := os.WriteFile(localPath, []byte("small file"), 0o644); err != nil {
		t.Fatalf("write local file: %v", err)
	}

	attPayload := `{"filename":"small.txt","size":10}`
	if _, err := st.DB().Exec(`INSERT INTO staging_jira_attachments (jira_attachment_id, jira_issue_id, raw_payload, extracted_at) VALUES ('A3', 'ISSUE-3', ?, ?)`, attPayload, now); err != nil {
		t.Fatalf("seed attachment: %v", err)
	}
	if _, err := st.DB().Exec(`
		INSERT INTO migration_mapping_attachments (jira_attachment_id, jira_issue_id, migration_status, upload_enabled, local_filepath, jira_filesize, last_updated_at)
		VALUES ('A3', 'ISSUE-3', 'PENDING_UPLOAD', 1, ?, 10, ?)`, localPath, now); err != nil {
		t.Fatalf("seed mapping: %v", err)
	}

	p := New(st, nil, redmine.New(srv.URL, "key"), Config{OffloadThresholdBytes: 1 << 30})
	sum, err := p.Push(ctx)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if sum.Updated != 1 || sum.Failed != 0 {
		t.Fatalf("expected 1 successful push, got %+v", sum)
	}
	if gotFilename != "A3__small.txt" {
		t.Fatalf("expected the unique filename to be sent, got %q", gotFilename)
	}

	var status, token string
	var attachmentID int64
	if err := st.DB().QueryRow(`SELECT migration_status, redmine_upload_token, redmine_attachment_id FROM migration_mapping_attachments WHERE jira_attachment_id = 'A3'`).
		Scan(&status, &token, &attachmentID); err != nil {
		t.Fatalf("query: %v", err)
	}
	if status != "PENDING_ASSOCIATION" || token != "99.abcdef" || attachmentID != 99 {
		t.Fatalf("expected PENDING_ASSOCIATION/99.abcdef/99, got %s/%s/%d", status, token, attachmentID)
	}
}
