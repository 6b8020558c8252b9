package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := s.MigrateSchema(ctx); err != nil {
		s.Close()
		t.Fatalf("MigrateSchema: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrateSchemaIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.MigrateSchema(ctx); err != nil {
		t.Fatalf("second MigrateSchema call failed: %v", err)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if v, err := s.GetConfig(ctx, "jira_default_tracker"); err != nil || v != "" {
		t.Fatalf("expected empty default, got %q err=%v", v, err)
	}

	if err := s.SetConfig(ctx, "jira_default_tracker", "Bug"); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}
	if v, err := s.GetConfig(ctx, "jira_default_tracker"); err != nil || v != "Bug" {
		t.Fatalf("got %q, want Bug (err=%v)", v, err)
	}

	// upsert overwrites, not duplicates
	if err := s.SetConfig(ctx, "jira_default_tracker", "Feature"); err != nil {
		t.Fatalf("SetConfig overwrite: %v", err)
	}
	if v, err := s.GetConfig(ctx, "jira_default_tracker"); err != nil || v != "Feature" {
		t.Fatalf("got %q, want Feature (err=%v)", v, err)
	}
}

func TestSyncMappingCreatesSkeletonRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"10001", "10002", "10003"} {
		err := s.UpsertStagingProject(ctx, nil, StagingProject{
			JiraProjectID: id,
			RawPayload:    json.RawMessage(`{"key":"` + id + `"}`),
			ExtractedAt:   time.Now(),
		})
		if err != nil {
			t.Fatalf("UpsertStagingProject(%s): %v", id, err)
		}
	}

	n, err := s.SyncMapping(ctx, KindProject)
	if err != nil {
		t.Fatalf("SyncMapping: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 new mapping rows, got %d", n)
	}

	// running again must be a no-op: all staging rows already have a mapping
	n, err = s.SyncMapping(ctx, KindProject)
	if err != nil {
		t.Fatalf("second SyncMapping: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 new rows on second sync, got %d", n)
	}

	rows, err := s.FetchMappingsForTransform(ctx, KindProject)
	if err != nil {
		t.Fatalf("FetchMappingsForTransform: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 mapping rows, got %d", len(rows))
	}
	for _, r := range rows {
		if r.Status != StatusPendingAnalysis {
			t.Errorf("row %d: expected PENDING_ANALYSIS, got %s", r.MappingID, r.Status)
		}
	}
}

func TestUpdateMappingAndFetchReady(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertStagingProject(ctx, nil, StagingProject{
		JiraProjectID: "10001",
		RawPayload:    json.RawMessage(`{"key":"ABC"}`),
		ExtractedAt:   time.Now(),
	}); err != nil {
		t.Fatalf("UpsertStagingProject: %v", err)
	}
	if _, err := s.SyncMapping(ctx, KindProject); err != nil {
		t.Fatalf("SyncMapping: %v", err)
	}

	rows, err := s.FetchMappingsForTransform(ctx, KindProject)
	if err != nil || len(rows) != 1 {
		t.Fatalf("FetchMappingsForTransform: rows=%v err=%v", rows, err)
	}
	id := rows[0].MappingID

	if err := s.UpdateMapping(ctx, KindProject, id, MappingUpdate{
		Status:         StatusReadyForCreation,
		AutomationHash: "v1:deadbeef",
		ProposedFields: map[string]any{
			"proposed_identifier": "abc",
			"proposed_name":       "ABC Project",
		},
	}); err != nil {
		t.Fatalf("UpdateMapping: %v", err)
	}

	ready, err := s.FetchReady(ctx, KindProject)
	if err != nil {
		t.Fatalf("FetchReady: %v", err)
	}
	if len(ready) != 1 || ready[0].MappingID != id {
		t.Fatalf("expected mapping %d in ready set, got %v", id, ready)
	}
	if ready[0].AutomationHash != "v1:deadbeef" {
		t.Fatalf("automation_hash not persisted: got %q", ready[0].AutomationHash)
	}

	// pushing flips status out of the ready set again
	if err := s.UpdateMapping(ctx, KindProject, id, MappingUpdate{
		Status:         StatusCreationSuccess,
		AutomationHash: "v1:deadbeef",
		RedmineID:      sql.NullInt64{Int64: 42, Valid: true},
	}); err != nil {
		t.Fatalf("UpdateMapping (push): %v", err)
	}

	ready, err = s.FetchReady(ctx, KindProject)
	if err != nil {
		t.Fatalf("FetchReady after push: %v", err)
	}
	if len(ready) != 0 {
		t.Fatalf("expected empty ready set after push, got %v", ready)
	}
}

func TestUpdateMappingUnknownIDReturnsNotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.UpdateMapping(ctx, KindProject, 999, MappingUpdate{Status: StatusFailed})
	if err == nil {
		t.Fatal("expected ErrNotFound for unknown mapping_id")
	}
}

func TestWatcherCompositeKeySync(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, acct := range []string{"u1", "u2"} {
		if err := s.UpsertStagingWatcher(ctx, nil, StagingWatcher{
			JiraIssueID:   "ISSUE-1",
			JiraAccountID: acct,
			RawPayload:    json.RawMessage(`{}`),
			ExtractedAt:   time.Now(),
		}); err != nil {
			t.Fatalf("UpsertStagingWatcher(%s): %v", acct, err)
		}
	}

	n, err := s.SyncMapping(ctx, KindWatcher)
	if err != nil {
		t.Fatalf("SyncMapping(watcher): %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 watcher rows, got %d", n)
	}

	rows, err := s.FetchMappingsForTransform(ctx, KindWatcher)
	if err != nil {
		t.Fatalf("FetchMappingsForTransform(watcher): %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	seen := map[string]bool{}
	for _, r := range rows {
		seen[r.StagingID] = true
	}
	if !seen["ISSUE-1:u1"] || !seen["ISSUE-1:u2"] {
		t.Fatalf("expected composite staging IDs for both accounts, got %v", rows)
	}
}

func TestJournalMappingFromBothSources(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertStagingComment(ctx, nil, StagingComment{
		JiraCommentID: "c1",
		JiraIssueID:   "ISSUE-1",
		RawPayload:    json.RawMessage(`{"body":"hi"}`),
		ExtractedAt:   time.Now(),
	}); err != nil {
		t.Fatalf("UpsertStagingComment: %v", err)
	}
	if err := s.UpsertStagingChangelog(ctx, nil, StagingChangelog{
		JiraChangelogID: "h1",
		JiraIssueID:     "ISSUE-1",
		RawPayload:      json.RawMessage(`{"items":[]}`),
		ExtractedAt:     time.Now(),
	}); err != nil {
		t.Fatalf("UpsertStagingChangelog: %v", err)
	}

	n, err := s.SyncJournalMapping(ctx)
	if err != nil {
		t.Fatalf("SyncJournalMapping: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 journal rows, got %d", n)
	}

	rows, err := s.FetchMappingsForTransform(ctx, KindJournal)
	if err != nil {
		t.Fatalf("FetchMappingsForTransform(journal): %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 journal rows, got %d", len(rows))
	}
	for _, r := range rows {
		if len(r.RawPayload) == 0 {
			t.Errorf("journal row %d missing raw payload from its source table", r.MappingID)
		}
	}
}

func TestIssueExtractStateRetry(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	retry, err := s.NeedsRetry(ctx, "ISSUE-1", "comments")
	if err != nil || !retry {
		t.Fatalf("expected retry=true for never-attempted issue, got %v err=%v", retry, err)
	}

	if err := s.SetIssueExtractState(ctx, "ISSUE-1", "comments", "WARNING", "403 forbidden"); err != nil {
		t.Fatalf("SetIssueExtractState: %v", err)
	}
	retry, err = s.NeedsRetry(ctx, "ISSUE-1", "comments")
	if err != nil || retry {
		t.Fatalf("WARNING state should not be retried: retry=%v err=%v", retry, err)
	}

	if err := s.SetIssueExtractState(ctx, "ISSUE-1", "comments", "FAILED", "connection reset"); err != nil {
		t.Fatalf("SetIssueExtractState (overwrite): %v", err)
	}
	retry, err = s.NeedsRetry(ctx, "ISSUE-1", "comments")
	if err != nil || !retry {
		t.Fatalf("FAILED state should be retried: retry=%v err=%v", retry, err)
	}
}

func TestOpenUnknownDSNScheme(t *testing.T) {
	if _, err := Open(context.Background(), "postgres://localhost/db"); err == nil {
		t.Fatal("expected error for unsupported DSN scheme")
	}
}

func TestWithBatchRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.WithBatch(ctx, func(tx *sql.Tx) error {
		if err := s.UpsertStagingProject(ctx, tx, StagingProject{
			JiraProjectID: "batched",
			RawPayload:    json.RawMessage(`{}`),
			ExtractedAt:   time.Now(),
		}); err != nil {
			return err
		}
		return os.ErrClosed // arbitrary failure to force rollback
	})
	if err == nil {
		t.Fatal("expected WithBatch to propagate the callback error")
	}

	var count int
	if err := s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM staging_jira_projects`).Scan(&count); err != nil {
		t.Fatalf("count staging rows: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rollback to discard the insert, found %d rows", count)
	}
}
