package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"
)

func TestFetchAttachmentLookupRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertStagingAttachment(ctx, nil, StagingAttachment{
		JiraAttachmentID: "A1",
		JiraIssueID:      "ISSUE-1",
		RawPayload:       json.RawMessage(`{"filename":"notes.txt"}`),
		ExtractedAt:      time.Now(),
	}); err != nil {
		t.Fatalf("UpsertStagingAttachment: %v", err)
	}
	if _, err := s.SyncMapping(ctx, KindAttachment); err != nil {
		t.Fatalf("SyncMapping: %v", err)
	}

	rows, err := s.FetchAttachmentLookupRows(ctx)
	if err != nil {
		t.Fatalf("FetchAttachmentLookupRows: %v", err)
	}
	if len(rows) != 1 || rows[0].JiraAttachmentID != "A1" || rows[0].Filename != "notes.txt" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if rows[0].SharePointURL != "" {
		t.Fatalf("expected empty sharepoint_url before upload, got %q", rows[0].SharePointURL)
	}

	mappingRows, err := s.FetchMappingsForTransform(ctx, KindAttachment)
	if err != nil {
		t.Fatalf("FetchMappingsForTransform: %v", err)
	}
	if err := s.UpdateMapping(ctx, KindAttachment, mappingRows[0].MappingID, MappingUpdate{
		Status:         StatusCreationSuccess,
		AutomationHash: "v1:x",
	}); err != nil {
		t.Fatalf("UpdateMapping: %v", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE migration_mapping_attachments SET sharepoint_url = ? WHERE jira_attachment_id = ?`,
		"https://contoso.sharepoint.com/notes.txt", "A1",
	); err != nil {
		t.Fatalf("set sharepoint_url: %v", err)
	}

	rows, err = s.FetchAttachmentLookupRows(ctx)
	if err != nil {
		t.Fatalf("FetchAttachmentLookupRows (second): %v", err)
	}
	if rows[0].SharePointURL != "https://contoso.sharepoint.com/notes.txt" {
		t.Fatalf("expected sharepoint_url to round-trip, got %+v", rows[0])
	}
}

func TestFetchUserRedmineIDsOnlyResolved(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, acct := range []string{"u1", "u2"} {
		if err := s.UpsertStagingUser(ctx, nil, StagingUser{
			JiraAccountID: acct,
			RawPayload:    json.RawMessage(`{}`),
			ExtractedAt:   time.Now(),
		}); err != nil {
			t.Fatalf("UpsertStagingUser(%s): %v", acct, err)
		}
	}
	if _, err := s.SyncMapping(ctx, KindUser); err != nil {
		t.Fatalf("SyncMapping: %v", err)
	}
	rows, err := s.FetchMappingsForTransform(ctx, KindUser)
	if err != nil {
		t.Fatalf("FetchMappingsForTransform: %v", err)
	}
	var u1ID int64
	for _, r := range rows {
		if r.StagingID == "u1" {
			u1ID = r.MappingID
		}
	}
	if err := s.UpdateMapping(ctx, KindUser, u1ID, MappingUpdate{
		Status:         StatusCreationSuccess,
		AutomationHash: "v1:x",
		RedmineID:      sql.NullInt64{Int64: 9, Valid: true},
	}); err != nil {
		t.Fatalf("UpdateMapping: %v", err)
	}

	users, err := s.FetchUserRedmineIDs(ctx)
	if err != nil {
		t.Fatalf("FetchUserRedmineIDs: %v", err)
	}
	if len(users) != 1 || users["u1"] != 9 {
		t.Fatalf("expected only resolved user u1->9, got %+v", users)
	}
}

func TestFetchIssueRedmineIDsByKeyOnlyResolved(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertStagingIssue(ctx, nil, StagingIssue{
		JiraIssueID:  "10",
		JiraIssueKey: "ABC-1",
		RawPayload:   json.RawMessage(`{}`),
		ExtractedAt:  time.Now(),
	}); err != nil {
		t.Fatalf("UpsertStagingIssue: %v", err)
	}
	if _, err := s.SyncMapping(ctx, KindIssue); err != nil {
		t.Fatalf("SyncMapping: %v", err)
	}
	rows, err := s.FetchMappingsForTransform(ctx, KindIssue)
	if err != nil || len(rows) != 1 {
		t.Fatalf("FetchMappingsForTransform: rows=%v err=%v", rows, err)
	}

	if issues, err := s.FetchIssueRedmineIDsByKey(ctx); err != nil || len(issues) != 0 {
		t.Fatalf("expected no resolved issues yet, got %+v err=%v", issues, err)
	}

	if err := s.UpdateMapping(ctx, KindIssue, rows[0].MappingID, MappingUpdate{
		Status:         StatusCreationSuccess,
		AutomationHash: "v1:x",
		RedmineID:      sql.NullInt64{Int64: 42, Valid: true},
	}); err != nil {
		t.Fatalf("UpdateMapping: %v", err)
	}

	issues, err := s.FetchIssueRedmineIDsByKey(ctx)
	if err != nil {
		t.Fatalf("FetchIssueRedmineIDsByKey: %v", err)
	}
	if len(issues) != 1 || issues["ABC-1"] != 42 {
		t.Fatalf("expected ABC-1->42, got %+v", issues)
	}
}
