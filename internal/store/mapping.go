package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// simpleMapping holds the table names and single-column join key shared by
// the four entity kinds keyed by one Jira ID. Watchers (composite issue+
// account key) and journals (two staging sources) don't fit this shape and
// are handled by their own branches below.
type simpleMapping struct {
	mappingTbl string
	stagingTbl string
	joinCol    string // column name, identical in both tables
}

func simpleMappingFor(kind EntityKind) (simpleMapping, bool) {
	switch kind {
	case KindProject:
		return simpleMapping{"migration_mapping_projects", "staging_jira_projects", "jira_project_id"}, true
	case KindUser:
		return simpleMapping{"migration_mapping_users", "staging_jira_users", "jira_account_id"}, true
	case KindIssue:
		return simpleMapping{"migration_mapping_issues", "staging_jira_issues", "jira_issue_id"}, true
	case KindAttachment:
		return simpleMapping{"migration_mapping_attachments", "staging_jira_attachments", "jira_attachment_id"}, true
	default:
		return simpleMapping{}, false
	}
}

// mappingTableName returns just the migration_mapping_* table name for kind,
// for call sites (UpdateMapping, redmineIDColumn) that don't need the join.
func mappingTableName(kind EntityKind) (string, error) {
	if m, ok := simpleMappingFor(kind); ok {
		return m.mappingTbl, nil
	}
	switch kind {
	case KindWatcher:
		return "migration_mapping_watchers", nil
	case KindJournal:
		return "migration_mapping_journals", nil
	default:
		return "", fmt.Errorf("store: mapping table: unsupported entity kind %q", kind)
	}
}

// SyncMapping inserts a skeleton mapping row for every staging row that
// does not yet have one, per spec.md §4.1. Journals (which fan out from
// both staging_jira_comments and staging_jira_changelog) are synced by
// SyncJournalMapping instead, since they have no single staging source
// table; watchers use a composite (issue, account) key.
func (s *Store) SyncMapping(ctx context.Context, kind EntityKind) (int64, error) {
	if kind == KindWatcher {
		return s.syncWatcherMapping(ctx)
	}

	m, ok := simpleMappingFor(kind)
	if !ok {
		return 0, fmt.Errorf("store: sync mapping: unsupported entity kind %q (use SyncJournalMapping)", kind)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s, migration_status)
		SELECT st.%s, 'PENDING_ANALYSIS'
		FROM %s st
		LEFT JOIN %s mp ON mp.%s = st.%s
		WHERE mp.%s IS NULL`,
		m.mappingTbl, m.joinCol,
		m.joinCol,
		m.stagingTbl,
		m.mappingTbl, m.joinCol, m.joinCol,
		m.joinCol,
	)

	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, wrapDBError("sync mapping "+m.mappingTbl, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *Store) syncWatcherMapping(ctx context.Context) (int64, error) {
	query := `
		INSERT INTO migration_mapping_watchers (jira_issue_id, jira_account_id, migration_status)
		SELECT st.jira_issue_id, st.jira_account_id, 'PENDING_ANALYSIS'
		FROM staging_jira_watchers st
		LEFT JOIN migration_mapping_watchers mp
		  ON mp.jira_issue_id = st.jira_issue_id AND mp.jira_account_id = st.jira_account_id
		WHERE mp.jira_issue_id IS NULL`

	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, wrapDBError("sync mapping migration_mapping_watchers", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SyncJournalMapping seeds migration_mapping_journals from both comment and
// changelog staging tables, tagging each row with its JournalEntityType so
// the Reconciler can dispatch on it later.
func (s *Store) SyncJournalMapping(ctx context.Context) (int64, error) {
	var total int64
	for _, q := range []string{
		`INSERT INTO migration_mapping_journals (jira_entity_id, jira_issue_id, entity_type, migration_status)
		 SELECT st.jira_comment_id, st.jira_issue_id, 'COMMENT', 'PENDING_ANALYSIS'
		 FROM staging_jira_comments st
		 LEFT JOIN migration_mapping_journals mp
		   ON mp.jira_entity_id = st.jira_comment_id AND mp.entity_type = 'COMMENT'
		 WHERE mp.jira_entity_id IS NULL`,
		`INSERT INTO migration_mapping_journals (jira_entity_id, jira_issue_id, entity_type, migration_status)
		 SELECT st.jira_changelog_id, st.jira_issue_id, 'CHANGELOG', 'PENDING_ANALYSIS'
		 FROM staging_jira_changelog st
		 LEFT JOIN migration_mapping_journals mp
		   ON mp.jira_entity_id = st.jira_changelog_id AND mp.entity_type = 'CHANGELOG'
		 WHERE mp.jira_entity_id IS NULL`,
	} {
		res, err := s.db.ExecContext(ctx, q)
		if err != nil {
			return total, wrapDBError("sync journal mapping", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// MappingRow is a mapping row joined with its raw staging payload, as
// returned by FetchMappingsForTransform (spec.md §4.1). StagingID holds the
// joining Jira identifier: for watchers this is "<issue_id>:<account_id>".
type MappingRow struct {
	MappingID      int64
	StagingID      string
	Status         Status
	AutomationHash string
	RawPayload     []byte
}

func scanMappingRows(rows *sql.Rows, label string) ([]MappingRow, error) {
	defer rows.Close()
	var out []MappingRow
	for rows.Next() {
		var r MappingRow
		var hash sql.NullString
		if err := rows.Scan(&r.MappingID, &r.StagingID, &r.Status, &hash, &r.RawPayload); err != nil {
			return nil, wrapDBError("scan "+label, err)
		}
		r.AutomationHash = hash.String
		out = append(out, r)
	}
	return out, wrapDBError("iterate "+label, rows.Err())
}

// FetchMappingsForTransform returns every mapping row for kind joined with
// its staging payload, for the Reconciler to read in its per-row
// classify/derive/update loop.
func (s *Store) FetchMappingsForTransform(ctx context.Context, kind EntityKind) ([]MappingRow, error) {
	return s.fetchMappings(ctx, kind, "")
}

// FetchReady returns mapping rows in kind whose migration_status is
// READY_FOR_CREATION or READY_FOR_PUSH — the set the Pusher consumes on
// each load-phase pass, per spec.md §4.1 and §4.8.
func (s *Store) FetchReady(ctx context.Context, kind EntityKind) ([]MappingRow, error) {
	return s.fetchMappings(ctx, kind, "AND mp.migration_status IN ('READY_FOR_CREATION', 'READY_FOR_PUSH')")
}

func (s *Store) fetchMappings(ctx context.Context, kind EntityKind, extraWhere string) ([]MappingRow, error) {
	var query string

	switch kind {
	case KindWatcher:
		query = fmt.Sprintf(`
			SELECT mp.mapping_id, mp.jira_issue_id || ':' || mp.jira_account_id,
			       mp.migration_status, mp.automation_hash, st.raw_payload
			FROM migration_mapping_watchers mp
			JOIN staging_jira_watchers st
			  ON st.jira_issue_id = mp.jira_issue_id AND st.jira_account_id = mp.jira_account_id
			WHERE 1=1 %s`, extraWhere)

	case KindJournal:
		query = fmt.Sprintf(`
			SELECT mp.mapping_id, mp.jira_entity_id, mp.migration_status, mp.automation_hash,
			       CASE mp.entity_type
			         WHEN 'COMMENT' THEN (SELECT raw_payload FROM staging_jira_comments st WHERE st.jira_comment_id = mp.jira_entity_id)
			         ELSE (SELECT raw_payload FROM staging_jira_changelog st WHERE st.jira_changelog_id = mp.jira_entity_id)
			       END
			FROM migration_mapping_journals mp
			WHERE 1=1 %s`, extraWhere)

	default:
		m, ok := simpleMappingFor(kind)
		if !ok {
			return nil, fmt.Errorf("store: fetch mappings: unsupported entity kind %q", kind)
		}
		query = fmt.Sprintf(`
			SELECT mp.mapping_id, mp.%s, mp.migration_status, mp.automation_hash, st.raw_payload
			FROM %s mp
			JOIN %s st ON st.%s = mp.%s
			WHERE 1=1 %s`,
			m.joinCol, m.mappingTbl, m.stagingTbl, m.joinCol, m.joinCol, extraWhere)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapDBError("fetch mappings "+string(kind), err)
	}
	return scanMappingRows(rows, "mapping row "+string(kind))
}

// MappingUpdate is the set of columns UpdateMapping writes atomically. Zero
// values mean "leave unchanged" except Status, which is always written —
// callers that don't want to change status must read-then-write it back.
type MappingUpdate struct {
	Status         Status
	RedmineID      sql.NullInt64
	Notes          sql.NullString
	ProposedFields map[string]any // column -> value, entity-specific proposed_* columns
	AutomationHash string
}

// UpdateMapping performs the atomic full-row update described in spec.md
// §4.1: "writes automation_hash and last_updated_at" alongside whatever
// entity-specific proposed_* columns the caller supplies, all under a
// single `WHERE mapping_id = ?`.
func (s *Store) UpdateMapping(ctx context.Context, kind EntityKind, mappingID int64, upd MappingUpdate) error {
	mappingTbl, err := mappingTableName(kind)
	if err != nil {
		return err
	}

	sets := []string{"migration_status = ?", "automation_hash = ?", "last_updated_at = ?"}
	args := []any{string(upd.Status), upd.AutomationHash, nowUTC()}

	if upd.RedmineID.Valid {
		col, err := redmineIDColumn(kind)
		if err != nil {
			return err
		}
		sets = append(sets, col+" = ?")
		args = append(args, upd.RedmineID.Int64)
	}
	if upd.Notes.Valid {
		sets = append(sets, "notes = ?")
		args = append(args, upd.Notes.String)
	}
	for col, val := range upd.ProposedFields {
		sets = append(sets, col+" = ?")
		args = append(args, val)
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE mapping_id = ?", mappingTbl, joinSets(sets))
	args = append(args, mappingID)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapDBError("update mapping "+mappingTbl, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkIssuesExtracted stamps a project mapping row's issues_extracted_at,
// per spec.md §4.3 ("marks ... only on successful completion of ALL
// pages"). It touches only that column, deliberately bypassing
// UpdateMapping so a concurrent Reconciler run's migration_status is never
// clobbered by an extraction run that has no opinion on status.
func (s *Store) MarkIssuesExtracted(ctx context.Context, projectMappingID int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE migration_mapping_projects SET issues_extracted_at = ? WHERE mapping_id = ?`,
		at, projectMappingID,
	)
	if err != nil {
		return wrapDBError("mark issues_extracted_at", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RedmineIDForMapping reads back the single redmine_<entity>_id column for
// one mapping row, for DependencyResolver's cache-building pass (spec.md
// §4.7) which already has the row's MappingID from FetchMappingsForTransform
// and just needs the id it resolved to.
func (s *Store) RedmineIDForMapping(ctx context.Context, kind EntityKind, mappingID int64) (int64, error) {
	mappingTbl, err := mappingTableName(kind)
	if err != nil {
		return 0, err
	}
	col, err := redmineIDColumn(kind)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE mapping_id = ?", col, mappingTbl)

	var id sql.NullInt64
	err = s.db.QueryRowContext(ctx, query, mappingID).Scan(&id)
	if err != nil {
		return 0, wrapDBError("redmine id for mapping "+mappingTbl, err)
	}
	return id.Int64, nil
}

// ResolveReadyIssueRedmineID looks up the Redmine issue id for a Jira issue
// id, but only when that issue's mapping row is currently ready
// (MATCH_FOUND or CREATION_SUCCESS). DependencyResolver.ResolveParentIssueID
// calls this directly rather than a frozen cache, per spec.md §4.7: parent
// availability changes within a single push run as parents are created.
func (s *Store) ResolveReadyIssueRedmineID(ctx context.Context, jiraIssueID string) (int64, bool, error) {
	var id sql.NullInt64
	var status Status
	err := s.db.QueryRowContext(ctx,
		`SELECT redmine_issue_id, migration_status FROM migration_mapping_issues WHERE jira_issue_id = ?`,
		jiraIssueID,
	).Scan(&id, &status)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, wrapDBError("resolve ready issue redmine id", err)
	}
	if !status.IsReady() || !id.Valid {
		return 0, false, nil
	}
	return id.Int64, true, nil
}

func redmineIDColumn(kind EntityKind) (string, error) {
	switch kind {
	case KindProject:
		return "redmine_project_id", nil
	case KindUser:
		return "redmine_user_id", nil
	case KindIssue:
		return "redmine_issue_id", nil
	case KindAttachment:
		return "redmine_attachment_id", nil
	case KindWatcher:
		return "redmine_user_id", nil
	case KindJournal:
		return "redmine_journal_id", nil
	default:
		return "", fmt.Errorf("store: redmine id column: unsupported entity kind %q", kind)
	}
}

func joinSets(sets []string) string {
	out := sets[0]
	for _, s := range sets[1:] {
		out += ", " + s
	}
	return out
}
