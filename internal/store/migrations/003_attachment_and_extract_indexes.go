package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateAttachmentAndExtractIndexes adds lookup indexes that make the
// Reconciler and AttachmentPipeline's per-issue scans cheap. CREATE INDEX
// has no portable "IF NOT EXISTS" across SQLite and MySQL/Dolt (MySQL never
// added it), so existence is checked explicitly before creating — the same
// idempotent-ALTER idiom as the teacher's
// internal/storage/sqlite/migrations/002_external_ref_column.go.
func MigrateAttachmentAndExtractIndexes(db *sql.DB, driver string) error {
	indexes := []struct {
		name  string
		table string
		ddl   string
	}{
		{"idx_map_attachments_issue", "migration_mapping_attachments", "CREATE INDEX idx_map_attachments_issue ON migration_mapping_attachments (jira_issue_id)"},
		{"idx_map_journals_issue", "migration_mapping_journals", "CREATE INDEX idx_map_journals_issue ON migration_mapping_journals (jira_issue_id)"},
		{"idx_map_watchers_issue", "migration_mapping_watchers", "CREATE INDEX idx_map_watchers_issue ON migration_mapping_watchers (jira_issue_id)"},
		{"idx_map_issues_parent", "migration_mapping_issues", "CREATE INDEX idx_map_issues_parent ON migration_mapping_issues (jira_parent_issue_id)"},
	}

	for _, idx := range indexes {
		exists, err := indexExists(db, driver, idx.table, idx.name)
		if err != nil {
			return fmt.Errorf("check index %s: %w", idx.name, err)
		}
		if exists {
			continue
		}
		if _, err := db.Exec(idx.ddl); err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}

func indexExists(db *sql.DB, driver, table, name string) (bool, error) {
	if driver == "sqlite3" {
		var count int
		err := db.QueryRow(
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?`, name,
		).Scan(&count)
		return count > 0, err
	}
	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM information_schema.statistics WHERE table_name = ? AND index_name = ?`,
		table, name,
	).Scan(&count)
	return count > 0, err
}
