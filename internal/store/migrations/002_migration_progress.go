package migrations

import "database/sql"

// MigrateMigrationProgressTable adds the bookkeeping table the
// PhaseOrchestrator uses to enforce spec.md §4.10's cross-invocation family
// ordering (projects -> users -> issues -> attachments -> journals ->
// watchers -> subtasks): one row per family recording the last phase that
// completed successfully.
func MigrateMigrationProgressTable(db *sql.DB, _ string) error {
	return exec(db, `CREATE TABLE IF NOT EXISTS migration_progress (
		family VARCHAR(32) PRIMARY KEY,
		last_completed_phase VARCHAR(16),
		last_completed_at DATETIME
	)`)
}
