package migrations

import "database/sql"

// MigrateOperatorMappingTables adds the three operator-maintained lookup
// tables spec.md §4.4 calls for: "Additional lookups (trackers, statuses,
// priorities) are sourced from operator-maintained mapping tables rather
// than Redmine, because mapping decisions must be explicit." DependencyResolver
// reads these in full once per Transform run.
func MigrateOperatorMappingTables(db *sql.DB, _ string) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS migration_tracker_map (
			jira_issue_type_id VARCHAR(64) PRIMARY KEY,
			redmine_tracker_id INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS migration_status_map (
			jira_status_id VARCHAR(64) PRIMARY KEY,
			redmine_status_id INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS migration_priority_map (
			jira_priority_id VARCHAR(64) PRIMARY KEY,
			redmine_priority_id INTEGER NOT NULL
		)`,
	}
	for _, ddl := range tables {
		if err := exec(db, ddl); err != nil {
			return err
		}
	}
	return nil
}
