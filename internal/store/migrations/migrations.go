// Package migrations holds the numbered, idempotent schema steps applied
// to the mapping database, following the teacher's
// internal/storage/sqlite/migrations convention: one function per schema
// change, safe to run against a database that may already have it applied.
package migrations

import (
	"database/sql"
	"fmt"
)

// Migration is one schema step. Apply must be safe to run more than once
// against the same database (idempotent CREATE TABLE IF NOT EXISTS /
// existence-checked ALTER TABLE), since Store.MigrateSchema runs every
// migration on every process start.
type Migration struct {
	Version int
	Name    string
	Apply   func(db *sql.DB, driver string) error
}

// All is the ordered list of migrations. Append, never reorder or remove.
var All = []Migration{
	{Version: 1, Name: "initial_schema", Apply: MigrateInitialSchema},
	{Version: 2, Name: "migration_progress_table", Apply: MigrateMigrationProgressTable},
	{Version: 3, Name: "attachment_and_extract_indexes", Apply: MigrateAttachmentAndExtractIndexes},
	{Version: 4, Name: "operator_mapping_tables", Apply: MigrateOperatorMappingTables},
}

// RunAll applies every migration in All inside the schema_migrations
// bookkeeping table, skipping versions already recorded as applied.
func RunAll(db *sql.DB, driver string) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name VARCHAR(128) NOT NULL,
		applied_at DATETIME NOT NULL
	)`); err != nil {
		return fmt.Errorf("migrations: create schema_migrations: %w", err)
	}

	for _, m := range All {
		var applied int
		row := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, m.Version)
		if err := row.Scan(&applied); err != nil {
			return fmt.Errorf("migrations: check version %d: %w", m.Version, err)
		}
		if applied > 0 {
			continue
		}
		if err := m.Apply(db, driver); err != nil {
			return fmt.Errorf("migrations: apply %d_%s: %w", m.Version, m.Name, err)
		}
		if _, err := db.Exec(
			`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, CURRENT_TIMESTAMP)`,
			m.Version, m.Name,
		); err != nil {
			return fmt.Errorf("migrations: record version %d: %w", m.Version, err)
		}
	}
	return nil
}

// autoIncrement returns the driver-appropriate surrogate primary key clause.
// SQLite requires "INTEGER PRIMARY KEY AUTOINCREMENT"; MySQL and Dolt (which
// speaks the MySQL dialect) require "INTEGER PRIMARY KEY AUTO_INCREMENT".
func autoIncrement(driver string) string {
	if driver == "sqlite3" {
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	return "INTEGER PRIMARY KEY AUTO_INCREMENT"
}

// jsonType returns the driver-appropriate column type for a raw JSON
// payload blob. SQLite has no native JSON type and stores it as TEXT via
// type affinity; MySQL/Dolt have a native JSON type.
func jsonType(driver string) string {
	if driver == "sqlite3" {
		return "TEXT"
	}
	return "JSON"
}

func exec(db *sql.DB, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}
