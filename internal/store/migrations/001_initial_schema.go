package migrations

import "database/sql"

// MigrateInitialSchema creates every staging_* and migration_mapping_*
// table from spec.md §3/§6, plus the config and per-issue extract-state
// tables supporting tables used by JiraExtractor (spec.md §4.3) and the
// CLI's GetConfig/SetConfig (mirroring the teacher's
// internal/storage/sqlite/config.go shape).
func MigrateInitialSchema(db *sql.DB, driver string) error {
	ai := autoIncrement(driver)
	js := jsonType(driver)

	return exec(db,
		`CREATE TABLE IF NOT EXISTS config (
			key VARCHAR(191) PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// --- staging tables -------------------------------------------------
		`CREATE TABLE IF NOT EXISTS staging_jira_projects (
			jira_project_id VARCHAR(64) PRIMARY KEY,
			raw_payload `+js+` NOT NULL,
			extracted_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS staging_jira_users (
			jira_account_id VARCHAR(128) PRIMARY KEY,
			raw_payload `+js+` NOT NULL,
			extracted_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS staging_jira_issues (
			jira_issue_id VARCHAR(64) PRIMARY KEY,
			jira_issue_key VARCHAR(64),
			jira_project_id VARCHAR(64),
			raw_payload `+js+` NOT NULL,
			extracted_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS staging_jira_comments (
			jira_comment_id VARCHAR(64) PRIMARY KEY,
			jira_issue_id VARCHAR(64) NOT NULL,
			raw_payload `+js+` NOT NULL,
			extracted_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS staging_jira_changelog (
			jira_changelog_id VARCHAR(64) PRIMARY KEY,
			jira_issue_id VARCHAR(64) NOT NULL,
			raw_payload `+js+` NOT NULL,
			extracted_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS staging_jira_watchers (
			jira_issue_id VARCHAR(64) NOT NULL,
			jira_account_id VARCHAR(128) NOT NULL,
			raw_payload `+js+` NOT NULL,
			extracted_at DATETIME NOT NULL,
			PRIMARY KEY (jira_issue_id, jira_account_id)
		)`,
		`CREATE TABLE IF NOT EXISTS staging_jira_attachments (
			jira_attachment_id VARCHAR(64) PRIMARY KEY,
			jira_issue_id VARCHAR(64) NOT NULL,
			raw_payload `+js+` NOT NULL,
			extracted_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS staging_redmine_projects (
			redmine_project_id INTEGER PRIMARY KEY,
			raw_payload `+js+` NOT NULL,
			extracted_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS staging_redmine_users (
			redmine_user_id INTEGER PRIMARY KEY,
			raw_payload `+js+` NOT NULL,
			extracted_at DATETIME NOT NULL
		)`,

		// Per-issue extractor state for comments/changelog/watchers fetch
		// outcomes, spec.md §4.3: a WARNING on 401/403/404 that doesn't
		// block the run, a FAILED that makes the row eligible for retry.
		`CREATE TABLE IF NOT EXISTS issue_extract_state (
			jira_issue_id VARCHAR(64) NOT NULL,
			kind VARCHAR(32) NOT NULL,
			status VARCHAR(16) NOT NULL,
			message TEXT,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (jira_issue_id, kind)
		)`,

		// --- mapping tables --------------------------------------------------
		`CREATE TABLE IF NOT EXISTS migration_mapping_projects (
			mapping_id `+ai+`,
			jira_project_id VARCHAR(64) NOT NULL,
			redmine_project_id INTEGER,
			migration_status VARCHAR(40) NOT NULL DEFAULT 'PENDING_ANALYSIS',
			notes TEXT,
			proposed_identifier VARCHAR(100),
			proposed_name VARCHAR(255),
			proposed_description TEXT,
			proposed_is_public TINYINT,
			automation_hash VARCHAR(64),
			issues_extracted_at DATETIME,
			last_updated_at DATETIME NOT NULL,
			UNIQUE (jira_project_id)
		)`,
		`CREATE TABLE IF NOT EXISTS migration_mapping_users (
			mapping_id `+ai+`,
			jira_account_id VARCHAR(128) NOT NULL,
			redmine_user_id INTEGER,
			migration_status VARCHAR(40) NOT NULL DEFAULT 'PENDING_ANALYSIS',
			match_type VARCHAR(16),
			notes TEXT,
			proposed_redmine_login VARCHAR(255),
			proposed_redmine_mail VARCHAR(255),
			proposed_firstname VARCHAR(255),
			proposed_lastname VARCHAR(255),
			proposed_redmine_status VARCHAR(16),
			automation_hash VARCHAR(64),
			jira_display_name VARCHAR(255),
			jira_email_address VARCHAR(255),
			last_updated_at DATETIME NOT NULL,
			UNIQUE (jira_account_id)
		)`,
		`CREATE TABLE IF NOT EXISTS migration_mapping_issues (
			mapping_id `+ai+`,
			jira_issue_id VARCHAR(64) NOT NULL,
			jira_issue_key VARCHAR(64),
			jira_project_id VARCHAR(64),
			jira_issue_type_id VARCHAR(64),
			jira_status_id VARCHAR(64),
			jira_priority_id VARCHAR(64),
			jira_reporter_account_id VARCHAR(128),
			jira_assignee_account_id VARCHAR(128),
			jira_parent_issue_id VARCHAR(64),
			redmine_issue_id INTEGER,
			redmine_project_id INTEGER,
			redmine_tracker_id INTEGER,
			redmine_status_id INTEGER,
			redmine_priority_id INTEGER,
			redmine_author_id INTEGER,
			redmine_assigned_to_id INTEGER,
			redmine_parent_issue_id INTEGER,
			proposed_subject VARCHAR(255),
			proposed_description TEXT,
			proposed_start_date VARCHAR(10),
			proposed_due_date VARCHAR(10),
			proposed_done_ratio INTEGER,
			proposed_estimated_hours REAL,
			proposed_is_private TINYINT,
			proposed_project_id INTEGER,
			proposed_tracker_id INTEGER,
			proposed_status_id INTEGER,
			proposed_priority_id INTEGER,
			proposed_author_id INTEGER,
			proposed_assigned_to_id INTEGER,
			proposed_parent_issue_id INTEGER,
			migration_status VARCHAR(40) NOT NULL DEFAULT 'PENDING_ANALYSIS',
			notes TEXT,
			automation_hash VARCHAR(64),
			last_updated_at DATETIME NOT NULL,
			UNIQUE (jira_issue_id)
		)`,
		`CREATE TABLE IF NOT EXISTS migration_mapping_attachments (
			mapping_id `+ai+`,
			jira_attachment_id VARCHAR(64) NOT NULL,
			jira_issue_id VARCHAR(64) NOT NULL,
			jira_filesize INTEGER,
			association_hint VARCHAR(16),
			migration_status VARCHAR(40) NOT NULL DEFAULT 'PENDING_DOWNLOAD',
			local_filepath TEXT,
			redmine_upload_token VARCHAR(255),
			redmine_attachment_id INTEGER,
			redmine_issue_id INTEGER,
			sharepoint_url TEXT,
			notes TEXT,
			download_enabled TINYINT NOT NULL DEFAULT 1,
			upload_enabled TINYINT NOT NULL DEFAULT 1,
			automation_hash VARCHAR(64),
			last_updated_at DATETIME NOT NULL,
			UNIQUE (jira_attachment_id)
		)`,
		`CREATE TABLE IF NOT EXISTS migration_mapping_journals (
			mapping_id `+ai+`,
			jira_entity_id VARCHAR(64) NOT NULL,
			jira_issue_id VARCHAR(64) NOT NULL,
			entity_type VARCHAR(16) NOT NULL,
			migration_status VARCHAR(40) NOT NULL DEFAULT 'PENDING',
			notes TEXT,
			proposed_notes TEXT,
			proposed_author_id INTEGER,
			proposed_created_on DATETIME,
			proposed_updated_on DATETIME,
			redmine_journal_id INTEGER,
			automation_hash VARCHAR(64),
			last_updated_at DATETIME NOT NULL,
			UNIQUE (jira_entity_id, entity_type)
		)`,
		`CREATE TABLE IF NOT EXISTS migration_mapping_watchers (
			mapping_id `+ai+`,
			jira_issue_id VARCHAR(64) NOT NULL,
			jira_issue_key VARCHAR(64),
			jira_account_id VARCHAR(128) NOT NULL,
			redmine_issue_id INTEGER,
			redmine_user_id INTEGER,
			migration_status VARCHAR(40) NOT NULL DEFAULT 'PENDING_ANALYSIS',
			notes TEXT,
			last_updated_at DATETIME NOT NULL,
			UNIQUE (jira_issue_id, jira_account_id)
		)`,
	)
}
