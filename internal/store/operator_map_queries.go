package store

import "context"

// GetTrackerMap, GetStatusMap, and GetPriorityMap return the full contents
// of the operator-maintained lookup tables migration 004 adds, for
// DependencyResolver.Build (spec.md §4.4/§4.7: "sourced from operator-
// maintained mapping tables rather than Redmine, because mapping decisions
// must be explicit").

func (s *Store) GetTrackerMap(ctx context.Context) (map[string]int64, error) {
	return s.readIDMap(ctx, "migration_tracker_map", "jira_issue_type_id", "redmine_tracker_id")
}

func (s *Store) GetStatusMap(ctx context.Context) (map[string]int64, error) {
	return s.readIDMap(ctx, "migration_status_map", "jira_status_id", "redmine_status_id")
}

func (s *Store) GetPriorityMap(ctx context.Context) (map[string]int64, error) {
	return s.readIDMap(ctx, "migration_priority_map", "jira_priority_id", "redmine_priority_id")
}

func (s *Store) readIDMap(ctx context.Context, table, keyCol, valCol string, where ...string) (map[string]int64, error) {
	query := "SELECT " + keyCol + ", " + valCol + " FROM " + table
	if len(where) > 0 && where[0] != "" {
		query += " WHERE " + where[0]
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapDBError("read "+table, err)
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var k string
		var v int64
		if err := rows.Scan(&k, &v); err != nil {
			return nil, wrapDBError("scan "+table, err)
		}
		out[k] = v
	}
	return out, wrapDBError("iterate "+table, rows.Err())
}

// SetTrackerMapping, SetStatusMapping, and SetPriorityMapping let an
// operator populate one entry of a lookup table (e.g. from a one-off setup
// command), upserting via the cross-driver conflict clause every other
// mapping write in this package uses.

func (s *Store) SetTrackerMapping(ctx context.Context, jiraIssueTypeID string, redmineTrackerID int64) error {
	return s.upsertIDMapping(ctx, "migration_tracker_map", "jira_issue_type_id", "redmine_tracker_id", jiraIssueTypeID, redmineTrackerID)
}

func (s *Store) SetStatusMapping(ctx context.Context, jiraStatusID string, redmineStatusID int64) error {
	return s.upsertIDMapping(ctx, "migration_status_map", "jira_status_id", "redmine_status_id", jiraStatusID, redmineStatusID)
}

func (s *Store) SetPriorityMapping(ctx context.Context, jiraPriorityID string, redminePriorityID int64) error {
	return s.upsertIDMapping(ctx, "migration_priority_map", "jira_priority_id", "redmine_priority_id", jiraPriorityID, redminePriorityID)
}

func (s *Store) upsertIDMapping(ctx context.Context, table, keyCol, valCol, key string, val int64) error {
	query := "INSERT INTO " + table + " (" + keyCol + ", " + valCol + ") VALUES (?, ?) " +
		s.upsertClause(keyCol, []string{valCol})
	_, err := s.db.ExecContext(ctx, query, key, val)
	return wrapDBError("upsert "+table, err)
}
