package store

import (
	"context"
	"database/sql"
)

// SetConfig sets an operator-maintained configuration value (e.g. default
// tracker/status/priority fallbacks the Reconciler uses per spec.md §4.6),
// following the teacher's internal/storage/sqlite/config.go upsert shape.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	query := `INSERT INTO config (key, value) VALUES (?, ?) ` + s.upsertClause("key", []string{"value"})
	_, err := s.db.ExecContext(ctx, query, key, value)
	return wrapDBError("set config", err)
}

// GetConfig returns the configuration value for key, or "" if unset.
func (s *Store) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, wrapDBError("get config", err)
}
