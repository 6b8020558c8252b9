package store

import (
	"context"

	"github.com/jcatrysse/jira2redmine/internal/store/migrations"
)

// MigrateSchema applies every pending schema migration. It is safe to call
// on every process start: already-applied migrations are skipped.
func (s *Store) MigrateSchema(ctx context.Context) error {
	_ = ctx // migrations run synchronously against *sql.DB; ctx reserved for future cancellation support
	return migrations.RunAll(s.db, s.Driver)
}
