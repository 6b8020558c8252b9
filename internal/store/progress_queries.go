package store

import (
	"context"
	"database/sql"
)

// FamilyProgress is one migration_progress row: the last phase a given
// entity family completed, for the PhaseOrchestrator's cross-invocation
// ordering check, spec.md §4.10.
type FamilyProgress struct {
	Family             string
	LastCompletedPhase string
}

// GetFamilyProgress returns the last completed phase for family, and false
// if the family has never completed a phase.
func (s *Store) GetFamilyProgress(ctx context.Context, family string) (FamilyProgress, bool, error) {
	var phase sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT last_completed_phase FROM migration_progress WHERE family = ?`, family).Scan(&phase)
	if err == sql.ErrNoRows {
		return FamilyProgress{}, false, nil
	}
	if err != nil {
		return FamilyProgress{}, false, wrapDBError("get family progress", err)
	}
	return FamilyProgress{Family: family, LastCompletedPhase: phase.String}, true, nil
}

// MarkFamilyPhaseComplete records that family has completed phase,
// upserting the migration_progress row.
func (s *Store) MarkFamilyPhaseComplete(ctx context.Context, family, phase string) error {
	query := `
		INSERT INTO migration_progress (family, last_completed_phase, last_completed_at)
		VALUES (?, ?, ?) ` + s.upsertClause("family", []string{"last_completed_phase", "last_completed_at"})
	_, err := s.db.ExecContext(ctx, query, family, phase, nowUTC())
	return wrapDBError("mark family phase complete", err)
}
