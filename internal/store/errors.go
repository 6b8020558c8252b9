package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// Sentinel errors for common database conditions, following the teacher's
// internal/storage/sqlite/errors.go convention.
var (
	ErrNotFound       = errors.New("not found")
	ErrManualOverride = errors.New("mapping row is a manual override")
	ErrOutOfOrder     = errors.New("entity family invoked out of migration order")
)

// wrapDBError wraps a database error with operation context, converting
// sql.ErrNoRows to ErrNotFound for consistent error handling across callers.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
