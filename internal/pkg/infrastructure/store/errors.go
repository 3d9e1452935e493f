package store

import (
	"errors"
	"strings"
)

// The Store is a neutral persistence contract (§4.B): it surfaces exactly
// these four error kinds and nothing more domain-specific. Adapted from the
// teacher's infrastructure/storage sentinel-error family (ErrNoRows,
// ErrTooManyRows, ErrStoreFailed, ...).
var (
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrNotFound         = errors.New("not found")
	ErrConflictUnique   = errors.New("conflicting unique value")
	ErrInvalid          = errors.New("invalid argument")
)

// isUniqueViolation detects sqlite's unique-constraint error by message,
// since the sqlite driver does not expose a typed sentinel for it the way
// pgx does for Postgres.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToUpper(err.Error()), "UNIQUE CONSTRAINT")
}
