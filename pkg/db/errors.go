package db

import (
	"strings"

	pkgerrors "github.com/openfoodnetwork/ofn-backend/pkg/errors"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// IsUniqueViolation reports whether err is a unique constraint violation on
// Postgres (pgx or lib/pq) or SQLite. A non-empty constraintName must match;
// SQLite only reports columns so any of its violations match.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if pg, ok := pkgerrors.Postgres(err); ok {
		return pg.Code == pgUniqueViolation && (constraintName == "" || pg.Constraint == constraintName)
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return true
	}
	if !strings.Contains(msg, "duplicate key value") {
		return false
	}
	return constraintName == "" || strings.Contains(msg, constraintName)
}

// IsTransient reports serialization failures and deadlocks, the errors a
// transaction may be replayed after.
func IsTransient(err error) bool {
	pg, ok := pkgerrors.Postgres(err)
	return ok && (pg.Code == pgSerializationFailure || pg.Code == pgDeadlockDetected)
}
