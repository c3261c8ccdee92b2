package db

import (
	"strings"

	pkgerrors "github.com/jasoncmcclain/mcpmp-api/pkg/errors"
)

// SQLSTATE codes for the constraint classes the engine maps to domain errors.
const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
	pgForeignKey      = "23503"
)

// violation matches a Postgres error by SQLSTATE, or the sqlite message text
// when the chain carries no Postgres error.
func violation(err error, code string, sqliteText ...string) (pkgerrors.PGError, bool) {
	if err == nil {
		return pkgerrors.PGError{}, false
	}
	if pg, ok := pkgerrors.Postgres(err); ok {
		return pg, pg.Code == code
	}
	msg := err.Error()
	for _, text := range sqliteText {
		if strings.Contains(msg, text) {
			return pkgerrors.PGError{}, true
		}
	}
	return pkgerrors.PGError{}, false
}

// IsUniqueViolation reports whether err is a unique violation, optionally of
// the named constraint. sqlite names columns, not constraints, so the name is
// matched against the message there.
func IsUniqueViolation(err error, constraintName string) bool {
	pg, ok := violation(err, pgUniqueViolation, "duplicate key value", "UNIQUE constraint failed")
	if !ok || constraintName == "" {
		return ok
	}
	if pg.Code != "" {
		return pg.Constraint == constraintName
	}
	return strings.Contains(err.Error(), constraintName)
}

// IsCheckViolation reports whether err was raised by a CHECK constraint, such
// as the grape lot balance checks.
func IsCheckViolation(err error) bool {
	_, ok := violation(err, pgCheckViolation, "violates check constraint", "CHECK constraint failed")
	return ok
}

// IsForeignKeyViolation reports whether err was raised by a missing referenced row.
func IsForeignKeyViolation(err error) bool {
	_, ok := violation(err, pgForeignKey, "violates foreign key constraint", "FOREIGN KEY constraint failed")
	return ok
}
