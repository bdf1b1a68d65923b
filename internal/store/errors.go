package store

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres error codes, see https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// IsUniqueViolation reports whether err is a unique constraint violation on
// either backend. SQLite errors are matched on message text because the
// modernc driver does not export stable error codes through database/sql.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return true
	}
	return false
}

// IsForeignKeyViolation reports whether err is a foreign key constraint
// violation on either backend.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgForeignKeyViolation
	}
	if err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
		return true
	}
	return false
}
