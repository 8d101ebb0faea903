package pkg

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// https://www.postgresql.org/docs/current/errcodes-appendix.html

// IsUndefinedTableError checks if the error is an undefined table error
func IsUndefinedTableError(err error) bool {
	return pgErrorCode(err) == "42P01"
}

// IsInsufficientPrivilegeError checks if the error is an insufficient privilege error
func IsInsufficientPrivilegeError(err error) bool {
	return pgErrorCode(err) == "42501"
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
