package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolationCode = "23505"

// IsUniqueViolation reports whether err is a unique constraint violation. When
// constraints are provided only violations naming one of them match; sqlite reports
// "table.column" rather than the constraint name, so callers may pass both.
func IsUniqueViolation(err error, constraints ...string) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != uniqueViolationCode {
			return false
		}
		return matchesAny(pgErr.ConstraintName, constraints)
	}

	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	for _, name := range constraints {
		if name != "" && strings.Contains(msg, name) {
			return true
		}
	}
	return len(nonEmpty(constraints)) == 0
}

func matchesAny(constraint string, constraints []string) bool {
	names := nonEmpty(constraints)
	if len(names) == 0 {
		return true
	}
	for _, name := range names {
		if constraint == name {
			return true
		}
	}
	return false
}

func nonEmpty(values []string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
