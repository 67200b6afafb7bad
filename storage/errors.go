package storage

import (
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgconn"
)

//  P0002	no_data_found
// 42501	insufficient_privilege
// 23503	foreign_key_violation
// 23505	unique_violation

const (
	AUTH_CODE          = "42501"
	RESOURCE_CODE      = "P0002"
	INCONSISTENCY_CODE = "23503"
	DUPLICATE_CODE     = "23505"
)

// FindCodeInPSQLException returns the postgres error code within sourceError, empty if none
func FindCodeInPSQLException(sourceError error) string {
	var pgErr *pgconn.PgError
	var result string
	if errors.As(sourceError, &pgErr) {
		result = pgErr.Code
	}

	return result
}
