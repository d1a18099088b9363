package lattice

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Sentinel errors for setup and usage problems. A denied action is not an
// error: reads return no rows and Decide returns DecisionDeny.
//
// Use the Is*Err helper functions to check for specific errors.
var (
	// ErrInvalidSchema is returned when a schema document cannot be parsed or
	// fails validation. The pkg/schema Is*Err helpers classify the cause.
	ErrInvalidSchema = errors.New("lattice: invalid schema")

	// ErrUnknownTable is returned when a table is not part of the schema the
	// Checker was built from.
	ErrUnknownTable = errors.New("lattice: unknown table")

	// ErrMissingAuthFunctions is returned when the auth schema functions the
	// policies call do not exist. Run `lattice migrate` to install them.
	ErrMissingAuthFunctions = errors.New("lattice: auth functions missing")

	// ErrInvalidSession is returned when a Session cannot be bound, for
	// example because its user id is not a uuid.
	ErrInvalidSession = errors.New("lattice: invalid session")
)

// IsInvalidSchemaErr returns true if err is or wraps ErrInvalidSchema.
func IsInvalidSchemaErr(err error) bool {
	return errors.Is(err, ErrInvalidSchema)
}

// IsUnknownTableErr returns true if err is or wraps ErrUnknownTable.
func IsUnknownTableErr(err error) bool {
	return errors.Is(err, ErrUnknownTable)
}

// IsMissingAuthFunctionsErr returns true if err is or wraps ErrMissingAuthFunctions.
func IsMissingAuthFunctionsErr(err error) bool {
	return errors.Is(err, ErrMissingAuthFunctions)
}

// IsInvalidSessionErr returns true if err is or wraps ErrInvalidSession.
func IsInvalidSessionErr(err error) bool {
	return errors.Is(err, ErrInvalidSession)
}

// PostgreSQL error codes.
const (
	pgUndefinedTable        = "42P01" // undefined_table
	pgUndefinedFunction     = "42883" // undefined_function
	pgInvalidSchemaName     = "3F000" // invalid_schema_name
	pgInsufficientPrivilege = "42501" // insufficient_privilege
	pgUniqueViolation       = "23505" // unique_violation
	pgNotNullViolation      = "23502" // not_null_violation
	pgCheckViolation        = "23514" // check_violation
	pgForeignKeyViolation   = "23503" // foreign_key_violation
)

// SQLState returns the SQLSTATE code of a PostgreSQL error raised by pgx or
// lib/pq, or "" when err carries none.
func SQLState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	type sqlStateErr interface{ SQLState() string }
	var se sqlStateErr
	if errors.As(err, &se) {
		return se.SQLState()
	}
	return ""
}

// The constraint helpers below classify database errors without changing
// them; callers should surface err.Error() as is.

// IsUniqueViolation reports a duplicate key value.
func IsUniqueViolation(err error) bool {
	return SQLState(err) == pgUniqueViolation
}

// IsNotNullViolation reports a NULL in a required column.
func IsNotNullViolation(err error) bool {
	return SQLState(err) == pgNotNullViolation
}

// IsCheckViolation reports a value outside a field's bounds or options.
func IsCheckViolation(err error) bool {
	return SQLState(err) == pgCheckViolation
}

// IsForeignKeyViolation reports a user reference to a missing user.
func IsForeignKeyViolation(err error) bool {
	return SQLState(err) == pgForeignKeyViolation
}

// IsConstraintViolation reports any of the constraint violations above.
func IsConstraintViolation(err error) bool {
	switch SQLState(err) {
	case pgUniqueViolation, pgNotNullViolation, pgCheckViolation, pgForeignKeyViolation:
		return true
	default:
		return false
	}
}

// IsPolicyViolation reports a write rejected by a policy's WITH CHECK clause
// ("new row violates row-level security policy").
func IsPolicyViolation(err error) bool {
	return SQLState(err) == pgInsufficientPrivilege
}
