package lattice_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/pthm/lattice"
)

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name string
		err  error
		is   func(error) bool
	}{
		{"IsInvalidSchemaErr", lattice.ErrInvalidSchema, lattice.IsInvalidSchemaErr},
		{"IsUnknownTableErr", lattice.ErrUnknownTable, lattice.IsUnknownTableErr},
		{"IsMissingAuthFunctionsErr", lattice.ErrMissingAuthFunctions, lattice.IsMissingAuthFunctionsErr},
		{"IsInvalidSessionErr", lattice.ErrInvalidSession, lattice.IsInvalidSessionErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.is(fmt.Errorf("wrapped: %w", tt.err)) {
				t.Errorf("%s should return true for wrapped %v", tt.name, tt.err)
			}
			if tt.is(errors.New("other error")) {
				t.Errorf("%s should return false for other errors", tt.name)
			}
		})
	}
}

type stateErr string

func (e stateErr) Error() string    { return "state " + string(e) }
func (e stateErr) SQLState() string { return string(e) }

func TestSQLState(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"pgx", &pgconn.PgError{Code: "23505"}, "23505"},
		{"wrapped pgx", fmt.Errorf("applying: %w", &pgconn.PgError{Code: "23502"}), "23502"},
		{"lib/pq", &pq.Error{Code: "23514"}, "23514"},
		{"SQLState method", stateErr("42501"), "42501"},
		{"plain", errors.New("boom"), ""},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := lattice.SQLState(tt.err); got != tt.want {
				t.Errorf("SQLState() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConstraintClassifiers(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505"}
	notNull := &pq.Error{Code: "23502"}
	check := &pgconn.PgError{Code: "23514"}
	fk := &pgconn.PgError{Code: "23503"}
	policy := &pgconn.PgError{Code: "42501"}

	if !lattice.IsUniqueViolation(unique) || lattice.IsUniqueViolation(notNull) {
		t.Error("IsUniqueViolation misclassified")
	}
	if !lattice.IsNotNullViolation(notNull) || lattice.IsNotNullViolation(unique) {
		t.Error("IsNotNullViolation misclassified")
	}
	if !lattice.IsCheckViolation(check) {
		t.Error("IsCheckViolation should match 23514")
	}
	if !lattice.IsForeignKeyViolation(fk) {
		t.Error("IsForeignKeyViolation should match 23503")
	}
	for _, err := range []error{unique, notNull, check, fk} {
		if !lattice.IsConstraintViolation(err) {
			t.Errorf("IsConstraintViolation(%v) = false", err)
		}
	}
	if lattice.IsConstraintViolation(policy) {
		t.Error("IsConstraintViolation should not match 42501")
	}
	if !lattice.IsPolicyViolation(policy) {
		t.Error("IsPolicyViolation should match 42501")
	}
}
