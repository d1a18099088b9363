package sqlgen

import "github.com/pthm/lattice/pkg/schema"

// Object names derived from table and field names. Unique, check and foreign
// key names match the ones PostgreSQL generates by default.

// IndexName returns the name of the explicit index on an indexed field.
func IndexName(table, field string) string {
	return "idx_" + table + "_" + field
}

// UniqueConstraintName returns the name of a field's UNIQUE constraint.
func UniqueConstraintName(table, field string) string {
	return table + "_" + field + "_key"
}

// CheckConstraintName returns the name of a field's range or options CHECK.
func CheckConstraintName(table, field string) string {
	return table + "_" + field + "_check"
}

// ForeignKeyName returns the name of a user field's foreign key.
func ForeignKeyName(table, field string) string {
	return table + "_" + field + "_fkey"
}

// PolicyName returns the name of the policy governing action on table.
func PolicyName(table string, action schema.Action) string {
	return table + "_" + string(action) + "_policy"
}
