// Package sql provides embedded SQL files for lattice infrastructure.
package sql

import (
	_ "embed"
)

// AuthSQL creates the auth schema and the session functions compiled
// policies call: auth.user_id(), auth.is_authenticated(),
// auth.user_has_role(text) and auth.user_property(text).
//
// Applied via CREATE OR REPLACE FUNCTION for idempotence.
//
//go:embed auth.sql
var AuthSQL string

// MigrationsSQL creates the lattice_migrations tracking table.
//
//go:embed migrations.sql
var MigrationsSQL string
