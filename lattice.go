// Package lattice compiles declarative table schemas into PostgreSQL DDL and
// row level security policies, and enforces them at runtime.
//
// # Module Structure
//
//   - github.com/pthm/lattice (this package): runtime Checker, sessions,
//     decisions and errors.
//   - pkg/schema: schema types and validation.
//   - pkg/parser: JSON / YAML schema documents.
//   - pkg/compiler: DDL and policy compilation.
//   - pkg/migrator: applying compiled schemas to a database.
//
// # Enforcement Model
//
// Permissions are compiled into RLS policies that call functions in the auth
// schema (auth.user_id(), auth.user_has_role(text), ...). Those functions
// read transaction-local settings, so every request binds its Session at the
// start of a transaction and PostgreSQL does the filtering:
//
//	checker, _ := lattice.NewChecker(db, tables, lattice.WithRole("app_user"))
//	err := checker.WithSession(ctx, session, func(tx *sql.Tx) error {
//	    rows, err := tx.QueryContext(ctx, "SELECT * FROM posts")
//	    ...
//	})
//
// Rows a session may not see are filtered out, never reported as errors.
//
// # Decisions
//
// API layers that need to answer 403 rather than an empty list ask the
// Checker first:
//
//	d, err := checker.Decide(ctx, "posts", schema.ActionRead, session)
//	switch d {
//	case lattice.DecisionDeny:   // 403
//	case lattice.DecisionFilter: // run the query; RLS filters rows
//	case lattice.DecisionAllow:  // run the query; every row is visible
//	}
//
// Decide only evaluates the table level rule against the session. Record
// conditions depend on row data and always yield DecisionFilter.
//
// # Superusers
//
// PostgreSQL superusers and table owners bypass RLS. Connect as an ordinary
// role, compile with ForceRLS, or use WithRole to switch to a restricted role
// inside each transaction.
package lattice

import (
	"context"
	"database/sql"
)

// Querier is the minimal interface for database operations.
// Implemented by *sql.DB, *sql.Tx, and *sql.Conn.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB is a Querier that can start transactions. Implemented by *sql.DB and
// *sql.Conn.
type DB interface {
	Querier
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Session setting names read by the auth schema functions.
const (
	SettingUserID         = "app.user_id"
	SettingUserRoles      = "app.user_roles"
	SettingUserProperties = "app.user_properties"
)
