// Package compiler provides public APIs for compiling lattice schemas to SQL.
//
// This is a thin wrapper around internal/sqlgen that exposes only the public
// types and functions needed by external consumers. For applying the output
// to a database, use pkg/migrator instead.
package compiler

import (
	"github.com/pthm/lattice/internal/sqlgen"
)

// Options tunes compilation (FORCE ROW LEVEL SECURITY, users table).
type Options = sqlgen.Options

// CompiledSchema holds the DDL and policy statements of every table.
type CompiledSchema = sqlgen.CompiledSchema

// CompiledTable holds the statements of one table.
type CompiledTable = sqlgen.CompiledTable

// TablePlan is the per-action access outcome of a table.
type TablePlan = sqlgen.TablePlan

// ActionPlan is the access outcome of one action.
type ActionPlan = sqlgen.ActionPlan

// Outcome is deny-all, unconditional or policy.
type Outcome = sqlgen.Outcome

// Outcomes.
const (
	OutcomeDenyAll       = sqlgen.OutcomeDenyAll
	OutcomeUnconditional = sqlgen.OutcomeUnconditional
	OutcomePolicy        = sqlgen.OutcomePolicy
)

// Compile validates tables and compiles them to DDL and RLS policies.
var Compile = sqlgen.Compile

// CompileTable compiles a single, already validated table.
var CompileTable = sqlgen.CompileTable

// PlanTable derives the access outcome of every action of a table.
var PlanTable = sqlgen.PlanTable

// SQLType returns the column type of a field type.
var SQLType = sqlgen.SQLType
