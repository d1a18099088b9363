// Package sqlgen compiles declarative table schemas into PostgreSQL DDL and
// row level security policies.
//
// # Overview
//
// The compiler is a pure function of its input: the same tables and Options
// always produce the same statements in the same order. It performs no I/O;
// pkg/migrator applies the output inside one transaction.
//
// # Pipeline
//
// Compilation runs in three phases per table, after schema.Validate has
// accepted the whole schema:
//
//  1. Columns: CREATE TABLE IF NOT EXISTS with the primary key, then
//     ADD COLUMN IF NOT EXISTS per field. Column types come from SQLType.
//  2. Constraints: StaleConstraints drops the NOT NULL, constraints and
//     index a field no longer declares, then FieldConstraints derives NOT
//     NULL, UNIQUE, CHECK, foreign key and index statements from each
//     field's modifiers.
//  3. Policies: PlanTable gives every action an explicit Outcome, and the
//     outcomes are rendered as ENABLE ROW LEVEL SECURITY plus one
//     DROP POLICY IF EXISTS / CREATE POLICY pair per action.
//
// # Outcomes
//
// Each of read, create, update and delete compiles to exactly one of:
//
//   - OutcomeUnconditional: a public rule. If every action is public the
//     table gets no RLS at all; otherwise the action gets a policy of true.
//   - OutcomePolicy: a predicate built from the rule and record conditions.
//   - OutcomeDenyAll: nothing grants the action, so no policy is created and
//     RLS filters every row.
//
// # Record Conditions
//
// Record conditions are parsed by internal/condition into a typed tree and
// rendered through sqldsl; they are never spliced into SQL as text.
// Placeholders map to the session functions in the auth schema:
//
//	{userId}          auth.user_id()
//	{user.department} auth.user_property('department')
//
// Grouping is explicit in the output, so
//
//	a = 'x' OR b = 'y' AND c = 'z'
//
// renders as (a = 'x' OR (b = 'y' AND c = 'z')).
//
// # Naming
//
// Generated objects follow fixed patterns (see naming.go):
//
//	idx_<table>_<field>      explicit index
//	<table>_<field>_key      unique constraint
//	<table>_<field>_check    range / options check
//	<table>_<field>_fkey     user foreign key
//	<table>_<action>_policy  RLS policy
package sqlgen
