package sqlgen

import (
	"fmt"
	"strings"

	"github.com/pthm/lattice/internal/sqlgen/sqldsl"
	"github.com/pthm/lattice/pkg/schema"
)

// Options tunes compilation.
type Options struct {
	// ForceRLS adds FORCE ROW LEVEL SECURITY so policies also apply to the
	// table owner.
	ForceRLS bool

	// UsersTable, when set, makes every user field a foreign key to
	// <UsersTable>(id).
	UsersTable string
}

// onDeleteUser keeps rows whose optional user reference is deleted.
func (o Options) onDeleteUser(f schema.Field) string {
	if f.Required {
		return ""
	}
	return "SET NULL"
}

// CompiledTable holds the statements for one table.
type CompiledTable struct {
	Name string
	Plan TablePlan

	// DDL creates the table, adds columns, constraints and indexes.
	DDL []string

	// Policies enables row level security and replaces the table's policies.
	// Empty when every action is unconditional.
	Policies []string

	// PolicyNames lists the policies created by Policies.
	PolicyNames []string
}

// All returns the table's statements in emission order.
func (t CompiledTable) All() []string {
	all := make([]string, 0, len(t.DDL)+len(t.Policies))
	all = append(all, t.DDL...)
	return append(all, t.Policies...)
}

// CompiledSchema is the result of compiling a schema.
type CompiledSchema struct {
	Tables []CompiledTable
}

// Statements returns the DDL of every table, in table order.
func (s CompiledSchema) Statements() []string {
	var out []string
	for _, t := range s.Tables {
		out = append(out, t.DDL...)
	}
	return out
}

// Policies returns the RLS statements of every table, in table order.
func (s CompiledSchema) Policies() []string {
	var out []string
	for _, t := range s.Tables {
		out = append(out, t.Policies...)
	}
	return out
}

// All returns every statement: each table's DDL followed by its policies,
// tables in declaration order.
func (s CompiledSchema) All() []string {
	var out []string
	for _, t := range s.Tables {
		out = append(out, t.All()...)
	}
	return out
}

// TableNames returns the compiled table names in order.
func (s CompiledSchema) TableNames() []string {
	names := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		names[i] = t.Name
	}
	return names
}

// PolicyNames returns every created policy name.
func (s CompiledSchema) PolicyNames() []string {
	var names []string
	for _, t := range s.Tables {
		names = append(names, t.PolicyNames...)
	}
	return names
}

// Table returns the compiled table named name.
func (s CompiledSchema) Table(name string) (CompiledTable, bool) {
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return CompiledTable{}, false
}

// SQL renders All as a script, one statement per line block.
func (s CompiledSchema) SQL() string {
	var sb strings.Builder
	for _, stmt := range s.All() {
		sb.WriteString(stmt)
		sb.WriteString(";\n")
	}
	return sb.String()
}

// Compile validates tables and compiles them to DDL and policies.
// Nothing is compiled when validation fails; the error joins every problem
// found (see the schema.Is*Err helpers).
func Compile(tables []schema.Table, opts Options) (CompiledSchema, error) {
	if err := schema.Validate(tables); err != nil {
		return CompiledSchema{}, err
	}
	if err := checkUsersTable(tables, opts); err != nil {
		return CompiledSchema{}, err
	}

	out := CompiledSchema{Tables: make([]CompiledTable, 0, len(tables))}
	for _, t := range tables {
		ct, err := CompileTable(t, opts)
		if err != nil {
			return CompiledSchema{}, err
		}
		out.Tables = append(out.Tables, ct)
	}
	return out, nil
}

// checkUsersTable requires a users table declared in the schema to come
// before any table whose foreign keys point at it, and to have a uuid key.
func checkUsersTable(tables []schema.Table, opts Options) error {
	if opts.UsersTable == "" {
		return nil
	}
	declared := -1
	for i, t := range tables {
		if t.Name == opts.UsersTable {
			declared = i
			break
		}
	}
	if declared < 0 {
		return nil
	}
	if pk := tables[declared].PrimaryKeyOrDefault(); pk.Type != schema.PrimaryKeyUUID || pk.Field != schema.DefaultPrimaryKeyField {
		return fmt.Errorf("%w: users table %q must have a uuid primary key named %q", schema.ErrInvalidPrimaryKey, opts.UsersTable, schema.DefaultPrimaryKeyField)
	}
	for _, t := range tables[:declared] {
		for _, f := range t.Fields {
			if f.Type == schema.TypeUser {
				return fmt.Errorf("table %q references users table %q, which must be declared first", t.Name, opts.UsersTable)
			}
		}
	}
	return nil
}

// CompileTable compiles a single, already validated table.
//
// Statements are emitted in a fixed order: create table (primary key), add
// columns, removal of constraints and indexes no longer declared, per-field
// constraints and indexes, enable row level security, policies. No statement depends on a later one.
func CompileTable(t schema.Table, opts Options) (CompiledTable, error) {
	ct := CompiledTable{Name: t.Name}

	create, keyCols, err := createTable(t)
	if err != nil {
		return CompiledTable{}, err
	}
	ct.DDL = append(ct.DDL, create.SQL())

	for _, f := range t.Fields {
		if keyCols[f.Name] {
			continue
		}
		def, err := columnDef(f)
		if err != nil {
			return CompiledTable{}, fmt.Errorf("table %q: %w", t.Name, err)
		}
		ct.DDL = append(ct.DDL, sqldsl.AddColumn{Table: t.Name, Column: def}.SQL())
	}

	for _, f := range t.Fields {
		for _, stmt := range StaleConstraints(t.Name, f, opts, keyCols[f.Name]) {
			ct.DDL = append(ct.DDL, stmt.SQL())
		}
	}
	for _, f := range t.Fields {
		for _, stmt := range FieldConstraints(t.Name, f, opts) {
			ct.DDL = append(ct.DDL, stmt.SQL())
		}
	}

	plan, err := PlanTable(t)
	if err != nil {
		return CompiledTable{}, err
	}
	ct.Plan = plan
	if !plan.NeedsRLS() {
		return ct, nil
	}

	ct.Policies = append(ct.Policies, sqldsl.EnableRLS{Table: t.Name, Force: opts.ForceRLS}.SQL())
	for _, ap := range plan.Actions {
		name := ap.PolicyName(t.Name)
		ct.Policies = append(ct.Policies, sqldsl.DropPolicy{Name: name, Table: t.Name}.SQL())
		stmt, ok := policyStatement(t.Name, ap)
		if !ok {
			continue
		}
		ct.Policies = append(ct.Policies, stmt.SQL())
		ct.PolicyNames = append(ct.PolicyNames, name)
	}
	return ct, nil
}

// createTable builds CREATE TABLE with the key columns only. It returns the
// declared fields that became key columns so they are not added again.
func createTable(t schema.Table) (sqldsl.CreateTable, map[string]bool, error) {
	pk := t.PrimaryKeyOrDefault()
	keyCols := make(map[string]bool)
	stmt := sqldsl.CreateTable{Name: t.Name}

	switch pk.Type {
	case schema.PrimaryKeyAutoIncrement:
		stmt.Columns = []sqldsl.ColumnDef{{Name: pk.Field, Type: "SERIAL", PrimaryKey: true}}
		keyCols[pk.Field] = true
	case schema.PrimaryKeyUUID:
		stmt.Columns = []sqldsl.ColumnDef{{
			Name: pk.Field, Type: "UUID", PrimaryKey: true,
			Default: sqldsl.Func{Name: "gen_random_uuid"},
		}}
		keyCols[pk.Field] = true
	case schema.PrimaryKeyComposite:
		for _, name := range pk.Fields {
			f, ok := t.Field(name)
			if !ok {
				return sqldsl.CreateTable{}, nil, fmt.Errorf("%w: table %q: composite key field %q not found", schema.ErrInvalidPrimaryKey, t.Name, name)
			}
			def, err := columnDef(f)
			if err != nil {
				return sqldsl.CreateTable{}, nil, fmt.Errorf("table %q: %w", t.Name, err)
			}
			def.NotNull = true
			stmt.Columns = append(stmt.Columns, def)
			keyCols[name] = true
		}
		stmt.PrimaryKey = pk.Fields
	default:
		return sqldsl.CreateTable{}, nil, fmt.Errorf("%w: table %q: unknown key type %q", schema.ErrInvalidPrimaryKey, t.Name, pk.Type)
	}
	return stmt, keyCols, nil
}

// policyStatement renders the policy for an action. DenyAll actions get no
// policy. Clauses follow what PostgreSQL accepts per command: SELECT and
// DELETE take USING, INSERT takes WITH CHECK, UPDATE takes both.
func policyStatement(table string, ap ActionPlan) (sqldsl.CreatePolicy, bool) {
	var expr sqldsl.Expr
	switch ap.Outcome {
	case OutcomeDenyAll:
		return sqldsl.CreatePolicy{}, false
	case OutcomeUnconditional:
		expr = sqldsl.Raw("true")
	default:
		expr = ap.Expr
	}

	stmt := sqldsl.CreatePolicy{
		Name:    ap.PolicyName(table),
		Table:   table,
		Command: ap.Command,
	}
	switch ap.Command {
	case "SELECT", "DELETE":
		stmt.Using = expr
	case "INSERT":
		stmt.WithCheck = expr
	case "UPDATE":
		stmt.Using = expr
		stmt.WithCheck = expr
	}
	return stmt, true
}
