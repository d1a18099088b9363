package sqldsl

import (
	"strings"
)

// SQLer is an interface for types that can render SQL.
// Every statement type in this package implements it.
type SQLer interface {
	SQL() string
}

func identList(names []string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = Ident(n)
	}
	return strings.Join(parts, ", ")
}

// ColumnDef is a column definition inside CREATE TABLE or ADD COLUMN.
type ColumnDef struct {
	Name       string
	Type       string
	PrimaryKey bool
	NotNull    bool
	Default    Expr // optional
}

// SQL renders the column definition.
func (c ColumnDef) SQL() string {
	var sb strings.Builder
	sb.WriteString(Ident(c.Name))
	sb.WriteString(" ")
	sb.WriteString(c.Type)
	if c.PrimaryKey {
		sb.WriteString(" PRIMARY KEY")
	} else if c.NotNull {
		sb.WriteString(" NOT NULL")
	}
	if c.Default != nil {
		sb.WriteString(" DEFAULT ")
		sb.WriteString(c.Default.SQL())
	}
	return sb.String()
}

// CreateTable renders CREATE TABLE IF NOT EXISTS.
// PrimaryKey, when set, adds a table-level key over several columns.
type CreateTable struct {
	Name       string
	Columns    []ColumnDef
	PrimaryKey []string
}

// SQL renders the statement.
func (c CreateTable) SQL() string {
	parts := make([]string, 0, len(c.Columns)+1)
	for _, col := range c.Columns {
		parts = append(parts, col.SQL())
	}
	if len(c.PrimaryKey) > 0 {
		parts = append(parts, "PRIMARY KEY ("+identList(c.PrimaryKey)+")")
	}
	return "CREATE TABLE IF NOT EXISTS " + Ident(c.Name) + " (" + strings.Join(parts, ", ") + ")"
}

// AddColumn renders ALTER TABLE ... ADD COLUMN IF NOT EXISTS.
type AddColumn struct {
	Table  string
	Column ColumnDef
}

// SQL renders the statement.
func (a AddColumn) SQL() string {
	return "ALTER TABLE " + Ident(a.Table) + " ADD COLUMN IF NOT EXISTS " + a.Column.SQL()
}

// SetNotNull renders ALTER TABLE ... ALTER COLUMN ... SET NOT NULL.
type SetNotNull struct {
	Table  string
	Column string
}

// SQL renders the statement.
func (s SetNotNull) SQL() string {
	return "ALTER TABLE " + Ident(s.Table) + " ALTER COLUMN " + Ident(s.Column) + " SET NOT NULL"
}

// AlterTable renders one ALTER TABLE with comma separated actions.
type AlterTable struct {
	Table   string
	Actions []SQLer
}

// SQL renders the statement.
func (a AlterTable) SQL() string {
	parts := make([]string, len(a.Actions))
	for i, act := range a.Actions {
		parts[i] = act.SQL()
	}
	return "ALTER TABLE " + Ident(a.Table) + " " + strings.Join(parts, ", ")
}

// DropNotNull is an ALTER TABLE action.
type DropNotNull struct {
	Column string
}

func (d DropNotNull) SQL() string { return "ALTER COLUMN " + Ident(d.Column) + " DROP NOT NULL" }

// DropConstraintIfExists is an ALTER TABLE action.
type DropConstraintIfExists struct {
	Name string
}

func (d DropConstraintIfExists) SQL() string { return "DROP CONSTRAINT IF EXISTS " + Ident(d.Name) }

// Unique is a UNIQUE constraint body.
type Unique struct {
	Columns []string
}

func (u Unique) SQL() string { return "UNIQUE (" + identList(u.Columns) + ")" }

// Check is a CHECK constraint body.
type Check struct {
	Expr Expr
}

func (c Check) SQL() string { return "CHECK (" + Bare(c.Expr) + ")" }

// ForeignKey is a FOREIGN KEY constraint body.
type ForeignKey struct {
	Columns    []string
	RefTable   string
	RefColumns []string
	OnDelete   string // optional, e.g. "SET NULL"
}

func (f ForeignKey) SQL() string {
	s := "FOREIGN KEY (" + identList(f.Columns) + ") REFERENCES " + Ident(f.RefTable) + " (" + identList(f.RefColumns) + ")"
	if f.OnDelete != "" {
		s += " ON DELETE " + f.OnDelete
	}
	return s
}

// AddConstraint replaces a named constraint: the old definition is dropped
// and the new one added in a single ALTER TABLE so re-applying is idempotent.
type AddConstraint struct {
	Table      string
	Name       string
	Constraint SQLer
}

// SQL renders the statement.
func (a AddConstraint) SQL() string {
	name := Ident(a.Name)
	return "ALTER TABLE " + Ident(a.Table) +
		" DROP CONSTRAINT IF EXISTS " + name +
		", ADD CONSTRAINT " + name + " " + a.Constraint.SQL()
}

// DropConstraint renders ALTER TABLE ... DROP CONSTRAINT IF EXISTS.
type DropConstraint struct {
	Table string
	Name  string
}

// SQL renders the statement.
func (d DropConstraint) SQL() string {
	return "ALTER TABLE " + Ident(d.Table) + " DROP CONSTRAINT IF EXISTS " + Ident(d.Name)
}

// CreateIndex renders CREATE INDEX IF NOT EXISTS.
type CreateIndex struct {
	Name    string
	Table   string
	Method  string // defaults to btree
	Columns []string
}

// SQL renders the statement.
func (c CreateIndex) SQL() string {
	method := c.Method
	if method == "" {
		method = "btree"
	}
	return "CREATE INDEX IF NOT EXISTS " + Ident(c.Name) + " ON " + Ident(c.Table) +
		" USING " + method + " (" + identList(c.Columns) + ")"
}

// DropIndex renders DROP INDEX IF EXISTS.
type DropIndex struct {
	Name string
}

// SQL renders the statement.
func (d DropIndex) SQL() string {
	return "DROP INDEX IF EXISTS " + Ident(d.Name)
}

// EnableRLS renders ALTER TABLE ... ENABLE ROW LEVEL SECURITY.
// Force also applies the policies to the table owner.
type EnableRLS struct {
	Table string
	Force bool
}

// SQL renders the statement.
func (e EnableRLS) SQL() string {
	s := "ALTER TABLE " + Ident(e.Table) + " ENABLE ROW LEVEL SECURITY"
	if e.Force {
		s += ", FORCE ROW LEVEL SECURITY"
	}
	return s
}

// DisableRLS renders ALTER TABLE ... DISABLE ROW LEVEL SECURITY.
type DisableRLS struct {
	Table string
}

// SQL renders the statement.
func (d DisableRLS) SQL() string {
	return "ALTER TABLE " + Ident(d.Table) + " DISABLE ROW LEVEL SECURITY, NO FORCE ROW LEVEL SECURITY"
}

// DropPolicy renders DROP POLICY IF EXISTS.
type DropPolicy struct {
	Name  string
	Table string
}

// SQL renders the statement.
func (d DropPolicy) SQL() string {
	return "DROP POLICY IF EXISTS " + Ident(d.Name) + " ON " + Ident(d.Table)
}

// CreatePolicy renders CREATE POLICY. Using and WithCheck are optional; the
// caller picks the clauses valid for Command.
type CreatePolicy struct {
	Name      string
	Table     string
	Command   string // SELECT, INSERT, UPDATE or DELETE
	Using     Expr
	WithCheck Expr
}

// SQL renders the statement.
func (c CreatePolicy) SQL() string {
	var sb strings.Builder
	sb.WriteString("CREATE POLICY ")
	sb.WriteString(Ident(c.Name))
	sb.WriteString(" ON ")
	sb.WriteString(Ident(c.Table))
	sb.WriteString(" FOR ")
	sb.WriteString(c.Command)
	if c.Using != nil {
		sb.WriteString(" USING (")
		sb.WriteString(Bare(c.Using))
		sb.WriteString(")")
	}
	if c.WithCheck != nil {
		sb.WriteString(" WITH CHECK (")
		sb.WriteString(Bare(c.WithCheck))
		sb.WriteString(")")
	}
	return sb.String()
}
