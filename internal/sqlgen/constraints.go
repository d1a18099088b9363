package sqlgen

import (
	"encoding/json"
	"fmt"

	"github.com/pthm/lattice/internal/sqlgen/sqldsl"
	"github.com/pthm/lattice/pkg/schema"
)

// FieldConstraints returns the statements derived from a field's modifiers,
// in emission order: NOT NULL, UNIQUE, CHECK, foreign key, index.
func FieldConstraints(table string, f schema.Field, opts Options) []sqldsl.SQLer {
	var stmts []sqldsl.SQLer

	if f.Required {
		stmts = append(stmts, sqldsl.SetNotNull{Table: table, Column: f.Name})
	}

	if f.Unique {
		stmts = append(stmts, sqldsl.AddConstraint{
			Table:      table,
			Name:       UniqueConstraintName(table, f.Name),
			Constraint: sqldsl.Unique{Columns: []string{f.Name}},
		})
	}

	if check := valueCheck(f); check != nil {
		stmts = append(stmts, sqldsl.AddConstraint{
			Table:      table,
			Name:       CheckConstraintName(table, f.Name),
			Constraint: sqldsl.Check{Expr: check},
		})
	}

	if f.Type == schema.TypeUser && opts.UsersTable != "" {
		stmts = append(stmts, sqldsl.AddConstraint{
			Table: table,
			Name:  ForeignKeyName(table, f.Name),
			Constraint: sqldsl.ForeignKey{
				Columns:    []string{f.Name},
				RefTable:   opts.UsersTable,
				RefColumns: []string{schema.DefaultPrimaryKeyField},
				OnDelete:   opts.onDeleteUser(f),
			},
		})
	}

	// The unique constraint's index already covers lookups.
	if f.Indexed && !f.Unique {
		stmts = append(stmts, sqldsl.CreateIndex{
			Name:    IndexName(table, f.Name),
			Table:   table,
			Columns: []string{f.Name},
		})
	}

	return stmts
}

// StaleConstraints returns the statements that remove what a field's
// modifiers no longer ask for, so a re-migration converges on the current
// declaration. key is set for primary key columns, whose NOT NULL is owned
// by the key.
func StaleConstraints(table string, f schema.Field, opts Options, key bool) []sqldsl.SQLer {
	var actions []sqldsl.SQLer
	if !f.Required && !key {
		actions = append(actions, sqldsl.DropNotNull{Column: f.Name})
	}
	if !f.Unique {
		actions = append(actions, sqldsl.DropConstraintIfExists{Name: UniqueConstraintName(table, f.Name)})
	}
	if valueCheck(f) == nil {
		actions = append(actions, sqldsl.DropConstraintIfExists{Name: CheckConstraintName(table, f.Name)})
	}
	if f.Type == schema.TypeUser && opts.UsersTable == "" {
		actions = append(actions, sqldsl.DropConstraintIfExists{Name: ForeignKeyName(table, f.Name)})
	}

	var stmts []sqldsl.SQLer
	if len(actions) > 0 {
		stmts = append(stmts, sqldsl.AlterTable{Table: table, Actions: actions})
	}
	if !f.Indexed || f.Unique {
		stmts = append(stmts, sqldsl.DropIndex{Name: IndexName(table, f.Name)})
	}
	return stmts
}

// valueCheck returns the CHECK expression for a field's bounds or options,
// or nil when the field has neither.
func valueCheck(f schema.Field) sqldsl.Expr {
	col := sqldsl.Col{Column: f.Name}
	switch {
	case f.Type.IsNumeric() && f.Min != nil && f.Max != nil:
		return sqldsl.Between{Expr: col, Low: sqldsl.Float(*f.Min), High: sqldsl.Float(*f.Max)}
	case f.Type.IsNumeric() && f.Min != nil:
		return sqldsl.Gte{Left: col, Right: sqldsl.Float(*f.Min)}
	case f.Type.IsNumeric() && f.Max != nil:
		return sqldsl.Lte{Left: col, Right: sqldsl.Float(*f.Max)}
	case f.Type == schema.TypeSingleSelect && len(f.Options) > 0:
		return sqldsl.In{Expr: col, Values: f.Options}
	case f.Type == schema.TypeMultiSelect && len(f.Options) > 0:
		return sqldsl.ContainedBy{Left: col, Right: sqldsl.TextArray(f.Options)}
	default:
		return nil
	}
}

// columnDef returns the column definition for a declared field.
func columnDef(f schema.Field) (sqldsl.ColumnDef, error) {
	typ, err := SQLType(f.Type)
	if err != nil {
		return sqldsl.ColumnDef{}, err
	}
	def := sqldsl.ColumnDef{Name: f.Name, Type: typ}
	if f.Default != nil {
		def.Default, err = defaultExpr(f)
		if err != nil {
			return sqldsl.ColumnDef{}, fmt.Errorf("%w: field %q: %v", schema.ErrInvalidDefault, f.Name, err)
		}
	}
	return def, nil
}

// defaultExpr renders a field's default value as decoded from JSON.
func defaultExpr(f schema.Field) (sqldsl.Expr, error) {
	switch f.Type {
	case schema.TypeJSON:
		b, err := json.Marshal(f.Default)
		if err != nil {
			return nil, err
		}
		return sqldsl.Cast{Expr: sqldsl.Lit(string(b)), Type: "jsonb"}, nil
	case schema.TypeMultiSelect:
		strs, err := schema.StringList(f.Default)
		if err != nil {
			return nil, err
		}
		return sqldsl.TextArray(strs), nil
	}

	switch v := f.Default.(type) {
	case bool:
		return sqldsl.Bool(v), nil
	case float64:
		return sqldsl.Float(v), nil
	case int:
		return sqldsl.Int(v), nil
	case int64:
		return sqldsl.Int(v), nil
	case string:
		return sqldsl.Lit(v), nil
	default:
		return nil, fmt.Errorf("unexpected default %T", f.Default)
	}
}
