package sqlgen

import (
	"fmt"

	"github.com/pthm/lattice/internal/condition"
	"github.com/pthm/lattice/internal/sqlgen/sqldsl"
	"github.com/pthm/lattice/pkg/schema"
)

// Session functions installed by the migrator (see sql/auth.sql).
var (
	authUserID          = sqldsl.Func{Name: "auth.user_id"}
	authIsAuthenticated = sqldsl.Func{Name: "auth.is_authenticated"}
)

func authUserHasRole(role string) sqldsl.Expr {
	return sqldsl.Func{Name: "auth.user_has_role", Args: []sqldsl.Expr{sqldsl.Lit(role)}}
}

func authUserProperty(name string) sqldsl.Expr {
	return sqldsl.Func{Name: "auth.user_property", Args: []sqldsl.Expr{sqldsl.Lit(name)}}
}

// RenderCondition parses a record condition and renders it against t.
//
// Placeholders become session function calls: {userId} is auth.user_id()
// (uuid) and {user.<p>} is auth.user_property('<p>') (text). A placeholder
// compared with a column of another type is cast to that column's type.
func RenderCondition(t schema.Table, src string) (sqldsl.Expr, error) {
	n, err := condition.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", schema.ErrInvalidCondition, err)
	}
	r := conditionRenderer{table: t}
	return r.render(n)
}

type conditionRenderer struct {
	table schema.Table
}

func (r conditionRenderer) render(n condition.Node) (sqldsl.Expr, error) {
	switch v := n.(type) {
	case condition.Equal:
		left, err := r.operand(v.Left, v.Right)
		if err != nil {
			return nil, err
		}
		right, err := r.operand(v.Right, v.Left)
		if err != nil {
			return nil, err
		}
		return sqldsl.Eq{Left: left, Right: right}, nil
	case condition.And:
		terms, err := r.renderAll(v.Terms)
		if err != nil {
			return nil, err
		}
		return sqldsl.And(terms...), nil
	case condition.Or:
		terms, err := r.renderAll(v.Terms)
		if err != nil {
			return nil, err
		}
		return sqldsl.Or(terms...), nil
	default:
		return nil, fmt.Errorf("%w: %T is not a boolean expression", schema.ErrInvalidCondition, n)
	}
}

func (r conditionRenderer) renderAll(nodes []condition.Node) ([]sqldsl.Expr, error) {
	exprs := make([]sqldsl.Expr, len(nodes))
	for i, n := range nodes {
		e, err := r.render(n)
		if err != nil {
			return nil, err
		}
		exprs[i] = e
	}
	return exprs, nil
}

// operand renders one side of a comparison; other is the opposite side.
func (r conditionRenderer) operand(n, other condition.Node) (sqldsl.Expr, error) {
	switch v := n.(type) {
	case condition.Column:
		if !r.table.HasColumn(v.Name) {
			return nil, fmt.Errorf("%w: table %q has no column %q", schema.ErrInvalidCondition, r.table.Name, v.Name)
		}
		return sqldsl.Col{Column: v.Name}, nil
	case condition.Placeholder:
		var expr sqldsl.Expr
		natural := "UUID"
		if v.Kind == condition.UserID {
			expr = authUserID
		} else {
			expr = authUserProperty(v.Property)
			natural = "TEXT"
		}
		if col, ok := other.(condition.Column); ok {
			if typ := r.columnType(col.Name); needsCast(natural, typ) {
				expr = sqldsl.Cast{Expr: expr, Type: typ}
			}
		}
		return expr, nil
	case condition.String:
		return sqldsl.Lit(v.Value), nil
	case condition.Number:
		return sqldsl.Number(v.Value), nil
	case condition.Bool:
		return sqldsl.Bool(v.Value), nil
	default:
		return nil, fmt.Errorf("%w: %T cannot be compared", schema.ErrInvalidCondition, n)
	}
}

// columnType returns the SQL type of a column, or "" when it is unknown.
func (r conditionRenderer) columnType(name string) string {
	if f, ok := r.table.Field(name); ok {
		typ, err := SQLType(f.Type)
		if err != nil {
			return ""
		}
		return typ
	}
	pk := r.table.PrimaryKeyOrDefault()
	if pk.Type == schema.PrimaryKeyUUID && pk.Field == name {
		return "UUID"
	}
	if pk.Type == schema.PrimaryKeyAutoIncrement && pk.Field == name {
		return "INTEGER"
	}
	return ""
}

func needsCast(from, to string) bool {
	if to == "" || to == from {
		return false
	}
	textual := func(t string) bool { return t == "TEXT" || t == "VARCHAR(255)" }
	return !(textual(from) && textual(to))
}
