package sqldsl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// Expr is the interface that all SQL expression types implement.
type Expr interface {
	SQL() string
}

// reserved holds PostgreSQL reserved key words that cannot be used as bare
// column or table names.
var reserved = map[string]bool{
	"all": true, "analyse": true, "analyze": true, "and": true, "any": true,
	"array": true, "as": true, "asc": true, "asymmetric": true, "authorization": true,
	"binary": true, "both": true, "case": true, "cast": true, "check": true,
	"collate": true, "collation": true, "column": true, "concurrently": true,
	"constraint": true, "create": true, "cross": true, "current_catalog": true,
	"current_date": true, "current_role": true, "current_schema": true,
	"current_time": true, "current_timestamp": true, "current_user": true,
	"default": true, "deferrable": true, "desc": true, "distinct": true, "do": true,
	"else": true, "end": true, "except": true, "false": true, "fetch": true,
	"for": true, "foreign": true, "freeze": true, "from": true, "full": true,
	"grant": true, "group": true, "having": true, "ilike": true, "in": true,
	"initially": true, "inner": true, "intersect": true, "into": true, "is": true,
	"isnull": true, "join": true, "lateral": true, "leading": true, "left": true,
	"like": true, "limit": true, "localtime": true, "localtimestamp": true,
	"natural": true, "not": true, "notnull": true, "null": true, "offset": true,
	"on": true, "only": true, "or": true, "order": true, "outer": true,
	"overlaps": true, "placing": true, "primary": true, "references": true,
	"returning": true, "right": true, "select": true, "session_user": true,
	"similar": true, "some": true, "symmetric": true, "system_user": true,
	"table": true, "tablesample": true, "then": true, "to": true, "trailing": true,
	"true": true, "union": true, "unique": true, "user": true, "using": true,
	"variadic": true, "verbose": true, "when": true, "where": true, "window": true,
	"with": true,
}

// Ident renders an identifier, quoting it only when it is not a plain
// lowercase name or collides with a reserved word.
func Ident(name string) string {
	if isPlainIdent(name) && !reserved[name] {
		return name
	}
	return pq.QuoteIdentifier(name)
}

func isPlainIdent(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// Col represents a table column reference (e.g., t.created_by).
type Col struct {
	Table  string
	Column string
}

// SQL renders the column reference.
func (c Col) SQL() string {
	if c.Table == "" {
		return Ident(c.Column)
	}
	return Ident(c.Table) + "." + Ident(c.Column)
}

// Lit represents a literal string value (auto-quoted with single quotes).
type Lit string

// SQL renders the literal with single quotes.
func (l Lit) SQL() string {
	escaped := strings.ReplaceAll(string(l), "'", "''")
	return "'" + escaped + "'"
}

// Raw is an escape hatch for arbitrary SQL expressions.
type Raw string

// SQL renders the raw SQL as-is.
func (r Raw) SQL() string {
	return string(r)
}

// Int represents an integer literal.
type Int int

// SQL renders the integer.
func (i Int) SQL() string {
	return fmt.Sprintf("%d", i)
}

// Number is a numeric literal kept in its source form (e.g. "-1.5").
type Number string

// SQL renders the number.
func (n Number) SQL() string {
	return string(n)
}

// Float renders a float64 in plain decimal notation.
func Float(f float64) Number {
	return Number(strconv.FormatFloat(f, 'f', -1, 64))
}

// Bool represents a boolean literal.
type Bool bool

// SQL renders the boolean.
func (b Bool) SQL() string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

// Null represents SQL NULL.
type Null struct{}

// SQL renders NULL.
func (Null) SQL() string {
	return "NULL"
}

// Param is a positional query parameter ($1, $2, ...).
type Param int

// SQL renders the placeholder.
func (p Param) SQL() string {
	return fmt.Sprintf("$%d", int(p))
}

// Func represents a SQL function call.
type Func struct {
	Name string
	Args []Expr
}

// SQL renders the function call.
func (f Func) SQL() string {
	args := make([]string, len(f.Args))
	for i, arg := range f.Args {
		args[i] = arg.SQL()
	}
	return f.Name + "(" + strings.Join(args, ", ") + ")"
}

// Cast represents expr::type.
type Cast struct {
	Expr Expr
	Type string
}

// SQL renders the cast.
func (c Cast) SQL() string {
	return c.Expr.SQL() + "::" + c.Type
}

// Array is an ARRAY[...] constructor with an explicit element type.
type Array struct {
	Values []Expr
	Type   string // array type, e.g. "TEXT[]"
}

// SQL renders the array, cast to Type when set.
func (a Array) SQL() string {
	parts := make([]string, len(a.Values))
	for i, v := range a.Values {
		parts[i] = v.SQL()
	}
	s := "ARRAY[" + strings.Join(parts, ", ") + "]"
	if a.Type != "" {
		s += "::" + a.Type
	}
	return s
}

// TextArray builds an Array of string literals.
func TextArray(values []string) Array {
	exprs := make([]Expr, len(values))
	for i, v := range values {
		exprs[i] = Lit(v)
	}
	return Array{Values: exprs, Type: "TEXT[]"}
}

// Paren wraps an expression in parentheses.
type Paren struct {
	Expr Expr
}

// SQL renders the parenthesized expression.
func (p Paren) SQL() string {
	return "(" + p.Expr.SQL() + ")"
}

// Alias wraps an expression with an alias (expr AS alias).
type Alias struct {
	Expr Expr
	Name string
}

// SQL renders the aliased expression.
func (a Alias) SQL() string {
	return a.Expr.SQL() + " AS " + Ident(a.Name)
}
