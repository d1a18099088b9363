package sqldsl

import (
	"fmt"
	"strings"
)

// Sqlf formats SQL with automatic dedenting and blank line removal.
// The SQL shape is visible in the format string.
func Sqlf(format string, args ...any) string {
	s := fmt.Sprintf(format, args...)
	lines := strings.Split(s, "\n")

	minIndent := -1
	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" {
			continue
		}
		indent := len(line) - len(trimmed)
		if minIndent < 0 || indent < minIndent {
			minIndent = indent
		}
	}

	var result []string
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if len(line) >= minIndent {
			result = append(result, line[minIndent:])
		} else {
			result = append(result, strings.TrimLeft(line, " \t"))
		}
	}
	return strings.Join(result, "\n")
}

// Optf returns formatted string if condition is true, empty string otherwise.
// Useful for optional SQL clauses.
func Optf(cond bool, format string, args ...any) string {
	if !cond {
		return ""
	}
	return fmt.Sprintf(format, args...)
}

// TableRef is a table in a FROM clause.
type TableRef struct {
	Name  string
	Alias string
}

// SQL renders the table reference.
func (t TableRef) SQL() string {
	if t.Alias == "" {
		return Ident(t.Name)
	}
	return Ident(t.Name) + " AS " + Ident(t.Alias)
}

// SelectStmt represents a SELECT query.
type SelectStmt struct {
	Columns []Expr // defaults to *
	From    Expr
	Where   Expr
	OrderBy []Expr
	Limit   Expr
	Offset  Expr
}

// SQL renders the SELECT statement.
func (s SelectStmt) SQL() string {
	return Sqlf(`
		SELECT %s
		%s
		%s
		%s
		%s
		%s`,
		s.columnsSQL(),
		Optf(s.From != nil, "FROM %s", exprSQL(s.From)),
		Optf(s.Where != nil, "WHERE %s", exprSQL(s.Where)),
		Optf(len(s.OrderBy) > 0, "ORDER BY %s", joinSQL(s.OrderBy)),
		Optf(s.Limit != nil, "LIMIT %s", exprSQL(s.Limit)),
		Optf(s.Offset != nil, "OFFSET %s", exprSQL(s.Offset)),
	)
}

func (s SelectStmt) columnsSQL() string {
	if len(s.Columns) == 0 {
		return "*"
	}
	return joinSQL(s.Columns)
}

// InsertSelect represents INSERT INTO table (columns) <query>, with an
// optional RETURNING list. Without columns it renders DEFAULT VALUES.
type InsertSelect struct {
	Table     string
	Columns   []string
	Query     SelectStmt
	Returning []Expr
}

// SQL renders the INSERT statement.
func (i InsertSelect) SQL() string {
	s := "INSERT INTO " + Ident(i.Table)
	if len(i.Columns) == 0 {
		s += " DEFAULT VALUES"
	} else {
		s += " (" + identList(i.Columns) + ")\n" + i.Query.SQL()
	}
	if len(i.Returning) > 0 {
		s += "\nRETURNING " + joinSQL(i.Returning)
	}
	return s
}

func exprSQL(e Expr) string {
	if e == nil {
		return ""
	}
	return e.SQL()
}

func joinSQL(exprs []Expr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.SQL()
	}
	return strings.Join(parts, ", ")
}
