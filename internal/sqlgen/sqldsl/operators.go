package sqldsl

import (
	"strings"
)

// Comparison operators

// Eq represents an equality comparison (=).
type Eq struct {
	Left  Expr
	Right Expr
}

func (e Eq) SQL() string { return e.Left.SQL() + " = " + e.Right.SQL() }

// Lte represents a less-than-or-equal comparison (<=).
type Lte struct {
	Left  Expr
	Right Expr
}

func (l Lte) SQL() string { return l.Left.SQL() + " <= " + l.Right.SQL() }

// Gte represents a greater-than-or-equal comparison (>=).
type Gte struct {
	Left  Expr
	Right Expr
}

func (g Gte) SQL() string { return g.Left.SQL() + " >= " + g.Right.SQL() }

// Gt represents a greater-than comparison (>).
type Gt struct {
	Left  Expr
	Right Expr
}

func (g Gt) SQL() string { return g.Left.SQL() + " > " + g.Right.SQL() }

// Between represents expr BETWEEN low AND high.
type Between struct {
	Expr Expr
	Low  Expr
	High Expr
}

func (b Between) SQL() string {
	return b.Expr.SQL() + " BETWEEN " + b.Low.SQL() + " AND " + b.High.SQL()
}

// ContainedBy represents the array containment operator (<@).
type ContainedBy struct {
	Left  Expr
	Right Expr
}

func (c ContainedBy) SQL() string { return c.Left.SQL() + " <@ " + c.Right.SQL() }

// quoteValues renders a slice of strings as quoted SQL literals.
func quoteValues(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = Lit(v).SQL()
	}
	return strings.Join(quoted, ", ")
}

// In represents an IN clause for string values.
type In struct {
	Expr   Expr
	Values []string
}

func (i In) SQL() string {
	if len(i.Values) == 0 {
		return "FALSE"
	}
	return i.Expr.SQL() + " IN (" + quoteValues(i.Values) + ")"
}

// Logical operators

// filterNilExprs removes nil expressions from the slice.
func filterNilExprs(exprs []Expr) []Expr {
	filtered := make([]Expr, 0, len(exprs))
	for _, e := range exprs {
		if e != nil {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

// joinExprs renders expressions joined by a separator, wrapped in parentheses if more than one.
func joinExprs(exprs []Expr, sep, emptyVal string) string {
	switch len(exprs) {
	case 0:
		return emptyVal
	case 1:
		return exprs[0].SQL()
	default:
		parts := make([]string, len(exprs))
		for i, e := range exprs {
			parts[i] = e.SQL()
		}
		return "(" + strings.Join(parts, sep) + ")"
	}
}

// AndExpr represents a logical AND of multiple expressions.
type AndExpr struct {
	Exprs []Expr
}

func (a AndExpr) SQL() string { return joinExprs(a.Exprs, " AND ", "TRUE") }

// And creates an AND expression from multiple expressions.
func And(exprs ...Expr) AndExpr {
	return AndExpr{Exprs: filterNilExprs(exprs)}
}

// OrExpr represents a logical OR of multiple expressions.
type OrExpr struct {
	Exprs []Expr
}

func (o OrExpr) SQL() string { return joinExprs(o.Exprs, " OR ", "FALSE") }

// Or creates an OR expression from multiple expressions.
func Or(exprs ...Expr) OrExpr {
	return OrExpr{Exprs: filterNilExprs(exprs)}
}

// NotExpr represents a logical NOT of an expression.
type NotExpr struct {
	Expr Expr
}

func (n NotExpr) SQL() string { return "NOT (" + n.Expr.SQL() + ")" }

// Not creates a NOT expression.
func Not(expr Expr) NotExpr { return NotExpr{Expr: expr} }

// IsNull represents IS NULL check.
type IsNull struct {
	Expr Expr
}

func (i IsNull) SQL() string { return i.Expr.SQL() + " IS NULL" }

// IsNotNull represents IS NOT NULL check.
type IsNotNull struct {
	Expr Expr
}

func (i IsNotNull) SQL() string { return i.Expr.SQL() + " IS NOT NULL" }

// Bare renders e for a position that is already parenthesized, such as a
// USING or CHECK clause, dropping the outer parentheses of a multi-term
// AND/OR.
func Bare(e Expr) string {
	switch v := e.(type) {
	case AndExpr:
		if len(v.Exprs) > 1 {
			return strings.TrimSuffix(strings.TrimPrefix(v.SQL(), "("), ")")
		}
	case OrExpr:
		if len(v.Exprs) > 1 {
			return strings.TrimSuffix(strings.TrimPrefix(v.SQL(), "("), ")")
		}
	case Paren:
		return v.Expr.SQL()
	}
	return e.SQL()
}
