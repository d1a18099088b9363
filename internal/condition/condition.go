// Package condition parses record-level permission conditions into a typed
// boolean expression tree.
//
// A condition compares row columns, placeholders and literals:
//
//	{userId} = created_by AND status = 'draft'
//	department = {user.department} OR (status = 'published' AND archived = false)
//
// Supported syntax:
//
//   - placeholders: {userId} (the acting user's id), {user.<property>} (a
//     named session property)
//   - column references: lowercase identifiers
//   - literals: 'single quoted' strings ('' escapes a quote), numbers,
//     true / false
//   - the = comparison, AND, OR and parentheses
//
// AND binds tighter than OR. A parenthesized group becomes its own And/Or
// node and is never merged into the enclosing one, so rendering reproduces the
// grouping exactly as written. Any other operator is rejected.
package condition

import (
	"errors"
)

// ErrSyntax is returned when a condition cannot be parsed.
var ErrSyntax = errors.New("condition syntax error")

// Node is a node of a parsed condition.
type Node interface {
	node()
}

// PlaceholderKind distinguishes the two placeholder forms.
type PlaceholderKind int

const (
	// UserID is the {userId} placeholder.
	UserID PlaceholderKind = iota
	// UserProperty is the {user.<property>} placeholder.
	UserProperty
)

// Placeholder references the acting user.
type Placeholder struct {
	Kind     PlaceholderKind
	Property string // set for UserProperty
}

// Column references a column of the row being checked.
type Column struct {
	Name string
}

// String is a string literal.
type String struct {
	Value string
}

// Number is a numeric literal, kept in its source form.
type Number struct {
	Value string
}

// Bool is a boolean literal.
type Bool struct {
	Value bool
}

// Equal is an equality comparison.
type Equal struct {
	Left  Node
	Right Node
}

// And requires all terms to hold. It always has at least two terms.
type And struct {
	Terms []Node
}

// Or requires at least one term to hold. It always has at least two terms.
type Or struct {
	Terms []Node
}

func (Placeholder) node() {}
func (Column) node()      {}
func (String) node()      {}
func (Number) node()      {}
func (Bool) node()        {}
func (Equal) node()       {}
func (And) node()         {}
func (Or) node()          {}

// Columns returns the column names referenced by n, in order of first
// appearance.
func Columns(n Node) []string {
	var cols []string
	seen := make(map[string]bool)
	Walk(n, func(n Node) {
		if c, ok := n.(Column); ok && !seen[c.Name] {
			seen[c.Name] = true
			cols = append(cols, c.Name)
		}
	})
	return cols
}

// Walk calls fn for n and every node below it, depth first.
func Walk(n Node, fn func(Node)) {
	if n == nil {
		return
	}
	fn(n)
	switch v := n.(type) {
	case Equal:
		Walk(v.Left, fn)
		Walk(v.Right, fn)
	case And:
		for _, t := range v.Terms {
			Walk(t, fn)
		}
	case Or:
		for _, t := range v.Terms {
			Walk(t, fn)
		}
	}
}
