// Package sqldsl provides typed building blocks for the PostgreSQL that
// lattice generates.
//
// # Overview
//
// Rather than concatenating SQL strings, the compiler builds expressions and
// statements from small types that each render themselves with SQL(). Values
// taken from a schema document only ever reach SQL through Lit (quoted and
// escaped), Number, or Ident (quoted when not a plain lowercase name), so a
// declaration cannot inject SQL.
//
// # Expression Types
//
//	Col{Column: "created_by"}         // created_by
//	Lit("draft")                      // 'draft'
//	Number("1.5"), Int(3)             // 1.5, 3
//	Bool(true)                        // TRUE
//	Func{Name: "auth.user_id"}        // auth.user_id()
//	TextArray([]string{"a", "b"})     // ARRAY['a', 'b']::TEXT[]
//	Raw("now()")                      // raw SQL (escape hatch)
//
// Operators:
//
//	Eq{Left: col, Right: fn}          // col = fn
//	Between{Expr: col, Low: a, High: b}
//	In{Expr: col, Values: []string}   // col IN ('a', 'b')
//	And(e1, e2, e3)                   // (e1 AND e2 AND e3)
//	Or(e1, e2)                        // (e1 OR e2)
//
// And and Or always parenthesize more than one term, so nesting them keeps
// the grouping explicit in the rendered SQL. Bare drops the outermost pair for
// clauses that already supply their own parentheses.
//
// # Statement Types
//
// DDL statements mirror what the compiler emits, in order:
//
//	CreateTable{Name: "posts", Columns: []ColumnDef{{Name: "id", Type: "SERIAL", PrimaryKey: true}}}
//	AddColumn{Table: "posts", Column: ColumnDef{Name: "title", Type: "VARCHAR(255)"}}
//	SetNotNull{Table: "posts", Column: "title"}
//	AddConstraint{Table: "posts", Name: "posts_slug_key", Constraint: Unique{Columns: []string{"slug"}}}
//	CreateIndex{Name: "idx_posts_title", Table: "posts", Columns: []string{"title"}}
//	EnableRLS{Table: "posts"}
//	DropPolicy{Name: "posts_read_policy", Table: "posts"}
//	CreatePolicy{Name: "posts_read_policy", Table: "posts", Command: "SELECT", Using: expr}
//
// Every DDL statement is idempotent (IF NOT EXISTS, DROP ... IF EXISTS before
// re-adding) so a compiled batch can be applied repeatedly.
//
// SelectStmt and InsertSelect cover the queries issued by the record API.
package sqldsl
