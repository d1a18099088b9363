package sqldsl

import (
	"testing"
)

func TestIdent(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "created_by", "created_by"},
		{"digits", "field_2", "field_2"},
		{"reserved word", "user", `"user"`},
		{"uppercase", "Title", `"Title"`},
		{"embedded quote", `a"b`, `"a""b"`},
		{"leading digit", "1st", `"1st"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Ident(tt.in); got != tt.want {
				t.Errorf("Ident(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestExpr_SQL(t *testing.T) {
	tests := []struct {
		name string
		expr Expr
		want string
	}{
		{"literal escapes quotes", Lit("it's"), "'it''s'"},
		{"qualified column", Col{Table: "t", Column: "order"}, `t."order"`},
		{"float", Float(99.5), "99.5"},
		{"whole float", Float(100), "100"},
		{"function", Func{Name: "auth.user_has_role", Args: []Expr{Lit("admin")}}, "auth.user_has_role('admin')"},
		{"no-arg function", Func{Name: "auth.user_id"}, "auth.user_id()"},
		{"text array", TextArray([]string{"a", "b"}), "ARRAY['a', 'b']::TEXT[]"},
		{"empty text array", TextArray(nil), "ARRAY[]::TEXT[]"},
		{"cast", Cast{Expr: Lit("{}"), Type: "jsonb"}, "'{}'::jsonb"},
		{"param", Param(2), "$2"},
		{"between", Between{Expr: Col{Column: "score"}, Low: Int(0), High: Int(100)}, "score BETWEEN 0 AND 100"},
		{"in", In{Expr: Col{Column: "status"}, Values: []string{"draft", "live"}}, "status IN ('draft', 'live')"},
		{"empty in", In{Expr: Col{Column: "status"}}, "FALSE"},
		{"contained by", ContainedBy{Left: Col{Column: "tags"}, Right: TextArray([]string{"x"})}, "tags <@ ARRAY['x']::TEXT[]"},
		{"single and", And(Eq{Left: Col{Column: "a"}, Right: Int(1)}), "a = 1"},
		{"and skips nil", And(nil, Eq{Left: Col{Column: "a"}, Right: Int(1)}, nil), "a = 1"},
		{"empty and", And(), "TRUE"},
		{"empty or", Or(), "FALSE"},
		{
			name: "nested keeps grouping",
			expr: Or(
				Eq{Left: Col{Column: "a"}, Right: Lit("x")},
				And(Eq{Left: Col{Column: "b"}, Right: Lit("y")}, Eq{Left: Col{Column: "c"}, Right: Lit("z")}),
			),
			want: "(a = 'x' OR (b = 'y' AND c = 'z'))",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.expr.SQL(); got != tt.want {
				t.Errorf("SQL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBare(t *testing.T) {
	or := Or(Eq{Left: Col{Column: "a"}, Right: Int(1)}, Eq{Left: Col{Column: "b"}, Right: Int(2)})
	if got, want := Bare(or), "a = 1 OR b = 2"; got != want {
		t.Errorf("Bare(or) = %q, want %q", got, want)
	}
	and := And(or, Eq{Left: Col{Column: "c"}, Right: Int(3)})
	if got, want := Bare(and), "(a = 1 OR b = 2) AND c = 3"; got != want {
		t.Errorf("Bare(and) = %q, want %q", got, want)
	}
	if got, want := Bare(Bool(true)), "TRUE"; got != want {
		t.Errorf("Bare(true) = %q, want %q", got, want)
	}
}

func TestDDL_SQL(t *testing.T) {
	tests := []struct {
		name string
		stmt SQLer
		want string
	}{
		{
			name: "create table with serial key",
			stmt: CreateTable{Name: "posts", Columns: []ColumnDef{{Name: "id", Type: "SERIAL", PrimaryKey: true}}},
			want: "CREATE TABLE IF NOT EXISTS posts (id SERIAL PRIMARY KEY)",
		},
		{
			name: "create table with composite key",
			stmt: CreateTable{
				Name: "members",
				Columns: []ColumnDef{
					{Name: "team", Type: "INTEGER", NotNull: true},
					{Name: "member", Type: "UUID", NotNull: true},
				},
				PrimaryKey: []string{"team", "member"},
			},
			want: "CREATE TABLE IF NOT EXISTS members (team INTEGER NOT NULL, member UUID NOT NULL, PRIMARY KEY (team, member))",
		},
		{
			name: "add column with default",
			stmt: AddColumn{Table: "posts", Column: ColumnDef{Name: "status", Type: "VARCHAR(255)", Default: Lit("draft")}},
			want: "ALTER TABLE posts ADD COLUMN IF NOT EXISTS status VARCHAR(255) DEFAULT 'draft'",
		},
		{
			name: "alter table with several actions",
			stmt: AlterTable{Table: "posts", Actions: []SQLer{
				DropNotNull{Column: "title"},
				DropConstraintIfExists{Name: "posts_title_key"},
			}},
			want: "ALTER TABLE posts ALTER COLUMN title DROP NOT NULL, DROP CONSTRAINT IF EXISTS posts_title_key",
		},
		{
			name: "drop index",
			stmt: DropIndex{Name: "idx_posts_title"},
			want: "DROP INDEX IF EXISTS idx_posts_title",
		},
		{
			name: "set not null",
			stmt: SetNotNull{Table: "posts", Column: "title"},
			want: "ALTER TABLE posts ALTER COLUMN title SET NOT NULL",
		},
		{
			name: "unique constraint",
			stmt: AddConstraint{Table: "users", Name: "users_email_key", Constraint: Unique{Columns: []string{"email"}}},
			want: "ALTER TABLE users DROP CONSTRAINT IF EXISTS users_email_key, ADD CONSTRAINT users_email_key UNIQUE (email)",
		},
		{
			name: "check constraint",
			stmt: AddConstraint{Table: "t", Name: "t_p_check", Constraint: Check{Expr: Between{Expr: Col{Column: "p"}, Low: Int(0), High: Int(100)}}},
			want: "ALTER TABLE t DROP CONSTRAINT IF EXISTS t_p_check, ADD CONSTRAINT t_p_check CHECK (p BETWEEN 0 AND 100)",
		},
		{
			name: "foreign key",
			stmt: AddConstraint{Table: "t", Name: "t_owner_fkey", Constraint: ForeignKey{
				Columns: []string{"owner"}, RefTable: "users", RefColumns: []string{"id"}, OnDelete: "SET NULL",
			}},
			want: "ALTER TABLE t DROP CONSTRAINT IF EXISTS t_owner_fkey, ADD CONSTRAINT t_owner_fkey FOREIGN KEY (owner) REFERENCES users (id) ON DELETE SET NULL",
		},
		{
			name: "index",
			stmt: CreateIndex{Name: "idx_posts_title", Table: "posts", Columns: []string{"title"}},
			want: "CREATE INDEX IF NOT EXISTS idx_posts_title ON posts USING btree (title)",
		},
		{
			name: "enable rls",
			stmt: EnableRLS{Table: "posts"},
			want: "ALTER TABLE posts ENABLE ROW LEVEL SECURITY",
		},
		{
			name: "force rls",
			stmt: EnableRLS{Table: "posts", Force: true},
			want: "ALTER TABLE posts ENABLE ROW LEVEL SECURITY, FORCE ROW LEVEL SECURITY",
		},
		{
			name: "disable rls",
			stmt: DisableRLS{Table: "posts"},
			want: "ALTER TABLE posts DISABLE ROW LEVEL SECURITY, NO FORCE ROW LEVEL SECURITY",
		},
		{
			name: "drop policy",
			stmt: DropPolicy{Name: "posts_read_policy", Table: "posts"},
			want: "DROP POLICY IF EXISTS posts_read_policy ON posts",
		},
		{
			name: "select policy",
			stmt: CreatePolicy{Name: "posts_read_policy", Table: "posts", Command: "SELECT", Using: Func{Name: "auth.is_authenticated"}},
			want: "CREATE POLICY posts_read_policy ON posts FOR SELECT USING (auth.is_authenticated())",
		},
		{
			name: "update policy with or",
			stmt: CreatePolicy{
				Name: "posts_update_policy", Table: "posts", Command: "UPDATE",
				Using:     Or(Func{Name: "auth.user_has_role", Args: []Expr{Lit("a")}}, Func{Name: "auth.user_has_role", Args: []Expr{Lit("b")}}),
				WithCheck: Or(Func{Name: "auth.user_has_role", Args: []Expr{Lit("a")}}, Func{Name: "auth.user_has_role", Args: []Expr{Lit("b")}}),
			},
			want: "CREATE POLICY posts_update_policy ON posts FOR UPDATE USING (auth.user_has_role('a') OR auth.user_has_role('b')) WITH CHECK (auth.user_has_role('a') OR auth.user_has_role('b'))",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.stmt.SQL(); got != tt.want {
				t.Errorf("SQL() =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestSelectStmt_SQL(t *testing.T) {
	stmt := SelectStmt{
		Columns: []Expr{Raw("row_to_json(r)::text")},
		From:    TableRef{Name: "posts", Alias: "r"},
		Where:   Gt{Left: Col{Table: "r", Column: "id"}, Right: Param(1)},
		OrderBy: []Expr{Col{Table: "r", Column: "id"}},
		Limit:   Param(2),
	}
	want := "SELECT row_to_json(r)::text\nFROM posts AS r\nWHERE r.id > $1\nORDER BY r.id\nLIMIT $2"
	if got := stmt.SQL(); got != want {
		t.Errorf("SQL() =\n%s\nwant\n%s", got, want)
	}
}

func TestInsertSelect_SQL(t *testing.T) {
	stmt := InsertSelect{
		Table:   "posts",
		Columns: []string{"title", "user"},
		Query: SelectStmt{
			Columns: []Expr{Col{Table: "r", Column: "title"}, Col{Table: "r", Column: "user"}},
			From:    Raw("json_populate_record(NULL::posts, $1::json) AS r"),
		},
	}
	want := "INSERT INTO posts (title, \"user\")\nSELECT r.title, r.\"user\"\nFROM json_populate_record(NULL::posts, $1::json) AS r"
	if got := stmt.SQL(); got != want {
		t.Errorf("SQL() =\n%s\nwant\n%s", got, want)
	}
}

func TestInsertSelect_Returning(t *testing.T) {
	stmt := InsertSelect{
		Table:     "order",
		Returning: []Expr{Raw(`to_jsonb("order".*)`)},
	}
	want := "INSERT INTO \"order\" DEFAULT VALUES\nRETURNING to_jsonb(\"order\".*)"
	if got := stmt.SQL(); got != want {
		t.Errorf("SQL() =\n%s\nwant\n%s", got, want)
	}
}
