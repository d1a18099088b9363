package doctor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/lattice/internal/sqlgen"
	"github.com/pthm/lattice/internal/testutil"
	"github.com/pthm/lattice/pkg/migrator"
	"github.com/pthm/lattice/pkg/parser"
	"github.com/pthm/lattice/pkg/schema"
)

const schemaYAML = `
tables:
  - name: posts
    fields:
      - name: title
        type: single-line-text
      - name: author
        type: user
    permissions:
      read: {type: public}
      update: {type: owner, field: author}
  - name: tags
    fields:
      - name: label
        type: single-line-text
    permissions:
      read: {type: public}
      create: {type: public}
      update: {type: public}
      delete: {type: public}
`

func compiledPosts(t *testing.T) sqlgen.CompiledTable {
	t.Helper()
	tables, err := parser.ParseSchemaString(schemaYAML)
	require.NoError(t, err)
	compiled, err := sqlgen.Compile(tables, sqlgen.Options{})
	require.NoError(t, err)
	ct, ok := compiled.Table("posts")
	require.True(t, ok)
	return ct
}

func TestTableCheck(t *testing.T) {
	ct := compiledPosts(t)
	healthy := migrator.TableState{
		Name:       "posts",
		Exists:     true,
		RLSEnabled: true,
		Policies:   []string{"posts_read_policy", "posts_update_policy"},
	}

	tests := []struct {
		name   string
		state  func(migrator.TableState) migrator.TableState
		opts   sqlgen.Options
		status Status
	}{
		{"healthy", func(s migrator.TableState) migrator.TableState { return s }, sqlgen.Options{}, StatusPass},
		{"missing table", func(s migrator.TableState) migrator.TableState {
			return migrator.TableState{Name: s.Name}
		}, sqlgen.Options{}, StatusFail},
		{"rls disabled", func(s migrator.TableState) migrator.TableState {
			s.RLSEnabled = false
			return s
		}, sqlgen.Options{}, StatusFail},
		{"missing policy", func(s migrator.TableState) migrator.TableState {
			s.Policies = []string{"posts_read_policy"}
			return s
		}, sqlgen.Options{}, StatusFail},
		{"stale policy", func(s migrator.TableState) migrator.TableState {
			s.Policies = append(s.Policies, "posts_delete_policy")
			return s
		}, sqlgen.Options{}, StatusWarn},
		{"hand-written policy ignored", func(s migrator.TableState) migrator.TableState {
			s.Policies = append(s.Policies, "posts_audit")
			return s
		}, sqlgen.Options{}, StatusPass},
		{"not forced", func(s migrator.TableState) migrator.TableState { return s }, sqlgen.Options{ForceRLS: true}, StatusWarn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := tableCheck(tt.state(healthy), ct, tt.opts)
			assert.Equal(t, tt.status, check.Status, check.Message)
		})
	}
}

func TestReport(t *testing.T) {
	r := &Report{}
	r.AddCheck(CheckResult{Category: CategorySchema, Name: "exists", Status: StatusPass, Message: "Schema file exists"})
	r.AddCheck(CheckResult{Category: CategoryTables, Name: "posts", Status: StatusWarn, Message: "posts: stale", Details: "a\nb", FixHint: "migrate"})
	r.AddCheck(CheckResult{Category: CategoryTables, Name: "tags", Status: StatusFail, Message: "tags missing"})

	assert.Equal(t, 1, r.Passed)
	assert.Equal(t, 1, r.Warnings)
	assert.Equal(t, 1, r.Errors)
	assert.True(t, r.HasErrors())

	c, ok := r.Find(CategoryTables, "posts")
	require.True(t, ok)
	assert.Equal(t, StatusWarn, c.Status)

	var buf bytes.Buffer
	r.Print(&buf, true)
	out := buf.String()
	assert.Contains(t, out, "Schema File\n  ✓ Schema file exists\n")
	assert.Contains(t, out, "  ⚠ posts: stale\n      a\n      b\n      Fix: migrate\n")
	assert.Contains(t, out, "Summary: 1 passed, 1 warnings, 1 errors")

	buf.Reset()
	r.Print(&buf, false)
	assert.NotContains(t, buf.String(), "      a\n")
}

func writeSchema(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(schemaYAML), 0o600))
	return path
}

func TestRun_Healthy(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	db := testutil.EmptyDB(t)
	path := writeSchema(t)
	_, err := migrator.MigrateWithOptions(context.Background(), db, path, migrator.MigrateOptions{})
	require.NoError(t, err)

	report, err := New(db, path).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.HasErrors())
	assert.Zero(t, report.Warnings)

	c, ok := report.Find(CategoryTables, "tags")
	require.True(t, ok)
	assert.Contains(t, c.Message, "disabled (public)")
}

func TestRun_Unmigrated(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	db := testutil.EmptyDB(t)

	report, err := New(db, writeSchema(t)).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.HasErrors())

	auth, _ := report.Find(CategoryAuth, "installed")
	assert.Equal(t, StatusFail, auth.Status)
	migrated, _ := report.Find(CategoryMigration, "migrated")
	assert.Equal(t, StatusWarn, migrated.Status)
	posts, _ := report.Find(CategoryTables, "posts")
	assert.Equal(t, StatusFail, posts.Status)
}

func TestRun_Drift(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	db := testutil.EmptyDB(t)
	path := writeSchema(t)
	_, err := migrator.MigrateWithOptions(context.Background(), db, path, migrator.MigrateOptions{})
	require.NoError(t, err)

	_, err = db.Exec(`ALTER TABLE posts DISABLE ROW LEVEL SECURITY`)
	require.NoError(t, err)

	// A changed schema no longer matches the recorded checksum.
	changed := []schema.Table{{Name: "posts", Fields: []schema.Field{{Name: "title", Type: schema.TypeSingleLineText}}}}
	out, err := parser.EncodeYAML(changed)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, out, 0o600))

	report, err := New(db, path).Run(context.Background())
	require.NoError(t, err)

	posts, _ := report.Find(CategoryTables, "posts")
	assert.Equal(t, StatusFail, posts.Status)
	sync, _ := report.Find(CategoryMigration, "schema_sync")
	assert.Equal(t, StatusWarn, sync.Status)
	removed, ok := report.Find(CategoryMigration, "removed_tables")
	require.True(t, ok)
	assert.Contains(t, removed.Details, "tags")
}

func TestRun_MissingSchemaFile(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	db := testutil.DB(t)

	report, err := New(db, "/nonexistent/schema.json").Run(context.Background())
	require.NoError(t, err)

	exists, _ := report.Find(CategorySchema, "exists")
	assert.Equal(t, StatusFail, exists.Status)
	auth, _ := report.Find(CategoryAuth, "installed")
	assert.Equal(t, StatusPass, auth.Status)
	_, ok := report.Find(CategoryTables, "posts")
	assert.False(t, ok)
}
