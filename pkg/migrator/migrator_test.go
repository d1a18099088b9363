package migrator

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/lattice"
	"github.com/pthm/lattice/internal/sqlgen"
	"github.com/pthm/lattice/pkg/schema"
)

func notesTables() []schema.Table {
	return []schema.Table{{
		Name: "notes",
		Fields: []schema.Field{
			{Name: "body", Type: schema.TypeLongText, Required: true},
			{Name: "author", Type: schema.TypeUser},
		},
		Permissions: &schema.Permissions{
			Read:   &schema.PermissionRule{Type: schema.RulePublic},
			Update: &schema.PermissionRule{Type: schema.RuleOwner, Field: "author"},
		},
	}}
}

func TestComputeSchemaChecksum(t *testing.T) {
	a := ComputeSchemaChecksum("CREATE TABLE a ()")
	b := ComputeSchemaChecksum("CREATE TABLE a ()")
	c := ComputeSchemaChecksum("CREATE TABLE b ()")

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestShouldSkipMigration(t *testing.T) {
	tests := []struct {
		name string
		last *MigrationRecord
		want bool
	}{
		{"no previous migration", nil, false},
		{"same checksum and version", &MigrationRecord{SchemaChecksum: "abc", CodegenVersion: CodegenVersion}, true},
		{"different checksum", &MigrationRecord{SchemaChecksum: "def", CodegenVersion: CodegenVersion}, false},
		{"older codegen", &MigrationRecord{SchemaChecksum: "abc", CodegenVersion: "0"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldSkipMigration(tt.last, "abc"))
		})
	}
}

func TestIsManagedPolicy(t *testing.T) {
	assert.True(t, IsManagedPolicy("notes", "notes_read_policy"))
	assert.True(t, IsManagedPolicy("notes", "notes_delete_policy"))
	assert.False(t, IsManagedPolicy("notes", "notes_audit"))
	assert.False(t, IsManagedPolicy("notes", "posts_read_policy"))
}

func TestDryRun(t *testing.T) {
	var buf bytes.Buffer
	m := NewMigrator(nil, "")

	skipped, err := m.MigrateWithTablesAndOptions(context.Background(), notesTables(), MigrateOptions{DryRun: &buf})
	require.NoError(t, err)
	assert.False(t, skipped)

	compiled, err := sqlgen.Compile(notesTables(), sqlgen.Options{})
	require.NoError(t, err)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "-- Lattice Migration (dry-run)\n"))
	assert.Contains(t, out, "-- Schema checksum: "+ComputeSchemaChecksum(compiled.SQL()))
	assert.NotContains(t, out, "-- Previous checksum")
	assert.Contains(t, out, "CREATE SCHEMA IF NOT EXISTS auth")
	assert.Contains(t, out, "CREATE TABLE IF NOT EXISTS lattice_migrations")
	assert.Contains(t, out, "-- Table notes (")
	for _, stmt := range compiled.Tables[0].All() {
		assert.Contains(t, out, stmt+";\n")
	}
	assert.Contains(t, out, "ARRAY['notes']")
	assert.Contains(t, out, "notes_read_policy")
}

func TestDryRun_InvalidSchema(t *testing.T) {
	var buf bytes.Buffer
	tables := []schema.Table{{Name: "notes", Fields: []schema.Field{{Name: "x", Type: "geometry"}}}}

	_, err := NewMigrator(nil, "").MigrateWithTablesAndOptions(context.Background(), tables, MigrateOptions{DryRun: &buf})
	require.Error(t, err)
	assert.True(t, schema.IsUnknownFieldTypeErr(err))
	assert.True(t, lattice.IsInvalidSchemaErr(err))
	assert.Empty(t, buf.String())
}

func TestHasSchema(t *testing.T) {
	assert.False(t, NewMigrator(nil, "").HasSchema())
	assert.False(t, NewMigrator(nil, "/nonexistent/schema.json").HasSchema())
}
