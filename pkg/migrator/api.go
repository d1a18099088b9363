package migrator

import (
	"context"
	"fmt"

	"github.com/pthm/lattice/pkg/parser"
)

// Migrate parses a schema document and applies it to the database in one
// operation. This is the recommended high-level API for most applications.
//
// The function is idempotent and safe to call on every application startup.
// It validates and compiles the schema, then applies the DDL and policies
// atomically within a transaction (when db supports BeginTx). A schema whose
// compiled SQL matches the last recorded migration is skipped.
//
// Example usage on application startup:
//
//	if err := migrator.Migrate(ctx, db, "schema.json"); err != nil {
//	    log.Fatalf("migration failed: %v", err)
//	}
//
// For embedded schemas (no file I/O), use MigrateFromString.
// For fine-grained control (dry-run, force, compile options), use
// MigrateWithOptions.
func Migrate(ctx context.Context, db Execer, schemaPath string) error {
	_, err := MigrateWithOptions(ctx, db, schemaPath, MigrateOptions{})
	return err
}

// MigrateFromString parses schema content and applies it to the database.
// Useful for testing or when the schema is embedded in the application
// binary:
//
//	//go:embed schema.yaml
//	var embeddedSchema string
//
//	err := migrator.MigrateFromString(ctx, db, embeddedSchema)
func MigrateFromString(ctx context.Context, db Execer, content string) error {
	tables, err := parser.ParseSchemaString(content)
	if err != nil {
		return fmt.Errorf("parsing schema: %w", err)
	}

	m := NewMigrator(db, "")
	return m.MigrateWithTables(ctx, tables)
}

// MigrateWithOptions performs migration with control over dry-run, skip
// behavior and compilation.
//
// Returns (skipped, error):
//   - skipped=true if migration was skipped due to an unchanged schema (only
//     when Force=false and DryRun=nil)
//   - error is non-nil if migration failed (parse, validation or database
//     error)
//
// Example: generate a migration script without applying
//
//	var buf bytes.Buffer
//	_, err := migrator.MigrateWithOptions(ctx, db, "schema.json", migrator.MigrateOptions{
//	    DryRun: &buf,
//	})
//	os.WriteFile("migrations/001_schema.sql", buf.Bytes(), 0644)
func MigrateWithOptions(ctx context.Context, db Execer, schemaPath string, opts MigrateOptions, mopts ...Option) (skipped bool, err error) {
	m := NewMigrator(db, schemaPath, mopts...)

	if !m.HasSchema() {
		return false, fmt.Errorf("no schema found at %s", m.SchemaPath())
	}

	tables, err := parser.ParseSchema(m.SchemaPath())
	if err != nil {
		return false, fmt.Errorf("parsing schema: %w", err)
	}

	return m.MigrateWithTablesAndOptions(ctx, tables, opts)
}
