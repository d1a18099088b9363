package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pthm/lattice"
	"github.com/pthm/lattice/internal/cli"
	"github.com/pthm/lattice/pkg/migrator"
)

var (
	migrateDB         string
	migrateSchema     string
	migrateDryRun     bool
	migrateForce      bool
	migrateForceRLS   bool
	migrateUsersTable string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema to database",
	Long: `Apply the table schema to a PostgreSQL database.

Installs the auth schema functions, creates or alters every table, replaces
its row level security policies and records the migration. Runs in a single
transaction and is skipped when the compiled schema is unchanged.`,
	Example: `  # Apply schema to database
  lattice migrate --db postgres://localhost/mydb

  # Preview migration without applying
  lattice migrate --db postgres://localhost/mydb --dry-run

  # Force re-apply even if schema unchanged
  lattice migrate --db postgres://localhost/mydb --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		schemaPath := resolveString(migrateSchema, cfg.Schema)

		opts := cfg.MigrateOptions()
		opts.Force = resolveBool(migrateForce, opts.Force)
		opts.Compile = compileOptions(migrateForceRLS, migrateUsersTable)
		dryRun := resolveBool(migrateDryRun, cfg.Migrate.DryRun)

		dsn, err := resolveDSN(migrateDB)
		if err != nil {
			return err
		}

		return runMigrate(cmd.Context(), dsn, schemaPath, dryRun, opts)
	},
}

func init() {
	f := migrateCmd.Flags()
	f.StringVar(&migrateDB, "db", "", "database URL")
	f.StringVar(&migrateSchema, "schema", "", "path to schema document (JSON or YAML)")
	f.BoolVar(&migrateDryRun, "dry-run", false, "output migration SQL without applying")
	f.BoolVar(&migrateForce, "force", false, "force migration even if schema unchanged")
	f.BoolVar(&migrateForceRLS, "force-rls", false, "emit FORCE ROW LEVEL SECURITY")
	f.StringVar(&migrateUsersTable, "users-table", "", "add foreign keys from user fields to this table")
}

func runMigrate(ctx context.Context, dsn, schemaPath string, dryRun bool, opts migrator.MigrateOptions) error {
	db, err := openDB(ctx, "postgres", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if dryRun {
		opts.DryRun = os.Stdout
		if !quiet {
			fmt.Fprintln(os.Stderr, "-- Dry-run mode: SQL will be output but not applied")
			fmt.Fprintln(os.Stderr, "")
		}
	} else if !quiet {
		fmt.Println("Applying schema...")
	}

	skipped, err := migrator.MigrateWithOptions(ctx, db, schemaPath, opts, migrator.WithLogger(logger))
	if err != nil {
		return migrateError(err)
	}

	if dryRun || quiet {
		return nil
	}
	if skipped {
		fmt.Println("Schema unchanged, migration skipped.")
		fmt.Println("Use --force to re-apply.")
	} else {
		fmt.Println("Schema applied successfully.")
	}
	return nil
}

// migrateError maps a migration failure to its exit code.
func migrateError(err error) error {
	switch {
	case lattice.IsInvalidSchemaErr(err):
		return cli.SchemaParseError("schema error", err)
	case lattice.IsConstraintViolation(err):
		return cli.ConstraintError("existing data violates the schema", err)
	default:
		return cli.GeneralError("migration failed", err)
	}
}
