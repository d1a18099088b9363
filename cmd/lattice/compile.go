package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pthm/lattice/internal/cli"
	"github.com/pthm/lattice/internal/sqlgen"
	"github.com/pthm/lattice/pkg/parser"
)

var (
	compileSchema     string
	compileOutput     string
	compileForceRLS   bool
	compileUsersTable string
)

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Print the SQL for a schema",
	Long: `Compile the schema document to DDL and row level security policies
and print the statements without touching a database.

The output does not include the auth schema functions or the migration
record; use 'lattice migrate --dry-run' for a complete script.`,
	Example: `  # Print compiled SQL
  lattice compile

  # Write to a file with FORCE ROW LEVEL SECURITY
  lattice compile --force-rls -o schema.sql`,
	RunE: func(cmd *cobra.Command, args []string) error {
		schemaPath := resolveString(compileSchema, cfg.Schema)
		opts := compileOptions(compileForceRLS, compileUsersTable)
		return runCompile(schemaPath, compileOutput, opts)
	},
}

func init() {
	f := compileCmd.Flags()
	f.StringVar(&compileSchema, "schema", "", "path to schema document (JSON or YAML)")
	f.StringVarP(&compileOutput, "output", "o", "", "write SQL to file instead of stdout")
	f.BoolVar(&compileForceRLS, "force-rls", false, "emit FORCE ROW LEVEL SECURITY")
	f.StringVar(&compileUsersTable, "users-table", "", "add foreign keys from user fields to this table")
}

// compileOptions merges compile flags over the compile config section.
func compileOptions(forceRLS bool, usersTable string) sqlgen.Options {
	return sqlgen.Options{
		ForceRLS:   resolveBool(forceRLS, cfg.Compile.ForceRLS),
		UsersTable: resolveString(usersTable, cfg.Compile.UsersTable),
	}
}

func runCompile(schemaPath, output string, opts sqlgen.Options) error {
	tables, err := parser.ParseSchema(schemaPath)
	if err != nil {
		return cli.SchemaParseError("parsing schema", err)
	}

	compiled, err := sqlgen.Compile(tables, opts)
	if err != nil {
		return cli.SchemaParseError("compiling schema", err)
	}

	if output == "" {
		fmt.Print(compiled.SQL())
		return nil
	}

	if err := os.WriteFile(output, []byte(compiled.SQL()), 0o644); err != nil { //nolint:gosec // generated SQL is not secret
		return cli.GeneralError("writing output", err)
	}
	logger.Info("wrote compiled schema", "path", output, "tables", len(compiled.Tables))
	return nil
}
