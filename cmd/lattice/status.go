package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pthm/lattice/internal/cli"
	"github.com/pthm/lattice/pkg/migrator"
)

var (
	statusDB     string
	statusSchema string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current schema status",
	Long:  `Show the schema document, auth functions and last applied migration.`,
	Example: `  # Check status
  lattice status --db postgres://localhost/mydb`,
	RunE: func(cmd *cobra.Command, args []string) error {
		schemaPath := resolveString(statusSchema, cfg.Schema)

		dsn, err := resolveDSN(statusDB)
		if err != nil {
			return err
		}

		return runStatus(cmd.Context(), dsn, schemaPath)
	},
}

func init() {
	f := statusCmd.Flags()
	f.StringVar(&statusDB, "db", "", "database URL")
	f.StringVar(&statusSchema, "schema", "", "path to schema document (JSON or YAML)")
}

func runStatus(ctx context.Context, dsn, schemaPath string) error {
	db, err := openDB(ctx, "postgres", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	m := migrator.NewMigrator(db, schemaPath, migrator.WithLogger(logger))
	s, err := m.GetStatus(ctx)
	if err != nil {
		return cli.GeneralError("getting status", err)
	}

	fmt.Printf("Schema file:     %s\n", presence(s.SchemaExists))
	fmt.Printf("Auth functions:  %s\n", presence(s.AuthFunctions))

	if last := s.LastMigration; last != nil {
		fmt.Printf("Last migration:  %s (checksum %s, codegen v%s)\n",
			last.AppliedAt.Format("2006-01-02 15:04:05 MST"), last.SchemaChecksum[:12], last.CodegenVersion)
		fmt.Printf("Tables:          %s\n", strings.Join(last.TableNames, ", "))
		fmt.Printf("Policies:        %d\n", len(last.PolicyNames))
	} else {
		fmt.Println("Last migration:  none")
	}

	switch {
	case !s.SchemaExists:
		fmt.Printf("\nNo schema found at %s\n", schemaPath)
	case s.LastMigration == nil:
		fmt.Println("\nRun 'lattice migrate' to apply the schema.")
	}
	return nil
}

func presence(ok bool) string {
	if ok {
		return "present"
	}
	return "missing"
}
