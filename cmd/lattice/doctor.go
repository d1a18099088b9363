package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pthm/lattice/internal/cli"
	"github.com/pthm/lattice/internal/doctor"
)

var (
	doctorDB      string
	doctorSchema  string
	doctorVerbose bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks",
	Long: `Check that the database matches the schema document: auth functions,
migration state, row level security and policies of every table.`,
	Example: `  # Run health checks
  lattice doctor --db postgres://localhost/mydb

  # Run with verbose output
  lattice doctor --db postgres://localhost/mydb --verbose`,
	RunE: func(cmd *cobra.Command, args []string) error {
		schemaPath := resolveString(doctorSchema, cfg.Schema)
		verboseFlag := resolveBool(doctorVerbose, cfg.Doctor.Verbose, verbose > 0)

		dsn, err := resolveDSN(doctorDB)
		if err != nil {
			return err
		}

		return runDoctor(cmd.Context(), dsn, schemaPath, verboseFlag)
	},
}

func init() {
	f := doctorCmd.Flags()
	f.StringVar(&doctorDB, "db", "", "database URL")
	f.StringVar(&doctorSchema, "schema", "", "path to schema document (JSON or YAML)")
	f.BoolVar(&doctorVerbose, "verbose", false, "show detailed output")
}

func runDoctor(ctx context.Context, dsn, schemaPath string, verboseFlag bool) error {
	db, err := openDB(ctx, "postgres", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if !quiet {
		fmt.Println("lattice doctor - Health Check")
	}

	d := doctor.New(db, schemaPath, doctor.WithCompileOptions(compileOptions(false, "")))
	report, err := d.Run(ctx)
	if err != nil {
		return cli.GeneralError("running doctor", err)
	}

	report.Print(os.Stdout, verboseFlag)

	if report.HasErrors() {
		return cli.UnhealthyError("health checks failed", nil)
	}
	return nil
}
