package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pthm/lattice/internal/cli"
	"github.com/pthm/lattice/internal/sqlgen"
	"github.com/pthm/lattice/pkg/parser"
	"github.com/pthm/lattice/pkg/schema"
)

var validateSchema string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate schema syntax",
	Long: `Validate the schema document without a database.

Every table is checked for unique names, known field types, well formed
options and permission rules, and record conditions that compile.`,
	Example: `  # Validate the configured schema
  lattice validate

  # Validate a specific document
  lattice validate --schema tables.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		schemaPath := resolveString(validateSchema, cfg.Schema)
		return runValidate(schemaPath)
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateSchema, "schema", "", "path to schema document (JSON or YAML)")
}

func runValidate(schemaPath string) error {
	tables, err := parser.ParseSchema(schemaPath)
	if err != nil {
		return cli.SchemaParseError("parsing schema", err)
	}

	if _, err := sqlgen.Compile(tables, compileOptions(false, "")); err != nil {
		return cli.SchemaParseError("compiling schema", err)
	}

	plans := make([]sqlgen.TablePlan, 0, len(tables))
	for _, t := range tables {
		plan, err := sqlgen.PlanTable(t)
		if err != nil {
			return cli.SchemaParseError("table "+t.Name, err)
		}
		plans = append(plans, plan)
	}

	if quiet {
		return nil
	}

	fmt.Printf("Schema is valid. Found %d tables:\n", len(tables))
	for i, t := range tables {
		fmt.Printf("  - %s (%d fields)\n", t.Name, len(t.Fields))
		if verbose == 0 {
			continue
		}
		for _, a := range schema.Actions {
			ap, _ := plans[i].Action(a)
			fmt.Printf("      %-6s %s\n", a, ap.Outcome)
		}
	}
	return nil
}
