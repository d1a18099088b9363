package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/pthm/lattice"
	"github.com/pthm/lattice/internal/cli"
	"github.com/pthm/lattice/internal/server"
	"github.com/pthm/lattice/pkg/parser"
)

var (
	serveDB        string
	serveSchema    string
	serveAddr      string
	serveJWTSecret string
	serveRole      string
	serveMaxRows   int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the record API",
	Long: `Serve list and create endpoints for every table of the schema.

Each request is authenticated with an HS256 bearer token, checked against
the table's permissions and run in a transaction bound to the caller's
session, so row level security filters every query. The schema must already
be migrated.

Endpoints:
  GET  /api/tables/{table}/records
  POST /api/tables/{table}/records
  GET  /healthz
  GET  /metrics`,
	Example: `  # Serve with the secret from the environment
  LATTICE_SERVE_JWT_SECRET=... lattice serve --db postgres://localhost/mydb

  # Assume a restricted role in every transaction
  lattice serve --role lattice_app`,
	RunE: func(cmd *cobra.Command, args []string) error {
		schemaPath := resolveString(serveSchema, cfg.Schema)
		scfg := server.Config{
			Addr:      resolveString(serveAddr, cfg.Serve.Addr),
			JWTSecret: resolveString(serveJWTSecret, cfg.Serve.JWTSecret),
			MaxRows:   cfg.Serve.MaxRows,
		}
		if serveMaxRows > 0 {
			scfg.MaxRows = serveMaxRows
		}
		if scfg.JWTSecret == "" {
			return cli.ConfigError("serve.jwt_secret is required (use --jwt-secret or LATTICE_SERVE_JWT_SECRET)", nil)
		}

		dsn, err := resolveDSN(serveDB)
		if err != nil {
			return err
		}

		return runServe(cmd.Context(), dsn, schemaPath, resolveString(serveRole, cfg.Serve.Role), scfg)
	},
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveDB, "db", "", "database URL")
	f.StringVar(&serveSchema, "schema", "", "path to schema document (JSON or YAML)")
	f.StringVar(&serveAddr, "addr", "", "listen address (default :8080)")
	f.StringVar(&serveJWTSecret, "jwt-secret", "", "HS256 secret for bearer tokens")
	f.StringVar(&serveRole, "role", "", "role assumed with SET LOCAL ROLE in every transaction")
	f.IntVar(&serveMaxRows, "max-rows", 0, "maximum rows returned by a list request")
}

func runServe(ctx context.Context, dsn, schemaPath, role string, scfg server.Config) error {
	tables, err := parser.ParseSchema(schemaPath)
	if err != nil {
		return cli.SchemaParseError("parsing schema", err)
	}

	db, err := openDB(ctx, "pgx", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	opts := []lattice.Option{lattice.WithLogger(logger)}
	if role != "" {
		opts = append(opts, lattice.WithRole(role))
	}
	checker, err := lattice.NewChecker(db, tables, opts...)
	if err != nil {
		return cli.SchemaParseError("building checker", err)
	}

	srv := server.New(scfg, checker, db, tables, server.WithLogger(logger))
	if err := srv.Run(ctx); err != nil {
		return cli.GeneralError("serving", err)
	}
	return nil
}
