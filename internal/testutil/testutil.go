// Package testutil provides shared test utilities for lattice integration
// tests: a singleton PostgreSQL container and one fresh database per test.
package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pthm/lattice/pkg/migrator"
	"github.com/pthm/lattice/pkg/schema"
)

// AppRole is a role without superuser or table ownership, so row level
// security applies to it. Tests switch to it with lattice.WithRole.
const AppRole = "lattice_app"

// Singleton container state
var (
	singletonOnce sync.Once
	singletonDSN  string
	singletonErr  error
)

// adminDSN returns the DSN of a server the tests may create databases on.
// DATABASE_URL takes precedence; otherwise a container is started once per
// test binary.
func adminDSN() (string, error) {
	singletonOnce.Do(func() {
		if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
			singletonDSN = dsn
		} else {
			singletonDSN, singletonErr = startContainer()
		}
		if singletonErr == nil {
			singletonErr = ensureAppRole(singletonDSN)
		}
	})

	return singletonDSN, singletonErr
}

func startContainer() (string, error) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("postgres"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_INITDB_ARGS": "--auth-host=trust",
		}),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return "", fmt.Errorf("failed to start PostgreSQL container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return "", fmt.Errorf("failed to get PostgreSQL connection string: %w", err)
	}

	// Container is not stored - ryuk will handle cleanup automatically
	return dsn, nil
}

// ensureAppRole creates AppRole once per server. Roles are cluster wide.
func ensureAppRole(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	_, err = db.Exec(fmt.Sprintf(`
		DO $$
		BEGIN
			IF NOT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = '%[1]s') THEN
				CREATE ROLE %[1]s NOLOGIN;
			END IF;
		END
		$$`, AppRole))
	if err != nil {
		return fmt.Errorf("creating role %s: %w", AppRole, err)
	}
	return nil
}

// EmptyDB returns a connection to a new, empty database.
// The database is dropped when the test completes.
// Works with both *testing.T and *testing.B.
func EmptyDB(tb testing.TB) *sql.DB {
	tb.Helper()

	admin, err := adminDSN()
	require.NoError(tb, err, "failed to start PostgreSQL")

	dbName := uniqueDBName("test")
	require.NoError(tb, execAdmin(context.Background(), admin, "CREATE DATABASE "+dbName), "failed to create test database")

	dsn, err := replaceDBName(admin, dbName)
	require.NoError(tb, err)
	db, err := sql.Open("pgx", dsn)
	require.NoError(tb, err, "failed to connect to test database")
	require.NoError(tb, db.Ping(), "failed to ping test database")

	registerCleanup(tb, db, admin, dbName)
	return db
}

// DB returns a connection to a new database with the auth functions
// installed and AppRole allowed to use the public schema.
func DB(tb testing.TB) *sql.DB {
	tb.Helper()

	db := EmptyDB(tb)
	ctx := context.Background()
	require.NoError(tb, migrator.NewMigrator(db, "").ApplyDDL(ctx), "failed to apply lattice DDL")
	_, err := db.ExecContext(ctx, fmt.Sprintf("GRANT USAGE ON SCHEMA public TO %s", AppRole))
	require.NoError(tb, err)
	return db
}

// Migrate applies tables to db and grants AppRole access to the result.
func Migrate(tb testing.TB, db *sql.DB, tables []schema.Table, opts ...migrator.MigrateOptions) {
	tb.Helper()

	var o migrator.MigrateOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	o.Force = true
	_, err := migrator.NewMigrator(db, "").MigrateWithTablesAndOptions(context.Background(), tables, o)
	require.NoError(tb, err, "failed to migrate schema")
	GrantApp(tb, db)
}

// GrantApp gives AppRole full privileges on every table and sequence in the
// public schema. Policies still decide which rows it sees.
func GrantApp(tb testing.TB, db *sql.DB) {
	tb.Helper()

	_, err := db.Exec(fmt.Sprintf(`
		GRANT USAGE ON SCHEMA public TO %[1]s;
		GRANT SELECT, INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA public TO %[1]s;
		GRANT USAGE, SELECT ON ALL SEQUENCES IN SCHEMA public TO %[1]s;
	`, AppRole))
	require.NoError(tb, err, "failed to grant %s", AppRole)
}

// registerCleanup closes the connection and drops the database in the
// background.
func registerCleanup(tb testing.TB, db *sql.DB, admin, dbName string) {
	tb.Cleanup(func() {
		_ = db.Close()

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = execAdmin(ctx, admin, "DROP DATABASE IF EXISTS "+dbName+" WITH (FORCE)")
		}()
	})
}

// uniqueDBName generates a unique database name with the given prefix.
func uniqueDBName(prefix string) string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(b))
}

func execAdmin(ctx context.Context, dsn, stmt string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	_, err = db.ExecContext(ctx, stmt)
	return err
}

// replaceDBName replaces the database name in a postgres:// DSN.
func replaceDBName(dsn, name string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parsing DSN: %w", err)
	}
	u.Path = "/" + name
	return u.String(), nil
}
