package migrator

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/pthm/lattice"
	"github.com/pthm/lattice/internal/sqlgen"
	"github.com/pthm/lattice/internal/sqlgen/sqldsl"
	"github.com/pthm/lattice/pkg/schema"
	latticesql "github.com/pthm/lattice/sql"
)

// CodegenVersion is incremented when the compiled SQL for an unchanged
// schema changes. This ensures migrations re-run even if the checksum
// matches.
const CodegenVersion = "1"

// MigrateOptions controls migration behavior.
type MigrateOptions struct {
	// DryRun outputs SQL to the provided writer without applying changes to
	// the database. Use for previewing migrations or generating scripts.
	DryRun io.Writer

	// Force re-runs migration even if the compiled schema is unchanged.
	Force bool

	// Compile tunes compilation (FORCE ROW LEVEL SECURITY, users table).
	Compile sqlgen.Options
}

// MigrationRecord represents a row in the lattice_migrations table.
type MigrationRecord struct {
	SchemaChecksum string
	CodegenVersion string
	TableNames     []string
	PolicyNames    []string
	AppliedAt      time.Time
}

// Migrator applies compiled schemas to PostgreSQL.
// The migrator is idempotent: safe to run on every application startup.
//
// A migration, inside one transaction when the Execer supports BeginTx:
//  1. installs the auth schema functions and the tracking table
//  2. applies each table's DDL and policies, in declaration order
//  3. drops stale lattice policies and disables RLS on tables that became
//     fully public
//  4. records the checksum, tables and policies in lattice_migrations
//
// Database errors, including constraint violations raised while
// retrofitting UNIQUE or NOT NULL onto existing data, are returned wrapped
// with the driver's message intact.
type Migrator struct {
	db         Execer
	schemaPath string
	logger     *slog.Logger
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithLogger sets the logger for progress messages.
// Defaults to a logger that discards output.
func WithLogger(l *slog.Logger) Option {
	return func(m *Migrator) {
		m.logger = l
	}
}

// NewMigrator creates a new schema migrator.
// The Execer is typically *sql.DB but can be *sql.Tx for testing.
func NewMigrator(db Execer, schemaPath string, opts ...Option) *Migrator {
	m := &Migrator{
		db:         db,
		schemaPath: schemaPath,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SchemaPath returns the path to the schema document.
func (m *Migrator) SchemaPath() string {
	return m.schemaPath
}

// HasSchema returns true if the schema document exists.
func (m *Migrator) HasSchema() bool {
	if m.schemaPath == "" {
		return false
	}
	_, err := os.Stat(m.schemaPath)
	return err == nil
}

// ApplyDDL installs the auth schema functions and the lattice_migrations
// table. Both are idempotent.
func (m *Migrator) ApplyDDL(ctx context.Context) error {
	return m.applyDDL(ctx, m.db)
}

func (m *Migrator) applyDDL(ctx context.Context, db Execer) error {
	if _, err := db.ExecContext(ctx, latticesql.AuthSQL); err != nil {
		return fmt.Errorf("applying auth.sql: %w", err)
	}
	if _, err := db.ExecContext(ctx, latticesql.MigrationsSQL); err != nil {
		return fmt.Errorf("applying migrations DDL: %w", err)
	}
	return nil
}

// MigrateWithTables compiles tables and applies them.
func (m *Migrator) MigrateWithTables(ctx context.Context, tables []schema.Table) error {
	_, err := m.MigrateWithTablesAndOptions(ctx, tables, MigrateOptions{})
	return err
}

// MigrateWithTablesAndOptions compiles tables and applies them with
// dry-run and skip-if-unchanged support.
//
// skipped is true when the last recorded migration has the same checksum
// and codegen version (only when Force is false and DryRun is nil).
func (m *Migrator) MigrateWithTablesAndOptions(ctx context.Context, tables []schema.Table, opts MigrateOptions) (skipped bool, err error) {
	// 1. Validate and compile before touching the database
	compiled, err := sqlgen.Compile(tables, opts.Compile)
	if err != nil {
		return false, fmt.Errorf("%w: %w", lattice.ErrInvalidSchema, err)
	}
	checksum := ComputeSchemaChecksum(compiled.SQL())

	// 2. Check if we can skip migration (unless force or dry-run)
	if !opts.Force && opts.DryRun == nil {
		last, err := m.getLastMigration(ctx, m.db)
		if err != nil {
			return false, fmt.Errorf("checking last migration: %w", err)
		}
		if shouldSkipMigration(last, checksum) {
			m.logger.Info("schema unchanged, skipping migration", "checksum", checksum[:12])
			return true, nil
		}
	}

	// 3. Handle dry-run mode
	if opts.DryRun != nil {
		var last *MigrationRecord
		if m.db != nil {
			if last, err = m.getLastMigration(ctx, m.db); err != nil {
				return false, fmt.Errorf("checking last migration: %w", err)
			}
		}
		m.outputDryRun(opts.DryRun, checksum, compiled, last)
		return false, nil
	}

	// 4. Apply everything atomically
	if txer, ok := m.db.(interface {
		BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	}); ok {
		tx, err := txer.BeginTx(ctx, nil)
		if err != nil {
			return false, fmt.Errorf("starting transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if err := m.apply(ctx, tx, checksum, compiled); err != nil {
			return false, err
		}
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("committing migration: %w", err)
		}
		m.logger.Info("migration applied", "tables", len(compiled.Tables), "policies", len(compiled.PolicyNames()))
		return false, nil
	}

	// Fall back to non-transactional (for *sql.Conn and *sql.Tx)
	if err := m.apply(ctx, m.db, checksum, compiled); err != nil {
		return false, err
	}
	m.logger.Info("migration applied", "tables", len(compiled.Tables), "policies", len(compiled.PolicyNames()))
	return false, nil
}

func (m *Migrator) apply(ctx context.Context, db Execer, checksum string, compiled sqlgen.CompiledSchema) error {
	if err := m.applyDDL(ctx, db); err != nil {
		return err
	}

	last, err := m.getLastMigration(ctx, db)
	if err != nil {
		return fmt.Errorf("checking last migration: %w", err)
	}
	m.warnRemovedTables(last, compiled)

	for _, t := range compiled.Tables {
		m.logger.Debug("applying table", "table", t.Name, "statements", len(t.DDL)+len(t.Policies))
		for i, stmt := range t.All() {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("applying table %s, statement %d (%s): %w", t.Name, i+1, stmt, err)
			}
		}
	}

	cleanup, err := m.cleanupStatements(ctx, db, compiled)
	if err != nil {
		return err
	}
	for _, stmt := range cleanup {
		m.logger.Debug("reconciling", "statement", stmt)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("reconciling policies (%s): %w", stmt, err)
		}
	}

	return m.insertMigrationRecord(ctx, db, checksum, compiled)
}

// warnRemovedTables logs tables recorded by the last migration that are no
// longer declared. Their data, constraints and policies are left in place.
func (m *Migrator) warnRemovedTables(last *MigrationRecord, compiled sqlgen.CompiledSchema) {
	if last == nil {
		return
	}
	current := compiled.TableNames()
	for _, name := range last.TableNames {
		if !slices.Contains(current, name) {
			m.logger.Warn("table no longer declared, leaving it unchanged", "table", name)
		}
	}
}

// cleanupStatements returns the statements that remove lattice policies the
// compiled schema no longer creates, and disable RLS on declared tables
// whose actions are all public. Only policies named <table>_<action>_policy
// are considered; hand-written policies are never touched.
func (m *Migrator) cleanupStatements(ctx context.Context, db Execer, compiled sqlgen.CompiledSchema) ([]string, error) {
	states, err := m.inspect(ctx, db, compiled.TableNames())
	if err != nil {
		return nil, err
	}
	expected := make(map[string]bool)
	for _, name := range compiled.PolicyNames() {
		expected[name] = true
	}

	var stmts []string
	for _, st := range states {
		if !st.Exists {
			continue
		}
		for _, name := range st.Policies {
			if IsManagedPolicy(st.Name, name) && !expected[name] {
				stmts = append(stmts, sqldsl.DropPolicy{Name: name, Table: st.Name}.SQL())
			}
		}
		ct, _ := compiled.Table(st.Name)
		if !ct.Plan.NeedsRLS() && (st.RLSEnabled || st.RLSForced) {
			stmts = append(stmts, sqldsl.DisableRLS{Table: st.Name}.SQL())
		}
	}
	return stmts, nil
}

// IsManagedPolicy reports whether name is a policy lattice creates on table.
func IsManagedPolicy(table, name string) bool {
	for _, a := range schema.Actions {
		if name == sqlgen.PolicyName(table, a) {
			return true
		}
	}
	return false
}

// TableState describes a table as it exists in the database.
type TableState struct {
	Name       string
	Exists     bool
	RLSEnabled bool
	RLSForced  bool
	Policies   []string
}

// Inspect reports the database state of the named tables in the current
// schema, in the order given.
func (m *Migrator) Inspect(ctx context.Context, tables []string) ([]TableState, error) {
	return m.inspect(ctx, m.db, tables)
}

func (m *Migrator) inspect(ctx context.Context, db Execer, tables []string) ([]TableState, error) {
	states := make([]TableState, len(tables))
	index := make(map[string]int, len(tables))
	for i, name := range tables {
		states[i] = TableState{Name: name}
		index[name] = i
	}
	if len(tables) == 0 {
		return states, nil
	}

	rows, err := db.QueryContext(ctx, `
		SELECT c.relname, c.relrowsecurity, c.relforcerowsecurity
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = current_schema()
		AND c.relkind IN ('r', 'p')
		AND c.relname = ANY($1)
	`, pq.Array(tables))
	if err != nil {
		return nil, fmt.Errorf("querying pg_class: %w", err)
	}
	for rows.Next() {
		var name string
		var enabled, forced bool
		if err := rows.Scan(&name, &enabled, &forced); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scanning table state: %w", err)
		}
		st := &states[index[name]]
		st.Exists, st.RLSEnabled, st.RLSForced = true, enabled, forced
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = db.QueryContext(ctx, `
		SELECT tablename, policyname
		FROM pg_policies
		WHERE schemaname = current_schema()
		AND tablename = ANY($1)
		ORDER BY tablename, policyname
	`, pq.Array(tables))
	if err != nil {
		return nil, fmt.Errorf("querying pg_policies: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var table, policy string
		if err := rows.Scan(&table, &policy); err != nil {
			return nil, fmt.Errorf("scanning policy: %w", err)
		}
		st := &states[index[table]]
		st.Policies = append(st.Policies, policy)
	}
	return states, rows.Err()
}

// Status represents the current migration state.
// Use GetStatus to check if the database is ready for lattice sessions.
type Status struct {
	// SchemaExists indicates if the schema document exists on disk.
	SchemaExists bool

	// AuthFunctions indicates if every auth schema function exists.
	AuthFunctions bool

	// LastMigration is the most recent migration record, or nil.
	LastMigration *MigrationRecord
}

// GetStatus returns the current migration status.
// Useful for health checks or migration diagnostics.
func (m *Migrator) GetStatus(ctx context.Context) (*Status, error) {
	status := &Status{
		SchemaExists: m.HasSchema(),
	}

	err := lattice.CheckAuthFunctions(ctx, m.db)
	switch {
	case err == nil:
		status.AuthFunctions = true
	case !lattice.IsMissingAuthFunctionsErr(err):
		return nil, err
	}

	last, err := m.getLastMigration(ctx, m.db)
	if err != nil {
		return nil, err
	}
	status.LastMigration = last

	return status, nil
}

// ComputeSchemaChecksum returns a SHA256 hash of the compiled SQL.
// Used to detect schema changes for skip-if-unchanged optimization.
func ComputeSchemaChecksum(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}

// GetLastMigration returns the most recent migration record, or nil if none exists.
func (m *Migrator) GetLastMigration(ctx context.Context) (*MigrationRecord, error) {
	return m.getLastMigration(ctx, m.db)
}

func (m *Migrator) getLastMigration(ctx context.Context, db Execer) (*MigrationRecord, error) {
	// First check if the migrations table exists
	var tableExists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_class c
			JOIN pg_namespace n ON n.oid = c.relnamespace
			WHERE c.relname = 'lattice_migrations'
			AND n.nspname = current_schema()
		)
	`).Scan(&tableExists)
	if err != nil {
		return nil, fmt.Errorf("checking lattice_migrations table: %w", err)
	}
	if !tableExists {
		return nil, nil
	}

	var rec MigrationRecord
	err = db.QueryRowContext(ctx, `
		SELECT schema_checksum, codegen_version, table_names, policy_names, applied_at
		FROM lattice_migrations
		ORDER BY id DESC
		LIMIT 1
	`).Scan(&rec.SchemaChecksum, &rec.CodegenVersion, pq.Array(&rec.TableNames), pq.Array(&rec.PolicyNames), &rec.AppliedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying last migration: %w", err)
	}
	return &rec, nil
}

// shouldSkipMigration returns true if the compiled schema and codegen
// version are unchanged.
func shouldSkipMigration(last *MigrationRecord, checksum string) bool {
	if last == nil {
		return false
	}
	return last.SchemaChecksum == checksum && last.CodegenVersion == CodegenVersion
}

func (m *Migrator) insertMigrationRecord(ctx context.Context, db Execer, checksum string, compiled sqlgen.CompiledSchema) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO lattice_migrations (schema_checksum, codegen_version, table_names, policy_names)
		VALUES ($1, $2, $3, $4)
	`, checksum, CodegenVersion, pq.Array(compiled.TableNames()), pq.Array(compiled.PolicyNames()))
	if err != nil {
		return fmt.Errorf("inserting migration record: %w", err)
	}
	return nil
}

// outputDryRun writes the migration SQL to w.
func (m *Migrator) outputDryRun(w io.Writer, checksum string, compiled sqlgen.CompiledSchema, last *MigrationRecord) {
	section := func(title string) {
		_, _ = fmt.Fprintf(w, "-- ============================================================\n")
		_, _ = fmt.Fprintf(w, "-- %s\n", title)
		_, _ = fmt.Fprintf(w, "-- ============================================================\n\n")
	}

	_, _ = fmt.Fprintf(w, "-- Lattice Migration (dry-run)\n")
	_, _ = fmt.Fprintf(w, "-- Schema checksum: %s\n", checksum)
	_, _ = fmt.Fprintf(w, "-- Codegen version: %s\n", CodegenVersion)
	if last != nil {
		_, _ = fmt.Fprintf(w, "-- Previous checksum: %s\n", last.SchemaChecksum)
	}
	_, _ = fmt.Fprintf(w, "\n")

	section("Auth Functions")
	_, _ = fmt.Fprintf(w, "%s\n", strings.TrimSpace(latticesql.AuthSQL))
	_, _ = fmt.Fprintf(w, "\n")

	section("DDL: Migration Tracking Table")
	_, _ = fmt.Fprintf(w, "%s\n\n", strings.TrimSpace(latticesql.MigrationsSQL))

	for _, t := range compiled.Tables {
		section(fmt.Sprintf("Table %s (%d statements, %d policies)", t.Name, len(t.DDL)+len(t.Policies), len(t.PolicyNames)))
		for _, stmt := range t.All() {
			_, _ = fmt.Fprintf(w, "%s;\n", stmt)
		}
		_, _ = fmt.Fprintf(w, "\n")
	}

	section("Migration Record")

	// Sort for deterministic output
	tables := sortedCopy(compiled.TableNames())
	policies := sortedCopy(compiled.PolicyNames())
	_, _ = fmt.Fprintf(w, "INSERT INTO lattice_migrations (schema_checksum, codegen_version, table_names, policy_names)\n")
	_, _ = fmt.Fprintf(w, "VALUES ('%s', '%s', %s, %s);\n", checksum, CodegenVersion,
		sqldsl.TextArray(tables).SQL(), sqldsl.TextArray(policies).SQL())
}

func sortedCopy(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	sort.Strings(out)
	return out
}
