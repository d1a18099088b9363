// Package doctor runs health checks against a lattice deployment: the schema
// document, the auth functions, the migration record and the row level
// security state of every declared table.
//
// Example usage:
//
//	d := doctor.New(db, "schema.json")
//	report, err := d.Run(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	report.Print(os.Stdout, true) // verbose=true
package doctor

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/pthm/lattice"
	"github.com/pthm/lattice/internal/sqlgen"
	"github.com/pthm/lattice/pkg/migrator"
	"github.com/pthm/lattice/pkg/parser"
)

// Status is the outcome of a check.
type Status int

const (
	// StatusPass indicates the check passed.
	StatusPass Status = iota
	// StatusWarn indicates drift that does not break enforcement.
	StatusWarn
	// StatusFail indicates a problem that breaks enforcement or migration.
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Symbol returns a status indicator for terminal output.
func (s Status) Symbol() string {
	switch s {
	case StatusPass:
		return "✓"
	case StatusWarn:
		return "⚠"
	case StatusFail:
		return "✗"
	default:
		return "?"
	}
}

// CheckResult is the outcome of a single check.
type CheckResult struct {
	Category string
	Name     string
	Status   Status
	Message  string

	// Details is shown in verbose output.
	Details string

	// FixHint is shown for warnings and failures.
	FixHint string
}

// Report collects check results.
type Report struct {
	Checks []CheckResult

	Passed   int
	Warnings int
	Errors   int
}

// AddCheck records a result and updates the counts.
func (r *Report) AddCheck(check CheckResult) {
	r.Checks = append(r.Checks, check)
	switch check.Status {
	case StatusPass:
		r.Passed++
	case StatusWarn:
		r.Warnings++
	case StatusFail:
		r.Errors++
	}
}

// Find returns the first check with the given category and name.
func (r *Report) Find(category, name string) (CheckResult, bool) {
	for _, c := range r.Checks {
		if c.Category == category && c.Name == name {
			return c, true
		}
	}
	return CheckResult{}, false
}

// Print writes the report grouped by category, in the order categories
// were first seen.
func (r *Report) Print(w io.Writer, verbose bool) {
	var order []string
	byCategory := make(map[string][]CheckResult)
	for _, c := range r.Checks {
		if _, ok := byCategory[c.Category]; !ok {
			order = append(order, c.Category)
		}
		byCategory[c.Category] = append(byCategory[c.Category], c)
	}

	for _, cat := range order {
		_, _ = fmt.Fprintf(w, "\n%s\n", cat)
		for _, c := range byCategory[cat] {
			_, _ = fmt.Fprintf(w, "  %s %s\n", c.Status.Symbol(), c.Message)
			if verbose && c.Details != "" {
				for _, line := range strings.Split(c.Details, "\n") {
					_, _ = fmt.Fprintf(w, "      %s\n", line)
				}
			}
			if c.Status != StatusPass && c.FixHint != "" {
				_, _ = fmt.Fprintf(w, "      Fix: %s\n", c.FixHint)
			}
		}
	}

	_, _ = fmt.Fprintf(w, "\nSummary: %d passed, %d warnings, %d errors\n",
		r.Passed, r.Warnings, r.Errors)
}

// HasErrors returns true if any check failed.
func (r *Report) HasErrors() bool {
	return r.Errors > 0
}

// Check categories.
const (
	CategorySchema    = "Schema File"
	CategoryAuth      = "Auth Functions"
	CategoryMigration = "Migration State"
	CategoryTables    = "Tables"
)

// Doctor checks one schema document against one database.
type Doctor struct {
	db         *sql.DB
	schemaPath string
	opts       sqlgen.Options

	// Populated during Run
	compiled *sqlgen.CompiledSchema
	last     *migrator.MigrationRecord
}

// Option configures a Doctor.
type Option func(*Doctor)

// WithCompileOptions sets the options the schema was migrated with, so
// FORCE ROW LEVEL SECURITY and the checksum are compared correctly.
func WithCompileOptions(opts sqlgen.Options) Option {
	return func(d *Doctor) {
		d.opts = opts
	}
}

// New creates a Doctor.
func New(db *sql.DB, schemaPath string, opts ...Option) *Doctor {
	d := &Doctor{db: db, schemaPath: schemaPath}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes every check. An error is returned only when the database
// cannot be queried; problems found are reported as checks.
func (d *Doctor) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	d.checkSchemaFile(report)
	if err := d.checkAuthFunctions(ctx, report); err != nil {
		return nil, fmt.Errorf("checking auth functions: %w", err)
	}
	if err := d.checkMigrationState(ctx, report); err != nil {
		return nil, fmt.Errorf("checking migration state: %w", err)
	}
	if err := d.checkTables(ctx, report); err != nil {
		return nil, fmt.Errorf("checking tables: %w", err)
	}
	return report, nil
}

func (d *Doctor) checkSchemaFile(report *Report) {
	m := migrator.NewMigrator(d.db, d.schemaPath)
	if !m.HasSchema() {
		report.AddCheck(CheckResult{
			Category: CategorySchema,
			Name:     "exists",
			Status:   StatusFail,
			Message:  fmt.Sprintf("Schema file not found at %s", d.schemaPath),
			FixHint:  "Set schema in lattice.yaml or pass --schema",
		})
		return
	}
	report.AddCheck(CheckResult{
		Category: CategorySchema,
		Name:     "exists",
		Status:   StatusPass,
		Message:  fmt.Sprintf("Schema file exists at %s", d.schemaPath),
	})

	tables, err := parser.ParseSchema(d.schemaPath)
	if err != nil {
		report.AddCheck(CheckResult{
			Category: CategorySchema,
			Name:     "valid",
			Status:   StatusFail,
			Message:  "Schema is invalid",
			Details:  err.Error(),
			FixHint:  "Run 'lattice validate' to see the error",
		})
		return
	}
	compiled, err := sqlgen.Compile(tables, d.opts)
	if err != nil {
		report.AddCheck(CheckResult{
			Category: CategorySchema,
			Name:     "valid",
			Status:   StatusFail,
			Message:  "Schema does not compile",
			Details:  err.Error(),
			FixHint:  "Run 'lattice compile' to see the error",
		})
		return
	}
	d.compiled = &compiled

	report.AddCheck(CheckResult{
		Category: CategorySchema,
		Name:     "valid",
		Status:   StatusPass,
		Message:  fmt.Sprintf("Schema is valid (%d tables, %d policies)", len(tables), len(compiled.PolicyNames())),
		Details:  strings.Join(compiled.TableNames(), ", "),
	})
}

func (d *Doctor) checkAuthFunctions(ctx context.Context, report *Report) error {
	err := lattice.CheckAuthFunctions(ctx, d.db)
	switch {
	case err == nil:
		report.AddCheck(CheckResult{
			Category: CategoryAuth,
			Name:     "installed",
			Status:   StatusPass,
			Message:  fmt.Sprintf("All %d auth functions exist", len(lattice.AuthFunctions)),
			Details:  strings.Join(lattice.AuthFunctions, "\n"),
		})
		return nil
	case lattice.IsMissingAuthFunctionsErr(err):
		report.AddCheck(CheckResult{
			Category: CategoryAuth,
			Name:     "installed",
			Status:   StatusFail,
			Message:  "Auth functions are missing; every policy calling them fails",
			Details:  err.Error(),
			FixHint:  "Run 'lattice migrate' to install them",
		})
		return nil
	default:
		return err
	}
}

func (d *Doctor) checkMigrationState(ctx context.Context, report *Report) error {
	last, err := migrator.NewMigrator(d.db, d.schemaPath).GetLastMigration(ctx)
	if err != nil {
		return err
	}
	if last == nil {
		report.AddCheck(CheckResult{
			Category: CategoryMigration,
			Name:     "migrated",
			Status:   StatusWarn,
			Message:  "No migration records found",
			FixHint:  "Run 'lattice migrate' to apply the schema",
		})
		return nil
	}
	d.last = last

	report.AddCheck(CheckResult{
		Category: CategoryMigration,
		Name:     "migrated",
		Status:   StatusPass,
		Message:  fmt.Sprintf("Schema migrated at %s (%d tables, %d policies)", last.AppliedAt.Format("2006-01-02 15:04:05"), len(last.TableNames), len(last.PolicyNames)),
	})

	if d.compiled == nil {
		return nil
	}
	checksum := migrator.ComputeSchemaChecksum(d.compiled.SQL())
	switch {
	case checksum != last.SchemaChecksum:
		report.AddCheck(CheckResult{
			Category: CategoryMigration,
			Name:     "schema_sync",
			Status:   StatusWarn,
			Message:  "Schema has changed since the last migration",
			Details:  fmt.Sprintf("File checksum: %s...\nDB checksum:   %s...", checksum[:16], prefix(last.SchemaChecksum, 16)),
			FixHint:  "Run 'lattice migrate' to apply changes",
		})
	case last.CodegenVersion != migrator.CodegenVersion:
		report.AddCheck(CheckResult{
			Category: CategoryMigration,
			Name:     "schema_sync",
			Status:   StatusWarn,
			Message:  "Codegen version has changed",
			Details:  fmt.Sprintf("Current: %s, DB: %s", migrator.CodegenVersion, last.CodegenVersion),
			FixHint:  "Run 'lattice migrate' to regenerate policies",
		})
	default:
		report.AddCheck(CheckResult{
			Category: CategoryMigration,
			Name:     "schema_sync",
			Status:   StatusPass,
			Message:  "Schema is in sync with database",
		})
	}

	var removed []string
	for _, name := range last.TableNames {
		if !slices.Contains(d.compiled.TableNames(), name) {
			removed = append(removed, name)
		}
	}
	if len(removed) > 0 {
		report.AddCheck(CheckResult{
			Category: CategoryMigration,
			Name:     "removed_tables",
			Status:   StatusWarn,
			Message:  fmt.Sprintf("%d migrated tables are no longer declared", len(removed)),
			Details:  strings.Join(removed, "\n"),
			FixHint:  "Drop them manually if their data is no longer needed",
		})
	}
	return nil
}

// checkTables compares each declared table's RLS state and lattice policies
// with what the compiled schema creates.
func (d *Doctor) checkTables(ctx context.Context, report *Report) error {
	if d.compiled == nil {
		return nil
	}
	states, err := migrator.NewMigrator(d.db, d.schemaPath).Inspect(ctx, d.compiled.TableNames())
	if err != nil {
		return err
	}

	for _, st := range states {
		ct, _ := d.compiled.Table(st.Name)
		report.AddCheck(tableCheck(st, ct, d.opts))
	}
	return nil
}

func tableCheck(st migrator.TableState, ct sqlgen.CompiledTable, opts sqlgen.Options) CheckResult {
	check := CheckResult{Category: CategoryTables, Name: st.Name, Status: StatusPass}
	if !st.Exists {
		check.Status = StatusFail
		check.Message = fmt.Sprintf("%s does not exist", st.Name)
		check.FixHint = "Run 'lattice migrate' to create it"
		return check
	}

	var problems []string
	needsRLS := ct.Plan.NeedsRLS()
	if needsRLS && !st.RLSEnabled {
		problems = append(problems, "row level security is disabled; every row is visible")
		check.Status = StatusFail
	}
	if !needsRLS && st.RLSEnabled {
		problems = append(problems, "row level security is enabled on a fully public table")
	}
	if needsRLS && opts.ForceRLS && !st.RLSForced {
		problems = append(problems, "row level security is not forced for the owner")
	}

	var missing, extra []string
	for _, name := range ct.PolicyNames {
		if !slices.Contains(st.Policies, name) {
			missing = append(missing, name)
		}
	}
	for _, name := range st.Policies {
		if migrator.IsManagedPolicy(st.Name, name) && !slices.Contains(ct.PolicyNames, name) {
			extra = append(extra, name)
		}
	}
	if len(missing) > 0 {
		problems = append(problems, "missing policies: "+strings.Join(missing, ", "))
		check.Status = StatusFail
	}
	if len(extra) > 0 {
		problems = append(problems, "stale policies: "+strings.Join(extra, ", "))
	}

	if len(problems) == 0 {
		rls := "disabled (public)"
		if needsRLS {
			rls = "enabled"
		}
		check.Message = fmt.Sprintf("%s: row level security %s, %d policies", st.Name, rls, len(ct.PolicyNames))
		check.Details = strings.Join(st.Policies, "\n")
		return check
	}

	if check.Status == StatusPass {
		check.Status = StatusWarn
	}
	check.Message = fmt.Sprintf("%s: %s", st.Name, problems[0])
	check.Details = strings.Join(problems, "\n")
	check.FixHint = "Run 'lattice migrate --force' to reapply policies"
	return check
}

func prefix(s string, n int) string {
	if len(s) < n {
		return s
	}
	return s[:n]
}
