package lattice

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/pthm/lattice/internal/sqlgen"
	"github.com/pthm/lattice/pkg/schema"
)

// AuthFunctions lists the functions compiled policies call, as regprocedure
// signatures.
var AuthFunctions = []string{
	"auth.user_id()",
	"auth.is_authenticated()",
	"auth.user_has_role(text)",
	"auth.user_property(text)",
}

// authValidation holds the process-wide validation state.
// Validation runs once per process on the first NewChecker call.
var authValidation sync.Once

// Checker answers access decisions for a compiled schema and runs queries
// with a session bound.
//
// Checkers hold no per-request state and are safe for concurrent use.
type Checker struct {
	db                 DB
	plans              map[string]sqlgen.TablePlan
	role               string
	decision           Decision
	useContextDecision bool
	logger             *slog.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithRole makes WithSession switch to role (SET LOCAL ROLE) before binding
// the session, so policies apply even when the connection's user bypasses
// RLS.
func WithRole(role string) Option {
	return func(c *Checker) {
		c.role = role
	}
}

// WithDecision sets a decision override that bypasses evaluation.
// Use DecisionAllow for admin tools or DecisionDeny for testing denial paths.
// Row filtering by the database still applies.
func WithDecision(d Decision) Option {
	return func(c *Checker) {
		c.decision = d
	}
}

// WithContextDecision enables context-based decision overrides.
//
// Decision precedence when enabled:
//  1. Context decision (via WithDecisionContext)
//  2. Checker decision (via WithDecision)
//  3. Evaluation against the schema
func WithContextDecision() Option {
	return func(c *Checker) {
		c.useContextDecision = true
	}
}

// WithLogger sets the logger used for setup warnings.
// Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Checker) {
		c.logger = l
	}
}

// NewChecker builds a Checker for tables. The tables must be the schema
// that was migrated into db.
//
// On the first call with a non-nil db, NewChecker checks that the auth
// functions exist (once per process). A missing function is logged as a
// warning and does not fail construction.
func NewChecker(db DB, tables []schema.Table, opts ...Option) (*Checker, error) {
	if err := schema.Validate(tables); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}

	c := &Checker{
		db:       db,
		plans:    make(map[string]sqlgen.TablePlan, len(tables)),
		decision: DecisionUnset,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, t := range tables {
		plan, err := sqlgen.PlanTable(t)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
		}
		c.plans[t.Name] = plan
	}

	if db != nil {
		authValidation.Do(func() {
			if err := CheckAuthFunctions(context.Background(), db); err != nil {
				c.logger.Warn("auth functions unavailable, run 'lattice migrate' to install them", "error", err)
			}
		})
	}

	return c, nil
}

// Tables returns the names of the tables the Checker knows, sorted.
func (c *Checker) Tables() []string {
	names := make([]string, 0, len(c.plans))
	for name := range c.plans {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Decide reports whether s may perform action on table.
//
// The table level rule is evaluated against the session: public allows,
// authenticated and roles deny sessions that do not qualify, owner filters.
// Record conditions always filter. An action with no rule is denied.
func (c *Checker) Decide(ctx context.Context, table string, action schema.Action, s Session) (Decision, error) {
	plan, ok := c.plans[table]
	if !ok {
		return DecisionDeny, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	ap, ok := plan.Action(action)
	if !ok {
		return DecisionDeny, fmt.Errorf("%w: unknown action %q", schema.ErrInvalidPermission, action)
	}

	if c.useContextDecision {
		if d := GetDecisionContext(ctx); d != DecisionUnset {
			return d, nil
		}
	}
	if c.decision != DecisionUnset {
		return c.decision, nil
	}

	return decideAction(ap, s), nil
}

func decideAction(ap sqlgen.ActionPlan, s Session) Decision {
	switch ap.Outcome {
	case sqlgen.OutcomeDenyAll:
		return DecisionDeny
	case sqlgen.OutcomeUnconditional:
		return DecisionAllow
	}

	d := DecisionAllow
	if ap.Rule != nil {
		switch ap.Rule.Type {
		case schema.RuleAuthenticated:
			if !s.Authenticated() {
				return DecisionDeny
			}
		case schema.RuleRoles:
			if !s.HasAnyRole(ap.Rule.Roles) {
				return DecisionDeny
			}
		case schema.RuleOwner:
			if !s.Authenticated() {
				return DecisionDeny
			}
			d = DecisionFilter
		}
	}
	if len(ap.Conditions) > 0 {
		d = DecisionFilter
	}
	return d
}

// WithSession runs fn in a transaction with s bound. The transaction is
// committed when fn returns nil and rolled back otherwise.
func (c *Checker) WithSession(ctx context.Context, s Session, fn func(tx *sql.Tx) error) (err error) {
	if c.db == nil {
		return errors.New("lattice: checker has no database")
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = BindSession(ctx, tx, s, c.role); err != nil {
		return err
	}
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// CheckAuthFunctions returns ErrMissingAuthFunctions naming every auth
// function that does not exist in the database.
func CheckAuthFunctions(ctx context.Context, q Querier) error {
	var missing []string
	for _, fn := range AuthFunctions {
		var exists bool
		err := q.QueryRowContext(ctx, "SELECT to_regprocedure($1) IS NOT NULL", fn).Scan(&exists)
		if err != nil {
			return mapError("checking auth functions", err)
		}
		if !exists {
			missing = append(missing, fn)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingAuthFunctions, strings.Join(missing, ", "))
	}
	return nil
}

// mapError maps PostgreSQL errors to sentinel errors.
func mapError(operation string, err error) error {
	switch SQLState(err) {
	case pgUndefinedFunction, pgInvalidSchemaName:
		if strings.Contains(err.Error(), "auth") {
			return fmt.Errorf("%w: %v", ErrMissingAuthFunctions, err)
		}
	case pgUndefinedTable:
		return fmt.Errorf("%w: %v", ErrUnknownTable, err)
	}
	return fmt.Errorf("%s: %w", operation, err)
}
