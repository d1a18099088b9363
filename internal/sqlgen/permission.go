package sqlgen

import (
	"fmt"

	"github.com/pthm/lattice/internal/sqlgen/sqldsl"
	"github.com/pthm/lattice/pkg/schema"
)

// Outcome is the compiled access decision for one action on one table.
// Every action gets exactly one outcome; "no rule" is OutcomeDenyAll.
type Outcome int

const (
	// OutcomeDenyAll means no rule grants the action. With RLS enabled and no
	// policy for the command, every row is filtered out.
	OutcomeDenyAll Outcome = iota
	// OutcomeUnconditional means anyone may perform the action.
	OutcomeUnconditional
	// OutcomePolicy means the action is allowed where ActionPlan.Expr holds.
	OutcomePolicy
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeDenyAll:
		return "deny-all"
	case OutcomeUnconditional:
		return "unconditional"
	case OutcomePolicy:
		return "policy"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Command returns the SQL command governed by an action.
func Command(a schema.Action) string {
	switch a {
	case schema.ActionRead:
		return "SELECT"
	case schema.ActionCreate:
		return "INSERT"
	case schema.ActionUpdate:
		return "UPDATE"
	case schema.ActionDelete:
		return "DELETE"
	default:
		return ""
	}
}

// ActionPlan is the plan for one action.
type ActionPlan struct {
	Action  schema.Action
	Command string
	Outcome Outcome

	// Expr is the policy predicate; set only for OutcomePolicy.
	Expr sqldsl.Expr

	// Rule and Conditions are the declarations the outcome was derived from.
	Rule       *schema.PermissionRule
	Conditions []string
}

// PolicyName returns the name of the policy for this action on table.
func (p ActionPlan) PolicyName(table string) string {
	return PolicyName(table, p.Action)
}

// TablePlan holds one ActionPlan per action, in schema.Actions order.
type TablePlan struct {
	Table   string
	Actions []ActionPlan
}

// NeedsRLS reports whether any action is restricted. Tables where every
// action is unconditional are compiled without row level security.
func (p TablePlan) NeedsRLS() bool {
	for _, a := range p.Actions {
		if a.Outcome != OutcomeUnconditional {
			return true
		}
	}
	return false
}

// Action returns the plan for a.
func (p TablePlan) Action(a schema.Action) (ActionPlan, bool) {
	for _, ap := range p.Actions {
		if ap.Action == a {
			return ap, true
		}
	}
	return ActionPlan{}, false
}

// PlanTable derives the outcome of every action of t.
//
// A table-level rule and record conditions for the same action combine as
// rule AND (cond1 OR cond2 ...). A public rule contributes no predicate, so
// public plus conditions is just the conditions.
func PlanTable(t schema.Table) (TablePlan, error) {
	plan := TablePlan{Table: t.Name, Actions: make([]ActionPlan, 0, len(schema.Actions))}
	for _, a := range schema.Actions {
		ap, err := planAction(t, a)
		if err != nil {
			return TablePlan{}, err
		}
		plan.Actions = append(plan.Actions, ap)
	}
	return plan, nil
}

func planAction(t schema.Table, a schema.Action) (ActionPlan, error) {
	ap := ActionPlan{
		Action:     a,
		Command:    Command(a),
		Rule:       t.Permissions.Rule(a),
		Conditions: t.Permissions.RecordConditions(a),
	}

	ruleExpr, unconditional, err := ruleExpr(t, a, ap.Rule)
	if err != nil {
		return ActionPlan{}, err
	}

	var conds []sqldsl.Expr
	for _, src := range ap.Conditions {
		e, err := RenderCondition(t, src)
		if err != nil {
			return ActionPlan{}, fmt.Errorf("table %q, %s: %w", t.Name, a, err)
		}
		conds = append(conds, e)
	}

	switch {
	case ap.Rule == nil && len(conds) == 0:
		ap.Outcome = OutcomeDenyAll
	case unconditional && len(conds) == 0:
		ap.Outcome = OutcomeUnconditional
	case len(conds) == 0:
		ap.Outcome = OutcomePolicy
		ap.Expr = ruleExpr
	default:
		ap.Outcome = OutcomePolicy
		ap.Expr = sqldsl.And(ruleExpr, sqldsl.Or(conds...))
	}
	return ap, nil
}

// ruleExpr returns the predicate for a table-level rule. A nil rule or a
// public rule yields no predicate; unconditional is true only for public.
func ruleExpr(t schema.Table, a schema.Action, rule *schema.PermissionRule) (expr sqldsl.Expr, unconditional bool, err error) {
	if rule == nil {
		return nil, false, nil
	}
	switch rule.Type {
	case schema.RulePublic:
		return nil, true, nil
	case schema.RuleAuthenticated:
		return authIsAuthenticated, false, nil
	case schema.RuleRoles:
		if len(rule.Roles) == 0 {
			return nil, false, fmt.Errorf("%w: roles permission on table %q for %s must list at least one role", schema.ErrRequiredFieldMissing, t.Name, a)
		}
		roles := make([]sqldsl.Expr, len(rule.Roles))
		for i, r := range rule.Roles {
			roles[i] = authUserHasRole(r)
		}
		return sqldsl.Or(roles...), false, nil
	case schema.RuleOwner:
		f, ok := t.Field(rule.Field)
		if !ok {
			return nil, false, fmt.Errorf("%w: owner permission on table %q: field %q not found", schema.ErrOwnerFieldNotFound, t.Name, rule.Field)
		}
		if f.Type != schema.TypeUser {
			return nil, false, fmt.Errorf("%w: owner permission on table %q: field %q must be of type user, got %s", schema.ErrOwnerFieldTypeMismatch, t.Name, rule.Field, f.Type)
		}
		return sqldsl.Eq{Left: sqldsl.Col{Column: f.Name}, Right: authUserID}, false, nil
	default:
		return nil, false, fmt.Errorf("%w: table %q: unknown rule type %q for %s", schema.ErrInvalidPermission, t.Name, rule.Type, a)
	}
}
