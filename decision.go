package lattice

import (
	"context"
	"fmt"
)

// Decision is the answer of Checker.Decide for one table, action and
// session. It also serves as an override that bypasses evaluation for admin
// tools and tests (see WithDecision).
type Decision int

const (
	// DecisionUnset means no override; evaluate normally.
	DecisionUnset Decision = iota

	// DecisionAllow means the action is permitted on every row.
	DecisionAllow

	// DecisionFilter means the action is permitted on the rows the policy
	// admits. Reads may return fewer rows, or none.
	DecisionFilter

	// DecisionDeny means the action is not permitted at all. API layers
	// answer 403.
	DecisionDeny
)

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case DecisionUnset:
		return "unset"
	case DecisionAllow:
		return "allow"
	case DecisionFilter:
		return "filter"
	case DecisionDeny:
		return "deny"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// Permitted reports whether the action may run at all.
func (d Decision) Permitted() bool {
	return d == DecisionAllow || d == DecisionFilter
}

type decisionKey struct{}

// WithDecisionContext returns a new context with the given decision.
// A Checker only consults it when built with WithContextDecision.
func WithDecisionContext(ctx context.Context, decision Decision) context.Context {
	return context.WithValue(ctx, decisionKey{}, decision)
}

// GetDecisionContext retrieves the decision from context.
// Returns DecisionUnset if no decision is set.
func GetDecisionContext(ctx context.Context) Decision {
	if decision, ok := ctx.Value(decisionKey{}).(Decision); ok {
		return decision
	}
	return DecisionUnset
}
