// Package condition resolves the eligibility predicate that decides which
// legacy rows a plan selects for creation or update.
package condition

import (
	"context"
	"errors"
	"log/slog"

	"legacy-migrate/internal/catalog"
	"legacy-migrate/internal/planner"

	sq "github.com/Masterminds/squirrel"
)

// ErrEligibilityLookup wraps target store failures while resolving a condition.
// Callers must not fall back to an unconditioned query.
var ErrEligibilityLookup = errors.New("eligibility lookup failed")

// Policy computes the update predicate for one class.
type Policy interface {
	UpdateCondition(ctx context.Context, plan *planner.QueryPlan) (sq.Sqlizer, error)
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(ctx context.Context, plan *planner.QueryPlan) (sq.Sqlizer, error)

func (f PolicyFunc) UpdateCondition(ctx context.Context, plan *planner.QueryPlan) (sq.Sqlizer, error) {
	return f(ctx, plan)
}

// Resolver dispatches update plans to per-class policies. Classes without a
// policy are eligible for update once migrated; every other action selects
// unmigrated rows.
type Resolver struct {
	policies map[catalog.Class]Policy
	logger   *slog.Logger
}

// NewResolver creates a resolver over a copy of policies.
func NewResolver(policies map[catalog.Class]Policy, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	copied := make(map[catalog.Class]Policy, len(policies))
	for class, policy := range policies {
		if policy != nil {
			copied[class] = policy
		}
	}
	return &Resolver{policies: copied, logger: logger}
}

// Condition implements planner.ConditionResolver.
func (r *Resolver) Condition(ctx context.Context, plan *planner.QueryPlan) (sq.Sqlizer, error) {
	if plan.Action != planner.ActionUpdate {
		return planner.MarkerUnset(catalog.BaseAlias, plan.MarkerColumn), nil
	}
	policy, ok := r.policies[plan.Class]
	if !ok {
		return planner.MarkerSet(catalog.BaseAlias, plan.MarkerColumn), nil
	}
	r.logger.Debug("resolving update condition", slog.String("class", string(plan.Class)))
	return policy.UpdateCondition(ctx, plan)
}
