package condition

import (
	"context"
	"fmt"

	"legacy-migrate/internal/catalog"
	"legacy-migrate/internal/observability"
	"legacy-migrate/internal/planner"
	"legacy-migrate/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
)

// TaskLogSource lists the target task logs that are still open for update.
type TaskLogSource interface {
	OpenTaskLogIDs(ctx context.Context) ([]int64, error)
}

// TaskLogPolicy re-selects legacy task logs whose target records are still open.
type TaskLogPolicy struct {
	Source TaskLogSource
	// ReferenceColumn is checked for NULL when nothing is open.
	// Defaults to the plan's primary key.
	ReferenceColumn string
	Metrics         *observability.MigrationMetrics
}

func (p TaskLogPolicy) UpdateCondition(ctx context.Context, plan *planner.QueryPlan) (sq.Sqlizer, error) {
	ids, err := p.Source.OpenTaskLogIDs(ctx)
	p.Metrics.RecordEligibilityLookup(ctx, "open_task_logs", err)
	if err != nil {
		return nil, fmt.Errorf("%w: open task logs: %w", ErrEligibilityLookup, err)
	}

	if len(ids) == 0 {
		ref := p.ReferenceColumn
		if ref == "" {
			ref = plan.PrimaryKey
		}
		return sq.Eq{sqlutil.Qualify(catalog.BaseAlias, ref): nil}, nil
	}
	return sq.Eq{sqlutil.Qualify(catalog.BaseAlias, plan.MarkerColumn): ids}, nil
}
