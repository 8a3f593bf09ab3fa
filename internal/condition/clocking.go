package condition

import (
	"context"
	"fmt"
	"time"

	"legacy-migrate/internal/catalog"
	"legacy-migrate/internal/observability"
	"legacy-migrate/internal/planner"
	"legacy-migrate/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
)

// DateLayout is the format of clocking dates bound into predicates.
const DateLayout = "2006-01-02"

// ClockingSource reports the latest validated clocking date in the target store.
type ClockingSource interface {
	LatestValidationDate(ctx context.Context) (time.Time, bool, error)
}

// ClockingPolicy re-selects administrator-validated monthly clockings dated on
// or after the latest validated date.
type ClockingPolicy struct {
	Source           ClockingSource
	AdminValidColumn string
	DateColumn       string
	// ReferenceColumn is checked for NULL when nothing was validated yet.
	// Defaults to the plan's primary key.
	ReferenceColumn string
	Metrics         *observability.MigrationMetrics
}

func (p ClockingPolicy) UpdateCondition(ctx context.Context, plan *planner.QueryPlan) (sq.Sqlizer, error) {
	adminValid := sq.Eq{sqlutil.Qualify(catalog.BaseAlias, p.AdminValidColumn): true}

	latest, ok, err := p.Source.LatestValidationDate(ctx)
	p.Metrics.RecordEligibilityLookup(ctx, "latest_validation_date", err)
	if err != nil {
		return nil, fmt.Errorf("%w: latest validation date: %w", ErrEligibilityLookup, err)
	}

	if !ok {
		ref := p.ReferenceColumn
		if ref == "" {
			ref = plan.PrimaryKey
		}
		return sq.And{adminValid, sq.Eq{sqlutil.Qualify(catalog.BaseAlias, ref): nil}}, nil
	}
	// Inclusive: rows dated on the boundary day are re-selected.
	return sq.And{
		adminValid,
		sq.GtOrEq{sqlutil.Qualify(catalog.BaseAlias, p.DateColumn): latest.Format(DateLayout)},
	}, nil
}
