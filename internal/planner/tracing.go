package planner

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"legacy-migrate/internal/catalog"
)

const (
	planOutcomePlanned = "planned"
	planOutcomeError   = "error"
)

func startPlanSpan(ctx context.Context, class catalog.Class, action Action) (context.Context, trace.Span) {
	return otel.Tracer("legacy-migrate/planner").Start(ctx, "planner.plan",
		trace.WithAttributes(
			attribute.String("migration.class", string(class)),
			attribute.String("migration.action", string(action)),
		),
	)
}

// finishPlanSpan records the shape of plan, or err when planning failed, and
// ends span.
func finishPlanSpan(span trace.Span, plan *QueryPlan, err error) {
	defer span.End()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("migration.plan.outcome", planOutcomeError))
		return
	}
	if plan == nil {
		return
	}
	span.SetAttributes(
		attribute.String("migration.plan.outcome", planOutcomePlanned),
		attribute.Int("migration.joins", len(plan.Joins)),
		attribute.String("migration.selection", plan.Selection.String()),
		attribute.Bool("migration.selection.passthrough", plan.SelectionPassthrough),
		attribute.Int64("migration.limit", int64(plan.Limit)),
		attribute.Bool("migration.keyset", plan.After != nil),
	)
}
