// Package planner builds the read queries that select legacy rows eligible for
// a migration action. A plan joins the associated classes declared in the
// association map, applies the caller's limit, filters and selection, and ANDs
// in the eligibility predicate supplied by a ConditionResolver.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"legacy-migrate/internal/catalog"
	"legacy-migrate/internal/introspection"
	"legacy-migrate/internal/observability"

	sq "github.com/Masterminds/squirrel"
)

// Metadata resolves classes and relationships against the legacy schema.
type Metadata interface {
	Resolve(class catalog.Class) (catalog.ClassInfo, error)
	AssociationsByTargetClass(class, target catalog.Class) []introspection.Relationship
}

// ConditionResolver supplies the eligibility predicate for a plan in progress.
type ConditionResolver interface {
	Condition(ctx context.Context, plan *QueryPlan) (sq.Sqlizer, error)
}

// Planner composes query plans. It holds no mutable state.
type Planner struct {
	meta         Metadata
	associations catalog.AssociationMap
	conditions   ConditionResolver
	logger       *slog.Logger
	metrics      *observability.MigrationMetrics
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger sets the planner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Planner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics records planning calls.
func WithMetrics(metrics *observability.MigrationMetrics) Option {
	return func(p *Planner) {
		p.metrics = metrics
	}
}

// New creates a planner.
func New(meta Metadata, associations catalog.AssociationMap, conditions ConditionResolver, opts ...Option) *Planner {
	p := &Planner{
		meta:         meta,
		associations: associations,
		conditions:   conditions,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type planOptions struct {
	action    Action
	limit     int
	selection Selection
	filters   map[string]interface{}
	after     interface{}
}

// PlanOption customizes a single planning call.
type PlanOption func(*planOptions)

// WithAction selects the migration action. The default is ActionCreate.
func WithAction(action Action) PlanOption {
	return func(o *planOptions) {
		o.action = action
	}
}

// WithLimit caps the number of rows. Values <= 0 leave the plan uncapped.
func WithLimit(limit int) PlanOption {
	return func(o *planOptions) {
		o.limit = limit
	}
}

// WithSelection sets the projection.
func WithSelection(selection Selection) PlanOption {
	return func(o *planOptions) {
		o.selection = selection
	}
}

// WithFilters adds base column equality filters. Column names are not validated.
func WithFilters(filters map[string]interface{}) PlanOption {
	return func(o *planOptions) {
		o.filters = filters
	}
}

// WithKeyAfter restricts the plan to base rows whose primary key is greater
// than key. A nil key leaves the plan unrestricted.
func WithKeyAfter(key interface{}) PlanOption {
	return func(o *planOptions) {
		o.after = key
	}
}

// Plan builds the query plan selecting the rows of class eligible for the action.
func (p *Planner) Plan(ctx context.Context, class catalog.Class, opts ...PlanOption) (plan *QueryPlan, err error) {
	options := planOptions{action: ActionCreate}
	for _, opt := range opts {
		opt(&options)
	}

	ctx, span := startPlanSpan(ctx, class, options.action)
	defer func() {
		finishPlanSpan(span, plan, err)
		p.metrics.RecordPlan(ctx, string(class), string(options.action), err)
	}()

	if p.meta == nil || p.conditions == nil {
		return nil, errors.New("planner requires metadata and a condition resolver")
	}

	info, err := p.meta.Resolve(class)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", class, err)
	}

	plan = &QueryPlan{
		Class:        class,
		Action:       options.action,
		Table:        info.Table,
		PrimaryKey:   info.PrimaryKey,
		MarkerColumn: info.MarkerColumn,
		Columns:      info.Columns,
		Selection:    options.selection,
	}

	if err := p.addJoins(plan); err != nil {
		return nil, err
	}

	if options.limit > 0 {
		plan.Limit = uint64(options.limit)
	}

	plan.After = options.after

	if len(options.filters) > 0 {
		plan.Filters = make(map[string]interface{}, len(options.filters))
		for key, value := range options.filters {
			plan.Filters[key] = value
		}
	}

	if plan.Selection.Kind() == SelectionGroupKey {
		if _, ok := plan.JoinFor(plan.Selection.Target()); !ok {
			plan.SelectionPassthrough = true
			p.logger.Warn("group key selection does not name a joined class; selecting rows",
				slog.String("class", string(class)),
				slog.String("target", string(plan.Selection.Target())),
			)
		}
	}

	pred, err := p.conditions.Condition(ctx, plan)
	if err != nil {
		return nil, fmt.Errorf("plan %s %s: %w", options.action, class, err)
	}
	plan.Where(pred)
	return plan, nil
}

func (p *Planner) addJoins(plan *QueryPlan) error {
	for _, assoc := range p.associations.For(plan.Class) {
		rels := p.meta.AssociationsByTargetClass(plan.Class, assoc.Target)
		if len(rels) == 0 {
			p.logger.Debug("association has no relationship; join skipped",
				slog.String("class", string(plan.Class)),
				slog.String("alias", assoc.Alias),
				slog.String("target", string(assoc.Target)),
			)
			continue
		}
		if len(rels) > 1 {
			p.logger.Debug("multiple relationships to association target; using the first",
				slog.String("class", string(plan.Class)),
				slog.String("target", string(assoc.Target)),
				slog.String("field", rels[0].FieldName),
			)
		}

		target, err := p.meta.Resolve(assoc.Target)
		if err != nil {
			return fmt.Errorf("plan %s: join %s: %w", plan.Class, assoc.Alias, err)
		}
		rel := rels[0]
		plan.Joins = append(plan.Joins, Join{
			Alias:         assoc.Alias,
			Target:        assoc.Target,
			Table:         target.Table,
			PrimaryKey:    target.PrimaryKey,
			MarkerColumn:  target.MarkerColumn,
			Policy:        assoc.Join,
			LocalColumns:  rel.LocalColumns,
			RemoteColumns: rel.RemoteColumns,
			Columns:       target.Columns,
		})
	}
	return nil
}
