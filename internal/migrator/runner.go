// Package migrator drives planned batches through adapters into the target
// store and records migration markers on the legacy rows.
package migrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"legacy-migrate/internal/adapter"
	"legacy-migrate/internal/catalog"
	"legacy-migrate/internal/legacy"
	"legacy-migrate/internal/observability"
	"legacy-migrate/internal/planner"
	"legacy-migrate/internal/targetstore"
)

// ErrUnsupportedAction is returned when a class adapter cannot run an action.
var ErrUnsupportedAction = errors.New("action not supported by adapter")

// DefaultBatchSize is used when no batch size is configured.
const DefaultBatchSize = 500

// Planner builds query plans.
type Planner interface {
	Plan(ctx context.Context, class catalog.Class, opts ...planner.PlanOption) (*planner.QueryPlan, error)
}

// Reader executes plans against the legacy store.
type Reader interface {
	Fetch(ctx context.Context, plan *planner.QueryPlan) ([]legacy.Row, error)
	Count(ctx context.Context, plan *planner.QueryPlan) (int64, error)
}

// MarkerWriter records migration markers on legacy rows.
type MarkerWriter interface {
	SetMarker(ctx context.Context, class catalog.Class, id interface{}, marker planner.Marker) error
}

// RecordWriter persists target records.
type RecordWriter interface {
	Write(ctx context.Context, rec targetstore.Record) (int64, error)
}

// Adapters looks up the adapter of a class.
type Adapters interface {
	Lookup(class catalog.Class) (adapter.Adapter, error)
}

// Job is one class and action to migrate.
type Job struct {
	Class  catalog.Class
	Action planner.Action
}

func (j Job) String() string {
	return fmt.Sprintf("%s %s", j.Action, j.Class)
}

// Stats summarizes a finished job.
type Stats struct {
	Job     Job
	Pending int64
	Batches int
	Rows    int
	Written int
	Marked  int
	Skipped int
}

// Runner migrates jobs one batch at a time.
type Runner struct {
	planner   Planner
	reader    Reader
	markers   MarkerWriter
	records   RecordWriter
	adapters  Adapters
	batchSize int
	logger    *slog.Logger
	metrics   *observability.MigrationMetrics
}

// Option configures a Runner.
type Option func(*Runner)

// WithBatchSize sets the number of rows fetched per batch.
func WithBatchSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics records batch metrics.
func WithMetrics(metrics *observability.MigrationMetrics) Option {
	return func(r *Runner) {
		r.metrics = metrics
	}
}

// NewRunner creates a runner.
func NewRunner(p Planner, reader Reader, markers MarkerWriter, records RecordWriter, adapters Adapters, opts ...Option) *Runner {
	r := &Runner{
		planner:   p,
		reader:    reader,
		markers:   markers,
		records:   records,
		adapters:  adapters,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes jobs in order and stops at the first failure.
func (r *Runner) Run(ctx context.Context, jobs []Job) ([]Stats, error) {
	all := make([]Stats, 0, len(jobs))
	for _, job := range jobs {
		stats, err := r.RunJob(ctx, job)
		all = append(all, stats)
		if err != nil {
			return all, fmt.Errorf("%s: %w", job, err)
		}
	}
	return all, nil
}

// RunJob migrates one job in batches walked in primary key order. Each batch
// starts past the last key of the previous one, so rows that produce no
// records are left behind without holding back the rows after them.
func (r *Runner) RunJob(ctx context.Context, job Job) (Stats, error) {
	stats := Stats{Job: job}
	logger := r.logger.With(slog.String("class", string(job.Class)), slog.String("action", string(job.Action)))

	a, err := r.adapters.Lookup(job.Class)
	if err != nil {
		return stats, err
	}
	if !adapter.Supports(a, job.Action) {
		return stats, fmt.Errorf("%w: %s", ErrUnsupportedAction, job)
	}

	countPlan, err := r.planner.Plan(ctx, job.Class, planner.WithAction(job.Action), planner.WithSelection(planner.SelectCount()))
	if err != nil {
		return stats, err
	}
	stats.Pending, err = r.reader.Count(ctx, countPlan)
	if err != nil {
		return stats, err
	}
	logger.Info("eligible legacy rows", slog.Int64("pending", stats.Pending))
	if stats.Pending == 0 {
		return stats, nil
	}

	var after interface{}
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		start := time.Now()
		plan, err := r.planner.Plan(ctx, job.Class,
			planner.WithAction(job.Action),
			planner.WithLimit(r.batchSize),
			planner.WithKeyAfter(after),
		)
		if err != nil {
			return stats, err
		}
		rows, err := r.reader.Fetch(ctx, plan)
		if err != nil {
			return stats, err
		}
		if len(rows) == 0 && stats.Batches > 0 {
			break
		}

		batch, err := r.migrateBatch(ctx, a, plan, rows)
		stats.Batches++
		stats.Rows += len(rows)
		stats.Written += batch.written
		stats.Marked += batch.marked
		stats.Skipped += batch.skipped
		r.metrics.RecordBatch(ctx, string(job.Class), string(job.Action), len(rows), batch.written, batch.failures, time.Since(start))
		if err != nil {
			return stats, err
		}
		logger.Info("batch migrated",
			slog.Int("batch", stats.Batches),
			slog.Int("rows", len(rows)),
			slog.Int("written", batch.written),
			slog.Int("marked", batch.marked),
			slog.Int("skipped", batch.skipped),
		)

		if len(rows) < r.batchSize {
			break
		}
		after = rows[len(rows)-1][plan.PrimaryKey]
		if after == nil {
			return stats, fmt.Errorf("%s batch row has no %s value", job, plan.PrimaryKey)
		}
	}

	if stats.Skipped > 0 {
		logger.Warn("legacy rows produced no records and stay unmigrated", slog.Int("skipped", stats.Skipped))
	}
	logger.Info("migration finished",
		slog.Int("batches", stats.Batches),
		slog.Int("rows", stats.Rows),
		slog.Int("written", stats.Written),
	)
	return stats, nil
}

type batchResult struct {
	written  int
	marked   int
	skipped  int
	failures int
}

func (r *Runner) migrateBatch(ctx context.Context, a adapter.Adapter, plan *planner.QueryPlan, rows []legacy.Row) (batchResult, error) {
	var res batchResult
	for _, row := range rows {
		id := row[plan.PrimaryKey]
		result, err := a.Transform(ctx, row)
		if err != nil {
			res.failures++
			return res, fmt.Errorf("transform %s %v: %w", plan.Class, id, err)
		}
		if len(result.Records) == 0 {
			res.skipped++
			continue
		}

		var first int64
		for i, rec := range result.Records {
			newID, err := r.records.Write(ctx, rec)
			if err != nil {
				return res, fmt.Errorf("write %s for %s %v: %w", rec.Table, plan.Class, id, err)
			}
			res.written++
			if i == 0 {
				first = newID
			}
		}

		var current planner.Marker
		if err := current.Scan(row[plan.MarkerColumn]); err == nil && current.Set && current.NewID == first {
			continue
		}
		if err := r.markers.SetMarker(ctx, plan.Class, id, planner.MigratedAs(first)); err != nil {
			return res, err
		}
		res.marked++
	}
	return res, nil
}
