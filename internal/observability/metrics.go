package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MigrationMetrics holds custom metrics for planning and migrating legacy rows.
// A nil *MigrationMetrics records nothing.
type MigrationMetrics struct {
	planCounter         metric.Int64Counter
	lookupCounter       metric.Int64Counter
	rowsRead            metric.Int64Counter
	recordsWritten      metric.Int64Counter
	adapterFailures     metric.Int64Counter
	batchDuration       metric.Float64Histogram
	lastBatchFinishUnix atomic.Int64
}

// InitMigrationMetrics initializes migration metrics on the global meter provider.
func InitMigrationMetrics(logger *slog.Logger) (*MigrationMetrics, error) {
	meter := otel.Meter("legacy-migrate")

	planCounter, err := meter.Int64Counter(
		"migration.plans.total",
		metric.WithDescription("Total number of query plans built"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create plan counter: %w", err)
	}

	lookupCounter, err := meter.Int64Counter(
		"migration.eligibility_lookups.total",
		metric.WithDescription("Total number of eligibility lookups against the target store"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create eligibility lookup counter: %w", err)
	}

	rowsRead, err := meter.Int64Counter(
		"migration.rows.read",
		metric.WithDescription("Number of legacy rows read"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rows read counter: %w", err)
	}

	recordsWritten, err := meter.Int64Counter(
		"migration.records.written",
		metric.WithDescription("Number of records written to the target store"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create records written counter: %w", err)
	}

	adapterFailures, err := meter.Int64Counter(
		"migration.adapter.failures",
		metric.WithDescription("Number of legacy rows an adapter failed to transform"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create adapter failure counter: %w", err)
	}

	batchDuration, err := meter.Float64Histogram(
		"migration.batch.duration",
		metric.WithDescription("Duration of migration batches in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch duration histogram: %w", err)
	}

	lastBatchGauge, err := meter.Int64ObservableGauge(
		"migration.batch.last_finish_unix",
		metric.WithDescription("Unix timestamp of the last finished migration batch"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create last batch gauge: %w", err)
	}

	metrics := &MigrationMetrics{
		planCounter:     planCounter,
		lookupCounter:   lookupCounter,
		rowsRead:        rowsRead,
		recordsWritten:  recordsWritten,
		adapterFailures: adapterFailures,
		batchDuration:   batchDuration,
	}

	_, err = meter.RegisterCallback(
		func(ctx context.Context, observer metric.Observer) error {
			if value := metrics.lastBatchFinishUnix.Load(); value > 0 {
				observer.ObserveInt64(lastBatchGauge, value)
			}
			return nil
		},
		lastBatchGauge,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register last batch gauge callback: %w", err)
	}

	logger.Info("migration metrics initialized")
	return metrics, nil
}

// RecordPlan records a planning call for class and action.
func (m *MigrationMetrics) RecordPlan(ctx context.Context, class, action string, err error) {
	if m == nil {
		return
	}
	m.planCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("class", class),
		attribute.String("action", action),
		attribute.Bool("has_error", err != nil),
	))
}

// RecordEligibilityLookup records one target store lookup made while resolving conditions.
func (m *MigrationMetrics) RecordEligibilityLookup(ctx context.Context, lookup string, err error) {
	if m == nil {
		return
	}
	m.lookupCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("lookup", lookup),
		attribute.Bool("has_error", err != nil),
	))
}

// RecordBatch records a finished batch.
func (m *MigrationMetrics) RecordBatch(ctx context.Context, class, action string, rows, written, failures int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("class", class),
		attribute.String("action", action),
	)
	m.rowsRead.Add(ctx, int64(rows), attrs)
	m.recordsWritten.Add(ctx, int64(written), attrs)
	if failures > 0 {
		m.adapterFailures.Add(ctx, int64(failures), attrs)
	}
	m.batchDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.lastBatchFinishUnix.Store(time.Now().Unix())
}
