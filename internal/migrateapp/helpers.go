package migrateapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"legacy-migrate/internal/adapter"
	"legacy-migrate/internal/catalog"
	"legacy-migrate/internal/condition"
	"legacy-migrate/internal/config"
	"legacy-migrate/internal/dbexec"
	"legacy-migrate/internal/introspection"
	"legacy-migrate/internal/legacy"
	"legacy-migrate/internal/logging"
	"legacy-migrate/internal/migrator"
	"legacy-migrate/internal/observability"
	"legacy-migrate/internal/planner"
	"legacy-migrate/internal/targetstore"

	"github.com/XSAM/otelsql"
	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const maxRetryInterval = 30 * time.Second

// InitLogger builds the process logger and, when log exports are enabled,
// the OTLP logger provider behind it.
func InitLogger(ctx context.Context, cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	otlp := cfg.Observability.OTLP
	logger.Info("initializing OpenTelemetry logging",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("otlp_endpoint", otlp.Endpoint),
		slog.String("otlp_protocol", otlp.Protocol),
		slog.Bool("insecure", otlp.Insecure),
	)

	loggerProvider, err := observability.InitLoggerProvider(ctx, observabilityConfig(cfg))
	if err != nil {
		return nil, nil, err
	}

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	return logger, loggerProvider, nil
}

func observabilityConfig(cfg *config.Config) observability.Config {
	o := cfg.Observability
	return observability.Config{
		ServiceName:      o.ServiceName,
		ServiceVersion:   o.ServiceVersion,
		Environment:      o.Environment,
		TraceSampleRatio: o.TraceSampleRatio,
		OTLPConfig: observability.OTLPExporterConfig{
			Endpoint:    o.OTLP.Endpoint,
			Protocol:    o.OTLP.Protocol,
			Insecure:    o.OTLP.Insecure,
			TLSCertFile: o.OTLP.TLSCertFile,
			Headers:     o.OTLP.Headers,
			Timeout:     o.OTLP.Timeout,
			Compression: o.OTLP.Compression,
		},
	}
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (*observability.MeterProvider, *observability.MigrationMetrics, error) {
	if !cfg.Observability.MetricsEnabled {
		return nil, nil, nil
	}

	meterProvider, err := observability.InitMeterProvider(observabilityConfig(cfg))
	if err != nil {
		return nil, nil, err
	}

	metrics, err := observability.InitMigrationMetrics(logger.Logger)
	if err != nil {
		_ = meterProvider.Shutdown(context.Background(), logger.Logger)
		return nil, nil, err
	}

	logger.Debug("OpenTelemetry metrics initialized",
		slog.String("textfile", cfg.Observability.MetricsTextfile),
	)
	return meterProvider, metrics, nil
}

func initTracing(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	logger.Info("initializing OpenTelemetry tracing",
		slog.String("otlp_endpoint", cfg.Observability.OTLP.Endpoint),
		slog.String("otlp_protocol", cfg.Observability.OTLP.Protocol),
		slog.Float64("sample_ratio", cfg.Observability.TraceSampleRatio),
	)

	return observability.InitTracerProvider(ctx, observabilityConfig(cfg))
}

func dbSystemAttribute(store *config.DatabaseConfig) attribute.KeyValue {
	if store.IsSQLite() {
		return semconv.DBSystemKey.String("sqlite")
	}
	return semconv.DBSystemMySQL
}

// connectDB opens one store, instrumented with otelsql when metrics or
// tracing are on. The returned registration must be unregistered on close.
func connectDB(cfg *config.Config, store *config.DatabaseConfig, logger *logging.Logger) (*sql.DB, interface{ Unregister() error }, error) {
	if err := store.RegisterTLS(); err != nil {
		return nil, nil, fmt.Errorf("failed to register %s TLS config: %w", store.StoreName(), err)
	}

	dsn, err := store.DSN()
	if err != nil {
		return nil, nil, err
	}

	obs := cfg.Observability
	if !obs.MetricsEnabled && !obs.TracingEnabled {
		db, err := sql.Open(store.Driver, dsn)
		if err != nil {
			return nil, nil, err
		}
		return db, nil, nil
	}

	system := dbSystemAttribute(store)
	opts := []otelsql.Option{
		otelsql.WithAttributes(system, attribute.String("db.store", store.StoreName())),
	}
	if obs.TracingEnabled {
		opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{
			DisableErrSkip: true,
		}))
	}
	sqlCommenter := obs.SQLCommenterEnabled && obs.TracingEnabled && !store.IsSQLite()
	if sqlCommenter {
		opts = append(opts, otelsql.WithSQLCommenter(true))
	} else if obs.SQLCommenterEnabled && !obs.TracingEnabled {
		logger.Warn("SQLCommenter requires tracing to be enabled - skipping SQLCommenter",
			slog.String("store", store.StoreName()),
		)
	}

	db, err := otelsql.Open(store.Driver, dsn, opts...)
	if err != nil {
		return nil, nil, err
	}

	var dbStatsReg interface{ Unregister() error }
	if obs.MetricsEnabled {
		dbStatsReg, err = otelsql.RegisterDBStatsMetrics(db,
			otelsql.WithAttributes(system, attribute.String("db.store", store.StoreName())),
		)
		if err != nil {
			logger.Warn("failed to register DB stats metrics",
				slog.String("store", store.StoreName()),
				slog.String("error", err.Error()),
			)
		}
	}

	logger.Debug("database instrumentation enabled",
		slog.String("store", store.StoreName()),
		slog.Bool("metrics", obs.MetricsEnabled),
		slog.Bool("tracing", obs.TracingEnabled),
		slog.Bool("sqlcommenter", sqlCommenter),
	)
	return db, dbStatsReg, nil
}

func configureDatabase(ctx context.Context, store *config.DatabaseConfig, logger *logging.Logger, db *sql.DB) error {
	if store.IsSQLite() {
		// SQLite allows one writer per file.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(store.Pool.MaxOpen)
		db.SetMaxIdleConns(store.Pool.MaxIdle)
	}
	db.SetConnMaxLifetime(store.Pool.MaxLifetime)

	if err := waitForDatabase(ctx, store, logger, db); err != nil {
		return err
	}

	logger.Info("connected to database",
		slog.String("store", store.StoreName()),
		slog.String("driver", store.Driver),
		slog.String("database", store.Database),
		slog.Int("pool_max_open", store.Pool.MaxOpen),
	)
	return nil
}

func waitForDatabase(ctx context.Context, store *config.DatabaseConfig, logger *logging.Logger, db *sql.DB) error {
	timeout := store.ConnectionTimeout
	if timeout == 0 {
		return db.PingContext(ctx)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = store.ConnectionRetryInterval
	if bo.InitialInterval <= 0 {
		bo.InitialInterval = backoff.DefaultInitialInterval
	}
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = maxRetryInterval
	bo.MaxElapsedTime = timeout

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		return db.PingContext(ctx)
	}, backoff.WithContext(bo, ctx), func(err error, next time.Duration) {
		logger.Warn("database not ready, retrying...",
			slog.String("store", store.StoreName()),
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", next),
			slog.String("error", err.Error()),
		)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%s database not available after %v: %w", store.StoreName(), timeout, err)
	}

	if attempt > 1 {
		logger.Info("database connection established",
			slog.String("store", store.StoreName()),
			slog.Int("attempts", attempt),
		)
	}
	return nil
}

func introspectSchema(ctx context.Context, store *config.DatabaseConfig, db *sql.DB) (*introspection.Schema, error) {
	if store.IsSQLite() {
		return introspection.IntrospectSQLiteContext(ctx, db)
	}
	name, err := store.EffectiveDatabaseName()
	if err != nil {
		return nil, err
	}
	return introspection.IntrospectDatabaseContext(ctx, db, name)
}

// components are the stateless pieces a runner is assembled from.
type components struct {
	planner  *planner.Planner
	reader   *legacy.Reader
	writer   *legacy.Writer
	store    *targetstore.Store
	adapters *adapter.Registry
}

func buildComponents(cfg *config.Config, logger *logging.Logger, metrics *observability.MigrationMetrics, cat *catalog.Catalog, legacyDB, targetDB *sql.DB) *components {
	legacyExec := dbexec.NewStandardExecutor(legacyDB)
	reader := legacy.NewReader(legacyExec, cat)
	store := targetstore.New(dbexec.NewStandardExecutor(targetDB), targetTables(cfg.Migration.TargetTables), logger.Logger)
	resolver := condition.NewResolver(
		condition.DefaultPolicies(store, conditionColumns(cfg.Migration.Conditions), metrics),
		logger.Logger,
	)

	return &components{
		planner: planner.New(cat, cat.Associations(), resolver,
			planner.WithLogger(logger.Logger),
			planner.WithMetrics(metrics),
		),
		reader:   reader,
		writer:   legacy.NewWriter(legacyExec, cat),
		store:    store,
		adapters: buildAdapters(cfg, logger, reader, store),
	}
}

// buildAdapters registers the configured column maps, then the built-in
// adapters for classes without one.
func buildAdapters(cfg *config.Config, logger *logging.Logger, reader *legacy.Reader, store *targetstore.Store) *adapter.Registry {
	registry := adapter.NewRegistry()
	for class, cm := range cfg.Migration.ResolvedColumnMaps() {
		registry.Register(class, adapter.ColumnMapAdapter{
			Table:        cm.Table,
			Columns:      cm.Columns,
			MarkerColumn: cm.MarkerColumn,
		})
	}
	if _, err := registry.Lookup(catalog.PontajResource); err != nil {
		registry.Register(catalog.PontajResource,
			adapter.NewDailyClockingAdapter(reader, store, clockingColumns(cfg.Migration.Clocking), logger.Logger))
	}
	return registry
}

func conditionColumns(c config.ConditionColumns) condition.Columns {
	return condition.Columns{
		TaskLogReference:   c.TaskLogReference,
		ClockingReference:  c.ClockingReference,
		ClockingAdminValid: c.ClockingAdminValid,
		ClockingDate:       c.ClockingDate,
	}
}

func clockingColumns(c config.ClockingColumns) adapter.ClockingColumns {
	return adapter.ClockingColumns{
		Details:        c.Details,
		Resource:       c.Resource,
		ContainerAlias: c.ContainerAlias,
		Date:           c.Date,
		AdminValid:     c.AdminValid,
		LastAction:     c.LastAction,
	}
}

func targetTables(c config.TargetTables) targetstore.Tables {
	return targetstore.Tables{
		IDColumn:           c.IDColumn,
		TaskLog:            c.TaskLog,
		TaskLogValidatedAt: c.TaskLogValidatedAt,
		DailyClocking:      c.DailyClocking,
		DailyClockingUser:  c.DailyClockingUser,
		DailyClockingDate:  c.DailyClockingDate,
		DailyClockingHours: c.DailyClockingHours,
		DailyClockingValid: c.DailyClockingValid,
	}
}

func (c *components) runner(cfg *config.Config, logger *logging.Logger, metrics *observability.MigrationMetrics) *migrator.Runner {
	return migrator.NewRunner(c.planner, c.reader, c.writer, c.store, c.adapters,
		migrator.WithBatchSize(cfg.Migration.BatchSize),
		migrator.WithLogger(logger.Logger),
		migrator.WithMetrics(metrics),
	)
}
