package migrateapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"legacy-migrate/internal/catalog"
	"legacy-migrate/internal/config"
)

// Init connects both stores and assembles the migration components. It is idempotent.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return nil
	}
	a.stateMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	cleanup := cleanupStack{}
	success := false
	defer func() {
		if !success {
			_ = cleanup.run(context.Background(), a.logger)
		}
	}()

	if a.loggerProvider != nil {
		cleanup.push("logger provider", func(shutdownCtx context.Context) error {
			return a.loggerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	if path := a.cfg.Migration.LockFile; path != "" {
		runLock, err := acquireRunLock(ctx, path, a.cfg.Migration.LockTimeout)
		if err != nil {
			return err
		}
		cleanup.push("run lock", func(_ context.Context) error {
			return runLock.Unlock()
		})
	}

	meterProvider, metrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if meterProvider != nil {
		cleanup.push("meter provider", func(shutdownCtx context.Context) error {
			return meterProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	tracerProvider, err := initTracing(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		cleanup.push("tracer provider", func(shutdownCtx context.Context) error {
			return tracerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	legacyDB, err := a.openStore(ctx, &cleanup, &a.cfg.Legacy)
	if err != nil {
		return err
	}
	targetDB, err := a.openStore(ctx, &cleanup, &a.cfg.Target)
	if err != nil {
		return err
	}

	schema, err := introspectSchema(ctx, &a.cfg.Legacy, legacyDB)
	if err != nil {
		return fmt.Errorf("failed to introspect legacy schema: %w", err)
	}
	a.logger.Info("legacy schema introspected", slog.Int("tables", len(schema.Tables)))

	cat, err := catalog.New(schema, a.cfg.Migration.ClassSpecs(), catalog.DefaultAssociations())
	if err != nil {
		return fmt.Errorf("failed to build class catalog: %w", err)
	}
	for _, job := range a.jobs {
		if _, err := cat.Resolve(job.Class); err != nil {
			return fmt.Errorf("class %s cannot be migrated: %w", job.Class, err)
		}
	}

	comps := buildComponents(a.cfg, a.logger, metrics, cat, legacyDB, targetDB)
	for _, job := range a.jobs {
		if _, err := comps.adapters.Lookup(job.Class); err != nil {
			return err
		}
	}

	a.stateMu.Lock()
	a.meterProvider = meterProvider
	a.metrics = metrics
	a.tracerProvider = tracerProvider
	a.legacyDB = legacyDB
	a.targetDB = targetDB
	a.catalog = cat
	a.components = comps
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}

func (a *App) openStore(ctx context.Context, cleanup *cleanupStack, store *config.DatabaseConfig) (*sql.DB, error) {
	a.logger.Info("connecting to database",
		slog.String("store", store.StoreName()),
		slog.String("driver", store.Driver),
		slog.String("host", store.Host),
		slog.String("database", store.Database),
	)

	db, dbStatsReg, err := connectDB(a.cfg, store, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", store.StoreName(), err)
	}
	cleanup.push(store.StoreName()+" database", func(_ context.Context) error {
		if dbStatsReg != nil {
			if err := dbStatsReg.Unregister(); err != nil {
				a.logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
			}
		}
		return db.Close()
	})

	if err := configureDatabase(ctx, store, a.logger, db); err != nil {
		return nil, fmt.Errorf("failed to verify %s database connection: %w", store.StoreName(), err)
	}
	return db, nil
}
