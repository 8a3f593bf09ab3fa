// Package migrateapp wires configuration, observability and both stores
// into a migration run.
package migrateapp

import (
	"database/sql"
	"fmt"
	"sync"

	"legacy-migrate/internal/catalog"
	"legacy-migrate/internal/config"
	"legacy-migrate/internal/logging"
	"legacy-migrate/internal/migrator"
	"legacy-migrate/internal/observability"
	"legacy-migrate/internal/planner"
)

// App owns runtime resources for one legacy-migrate process.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider

	meterProvider  *observability.MeterProvider
	metrics        *observability.MigrationMetrics
	tracerProvider *observability.TracerProvider

	legacyDB *sql.DB
	targetDB *sql.DB

	catalog    *catalog.Catalog
	components *components
	jobs       []migrator.Job

	cleanup cleanupStack

	stateMu     sync.Mutex
	initialized bool
	running     bool

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	cfg.NameStores()
	jobs := buildJobs(cfg)
	if len(jobs) == 0 {
		return nil, fmt.Errorf("no migration jobs configured")
	}

	return &App{
		cfg:    cfg,
		logger: logger,
		jobs:   jobs,
	}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Jobs returns the jobs Run executes, in order.
func (a *App) Jobs() []migrator.Job {
	return append([]migrator.Job(nil), a.jobs...)
}

// buildJobs expands the configured classes and actions class by class, so
// every action of a class finishes before the next class starts.
func buildJobs(cfg *config.Config) []migrator.Job {
	classes := cfg.Migration.ClassList()
	actions := cfg.Migration.ActionList()
	jobs := make([]migrator.Job, 0, len(classes)*len(actions))
	seen := make(map[migrator.Job]bool, cap(jobs))
	for _, class := range classes {
		for _, action := range actions {
			job := migrator.Job{Class: class, Action: planner.Action(action)}
			if seen[job] {
				continue
			}
			seen[job] = true
			jobs = append(jobs, job)
		}
	}
	return jobs
}
