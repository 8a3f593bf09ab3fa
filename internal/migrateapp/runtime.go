package migrateapp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"legacy-migrate/internal/logging"
	"legacy-migrate/internal/migrator"
)

// Run executes every configured job under a fresh run ID. It requires Init
// to have completed and stops at the first failing job.
func (a *App) Run(ctx context.Context) ([]migrator.Stats, error) {
	a.stateMu.Lock()
	if !a.initialized {
		a.stateMu.Unlock()
		return nil, fmt.Errorf("app is not initialized")
	}
	if a.running {
		a.stateMu.Unlock()
		return nil, fmt.Errorf("migration run already in progress")
	}
	a.running = true
	comps := a.components
	a.stateMu.Unlock()

	defer func() {
		a.stateMu.Lock()
		a.running = false
		a.stateMu.Unlock()
	}()

	runID := logging.NewRunID()
	logger := a.logger.WithRunID(runID)
	ctx = logging.WithRunIDContext(logging.WithLogger(ctx, logger), runID)

	logger.Info("migration run started",
		slog.Int("jobs", len(a.jobs)),
		slog.Int("batch_size", a.cfg.Migration.BatchSize),
	)
	start := time.Now()

	stats, err := comps.runner(a.cfg, logger, a.metrics).Run(ctx, a.jobs)

	var rows, written int
	for _, s := range stats {
		rows += s.Rows
		written += s.Written
	}
	a.writeMetricsTextfile(logger)

	if err != nil {
		logger.Error("migration run failed",
			slog.Int("jobs_completed", completedJobs(stats, err)),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return stats, err
	}

	logger.Info("migration run finished",
		slog.Int("jobs", len(stats)),
		slog.Int("rows", rows),
		slog.Int("written", written),
		slog.Duration("duration", time.Since(start)),
	)
	return stats, nil
}

// completedJobs excludes the failing job, which is always the last entry.
func completedJobs(stats []migrator.Stats, err error) int {
	if err != nil && len(stats) > 0 {
		return len(stats) - 1
	}
	return len(stats)
}

func (a *App) writeMetricsTextfile(logger *logging.Logger) {
	path := a.cfg.Observability.MetricsTextfile
	if path == "" || a.meterProvider == nil {
		return
	}
	if err := a.meterProvider.WriteTextfile(path); err != nil {
		logger.Warn("metrics textfile not written", slog.String("error", err.Error()))
		return
	}
	logger.Debug("metrics textfile written", slog.String("path", path))
}
