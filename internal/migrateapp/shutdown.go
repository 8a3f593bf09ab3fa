package migrateapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"legacy-migrate/internal/logging"
)

// cleanupStack releases run resources, newest first.
type cleanupStack struct {
	items []cleanupItem
}

type cleanupItem struct {
	name string
	fn   func(context.Context) error
}

func (s *cleanupStack) push(name string, fn func(context.Context) error) {
	s.items = append(s.items, cleanupItem{name: name, fn: fn})
}

// run calls every release function even when earlier ones fail and returns
// the joined failures, each prefixed with its component name.
func (s *cleanupStack) run(ctx context.Context, logger *logging.Logger) error {
	var errs []error
	for i := len(s.items) - 1; i >= 0; i-- {
		item := s.items[i]
		start := time.Now()
		err := item.fn(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", item.name, err))
		}
		if logger == nil {
			continue
		}
		if err != nil {
			logger.Warn("failed to release "+item.name, slog.String("error", err.Error()))
			continue
		}
		logger.Debug("released "+item.name, slog.Duration("elapsed", time.Since(start)))
	}
	s.items = nil
	return errors.Join(errs...)
}

// Shutdown releases the run lock, the database handles and the telemetry
// providers. Only the first call does any work; later calls return its result.
func (a *App) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a.shutdownOnce.Do(func() {
		a.stateMu.Lock()
		cleanup := a.cleanup
		a.cleanup = cleanupStack{}
		a.initialized = false
		a.stateMu.Unlock()

		a.shutdownErr = cleanup.run(ctx, a.logger)
	})

	return a.shutdownErr
}
