package condition

import (
	"legacy-migrate/internal/catalog"
	"legacy-migrate/internal/observability"
)

// Columns names the legacy columns read by the built-in policies.
type Columns struct {
	TaskLogReference   string
	ClockingReference  string
	ClockingAdminValid string
	ClockingDate       string
}

// DefaultColumns returns the legacy column names of the built-in policies.
func DefaultColumns() Columns {
	return Columns{
		ClockingAdminValid: "pontaj_admin_valid",
		ClockingDate:       "pontaj_date",
	}
}

// Store provides every lookup the built-in policies need.
type Store interface {
	TaskLogSource
	ClockingSource
}

// DefaultPolicies registers the task log and clocking policies.
func DefaultPolicies(store Store, columns Columns, metrics *observability.MigrationMetrics) map[catalog.Class]Policy {
	defaults := DefaultColumns()
	if columns.ClockingAdminValid == "" {
		columns.ClockingAdminValid = defaults.ClockingAdminValid
	}
	if columns.ClockingDate == "" {
		columns.ClockingDate = defaults.ClockingDate
	}
	return map[catalog.Class]Policy{
		catalog.TaskLog: TaskLogPolicy{
			Source:          store,
			ReferenceColumn: columns.TaskLogReference,
			Metrics:         metrics,
		},
		catalog.Pontaj: ClockingPolicy{
			Source:           store,
			AdminValidColumn: columns.ClockingAdminValid,
			DateColumn:       columns.ClockingDate,
			ReferenceColumn:  columns.ClockingReference,
			Metrics:          metrics,
		},
	}
}
