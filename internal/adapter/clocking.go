package adapter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"legacy-migrate/internal/catalog"
	"legacy-migrate/internal/legacy"
	"legacy-migrate/internal/planner"
	"legacy-migrate/internal/sqlutil"
	"legacy-migrate/internal/targetstore"
)

// MarkerLookup reads the migration marker of a legacy row.
type MarkerLookup interface {
	MarkerOf(ctx context.Context, class catalog.Class, id interface{}) (planner.Marker, error)
}

// ClockingRecords builds target records for daily clockings.
type ClockingRecords interface {
	DailyClockingRecord(c targetstore.DailyClocking) targetstore.Record
}

// ClockingColumns names the legacy columns read by DailyClockingAdapter.
// Container columns are read from the joined monthly clocking.
type ClockingColumns struct {
	Details        string
	Resource       string
	ContainerAlias string
	Date           string
	AdminValid     string
	LastAction     string
}

// DefaultClockingColumns returns the legacy clocking column names.
func DefaultClockingColumns() ClockingColumns {
	return ClockingColumns{
		Details:        "pontaj_resource_details",
		Resource:       "pontaj_resource_resource",
		ContainerAlias: "t",
		Date:           "pontaj_date",
		AdminValid:     "pontaj_admin_valid",
		LastAction:     "pontaj_last_action_date_time",
	}
}

// DailyClockingAdapter fans one monthly clocking resource row out into one
// daily clocking per day of its hoursWorked payload.
type DailyClockingAdapter struct {
	users   MarkerLookup
	records ClockingRecords
	columns ClockingColumns
	logger  *slog.Logger
}

// NewDailyClockingAdapter creates the adapter. Empty columns take their defaults.
func NewDailyClockingAdapter(users MarkerLookup, records ClockingRecords, columns ClockingColumns, logger *slog.Logger) *DailyClockingAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	d := DefaultClockingColumns()
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&columns.Details, d.Details)
	fill(&columns.Resource, d.Resource)
	fill(&columns.ContainerAlias, d.ContainerAlias)
	fill(&columns.Date, d.Date)
	fill(&columns.AdminValid, d.AdminValid)
	fill(&columns.LastAction, d.LastAction)
	return &DailyClockingAdapter{users: users, records: records, columns: columns, logger: logger}
}

// Supports reports that daily clockings are only created, never updated.
func (a *DailyClockingAdapter) Supports(action planner.Action) bool {
	return action == planner.ActionCreate
}

func (a *DailyClockingAdapter) container(column string) string {
	return sqlutil.JoinedColumnKey(a.columns.ContainerAlias, column)
}

// Transform implements Adapter.
func (a *DailyClockingAdapter) Transform(ctx context.Context, row legacy.Row) (Result, error) {
	userID, ok, err := a.migratedUser(ctx, row)
	if err != nil || !ok {
		return Result{}, err
	}

	monthly, ok := row.Time(a.container(a.columns.Date))
	if !ok {
		a.logger.Warn("clocking row has no monthly date; skipping", slog.Any("row", row))
		return Result{}, nil
	}

	details, _ := row.String(a.columns.Details)
	hours, err := ParseHoursWorked(details)
	if err != nil {
		a.logger.Warn("malformed clocking details; no days to migrate", slog.String("error", err.Error()))
		return Result{}, nil
	}

	lastAction, _ := row.Time(a.container(a.columns.LastAction))
	validatedAt := ValidationDate(monthly, row.Bool(a.container(a.columns.AdminValid)), lastAction)

	var result Result
	for _, day := range SortedDays(hours) {
		date, ok := DateOfClocking(monthly, day)
		if !ok {
			a.logger.Warn("clocking day outside its month; skipping",
				slog.Int("day", day),
				slog.String("month", monthly.Format("2006-01")),
			)
			continue
		}
		result.Records = append(result.Records, a.records.DailyClockingRecord(targetstore.DailyClocking{
			UserID:      userID,
			Date:        date,
			Hours:       hours[day],
			ValidatedAt: validatedAt,
		}))
	}
	return result, nil
}

func (a *DailyClockingAdapter) migratedUser(ctx context.Context, row legacy.Row) (int64, bool, error) {
	resourceID, ok := row.Int64(a.columns.Resource)
	if !ok {
		a.logger.Debug("clocking row has no resource user")
		return 0, false, nil
	}
	marker, err := a.users.MarkerOf(ctx, catalog.User, resourceID)
	if errors.Is(err, legacy.ErrRowNotFound) {
		a.logger.Debug("clocking resource user does not exist", slog.Int64("user", resourceID))
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if !marker.Set {
		a.logger.Debug("clocking resource user not migrated yet", slog.Int64("user", resourceID))
		return 0, false, nil
	}
	return marker.NewID, true, nil
}

// DateOfClocking substitutes day into the month of monthly. It reports false
// when day does not exist in that month.
func DateOfClocking(monthly time.Time, day int) (time.Time, bool) {
	if day < 1 {
		return time.Time{}, false
	}
	date := time.Date(monthly.Year(), monthly.Month(), day, 0, 0, 0, 0, monthly.Location())
	if date.Month() != monthly.Month() {
		return time.Time{}, false
	}
	return date, true
}

// ValidationDate returns when the daily clockings of a monthly clocking count
// as validated: the last action timestamp if an administrator validated it,
// otherwise the first day of the following month. A zero lastAction means no
// action was recorded. It returns nil for clockings not validated by an
// administrator.
func ValidationDate(monthly time.Time, adminValid bool, lastAction time.Time) *time.Time {
	if !adminValid {
		return nil
	}
	if !lastAction.IsZero() {
		return &lastAction
	}
	next := time.Date(monthly.Year(), monthly.Month()+1, 1, 0, 0, 0, 0, monthly.Location())
	return &next
}
