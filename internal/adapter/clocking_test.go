package adapter

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legacy-migrate/internal/catalog"
	"legacy-migrate/internal/legacy"
	"legacy-migrate/internal/planner"
	"legacy-migrate/internal/targetstore"
)

type fakeMarkers struct {
	markers map[int64]planner.Marker
	err     error
}

func (f fakeMarkers) MarkerOf(_ context.Context, class catalog.Class, id interface{}) (planner.Marker, error) {
	if f.err != nil {
		return planner.Marker{}, f.err
	}
	if class != catalog.User {
		return planner.Marker{}, fmt.Errorf("unexpected class %s", class)
	}
	m, ok := f.markers[id.(int64)]
	if !ok {
		return planner.Marker{}, legacy.ErrRowNotFound
	}
	return m, nil
}

const marchPayload = `a:1:{s:11:"hoursWorked";a:2:{i:15;i:4;i:3;i:8;}}`

func clockingRow(overrides legacy.Row) legacy.Row {
	row := legacy.Row{
		"pontaj_resource_id":             int64(1),
		"pontaj_resource_resource":       int64(5),
		"pontaj_resource_details":        marchPayload,
		"t.pontaj_date":                  "2023-03-01",
		"t.pontaj_admin_valid":           int64(1),
		"t.pontaj_last_action_date_time": "2023-03-10 14:00:00",
	}
	for k, v := range overrides {
		row[k] = v
	}
	return row
}

func newClockingAdapter(markers fakeMarkers) *DailyClockingAdapter {
	return NewDailyClockingAdapter(markers, targetstore.New(nil, targetstore.Tables{}, nil), ClockingColumns{}, nil)
}

var migratedUser = fakeMarkers{markers: map[int64]planner.Marker{5: planner.MigratedAs(500), 6: {}}}

func TestDailyClockingAdapter_FansOutDays(t *testing.T) {
	result, err := newClockingAdapter(migratedUser).Transform(context.Background(), clockingRow(nil))
	require.NoError(t, err)
	require.Len(t, result.Records, 2)

	validated := time.Date(2023, time.March, 10, 14, 0, 0, 0, time.UTC)
	for i, want := range []struct {
		date  string
		hours float64
	}{{"2023-03-03", 8}, {"2023-03-15", 4}} {
		rec := result.Records[i]
		assert.Equal(t, "user_daily_clockings", rec.Table)
		assert.Zero(t, rec.ID)
		assert.Equal(t, int64(500), rec.Values["user_id"])
		assert.Equal(t, want.date, rec.Values["date"])
		assert.Equal(t, want.hours, rec.Values["hours"])
		assert.Equal(t, validated, rec.Values["validated_at"])
	}
}

func TestDailyClockingAdapter_ValidationDateFallsBackToNextMonth(t *testing.T) {
	result, err := newClockingAdapter(migratedUser).Transform(context.Background(),
		clockingRow(legacy.Row{"t.pontaj_last_action_date_time": nil}))
	require.NoError(t, err)
	require.Len(t, result.Records, 2)
	for _, rec := range result.Records {
		assert.Equal(t, time.Date(2023, time.April, 1, 0, 0, 0, 0, time.UTC), rec.Values["validated_at"])
	}
}

func TestDailyClockingAdapter_NotAdminValidated(t *testing.T) {
	result, err := newClockingAdapter(migratedUser).Transform(context.Background(),
		clockingRow(legacy.Row{"t.pontaj_admin_valid": int64(0)}))
	require.NoError(t, err)
	require.Len(t, result.Records, 2)
	for _, rec := range result.Records {
		assert.Nil(t, rec.Values["validated_at"])
	}
}

func TestDailyClockingAdapter_NoRecords(t *testing.T) {
	tests := []struct {
		name string
		row  legacy.Row
	}{
		{"user not migrated", clockingRow(legacy.Row{"pontaj_resource_resource": int64(6)})},
		{"user missing", clockingRow(legacy.Row{"pontaj_resource_resource": int64(7)})},
		{"no resource", clockingRow(legacy.Row{"pontaj_resource_resource": nil})},
		{"malformed details", clockingRow(legacy.Row{"pontaj_resource_details": "a:1:{"})},
		{"details without hours", clockingRow(legacy.Row{"pontaj_resource_details": `a:0:{}`})},
		{"no monthly date", clockingRow(legacy.Row{"t.pontaj_date": nil})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := newClockingAdapter(migratedUser).Transform(context.Background(), tt.row)
			require.NoError(t, err)
			assert.Empty(t, result.Records)
		})
	}
}

func TestDailyClockingAdapter_LookupError(t *testing.T) {
	lookupErr := errors.New("legacy store down")
	_, err := newClockingAdapter(fakeMarkers{err: lookupErr}).Transform(context.Background(), clockingRow(nil))
	assert.ErrorIs(t, err, lookupErr)
}

func TestDailyClockingAdapter_SkipsDaysOutsideMonth(t *testing.T) {
	row := clockingRow(legacy.Row{
		"t.pontaj_date":           "2023-04-01",
		"pontaj_resource_details": `a:1:{s:11:"hoursWorked";a:3:{i:30;i:8;i:31;i:8;i:0;i:1;}}`,
	})
	result, err := newClockingAdapter(migratedUser).Transform(context.Background(), row)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "2023-04-30", result.Records[0].Values["date"])
}

func TestDailyClockingAdapter_Supports(t *testing.T) {
	a := newClockingAdapter(migratedUser)
	assert.True(t, Supports(a, planner.ActionCreate))
	assert.False(t, Supports(a, planner.ActionUpdate))
}

func TestValidationDate(t *testing.T) {
	march := time.Date(2023, time.March, 1, 0, 0, 0, 0, time.UTC)
	december := time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC)
	action := time.Date(2023, time.March, 10, 14, 0, 0, 0, time.UTC)

	assert.Nil(t, ValidationDate(march, false, action))
	assert.Equal(t, action, *ValidationDate(march, true, action))
	assert.Equal(t, time.Date(2023, time.April, 1, 0, 0, 0, 0, time.UTC), *ValidationDate(march, true, time.Time{}))
	assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), *ValidationDate(december, true, time.Time{}))
}

func TestDateOfClocking(t *testing.T) {
	feb := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)

	date, ok := DateOfClocking(feb, 29)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), date)

	_, ok = DateOfClocking(feb, 30)
	assert.False(t, ok)
	_, ok = DateOfClocking(feb, 0)
	assert.False(t, ok)
}
