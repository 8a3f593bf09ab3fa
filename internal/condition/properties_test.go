package condition

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legacy-migrate/internal/catalog"
	"legacy-migrate/internal/introspection"
	"legacy-migrate/internal/planner"
)

const legacyDDL = `
CREATE TABLE users (user_id INTEGER PRIMARY KEY, new_id INTEGER);
CREATE TABLE holidays (
	holiday_id INTEGER PRIMARY KEY,
	holiday_user INTEGER NOT NULL REFERENCES users(user_id),
	new_id INTEGER
);
CREATE TABLE task_logs (task_log_id INTEGER PRIMARY KEY, new_id INTEGER);
CREATE TABLE pontajs (
	pontaj_id INTEGER PRIMARY KEY,
	pontaj_date TEXT NOT NULL,
	pontaj_admin_valid INTEGER NOT NULL DEFAULT 0,
	new_id INTEGER
);
`

type legacyFixture struct {
	db      *sql.DB
	store   *fakeStore
	planner *planner.Planner
}

func newLegacyFixture(t *testing.T, seed ...string) *legacyFixture {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	_, err = db.ExecContext(ctx, legacyDDL)
	require.NoError(t, err)
	for _, stmt := range seed {
		_, err := db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}

	schema, err := introspection.IntrospectSQLiteContext(ctx, db)
	require.NoError(t, err)
	cat, err := catalog.New(schema, catalog.DefaultClassSpecs(), catalog.DefaultAssociations())
	require.NoError(t, err)

	store := &fakeStore{}
	resolver := NewResolver(DefaultPolicies(store, Columns{}, nil), nil)
	return &legacyFixture{
		db:      db,
		store:   store,
		planner: planner.New(cat, cat.Associations(), resolver),
	}
}

// eligibleIDs executes a plan projecting only the base primary key.
func (f *legacyFixture) eligibleIDs(t *testing.T, class catalog.Class, action planner.Action) []int64 {
	t.Helper()
	ctx := context.Background()
	plan, err := f.planner.Plan(ctx, class, planner.WithAction(action))
	require.NoError(t, err)
	query, err := plan.ToSQL()
	require.NoError(t, err)

	rows, err := f.db.QueryContext(ctx, query.SQL, query.Args...)
	require.NoError(t, err)
	defer rows.Close()

	cols, err := rows.Columns()
	require.NoError(t, err)
	var ids []int64
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		require.NoError(t, rows.Scan(ptrs...))
		ids = append(ids, values[0].(int64))
	}
	require.NoError(t, rows.Err())
	return ids
}

func TestEligibility_CreateIsIdempotentOnceMarked(t *testing.T) {
	f := newLegacyFixture(t,
		`INSERT INTO users (user_id, new_id) VALUES (1, 100), (2, NULL)`,
		`INSERT INTO holidays (holiday_id, holiday_user) VALUES (10, 1), (11, 1), (12, 2)`,
	)

	// Holiday 12 waits for its user.
	assert.Equal(t, []int64{10, 11}, f.eligibleIDs(t, catalog.Holiday, planner.ActionCreate))
	assert.Empty(t, f.eligibleIDs(t, catalog.Holiday, planner.ActionUpdate))

	_, err := f.db.Exec(`UPDATE holidays SET new_id = holiday_id + 1000 WHERE holiday_id IN (10, 11)`)
	require.NoError(t, err)

	assert.Empty(t, f.eligibleIDs(t, catalog.Holiday, planner.ActionCreate))
	assert.Equal(t, []int64{10, 11}, f.eligibleIDs(t, catalog.Holiday, planner.ActionUpdate))
}

func TestEligibility_CreateAndUpdateNeverOverlap(t *testing.T) {
	f := newLegacyFixture(t,
		`INSERT INTO users (user_id, new_id) VALUES (1, 100), (2, NULL), (3, 300), (4, NULL)`,
	)

	create := f.eligibleIDs(t, catalog.User, planner.ActionCreate)
	update := f.eligibleIDs(t, catalog.User, planner.ActionUpdate)
	assert.Equal(t, []int64{2, 4}, create)
	assert.Equal(t, []int64{1, 3}, update)
	for _, id := range create {
		assert.NotContains(t, update, id)
	}
}

func TestEligibility_TaskLogsWithNothingOpen(t *testing.T) {
	f := newLegacyFixture(t,
		`INSERT INTO task_logs (task_log_id, new_id) VALUES (1, 501), (2, 502), (3, NULL)`,
	)

	assert.Empty(t, f.eligibleIDs(t, catalog.TaskLog, planner.ActionUpdate))

	f.store.openIDs = []int64{502}
	assert.Equal(t, []int64{2}, f.eligibleIDs(t, catalog.TaskLog, planner.ActionUpdate))
	assert.Equal(t, []int64{3}, f.eligibleIDs(t, catalog.TaskLog, planner.ActionCreate))
}

func TestEligibility_ClockingBoundaryIsInclusive(t *testing.T) {
	f := newLegacyFixture(t,
		`INSERT INTO pontajs (pontaj_id, pontaj_date, pontaj_admin_valid, new_id) VALUES
			(1, '2023-03-09', 1, 900),
			(2, '2023-03-10', 1, 901),
			(3, '2023-03-11', 0, NULL),
			(4, '2023-04-01', 1, NULL)`,
	)

	// Nothing validated yet: the reference check matches no row.
	assert.Empty(t, f.eligibleIDs(t, catalog.Pontaj, planner.ActionUpdate))

	f.store.latest = time.Date(2023, time.March, 10, 0, 0, 0, 0, time.UTC)
	f.store.hasLatest = true
	assert.Equal(t, []int64{2, 4}, f.eligibleIDs(t, catalog.Pontaj, planner.ActionUpdate))
}
