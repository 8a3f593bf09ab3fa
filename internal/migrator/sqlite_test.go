package migrator

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legacy-migrate/internal/adapter"
	"legacy-migrate/internal/catalog"
	"legacy-migrate/internal/condition"
	"legacy-migrate/internal/dbexec"
	"legacy-migrate/internal/introspection"
	"legacy-migrate/internal/legacy"
	"legacy-migrate/internal/planner"
	"legacy-migrate/internal/targetstore"
)

const legacySchema = `
CREATE TABLE users (user_id INTEGER PRIMARY KEY, user_name TEXT NOT NULL, new_id INTEGER);
CREATE TABLE holidays (
	holiday_id INTEGER PRIMARY KEY,
	holiday_user INTEGER NOT NULL REFERENCES users(user_id),
	holiday_days INTEGER NOT NULL,
	new_id INTEGER
);
CREATE TABLE pontajs (
	pontaj_id INTEGER PRIMARY KEY,
	pontaj_date TEXT NOT NULL,
	pontaj_admin_valid INTEGER NOT NULL,
	pontaj_last_action_date_time TEXT,
	new_id INTEGER
);
CREATE TABLE pontaj_resources (
	pontaj_resource_id INTEGER PRIMARY KEY,
	pontaj_resource_pontaj INTEGER NOT NULL REFERENCES pontajs(pontaj_id),
	pontaj_resource_resource INTEGER NOT NULL,
	pontaj_resource_details TEXT NOT NULL,
	new_id INTEGER
);
INSERT INTO users (user_id, user_name) VALUES (1, 'ana'), (2, 'mihai');
INSERT INTO holidays (holiday_id, holiday_user, holiday_days) VALUES (10, 1, 3), (11, 2, 5), (12, 1, 1);
INSERT INTO pontajs (pontaj_id, pontaj_date, pontaj_admin_valid, pontaj_last_action_date_time) VALUES
	(1, '2023-03-01', 1, NULL),
	(2, '2023-04-01', 0, NULL);
INSERT INTO pontaj_resources (pontaj_resource_id, pontaj_resource_pontaj, pontaj_resource_resource, pontaj_resource_details) VALUES
	(100, 1, 1, 'a:1:{s:11:"hoursWorked";a:2:{i:3;i:8;i:15;i:4;}}'),
	(101, 2, 2, 'a:1:{s:11:"hoursWorked";a:1:{i:7;d:7.5;}}'),
	(102, 2, 2, 'not serialized');
`

const targetSchema = `
CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL);
CREATE TABLE holidays (id INTEGER PRIMARY KEY AUTOINCREMENT, user_id INTEGER NOT NULL, days INTEGER NOT NULL);
CREATE TABLE task_logs (id INTEGER PRIMARY KEY AUTOINCREMENT, validated_at TEXT);
CREATE TABLE user_daily_clockings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	date TEXT NOT NULL,
	hours REAL NOT NULL,
	validated_at TEXT
);
`

func openSQLite(t *testing.T, ddl string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	db.SetMaxOpenConns(1)
	_, err = db.Exec(ddl)
	require.NoError(t, err)
	return db
}

func newSQLiteRunner(t *testing.T, legacyDB, targetDB *sql.DB) *Runner {
	t.Helper()
	ctx := context.Background()

	schema, err := introspection.IntrospectSQLiteContext(ctx, legacyDB)
	require.NoError(t, err)
	cat, err := catalog.New(schema, catalog.DefaultClassSpecs(), catalog.DefaultAssociations())
	require.NoError(t, err)

	legacyExec := dbexec.NewStandardExecutor(legacyDB)
	reader := legacy.NewReader(legacyExec, cat)
	store := targetstore.New(dbexec.NewStandardExecutor(targetDB), targetstore.Tables{}, nil)
	resolver := condition.NewResolver(condition.DefaultPolicies(store, condition.Columns{}, nil), nil)

	registry := adapter.NewRegistry()
	registry.Register(catalog.User, adapter.ColumnMapAdapter{
		Table:        "users",
		Columns:      map[string]string{"user_name": "name"},
		MarkerColumn: "new_id",
	})
	registry.Register(catalog.Holiday, adapter.ColumnMapAdapter{
		Table:        "holidays",
		Columns:      map[string]string{"holiday_days": "days", "u.new_id": "user_id"},
		MarkerColumn: "new_id",
	})
	registry.Register(catalog.PontajResource, adapter.NewDailyClockingAdapter(reader, store, adapter.ClockingColumns{}, nil))

	return NewRunner(
		planner.New(cat, cat.Associations(), resolver),
		reader,
		legacy.NewWriter(legacyExec, cat),
		store,
		registry,
		WithBatchSize(1),
	)
}

func countRows(t *testing.T, db *sql.DB, query string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(query).Scan(&n))
	return n
}

func TestRunner_SQLiteEndToEnd(t *testing.T) {
	legacyDB := openSQLite(t, legacySchema)
	targetDB := openSQLite(t, targetSchema)
	runner := newSQLiteRunner(t, legacyDB, targetDB)
	ctx := context.Background()

	jobs := []Job{
		{Class: catalog.User, Action: planner.ActionCreate},
		{Class: catalog.Holiday, Action: planner.ActionCreate},
		{Class: catalog.PontajResource, Action: planner.ActionCreate},
	}
	stats, err := runner.Run(ctx, jobs)
	require.NoError(t, err)
	require.Len(t, stats, 3)

	assert.Equal(t, int64(2), stats[0].Pending)
	assert.Equal(t, 2, stats[0].Written)
	assert.Equal(t, int64(3), stats[1].Pending)
	assert.Equal(t, 3, stats[1].Written)
	assert.Equal(t, 3, stats[2].Written)

	assert.Equal(t, 0, countRows(t, legacyDB, `SELECT COUNT(*) FROM users WHERE new_id IS NULL`))
	assert.Equal(t, 0, countRows(t, legacyDB, `SELECT COUNT(*) FROM holidays WHERE new_id IS NULL`))
	assert.Equal(t, 3, countRows(t, targetDB, `SELECT COUNT(*) FROM holidays`))

	// Holidays reference the migrated users.
	assert.Equal(t, 4, countRows(t, targetDB, `
		SELECT SUM(h.days) FROM holidays h JOIN users u ON u.id = h.user_id WHERE u.name = 'ana'`))

	// Three days were fanned out; the malformed resource produced nothing.
	assert.Equal(t, 3, countRows(t, targetDB, `SELECT COUNT(*) FROM user_daily_clockings`))
	assert.Equal(t, 2, countRows(t, targetDB, `
		SELECT COUNT(*) FROM user_daily_clockings
		WHERE date IN ('2023-03-03', '2023-03-15') AND validated_at IS NOT NULL`))
	assert.Equal(t, 1, countRows(t, targetDB, `
		SELECT COUNT(*) FROM user_daily_clockings WHERE date = '2023-04-07' AND validated_at IS NULL`))
	assert.Equal(t, 1, countRows(t, legacyDB, `SELECT COUNT(*) FROM pontaj_resources WHERE new_id IS NULL`))

	// A second run finds nothing new to create.
	again, err := runner.Run(ctx, jobs[:2])
	require.NoError(t, err)
	for _, s := range again {
		assert.Zero(t, s.Pending)
		assert.Zero(t, s.Written)
	}
	assert.Equal(t, 2, countRows(t, targetDB, `SELECT COUNT(*) FROM users`))
}

func TestRunner_SQLiteRowsWithoutRecordsDoNotBlockLaterRows(t *testing.T) {
	legacyDB := openSQLite(t, legacySchema)
	targetDB := openSQLite(t, targetSchema)
	_, err := legacyDB.Exec(`
		UPDATE pontaj_resources SET pontaj_resource_id = 98 WHERE pontaj_resource_id = 102;
		INSERT INTO pontaj_resources (pontaj_resource_id, pontaj_resource_pontaj, pontaj_resource_resource, pontaj_resource_details)
		VALUES (99, 1, 9, 'a:1:{s:11:"hoursWorked";a:1:{i:2;i:8;}}');`)
	require.NoError(t, err)
	runner := newSQLiteRunner(t, legacyDB, targetDB)
	ctx := context.Background()

	stats, err := runner.Run(ctx, []Job{
		{Class: catalog.User, Action: planner.ActionCreate},
		{Class: catalog.PontajResource, Action: planner.ActionCreate},
	})
	require.NoError(t, err)
	require.Len(t, stats, 2)

	clockings := stats[1]
	assert.Equal(t, int64(4), clockings.Pending)
	assert.Equal(t, 4, clockings.Rows)
	assert.Equal(t, 2, clockings.Skipped)
	assert.Equal(t, 3, clockings.Written)
	assert.Equal(t, 3, countRows(t, targetDB, `SELECT COUNT(*) FROM user_daily_clockings`))
	assert.Equal(t, 0, countRows(t, legacyDB, `
		SELECT COUNT(*) FROM pontaj_resources WHERE pontaj_resource_id IN (100, 101) AND new_id IS NULL`))
	assert.Equal(t, 2, countRows(t, legacyDB, `
		SELECT COUNT(*) FROM pontaj_resources WHERE pontaj_resource_id IN (98, 99) AND new_id IS NULL`))

	// The skipped rows stay eligible and are revisited without blocking.
	again, err := runner.RunJob(ctx, Job{Class: catalog.PontajResource, Action: planner.ActionCreate})
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.Pending)
	assert.Equal(t, 2, again.Skipped)
	assert.Zero(t, again.Written)
}

func TestRunner_SQLiteUpdatePass(t *testing.T) {
	legacyDB := openSQLite(t, legacySchema)
	targetDB := openSQLite(t, targetSchema)
	runner := newSQLiteRunner(t, legacyDB, targetDB)
	ctx := context.Background()

	_, err := runner.Run(ctx, []Job{{Class: catalog.User, Action: planner.ActionCreate}})
	require.NoError(t, err)

	_, err = legacyDB.Exec(`UPDATE users SET user_name = 'ana maria' WHERE user_id = 1`)
	require.NoError(t, err)

	stats, err := runner.RunJob(ctx, Job{Class: catalog.User, Action: planner.ActionUpdate})
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Pending)
	assert.Equal(t, 2, stats.Batches)
	assert.Equal(t, 2, stats.Written)
	assert.Equal(t, 1, countRows(t, targetDB, `SELECT COUNT(*) FROM users WHERE name = 'ana maria'`))
	assert.Equal(t, 2, countRows(t, targetDB, `SELECT COUNT(*) FROM users`))

	_, err = runner.RunJob(ctx, Job{Class: catalog.PontajResource, Action: planner.ActionUpdate})
	assert.ErrorIs(t, err, ErrUnsupportedAction)
}
