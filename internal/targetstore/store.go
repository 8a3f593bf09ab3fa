// Package targetstore reads eligibility state from, and writes migrated
// records to, the new relational store.
package targetstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"legacy-migrate/internal/dbexec"
	"legacy-migrate/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
)

// ErrRecordNotFound is returned when an update matches no target row.
var ErrRecordNotFound = errors.New("target record not found")

// Tables names the target tables and columns the store reads and writes.
type Tables struct {
	IDColumn string

	TaskLog            string
	TaskLogValidatedAt string
	DailyClocking      string
	DailyClockingUser  string
	DailyClockingDate  string
	DailyClockingHours string
	DailyClockingValid string
}

// DefaultTables returns the default target naming.
func DefaultTables() Tables {
	return Tables{
		IDColumn:           "id",
		TaskLog:            "task_logs",
		TaskLogValidatedAt: "validated_at",
		DailyClocking:      "user_daily_clockings",
		DailyClockingUser:  "user_id",
		DailyClockingDate:  "date",
		DailyClockingHours: "hours",
		DailyClockingValid: "validated_at",
	}
}

// Record is one row to write to a target table. A non-zero ID updates the
// existing row with that identifier.
type Record struct {
	Table  string
	ID     int64
	Values map[string]interface{}
}

// Store implements the target store lookups and writes.
type Store struct {
	exec   dbexec.QueryExecutor
	tables Tables
	logger *slog.Logger
}

// New creates a store. Empty table names fall back to DefaultTables.
func New(exec dbexec.QueryExecutor, tables Tables, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{exec: exec, tables: withDefaults(tables), logger: logger}
}

// Tables returns the effective naming.
func (s *Store) Tables() Tables {
	return s.tables
}

// OpenTaskLogIDs returns the identifiers of task logs not yet validated.
func (s *Store) OpenTaskLogIDs(ctx context.Context) ([]int64, error) {
	query, args, err := sq.Select(sqlutil.QuoteIdentifier(s.tables.IDColumn)).
		From(sqlutil.QuoteIdentifier(s.tables.TaskLog)).
		Where(sq.Eq{sqlutil.QuoteIdentifier(s.tables.TaskLogValidatedAt): nil}).
		OrderBy(sqlutil.QuoteIdentifier(s.tables.IDColumn)).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query open task logs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// LatestValidationDate returns the most recent date of a validated daily clocking.
// It reports false when no clocking has been validated.
func (s *Store) LatestValidationDate(ctx context.Context) (time.Time, bool, error) {
	query, args, err := sq.Select("MAX(" + sqlutil.QuoteIdentifier(s.tables.DailyClockingDate) + ")").
		From(sqlutil.QuoteIdentifier(s.tables.DailyClocking)).
		Where(sq.NotEq{sqlutil.QuoteIdentifier(s.tables.DailyClockingValid): nil}).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return time.Time{}, false, err
	}

	var value interface{}
	found, err := dbexec.QueryRowValue(ctx, s.exec, &value, query, args...)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query latest validation date: %w", err)
	}
	if !found || value == nil {
		return time.Time{}, false, nil
	}
	date, err := parseDate(value)
	if err != nil {
		return time.Time{}, false, err
	}
	return date, true, nil
}

// DailyClocking is one day of a user's clocking.
type DailyClocking struct {
	UserID      int64
	Date        time.Time
	Hours       float64
	ValidatedAt *time.Time
}

// DailyClockingRecord converts the clocking to a record for the daily clocking table.
func (s *Store) DailyClockingRecord(c DailyClocking) Record {
	values := map[string]interface{}{
		s.tables.DailyClockingUser:  c.UserID,
		s.tables.DailyClockingDate:  c.Date.Format("2006-01-02"),
		s.tables.DailyClockingHours: c.Hours,
		s.tables.DailyClockingValid: nil,
	}
	if c.ValidatedAt != nil {
		values[s.tables.DailyClockingValid] = *c.ValidatedAt
	}
	return Record{Table: s.tables.DailyClocking, Values: values}
}

// InsertDailyClocking inserts one daily clocking and returns its identifier.
func (s *Store) InsertDailyClocking(ctx context.Context, c DailyClocking) (int64, error) {
	return s.Insert(ctx, s.DailyClockingRecord(c))
}

// Insert writes rec as a new row and returns the generated identifier.
func (s *Store) Insert(ctx context.Context, rec Record) (int64, error) {
	if rec.Table == "" || len(rec.Values) == 0 {
		return 0, errors.New("insert requires a table and values")
	}
	columns, values := sortedValues(rec.Values)
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = sqlutil.QuoteIdentifier(col)
	}

	query, args, err := sq.Insert(sqlutil.QuoteIdentifier(rec.Table)).
		Columns(quoted...).
		Values(values...).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return 0, err
	}

	result, err := s.exec.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", rec.Table, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert into %s: last insert id: %w", rec.Table, err)
	}
	return id, nil
}

// Update overwrites the values of the row identified by rec.ID.
func (s *Store) Update(ctx context.Context, rec Record) error {
	if rec.Table == "" || rec.ID == 0 || len(rec.Values) == 0 {
		return errors.New("update requires a table, an id and values")
	}
	columns, values := sortedValues(rec.Values)
	builder := sq.Update(sqlutil.QuoteIdentifier(rec.Table))
	for i, col := range columns {
		builder = builder.Set(sqlutil.QuoteIdentifier(col), values[i])
	}
	query, args, err := builder.
		Where(sq.Eq{sqlutil.QuoteIdentifier(s.tables.IDColumn): rec.ID}).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return err
	}

	result, err := s.exec.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s %d: %w", rec.Table, rec.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s %d: rows affected: %w", rec.Table, rec.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s %d", ErrRecordNotFound, rec.Table, rec.ID)
	}
	return nil
}

// Write inserts or updates rec depending on whether it carries an ID, and
// returns the identifier of the written row.
func (s *Store) Write(ctx context.Context, rec Record) (int64, error) {
	if rec.ID == 0 {
		return s.Insert(ctx, rec)
	}
	if err := s.Update(ctx, rec); err != nil {
		return 0, err
	}
	return rec.ID, nil
}

func sortedValues(m map[string]interface{}) ([]string, []interface{}) {
	columns := make([]string, 0, len(m))
	for col := range m {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	values := make([]interface{}, len(columns))
	for i, col := range columns {
		values[i] = m[col]
	}
	return columns, values
}

var dateLayouts = []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339Nano}

func parseDate(value interface{}) (time.Time, error) {
	var s string
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case []byte:
		s = string(v)
	case string:
		s = v
	default:
		return time.Time{}, fmt.Errorf("unsupported date value %T", value)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

func withDefaults(t Tables) Tables {
	d := DefaultTables()
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&t.IDColumn, d.IDColumn)
	fill(&t.TaskLog, d.TaskLog)
	fill(&t.TaskLogValidatedAt, d.TaskLogValidatedAt)
	fill(&t.DailyClocking, d.DailyClocking)
	fill(&t.DailyClockingUser, d.DailyClockingUser)
	fill(&t.DailyClockingDate, d.DailyClockingDate)
	fill(&t.DailyClockingHours, d.DailyClockingHours)
	fill(&t.DailyClockingValid, d.DailyClockingValid)
	return t
}
