// Package legacy reads planned rows from the legacy store and records
// migration markers on them.
package legacy

import (
	"context"
	"errors"
	"fmt"

	"legacy-migrate/internal/catalog"
	"legacy-migrate/internal/dbexec"
	"legacy-migrate/internal/planner"
	"legacy-migrate/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
)

// ErrRowNotFound is returned when a legacy row does not exist.
var ErrRowNotFound = errors.New("legacy row not found")

// Resolver resolves classes to legacy tables.
type Resolver interface {
	Resolve(class catalog.Class) (catalog.ClassInfo, error)
}

// Reader executes query plans against the legacy store.
type Reader struct {
	exec dbexec.QueryExecutor
	meta Resolver
}

// NewReader creates a reader.
func NewReader(exec dbexec.QueryExecutor, meta Resolver) *Reader {
	return &Reader{exec: exec, meta: meta}
}

// Fetch executes plan and returns its rows. Byte values are returned as strings.
func (r *Reader) Fetch(ctx context.Context, plan *planner.QueryPlan) ([]Row, error) {
	query, err := plan.ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := r.exec.QueryContext(ctx, query.SQL, query.Args...)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", plan.Class, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var result []Row
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", plan.Class, err)
		}
		row := make(Row, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", plan.Class, err)
	}
	return result, nil
}

// Count returns the number of rows plan selects, ignoring its limit and projection.
func (r *Reader) Count(ctx context.Context, plan *planner.QueryPlan) (int64, error) {
	counted := *plan
	counted.Selection = planner.SelectCount()
	counted.Limit = 0
	query, err := counted.ToSQL()
	if err != nil {
		return 0, err
	}

	var n int64
	if _, err := dbexec.QueryRowValue(ctx, r.exec, &n, query.SQL, query.Args...); err != nil {
		return 0, fmt.Errorf("count %s: %w", plan.Class, err)
	}
	return n, nil
}

// MarkerOf returns the migration marker of the legacy row of class with primary key id.
func (r *Reader) MarkerOf(ctx context.Context, class catalog.Class, id interface{}) (planner.Marker, error) {
	info, err := r.meta.Resolve(class)
	if err != nil {
		return planner.Marker{}, err
	}
	query, args, err := sq.Select(sqlutil.QuoteIdentifier(info.MarkerColumn)).
		From(sqlutil.QuoteIdentifier(info.Table)).
		Where(sq.Eq{sqlutil.QuoteIdentifier(info.PrimaryKey): id}).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return planner.Marker{}, err
	}

	var marker planner.Marker
	found, err := dbexec.QueryRowValue(ctx, r.exec, &marker, query, args...)
	if err != nil {
		return planner.Marker{}, fmt.Errorf("marker of %s %v: %w", class, id, err)
	}
	if !found {
		return planner.Marker{}, fmt.Errorf("%w: %s %v", ErrRowNotFound, class, id)
	}
	return marker, nil
}
