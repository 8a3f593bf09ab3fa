package adapter

import (
	"context"
	"errors"

	"legacy-migrate/internal/legacy"
	"legacy-migrate/internal/targetstore"
)

// ColumnMapAdapter copies legacy columns into a single target record. Keys of
// Columns are legacy column names (alias.column for joined columns); values
// are target column names. Rows that already carry a marker update the
// target record it points to.
type ColumnMapAdapter struct {
	Table        string
	Columns      map[string]string
	MarkerColumn string
}

// Transform implements Adapter.
func (a ColumnMapAdapter) Transform(_ context.Context, row legacy.Row) (Result, error) {
	if a.Table == "" || len(a.Columns) == 0 {
		return Result{}, errors.New("column map adapter requires a table and columns")
	}
	values := make(map[string]interface{}, len(a.Columns))
	for from, to := range a.Columns {
		values[to] = row[from]
	}
	rec := targetstore.Record{Table: a.Table, Values: values}
	if a.MarkerColumn != "" {
		if id, ok := row.Int64(a.MarkerColumn); ok {
			rec.ID = id
		}
	}
	return Result{Records: []targetstore.Record{rec}}, nil
}
