package legacy

import (
	"context"
	"fmt"

	"legacy-migrate/internal/catalog"
	"legacy-migrate/internal/dbexec"
	"legacy-migrate/internal/planner"
	"legacy-migrate/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
)

// Writer records migration markers on legacy rows.
type Writer struct {
	exec dbexec.QueryExecutor
	meta Resolver
}

// NewWriter creates a writer.
func NewWriter(exec dbexec.QueryExecutor, meta Resolver) *Writer {
	return &Writer{exec: exec, meta: meta}
}

// SetMarker stores marker on the legacy row of class with primary key id.
func (w *Writer) SetMarker(ctx context.Context, class catalog.Class, id interface{}, marker planner.Marker) error {
	info, err := w.meta.Resolve(class)
	if err != nil {
		return err
	}
	query, args, err := sq.Update(sqlutil.QuoteIdentifier(info.Table)).
		Set(sqlutil.QuoteIdentifier(info.MarkerColumn), marker).
		Where(sq.Eq{sqlutil.QuoteIdentifier(info.PrimaryKey): id}).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return err
	}

	result, err := w.exec.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("set marker of %s %v: %w", class, id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set marker of %s %v: rows affected: %w", class, id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s %v", ErrRowNotFound, class, id)
	}
	return nil
}
