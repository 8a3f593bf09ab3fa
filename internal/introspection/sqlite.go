package introspection

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
)

// IntrospectSQLiteContext reads the schema of a SQLite database through
// sqlite_master and the table-valued PRAGMA functions. It is used for local
// dumps of the legacy store.
func IntrospectSQLiteContext(ctx context.Context, db Queryer) (*Schema, error) {
	ctx, span := startSpan(ctx, "introspection.build_schema",
		attribute.String("db.system", "sqlite"),
	)
	defer span.End()

	tables, err := getSQLiteTables(ctx, db)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to get tables: %w", err)
	}

	schema := &Schema{Tables: make([]Table, 0, len(tables))}
	for _, tableName := range tables {
		columns, err := getSQLiteColumns(ctx, db, tableName)
		if err != nil {
			recordSpanError(span, err)
			return nil, fmt.Errorf("failed to get columns for %s: %w", tableName, err)
		}
		foreignKeys, err := getSQLiteForeignKeys(ctx, db, tableName)
		if err != nil {
			recordSpanError(span, err)
			return nil, fmt.Errorf("failed to get foreign keys for table %s: %w", tableName, err)
		}
		schema.Tables = append(schema.Tables, Table{
			Name:        tableName,
			Columns:     columns,
			ForeignKeys: foreignKeys,
		})
	}

	resolveImplicitReferences(schema)
	buildRelationships(schema)
	span.SetAttributes(attribute.Int("db.tables", len(schema.Tables)))
	return schema, nil
}

func getSQLiteTables(ctx context.Context, db Queryer) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func getSQLiteColumns(ctx context.Context, db Queryer, tableName string) ([]Column, error) {
	rows, err := db.QueryContext(ctx, `SELECT name, type, "notnull", pk FROM pragma_table_info(?) ORDER BY cid`, tableName)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var columns []Column
	for rows.Next() {
		var col Column
		var notNull, pk int
		if err := rows.Scan(&col.Name, &col.DataType, &notNull, &pk); err != nil {
			return nil, err
		}
		col.IsNullable = notNull == 0
		col.IsPrimaryKey = pk > 0
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func getSQLiteForeignKeys(ctx context.Context, db Queryer, tableName string) ([]ForeignKey, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, seq, "table", "from", "to" FROM pragma_foreign_key_list(?) ORDER BY id, seq`, tableName)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var foreignKeys []ForeignKey
	for rows.Next() {
		var id, seq int
		var fk ForeignKey
		var to sql.NullString
		if err := rows.Scan(&id, &seq, &fk.ReferencedTable, &fk.ColumnName, &to); err != nil {
			return nil, err
		}
		fk.ReferencedColumn = to.String
		fk.ConstraintName = tableName + "_fk_" + strconv.Itoa(id)
		fk.OrdinalPosition = seq + 1
		foreignKeys = append(foreignKeys, fk)
	}
	return foreignKeys, rows.Err()
}

// resolveImplicitReferences fills in referenced columns that SQLite leaves
// empty when a foreign key targets the parent's primary key implicitly.
func resolveImplicitReferences(schema *Schema) {
	for i := range schema.Tables {
		fks := schema.Tables[i].ForeignKeys
		for j := range fks {
			if fks[j].ReferencedColumn != "" {
				continue
			}
			parent, ok := schema.Table(fks[j].ReferencedTable)
			if !ok {
				continue
			}
			if pk := PrimaryKeyColumn(*parent); pk != nil {
				fks[j].ReferencedColumn = pk.Name
			}
		}
	}
}
