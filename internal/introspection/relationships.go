package introspection

import "log/slog"

// buildRelationships derives many-to-one relationship metadata from foreign keys.
// Constraints with mismatched column mappings are skipped with a warning.
func buildRelationships(schema *Schema) {
	for i := range schema.Tables {
		table := &schema.Tables[i]
		table.Relationships = nil
		for _, fk := range ForeignKeyConstraints(*table) {
			if len(fk.ColumnNames) == 0 || len(fk.ColumnNames) != len(fk.ReferencedColumns) {
				slog.Default().Warn("skipping invalid foreign key mapping",
					slog.String("table", table.Name),
					slog.String("constraint", fk.ConstraintName),
					slog.String("remote_table", fk.ReferencedTable),
				)
				continue
			}
			table.Relationships = append(table.Relationships, Relationship{
				FieldName:     fk.ColumnNames[0],
				LocalColumns:  append([]string(nil), fk.ColumnNames...),
				RemoteTable:   fk.ReferencedTable,
				RemoteColumns: append([]string(nil), fk.ReferencedColumns...),
			})
		}
	}
}

// RebuildRelationships clears and rebuilds relationship metadata for a schema
// assembled by hand (for example in tests or from a cached snapshot).
func RebuildRelationships(schema *Schema) {
	if schema == nil {
		return
	}
	buildRelationships(schema)
}

// RelationshipsTo returns the relationships of table that reference remoteTable,
// in constraint order.
func (t Table) RelationshipsTo(remoteTable string) []Relationship {
	var out []Relationship
	for _, rel := range t.Relationships {
		if rel.RemoteTable == remoteTable {
			out = append(out, rel)
		}
	}
	return out
}
