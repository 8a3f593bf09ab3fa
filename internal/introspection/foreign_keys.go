package introspection

import (
	"fmt"
	"sort"
)

// ForeignKeyConstraint groups per-column foreign key rows into one ordered constraint.
type ForeignKeyConstraint struct {
	ConstraintName    string
	ReferencedTable   string
	ColumnNames       []string
	ReferencedColumns []string
}

// ForeignKeyConstraints returns FK constraints for a table, ordered by constraint
// name with columns in ordinal position order.
func ForeignKeyConstraints(table Table) []ForeignKeyConstraint {
	if len(table.ForeignKeys) == 0 {
		return nil
	}

	fks := make([]ForeignKey, len(table.ForeignKeys))
	copy(fks, table.ForeignKeys)
	keys := make([]string, len(fks))
	for i, fk := range fks {
		keys[i] = fk.ConstraintName
		if keys[i] == "" {
			// Unnamed constraints never merge with each other.
			keys[i] = fmt.Sprintf("__unnamed_%d", i)
		}
	}

	order := make([]int, len(fks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		i, j := order[a], order[b]
		if keys[i] != keys[j] {
			return keys[i] < keys[j]
		}
		return fks[i].OrdinalPosition < fks[j].OrdinalPosition
	})

	var result []ForeignKeyConstraint
	lastKey := ""
	for _, idx := range order {
		fk := fks[idx]
		if len(result) == 0 || keys[idx] != lastKey {
			result = append(result, ForeignKeyConstraint{
				ConstraintName:  fk.ConstraintName,
				ReferencedTable: fk.ReferencedTable,
			})
			lastKey = keys[idx]
		}
		current := &result[len(result)-1]
		current.ColumnNames = append(current.ColumnNames, fk.ColumnName)
		current.ReferencedColumns = append(current.ReferencedColumns, fk.ReferencedColumn)
	}
	return result
}
