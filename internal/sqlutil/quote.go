// Package sqlutil provides SQL identifier helpers shared by the planner and stores.
package sqlutil

import "strings"

// QuoteIdentifier quotes a SQL identifier (table name, column name, alias)
// with backticks and escapes any backticks within the identifier.
// Both MySQL and SQLite accept backtick quoting.
func QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, "`", "``")
	return "`" + escaped + "`"
}

// Qualify returns alias.column with both parts quoted.
// An empty alias yields the bare quoted column.
func Qualify(alias, column string) string {
	if alias == "" {
		return QuoteIdentifier(column)
	}
	return QuoteIdentifier(alias) + "." + QuoteIdentifier(column)
}

// JoinedColumnKey is the result-set name given to a column read through a join alias.
func JoinedColumnKey(alias, column string) string {
	return alias + "." + column
}
