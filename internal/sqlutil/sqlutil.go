// Package sqlutil holds small helpers for the catalog's SQL queries.
package sqlutil

import (
	"database/sql"
	"strings"
)

// InClauseArgs returns "?, ?, ..." for items and their args, converted by
// arg. Empty input yields "NULL", so `IN (NULL)` matches no row.
func InClauseArgs[T any](items []T, arg func(T) any) (string, []any) {
	if len(items) == 0 {
		return "NULL", nil
	}
	args := make([]any, len(items))
	for i, item := range items {
		args[i] = arg(item)
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(items)), ", "), args
}

// ScanRows collects every row through scan and closes rows.
func ScanRows[T any](rows *sql.Rows, scan func(*sql.Rows) (T, error)) ([]T, error) {
	defer rows.Close()

	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}
