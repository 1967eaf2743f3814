package database

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
)

// AuditTableNames are the tables exported in monthly audit reports.
var AuditTableNames = []string{
	"vehicles",
	"reservations",
	"reservation_conflicts",
	"discount_windows",
	"staff",
	"handover_reminders",
}

// GetTableNames returns list of table names to export.
func (db *DB) GetTableNames(ctx context.Context) ([]string, error) {
	return AuditTableNames, nil
}

// GetTableData returns all rows from an audited table as maps keyed by column.
func (db *DB) GetTableData(ctx context.Context, tableName string) ([]map[string]interface{}, []string, error) {
	// only whitelisted names reach the interpolated queries below
	if !slices.Contains(AuditTableNames, tableName) {
		return nil, nil, fmt.Errorf("invalid table name: %s", tableName)
	}

	columns, err := db.tableColumns(ctx, tableName)
	if err != nil {
		return nil, nil, err
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s", joinColumns(columns), tableName))
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var result []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		result = append(result, row)
	}
	return result, columns, rows.Err()
}

func (db *DB) tableColumns(ctx context.Context, tableName string) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid, notNull, pk int
		var name, typeName string
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &typeName, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s has no columns", tableName)
	}
	return columns, nil
}

func joinColumns(columns []string) string {
	out := ""
	for i, c := range columns {
		if i > 0 {
			out += ", "
		}
		out += `"` + c + `"`
	}
	return out
}

// PruneDanglingConflicts deletes conflict edges whose endpoint no longer
// exists or is confirmed. The write path never leaves such edges; they only
// appear after out-of-band edits.
func (db *DB) PruneDanglingConflicts(ctx context.Context) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM reservation_conflicts
		WHERE reservation_id NOT IN (SELECT id FROM reservations WHERE confirmed = 0)
		   OR conflicting_id NOT IN (SELECT id FROM reservations WHERE confirmed = 0)`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountOrphanReservations counts reservations whose vehicle was deleted.
func (db *DB) CountOrphanReservations(ctx context.Context) (int64, error) {
	var n int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reservations
		WHERE vehicle_id NOT IN (SELECT id FROM vehicles)`).Scan(&n)
	return n, err
}
