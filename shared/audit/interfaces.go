package audit

import (
	"context"
	"fmt"
	"io"
	"time"
)

// TableExporter provides read access to the tables included in a report.
type TableExporter interface {
	GetTableNames(ctx context.Context) ([]string, error)

	// GetTableData returns rows keyed by column plus the column order.
	GetTableData(ctx context.Context, tableName string) ([]map[string]interface{}, []string, error)
}

// Maintainer repairs derived data the write path never produces on its own.
type Maintainer interface {
	// PruneDanglingConflicts deletes conflict edges that point at missing or
	// confirmed reservations.
	PruneDanglingConflicts(ctx context.Context) (int64, error)

	// CountOrphanReservations counts reservations whose vehicle is gone.
	CountOrphanReservations(ctx context.Context) (int64, error)
}

// ExcelWriter writes tabular data to a workbook, one sheet per table.
type ExcelWriter interface {
	AddSheet(name string) error
	WriteHeader(columns []string) error
	WriteRow(row []interface{}) error
	Save(w io.Writer) error
	Close() error
}

// Archiver stores finished reports.
type Archiver interface {
	Store(ctx context.Context, filename string, data io.Reader) error
}

// Logger for audit operations.
type Logger interface {
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})
}

// ReportFilename names the report covering the month of t, e.g.
// "rentacar_2026-05.xlsx".
func ReportFilename(t time.Time) string {
	return fmt.Sprintf("rentacar_%04d-%02d.xlsx", t.Year(), int(t.Month()))
}
