package audit

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	maxSheetName = 31
	columnWidth  = 18
)

// ExcelizeWriter streams rows into an excelize workbook. Each sheet is
// flushed when the next one is added or the workbook is saved.
type ExcelizeWriter struct {
	file        *excelize.File
	stream      *excelize.StreamWriter
	sheets      int
	row         int
	headerStyle int
}

// NewExcelizeWriter creates an empty workbook.
func NewExcelizeWriter() ExcelWriter {
	f := excelize.NewFile()
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		style = 0
	}
	return &ExcelizeWriter{file: f, headerStyle: style}
}

func (w *ExcelizeWriter) AddSheet(name string) error {
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	if err := w.flush(); err != nil {
		return err
	}

	if w.sheets == 0 {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	stream, err := w.file.NewStreamWriter(name)
	if err != nil {
		return fmt.Errorf("stream sheet %s: %w", name, err)
	}
	w.stream = stream
	w.sheets++
	w.row = 1
	return nil
}

func (w *ExcelizeWriter) WriteHeader(columns []string) error {
	if w.stream == nil {
		return fmt.Errorf("no active sheet")
	}
	if err := w.stream.SetColWidth(1, len(columns), columnWidth); err != nil {
		return err
	}
	if err := w.stream.SetPanes(&excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}

	values := make([]interface{}, len(columns))
	for i, c := range columns {
		values[i] = c
	}
	return w.setRow(values, excelize.RowOpts{StyleID: w.headerStyle})
}

func (w *ExcelizeWriter) WriteRow(row []interface{}) error {
	if w.stream == nil {
		return fmt.Errorf("no active sheet")
	}
	return w.setRow(row)
}

func (w *ExcelizeWriter) setRow(values []interface{}, opts ...excelize.RowOpts) error {
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return err
	}
	if err := w.stream.SetRow(cell, values, opts...); err != nil {
		return err
	}
	w.row++
	return nil
}

func (w *ExcelizeWriter) flush() error {
	if w.stream == nil {
		return nil
	}
	err := w.stream.Flush()
	w.stream = nil
	return err
}

// Save flushes the active sheet and writes the workbook.
func (w *ExcelizeWriter) Save(out io.Writer) error {
	if err := w.flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}
	return w.file.Write(out)
}

func (w *ExcelizeWriter) Close() error {
	return w.file.Close()
}
