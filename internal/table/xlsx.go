package table

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ReadXLSX decodes the first worksheet of a workbook. The first row is the
// header.
func ReadXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return New(), nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return New(), nil
	}

	t := New(cleanHeader(rows[0])...)
	for _, rec := range rows[1:] {
		if blank(rec) {
			continue
		}
		t.Append(stringCells(rec, len(t.Columns))...)
	}
	return t, nil
}

// WriteSheet writes t to the named sheet of f starting at startRow (1-based).
// Numeric cells are written as numbers. It returns the next free row.
func (t *Table) WriteSheet(f *excelize.File, sheet string, startRow int) (int, error) {
	row := startRow
	if err := setRow(f, sheet, row, headerValues(t.Columns)); err != nil {
		return 0, err
	}
	row++
	for _, r := range t.Rows {
		vals := make([]interface{}, len(t.Columns))
		for j := range vals {
			if j >= len(r) {
				continue
			}
			switch r[j].kind {
			case kindNumber:
				vals[j] = r[j].f
			case kindString:
				vals[j] = r[j].s
			}
		}
		if err := setRow(f, sheet, row, vals); err != nil {
			return 0, err
		}
		row++
	}
	return row, nil
}

func headerValues(cols []string) []interface{} {
	vals := make([]interface{}, len(cols))
	for i, c := range cols {
		vals[i] = c
	}
	return vals
}

func setRow(f *excelize.File, sheet string, row int, vals []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
		return fmt.Errorf("write %s!%s: %w", sheet, cell, err)
	}
	return nil
}
