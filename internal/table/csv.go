package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ReadCSV decodes a CSV document whose first record is the header. Empty
// cells are read as null; every other cell is kept as a string.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	t := New(cleanHeader(header)...)

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", t.Len()+2, err)
		}
		if blank(rec) {
			continue
		}
		t.Append(stringCells(rec, len(t.Columns))...)
	}
	return t, nil
}

// WriteCSV encodes t with a header record.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	rec := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for j := range rec {
			rec[j] = ""
			if j < len(row) {
				rec[j] = row[j].Text()
			}
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func cleanHeader(h []string) []string {
	out := make([]string, len(h))
	for i, c := range h {
		c = strings.TrimPrefix(c, "\ufeff")
		out[i] = strings.TrimSpace(c)
	}
	return out
}

func stringCells(rec []string, n int) []Cell {
	cells := make([]Cell, n)
	for j := 0; j < n && j < len(rec); j++ {
		cells[j] = String(strings.TrimSpace(rec[j]))
	}
	return cells
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
