// Package table holds the wide tabular form used to persist and export
// derived datasets.
package table

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type cellKind uint8

const (
	kindNull cellKind = iota
	kindString
	kindNumber
)

// Cell is a nullable table value holding either a string or a number.
type Cell struct {
	kind cellKind
	s    string
	f    float64
}

// Null returns the empty cell.
func Null() Cell { return Cell{} }

// String returns a string cell. The empty string is stored as null.
func String(s string) Cell {
	if s == "" {
		return Cell{}
	}
	return Cell{kind: kindString, s: s}
}

// Number returns a numeric cell.
func Number(f float64) Cell { return Cell{kind: kindNumber, f: f} }

// Int returns a numeric cell holding n.
func Int(n int) Cell { return Number(float64(n)) }

// NumberPtr returns a numeric cell, or null when f is nil.
func NumberPtr(f *float64) Cell {
	if f == nil {
		return Null()
	}
	return Number(*f)
}

func (c Cell) IsNull() bool { return c.kind == kindNull }

// Text renders the cell the way it is written to CSV.
func (c Cell) Text() string {
	switch c.kind {
	case kindString:
		return c.s
	case kindNumber:
		return strconv.FormatFloat(c.f, 'f', -1, 64)
	default:
		return ""
	}
}

// Float returns the numeric value of the cell. String cells holding a
// number are parsed.
func (c Cell) Float() (float64, bool) {
	switch c.kind {
	case kindNumber:
		return c.f, true
	case kindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(c.s), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func (c Cell) MarshalJSON() ([]byte, error) {
	switch c.kind {
	case kindString:
		return json.Marshal(c.s)
	case kindNumber:
		return json.Marshal(c.f)
	default:
		return []byte("null"), nil
	}
}

func (c *Cell) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*c = Null()
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = String(s)
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("decode cell: %w", err)
		}
		*c = Number(f)
	}
	return nil
}

// Table is an ordered set of named columns and rows of cells.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]Cell `json:"rows"`
}

// New returns an empty table with the given columns.
func New(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// Index returns the position of the named column, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

func (t *Table) Has(name string) bool { return t.Index(name) >= 0 }

// Append adds a row. Short rows are padded with nulls.
func (t *Table) Append(row ...Cell) {
	r := make([]Cell, len(t.Columns))
	copy(r, row)
	t.Rows = append(t.Rows, r)
}

// Get returns the cell at row i in the named column, or null when the
// column does not exist.
func (t *Table) Get(i int, column string) Cell {
	j := t.Index(column)
	if j < 0 || i < 0 || i >= len(t.Rows) || j >= len(t.Rows[i]) {
		return Null()
	}
	return t.Rows[i][j]
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Rename changes column names according to renames (old → new).
func (t *Table) Rename(renames map[string]string) {
	for i, c := range t.Columns {
		if n, ok := renames[c]; ok {
			t.Columns[i] = n
		}
	}
}

// Select returns a new table with the given columns in the given order.
// Columns missing from t come out null.
func (t *Table) Select(columns ...string) *Table {
	idx := make([]int, len(columns))
	for i, c := range columns {
		idx[i] = t.Index(c)
	}
	out := New(columns...)
	for _, row := range t.Rows {
		r := make([]Cell, len(columns))
		for i, j := range idx {
			if j >= 0 && j < len(row) {
				r[i] = row[j]
			}
		}
		out.Rows = append(out.Rows, r)
	}
	return out
}

// DropNullColumns returns a copy of t without the columns whose every cell
// is null.
func (t *Table) DropNullColumns() *Table {
	var keep []string
	for j, c := range t.Columns {
		for _, row := range t.Rows {
			if j < len(row) && !row[j].IsNull() {
				keep = append(keep, c)
				break
			}
		}
	}
	return t.Select(keep...)
}

// MoveLast returns a copy of t with the named column moved to the end. The
// table is returned unchanged when the column is absent.
func (t *Table) MoveLast(column string) *Table {
	if !t.Has(column) {
		return t.Select(t.Columns...)
	}
	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c != column {
			cols = append(cols, c)
		}
	}
	return t.Select(append(cols, column)...)
}
