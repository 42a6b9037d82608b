// Package dates attaches test dates from the roster-dates export to scored
// rows.
package dates

import (
	"log/slog"
	"time"

	"github.com/dalton-wilson/CBM/internal/model"
	"github.com/dalton-wilson/CBM/internal/names"
	"github.com/dalton-wilson/CBM/internal/schema"
	"github.com/dalton-wilson/CBM/internal/table"
)

// Roster indexes a roster-dates table by student and canonical test name.
type Roster struct {
	t       *table.Table
	mapping *schema.Mapping
	rows    map[string]int    // normalized "first last" -> row
	columns map[string]string // canonical test name -> column header
}

// NewRoster indexes t. The table must carry Last Name and First Name
// columns. When a student appears twice the first row wins.
func NewRoster(name string, t *table.Table, m *schema.Mapping) (*Roster, error) {
	for _, c := range []string{model.ColLastName, model.ColFirstName} {
		if !t.Has(c) {
			return nil, &model.SchemaMismatchError{Table: name, Column: c}
		}
	}
	r := &Roster{
		t:       t,
		mapping: m,
		rows:    make(map[string]int, t.Len()),
		columns: make(map[string]string),
	}
	for i := range t.Rows {
		key := names.Normalize(t.Get(i, model.ColFirstName).Text() + " " + t.Get(i, model.ColLastName).Text())
		if _, dup := r.rows[key]; dup {
			continue
		}
		r.rows[key] = i
	}
	for _, h := range t.Columns {
		if h == model.ColLastName || h == model.ColFirstName {
			continue
		}
		canon := m.CanonicalDateHeader(h)
		if _, dup := r.columns[canon]; !dup {
			r.columns[canon] = h
		}
	}
	return r, nil
}

// Date returns the date the student took the test, or nil when the test
// has no column, the student has no row or the cell does not parse.
func (r *Roster) Date(studentKey, test string) *time.Time {
	col, ok := r.columns[schema.CanonicalTestName(test)]
	if !ok {
		slog.Debug("no date column for test", "test", test)
		return nil
	}
	i, ok := r.rows[studentKey]
	if !ok {
		slog.Debug("student not on roster-dates table", "student", studentKey)
		return nil
	}
	cell := r.t.Get(i, col)
	if cell.IsNull() {
		return nil
	}
	d, ok := r.mapping.ParseDate(cell.Text())
	if !ok {
		slog.Debug("unparseable test date", "student", studentKey, "test", test, "value", cell.Text())
		return nil
	}
	return &d
}

// Enrich returns a copy of rows with TestDate set wherever the roster has
// one. Rows without a date keep a nil TestDate.
func Enrich(rows []model.MasterRow, roster *Roster) []model.MasterRow {
	out := make([]model.MasterRow, len(rows))
	for i, row := range rows {
		key := row.StudentKey
		if key == "" {
			key = names.Normalize(row.Student)
		}
		row.TestDate = roster.Date(key, row.Test)
		out[i] = row
	}
	return out
}
