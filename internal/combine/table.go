package combine

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dalton-wilson/CBM/internal/model"
	"github.com/dalton-wilson/CBM/internal/names"
	"github.com/dalton-wilson/CBM/internal/table"
)

// DateLayout is how test dates are stored in derived tables.
const DateLayout = "2006-01-02"

// Categories returns the categories of rows in first-appearance order.
func Categories(rows []model.MasterRow) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range rows {
		for _, s := range r.Scores {
			if !seen[s.Category] {
				seen[s.Category] = true
				out = append(out, s.Category)
			}
		}
	}
	return out
}

// ToTable widens rows into one column per category and one item count
// column per category. Cells a row has no value for are null.
func ToTable(rows []model.MasterRow) *table.Table {
	cats := Categories(rows)
	cols := []string{model.ColStudentName, model.ColAdministrator, model.ColTest}
	for _, c := range cats {
		cols = append(cols, c, model.ItemCountColumn(c))
	}
	cols = append(cols, model.ColOverallScore, model.ColTestDate, model.ColGradeLevel)

	t := table.New(cols...)
	for _, r := range rows {
		cells := []table.Cell{table.String(r.Student), table.String(r.Administrator), table.String(r.Test)}
		for _, c := range cats {
			s, ok := r.Score(c)
			if !ok {
				cells = append(cells, table.Null(), table.Null())
				continue
			}
			cells = append(cells, table.Int(s.Accuracy), table.Int(s.ItemCount))
		}
		date := table.Null()
		if r.TestDate != nil {
			date = table.String(r.TestDate.Format(DateLayout))
		}
		cells = append(cells, table.NumberPtr(r.Overall), date, table.String(r.GradeLevel))
		t.Append(cells...)
	}
	return t
}

// FromTable reverses ToTable. A column counts as a category when its item
// count column is present too.
func FromTable(t *table.Table) ([]model.MasterRow, error) {
	for _, c := range []string{model.ColStudentName, model.ColTest} {
		if !t.Has(c) {
			return nil, &model.SchemaMismatchError{Table: "master", Column: c}
		}
	}
	var cats []string
	for _, c := range t.Columns {
		if strings.HasSuffix(c, model.ItemCountSuffix) {
			continue
		}
		if t.Has(model.ItemCountColumn(c)) {
			cats = append(cats, c)
		}
	}

	rows := make([]model.MasterRow, 0, t.Len())
	for i := range t.Rows {
		r := model.MasterRow{
			Student:       t.Get(i, model.ColStudentName).Text(),
			Administrator: t.Get(i, model.ColAdministrator).Text(),
			Test:          t.Get(i, model.ColTest).Text(),
			GradeLevel:    t.Get(i, model.ColGradeLevel).Text(),
		}
		r.StudentKey = names.Normalize(r.Student)
		for _, c := range cats {
			n, ok := t.Get(i, model.ItemCountColumn(c)).Float()
			if !ok {
				continue
			}
			acc, _ := t.Get(i, c).Float()
			r.Scores = append(r.Scores, model.CategoryScore{
				Category:  c,
				Accuracy:  int(math.Round(acc)),
				ItemCount: int(n),
			})
		}
		if f, ok := t.Get(i, model.ColOverallScore).Float(); ok {
			r.Overall = &f
		}
		if d := t.Get(i, model.ColTestDate); !d.IsNull() {
			ts, err := time.Parse(DateLayout, d.Text())
			if err != nil {
				return nil, fmt.Errorf("row %d: parse test date: %w", i, err)
			}
			r.TestDate = &ts
		}
		rows = append(rows, r)
	}
	return rows, nil
}
