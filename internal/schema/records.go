package schema

import (
	"github.com/dalton-wilson/CBM/internal/model"
	"github.com/dalton-wilson/CBM/internal/table"
)

// Items extracts the item records of one test. A missing Item or
// incorrect-names column is a schema mismatch; a missing category column is
// missing data the operator can fill in.
func (m *Mapping) Items(t *table.Table, admin, test string) ([]model.ItemRecord, error) {
	t.Rename(m.HeaderRenames)
	name := admin + "_" + test + "_test_data"
	for _, c := range []string{model.ColItem, model.ColIncorrect} {
		if !t.Has(c) {
			return nil, &model.SchemaMismatchError{Table: name, Column: c}
		}
	}
	if !t.Has(model.ColType) {
		return nil, &model.DataMissingError{
			Administrator: admin,
			Test:          test,
			Reason:        "no " + model.ColType + " column in item table",
		}
	}

	items := make([]model.ItemRecord, 0, t.Len())
	for i := range t.Rows {
		items = append(items, model.ItemRecord{
			Item:      t.Get(i, model.ColItem).Text(),
			Category:  t.Get(i, model.ColType).Text(),
			Incorrect: t.Get(i, model.ColIncorrect).Text(),
		})
	}
	return items, nil
}

// Scores extracts the per-student overall scores of one test. Every row is
// returned; Viewed tells whether the student took the test.
func (m *Mapping) Scores(t *table.Table, admin, test string) ([]model.StudentScoreRecord, error) {
	t.Rename(m.HeaderRenames)
	name := admin + "_" + test + "_student_data"
	for _, c := range []string{model.ColStudentName, model.ColScore, model.ColViewTest} {
		if !t.Has(c) {
			return nil, &model.SchemaMismatchError{Table: name, Column: c}
		}
	}

	out := make([]model.StudentScoreRecord, 0, t.Len())
	for i := range t.Rows {
		rec := model.StudentScoreRecord{
			Name:   m.CleanName(t.Get(i, model.ColStudentName).Text()),
			Viewed: m.Viewed(t.Get(i, model.ColViewTest).Text()),
		}
		if rec.Name == "" {
			continue
		}
		cell := t.Get(i, model.ColScore)
		if f, ok := cell.Float(); ok {
			rec.Score = &f
		} else if f, ok := ParseScore(cell.Text()); ok {
			rec.Score = &f
		}
		out = append(out, rec)
	}
	return out, nil
}
