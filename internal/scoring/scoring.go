// Package scoring turns a test's item analysis and score tables into
// per-student, per-category accuracy.
package scoring

import (
	"log/slog"
	"math"
	"strings"

	"github.com/dalton-wilson/CBM/internal/model"
	"github.com/dalton-wilson/CBM/internal/names"
)

// Input is everything known about one test of one administrator.
type Input struct {
	Administrator string
	Test          string
	Items         []model.ItemRecord
	Scores        []model.StudentScoreRecord
}

// Ambiguity records a counted match that another student could also have
// produced.
type Ambiguity struct {
	Administrator string   `json:"administrator"`
	Test          string   `json:"test"`
	Student       string   `json:"student"`
	Item          string   `json:"item"`
	Conflicts     []string `json:"conflicts"`
}

// Result is the scored test plus the matches that need a human look.
type Result struct {
	Scores      model.TestScores
	Ambiguities []Ambiguity
}

// Score computes accuracy = round((N-M)/N*100) for every viewed student and
// every category, N being the items in the category and M the items whose
// incorrect list names the student.
func Score(in Input) (*Result, error) {
	if len(in.Items) == 0 {
		return nil, &model.DataMissingError{
			Administrator: in.Administrator,
			Test:          in.Test,
			Reason:        "item table is empty",
		}
	}
	if missing := CheckMissingCategories(in.Items); len(missing) > 0 {
		return nil, &model.DataMissingError{
			Administrator: in.Administrator,
			Test:          in.Test,
			Item:          missing[0].Item,
			Reason:        "item has no category",
		}
	}

	categories, byCategory := partition(in.Items)

	var students []model.StudentScoreRecord
	for _, s := range in.Scores {
		if s.Viewed {
			students = append(students, s)
		}
	}
	rosterNames := make([]string, len(students))
	for i, s := range students {
		rosterNames[i] = s.Name
	}
	matcher := names.NewMatcher(rosterNames)

	res := &Result{Scores: model.TestScores{
		Administrator: in.Administrator,
		Test:          in.Test,
		Categories:    categories,
	}}
	for _, s := range students {
		row := model.StudentTestRow{Student: s.Name, Overall: s.Score}
		for _, cat := range categories {
			// partition only yields categories with items; blank labels
			// were rejected above.
			items := byCategory[cat]
			n := len(items)
			missed := 0
			for _, it := range items {
				m := matcher.Match(s.Name, it.Incorrect)
				if !m.Matched {
					continue
				}
				missed++
				if m.Ambiguous {
					slog.Warn("ambiguous student match",
						"admin", in.Administrator, "test", in.Test, "student", s.Name,
						"item", it.Item, "conflicts", m.Conflicts)
					res.Ambiguities = append(res.Ambiguities, Ambiguity{
						Administrator: in.Administrator,
						Test:          in.Test,
						Student:       s.Name,
						Item:          it.Item,
						Conflicts:     m.Conflicts,
					})
				}
			}
			row.Scores = append(row.Scores, model.CategoryScore{
				Category:  cat,
				Accuracy:  Accuracy(n, missed),
				ItemCount: n,
			})
		}
		res.Scores.Rows = append(res.Scores.Rows, row)
	}
	return res, nil
}

// Accuracy returns round((n-missed)/n*100). n must be positive.
func Accuracy(n, missed int) int {
	return int(math.Round(float64(n-missed) / float64(n) * 100))
}

// CheckMissingCategories returns the items whose category label is blank.
func CheckMissingCategories(items []model.ItemRecord) []model.ItemRecord {
	var out []model.ItemRecord
	for _, it := range items {
		if strings.TrimSpace(it.Category) == "" {
			out = append(out, it)
		}
	}
	return out
}

// DropMissingCategories returns items without the blank-category ones.
func DropMissingCategories(items []model.ItemRecord) []model.ItemRecord {
	out := make([]model.ItemRecord, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.Category) != "" {
			out = append(out, it)
		}
	}
	return out
}

func partition(items []model.ItemRecord) ([]string, map[string][]model.ItemRecord) {
	var order []string
	by := make(map[string][]model.ItemRecord)
	for _, it := range items {
		cat := strings.TrimSpace(it.Category)
		if _, ok := by[cat]; !ok {
			order = append(order, cat)
		}
		by[cat] = append(by[cat], it)
	}
	return order, by
}
