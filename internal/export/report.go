// Package export assembles stored group tables into report files laid out
// by grade level, subject and student.
package export

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dalton-wilson/CBM/internal/group"
	"github.com/dalton-wilson/CBM/internal/i18n"
	"github.com/dalton-wilson/CBM/internal/model"
	"github.com/dalton-wilson/CBM/internal/pipeline"
	"github.com/dalton-wilson/CBM/internal/rank"
	"github.com/dalton-wilson/CBM/internal/table"
)

// Reader is the read side of a table store.
type Reader interface {
	GetTable(ctx context.Context, key string) (*table.Table, error)
	ListTables(ctx context.Context, prefix string) ([]string, error)
}

// Report is one group's scores, recommendations and progress series.
type Report struct {
	Kind            group.Kind
	Name            string
	GradeLevel      string
	Subject         model.Subject
	Student         string
	MaxGroup        model.TestGroup
	Data            *table.Table
	Recommendations *table.Table
	Progress        *table.Table
	Header          string
}

// Load reads the stored tables of one group.
func Load(ctx context.Context, r Reader, kind group.Kind, name string) (*Report, error) {
	data, err := r.GetTable(ctx, pipeline.GroupKey(kind, name))
	if err != nil {
		return nil, err
	}
	recs, err := r.GetTable(ctx, pipeline.RecommendKey(kind, name))
	if err != nil {
		return nil, err
	}
	prog, err := r.GetTable(ctx, pipeline.ProgressKey(kind, name))
	if err != nil {
		return nil, err
	}

	rep := &Report{
		Kind:            kind,
		Name:            name,
		Data:            data,
		Recommendations: recs,
		Progress:        prog,
		Header:          i18n.T(ctx, rank.HeaderID(rank.ModeFor(kind))),
	}
	if data.Len() > 0 {
		rep.GradeLevel = data.Get(0, model.ColGradeLevel).Text()
		rep.Subject = model.Subject(data.Get(0, model.ColTestCategory).Text())
		if kind == group.KindStudent {
			rep.Student = data.Get(0, model.ColStudentName).Text()
		}
	}

	var tests []string
	for i := range data.Rows {
		tests = append(tests, data.Get(i, model.ColTest).Text())
	}
	g := group.Group{Kind: kind, GradeLevel: rep.GradeLevel, Rows: testRows(tests)}
	if mg, ok := g.MaxTestGroup(); ok {
		rep.MaxGroup = mg
	}
	return rep, nil
}

// LoadAll reads every stored group of the given kinds, class reports
// first, each kind in key order.
func LoadAll(ctx context.Context, r Reader, kinds ...group.Kind) ([]*Report, error) {
	if len(kinds) == 0 {
		kinds = []group.Kind{group.KindClass, group.KindStudent}
	}
	var out []*Report
	for _, k := range kinds {
		prefix := pipeline.GroupPrefix(k)
		keys, err := r.ListTables(ctx, prefix)
		if err != nil {
			return nil, fmt.Errorf("list %s reports: %w", k, err)
		}
		for _, key := range keys {
			rep, err := Load(ctx, r, k, strings.TrimPrefix(key, prefix))
			if err != nil {
				return nil, fmt.Errorf("load report %s: %w", key, err)
			}
			out = append(out, rep)
		}
	}
	return out, nil
}

func testRows(tests []string) []model.MasterRow {
	rows := make([]model.MasterRow, len(tests))
	for i, t := range tests {
		rows[i].Test = t
	}
	return rows
}

// Title is the base file name of the report without extension.
func (r *Report) Title() string {
	s := fmt.Sprintf("Grade %s %s Scores and Recommendations", r.MaxGroup, r.Subject)
	if r.Kind == group.KindStudent {
		s = pathSafe(r.Student) + " " + s
	}
	return s
}

// Path is the report's location below the output root:
// <grade>/<grade> <subject>/[<student> <subject>/]<title><ext>.
func (r *Report) Path(ext string) string {
	grade := pathSafe(r.GradeLevel)
	parts := []string{grade, fmt.Sprintf("%s %s", grade, r.Subject)}
	if r.Kind == group.KindStudent {
		parts = append(parts, fmt.Sprintf("%s %s", pathSafe(r.Student), r.Subject))
	}
	parts = append(parts, r.Title()+ext)
	return filepath.Join(parts...)
}

// Summary is the JSON form of the report.
func (r *Report) Summary() model.ReportSummary {
	kind := model.ReportClass
	if r.Kind == group.KindStudent {
		kind = model.ReportStudent
	}
	s := model.ReportSummary{
		Kind:       kind,
		Name:       r.Name,
		GradeLevel: r.GradeLevel,
		Subject:    r.Subject,
		Student:    r.Student,
		MaxGroup:   r.MaxGroup.String(),
		Rows:       r.Data.Len(),
	}
	for i := range r.Recommendations.Rows {
		s.Recommendations = append(s.Recommendations, recommendation(r.Recommendations, i))
	}
	return s
}

func recommendation(t *table.Table, i int) model.Recommendation {
	avg, _ := t.Get(i, "Average Score").Float()
	n, _ := t.Get(i, "Item Count").Float()
	rk, _ := t.Get(i, "Rank").Float()
	key := t.Get(i, model.ColTest)
	if !t.Has(model.ColTest) {
		key = t.Get(i, "Test Year")
	}
	return model.Recommendation{
		Category:     t.Get(i, "Category").Text(),
		AverageScore: avg,
		ItemCount:    n,
		Rank:         int(rk),
		DateRange:    t.Get(i, "Test Date Range").Text(),
		Key:          key.Text(),
	}
}

// pathSafe drops path separators from a name used as a directory.
func pathSafe(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
