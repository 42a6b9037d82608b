// Package group partitions the master dataset per student and per class.
package group

import (
	"sort"
	"strings"
	"unicode"

	"github.com/dalton-wilson/CBM/internal/combine"
	"github.com/dalton-wilson/CBM/internal/model"
	"github.com/dalton-wilson/CBM/internal/table"
)

// Kind tells student groups from class groups.
type Kind string

const (
	KindStudent Kind = "student"
	KindClass   Kind = "class"
)

// Group is one partition of the master dataset. Rows keep master order.
type Group struct {
	Kind       Kind
	Name       string
	Student    string // display name, student groups only
	GradeLevel string
	Subject    model.Subject
	Rows       []model.MasterRow
}

// Tests returns the distinct test names of the group in row order.
func (g Group) Tests() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range g.Rows {
		if !seen[r.Test] {
			seen[r.Test] = true
			out = append(out, r.Test)
		}
	}
	return out
}

// MaxTestGroup returns the highest cohort among the group's tests. Class
// groups of former students always report the former student cohort.
func (g Group) MaxTestGroup() (model.TestGroup, bool) {
	if g.Kind == KindClass && g.GradeLevel == model.FormerStudent {
		return model.FormerStudentGroup, true
	}
	return model.MaxTestGroup(g.Tests())
}

// Table materializes the group: all-null columns dropped, a Test Category
// column added and Overall Score moved last.
func (g Group) Table() *table.Table {
	t := combine.ToTable(g.Rows)
	t.Columns = append(t.Columns, model.ColTestCategory)
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], table.String(string(g.Subject)))
	}
	return t.DropNullColumns().MoveLast(model.ColOverallScore)
}

type studentKey struct {
	student string
	subject model.Subject
	grade   string
}

// ByStudent partitions rows by (student, subject, grade level). Groups are
// sorted by name.
func ByStudent(rows []model.MasterRow) []Group {
	idx := make(map[studentKey]int)
	var groups []Group
	for _, r := range rows {
		k := studentKey{student: r.StudentKey, subject: r.Subject(), grade: r.GradeLevel}
		i, ok := idx[k]
		if !ok {
			i = len(groups)
			idx[k] = i
			groups = append(groups, Group{
				Kind:       KindStudent,
				Name:       Sanitize(r.StudentKey) + "_" + string(k.subject),
				Student:    r.Student,
				GradeLevel: r.GradeLevel,
				Subject:    k.subject,
			})
		}
		groups[i].Rows = append(groups[i].Rows, r)
	}
	sortGroups(groups)
	return groups
}

type classKey struct {
	grade   string
	subject model.Subject
}

// ByClass partitions rows by (grade level, subject). Groups are sorted by
// name.
func ByClass(rows []model.MasterRow) []Group {
	idx := make(map[classKey]int)
	var groups []Group
	for _, r := range rows {
		k := classKey{grade: r.GradeLevel, subject: r.Subject()}
		i, ok := idx[k]
		if !ok {
			i = len(groups)
			idx[k] = i
			groups = append(groups, Group{
				Kind:       KindClass,
				Name:       Sanitize(r.GradeLevel) + "_" + string(k.subject),
				GradeLevel: r.GradeLevel,
				Subject:    k.subject,
			})
		}
		groups[i].Rows = append(groups[i].Rows, r)
	}
	sortGroups(groups)
	return groups
}

func sortGroups(groups []Group) {
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Name != groups[j].Name {
			return groups[i].Name < groups[j].Name
		}
		return groups[i].GradeLevel < groups[j].GradeLevel
	})
}

// Sanitize makes s usable as a file or key name: whitespace becomes "_" and
// path separators and commas are dropped.
func Sanitize(s string) string {
	var b strings.Builder
	for _, f := range strings.Fields(s) {
		if b.Len() > 0 {
			b.WriteByte('_')
		}
		for _, r := range f {
			if r == '/' || r == '\\' || r == ',' || unicode.IsControl(r) {
				continue
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
