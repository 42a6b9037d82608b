// Package combine unions per-test results into per-administrator and master
// datasets.
package combine

import (
	"log/slog"
	"sort"

	"github.com/dalton-wilson/CBM/internal/model"
	"github.com/dalton-wilson/CBM/internal/names"
)

// Administrator concatenates the scored tests of one administrator in test
// name order.
func Administrator(admin string, tests []model.TestScores) []model.MasterRow {
	sorted := append([]model.TestScores(nil), tests...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Test < sorted[j].Test })

	var rows []model.MasterRow
	for _, t := range sorted {
		for _, r := range t.Rows {
			rows = append(rows, model.MasterRow{
				Student:       r.Student,
				StudentKey:    names.Normalize(r.Student),
				Administrator: admin,
				Test:          t.Test,
				Scores:        append([]model.CategoryScore(nil), r.Scores...),
				Overall:       r.Overall,
			})
		}
	}
	return rows
}

// Master concatenates every administrator's rows in administrator name
// order and attaches grade levels. Students missing from the roster are
// marked as former students.
func Master(perAdmin map[string][]model.MasterRow, grades model.GradeLevelMap) []model.MasterRow {
	lookup := gradeLookup(grades)

	admins := make([]string, 0, len(perAdmin))
	for a := range perAdmin {
		admins = append(admins, a)
	}
	sort.Strings(admins)

	var out []model.MasterRow
	for _, a := range admins {
		for _, r := range perAdmin[a] {
			if r.StudentKey == "" {
				r.StudentKey = names.Normalize(r.Student)
			}
			grade, ok := lookup[r.StudentKey]
			if !ok {
				slog.Debug("student not on grade roster", "student", r.Student)
				grade = model.FormerStudent
			}
			r.GradeLevel = grade
			out = append(out, r)
		}
	}
	return out
}

// gradeLookup reverses the roster. Grades are visited in sorted order so a
// student listed twice resolves the same way on every run.
func gradeLookup(grades model.GradeLevelMap) map[string]string {
	labels := make([]string, 0, len(grades))
	for g := range grades {
		labels = append(labels, g)
	}
	sort.Strings(labels)

	lookup := make(map[string]string)
	for _, g := range labels {
		for _, s := range grades[g] {
			key := names.Normalize(s)
			if _, dup := lookup[key]; dup {
				continue
			}
			lookup[key] = g
		}
	}
	return lookup
}
