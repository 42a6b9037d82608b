package model

import (
	"strings"
	"time"
)

// Column headers shared by the raw inputs and the derived tables.
const (
	ColItem          = "Item"
	ColType          = "Type"
	ColIncorrect     = "Student Names, Incorrect"
	ColStudentName   = "Student Name"
	ColScore         = "Score"
	ColViewTest      = "View Test"
	ColAdministrator = "Administrator"
	ColTest          = "Test"
	ColOverallScore  = "Overall Score"
	ColTestDate      = "Test Date"
	ColGradeLevel    = "Grade Level"
	ColTestCategory  = "Test Category"
	ColLastName      = "Last Name"
	ColFirstName     = "First Name"

	// ItemCountSuffix is appended to a category name to form its item count column.
	ItemCountSuffix = " Item Count"
)

// FormerStudent is the grade level given to students missing from the current roster.
const FormerStudent = "former student"

// ItemCountColumn returns the item count column name for a category.
func ItemCountColumn(category string) string {
	return category + ItemCountSuffix
}

// ItemRecord is one question of a test as extracted from the item analysis table.
type ItemRecord struct {
	Item      string
	Category  string
	Incorrect string // free text listing students who answered incorrectly
}

// StudentScoreRecord is one student's overall result on one test.
type StudentScoreRecord struct {
	Name   string
	Score  *float64 // nil when the score cell is unreadable
	Viewed bool
}

// CategoryScore is a student's accuracy within one category of one test.
type CategoryScore struct {
	Category  string
	Accuracy  int
	ItemCount int
}

// CategoryScoreRow is one (student, test, category) triple.
type CategoryScoreRow struct {
	Student       string
	Administrator string
	Test          string
	CategoryScore
}

// StudentTestRow holds every category score of one student on one test.
type StudentTestRow struct {
	Student string
	Scores  []CategoryScore
	Overall *float64
}

// TestScores is the scored form of a single test for a single administrator.
type TestScores struct {
	Administrator string
	Test          string
	Categories    []string
	Rows          []StudentTestRow
}

// Flatten returns one CategoryScoreRow per (student, category).
func (t TestScores) Flatten() []CategoryScoreRow {
	var out []CategoryScoreRow
	for _, r := range t.Rows {
		for _, s := range r.Scores {
			out = append(out, CategoryScoreRow{
				Student:       r.Student,
				Administrator: t.Administrator,
				Test:          t.Test,
				CategoryScore: s,
			})
		}
	}
	return out
}

// MasterRow is a student's result on one test, widened with date and grade data.
type MasterRow struct {
	Student       string
	StudentKey    string // normalized name used for joins
	Administrator string
	Test          string
	Scores        []CategoryScore
	Overall       *float64
	TestDate      *time.Time
	GradeLevel    string
}

// Score returns the category score for the named category.
func (r MasterRow) Score(category string) (CategoryScore, bool) {
	for _, s := range r.Scores {
		if s.Category == category {
			return s, true
		}
	}
	return CategoryScore{}, false
}

// Subject returns the subject derived from the test name.
func (r MasterRow) Subject() Subject {
	return SubjectOf(r.Test)
}

// TestGroup returns the cohort key derived from the test name.
func (r MasterRow) TestGroup() (TestGroup, bool) {
	return ParseTestGroup(r.Test)
}

// Subject is the coarse subject of a test.
type Subject string

const (
	SubjectMath    Subject = "math"
	SubjectReading Subject = "reading"
	SubjectOther   Subject = "other"
)

// SubjectOf classifies a test name by substring.
func SubjectOf(test string) Subject {
	t := strings.ToLower(test)
	switch {
	case strings.Contains(t, "math"):
		return SubjectMath
	case strings.Contains(t, "reading"):
		return SubjectReading
	default:
		return SubjectOther
	}
}

// GradeLevelMap maps a grade label to the names of the students in it.
type GradeLevelMap map[string][]string

// Recommendation is one ranked focus area.
type Recommendation struct {
	Category     string
	AverageScore float64
	ItemCount    float64
	Rank         int
	DateRange    string
	Key          string // test name (class view) or year (student view)
}
