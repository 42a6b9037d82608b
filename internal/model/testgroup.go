package model

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var digitRun = regexp.MustCompile(`\d+`)

// TestGroupKind tags the variants of a TestGroup.
type TestGroupKind int

// Kinds are declared in sort order.
const (
	GroupFormerStudent TestGroupKind = iota
	GroupKindergarten
	GroupGrade
)

// TestGroup is the cohort a test belongs to: a numbered grade, Kindergarten,
// or the former student sentinel. Former students sort first, then
// Kindergarten, then grades by number.
type TestGroup struct {
	Kind  TestGroupKind
	Grade int
}

// Grade returns the TestGroup for a numbered grade.
func Grade(n int) TestGroup { return TestGroup{Kind: GroupGrade, Grade: n} }

var (
	Kindergarten       = TestGroup{Kind: GroupKindergarten}
	FormerStudentGroup = TestGroup{Kind: GroupFormerStudent}
)

// Compare returns -1, 0 or +1.
func (g TestGroup) Compare(o TestGroup) int {
	if g.Kind != o.Kind {
		if g.Kind < o.Kind {
			return -1
		}
		return 1
	}
	if g.Kind != GroupGrade || g.Grade == o.Grade {
		return 0
	}
	if g.Grade < o.Grade {
		return -1
	}
	return 1
}

func (g TestGroup) String() string {
	switch g.Kind {
	case GroupFormerStudent:
		return "former_student"
	case GroupKindergarten:
		return "K"
	default:
		return strconv.Itoa(g.Grade)
	}
}

// Label is the human readable form used in chart titles.
func (g TestGroup) Label() string {
	switch g.Kind {
	case GroupFormerStudent:
		return "Former Student"
	case GroupKindergarten:
		return "Kindergarten"
	default:
		return "Grade " + strconv.Itoa(g.Grade)
	}
}

// ParseTestGroup derives the cohort from a test name. The former student
// marker wins; otherwise the first token that is "k"/"kindergarten" or
// contains digits decides.
func ParseTestGroup(test string) (TestGroup, bool) {
	lower := strings.ToLower(test)
	if strings.Contains(lower, "former_student") || strings.Contains(lower, FormerStudent) {
		return FormerStudentGroup, true
	}
	for _, tok := range tokens(lower) {
		if tok == "k" || tok == "kindergarten" {
			return Kindergarten, true
		}
		if m := digitRun.FindString(tok); m != "" {
			n, _ := strconv.Atoi(m)
			return Grade(n), true
		}
	}
	return TestGroup{}, false
}

// MaxTestGroup returns the highest group among the given tests.
func MaxTestGroup(tests []string) (TestGroup, bool) {
	var (
		best  TestGroup
		found bool
	)
	for _, t := range tests {
		g, ok := ParseTestGroup(t)
		if !ok {
			continue
		}
		if !found || g.Compare(best) > 0 {
			best, found = g, true
		}
	}
	return best, found
}

// TestYear returns the first run of digits in a test name.
func TestYear(test string) (int, bool) {
	m := digitRun.FindString(test)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	return n, err == nil
}

func tokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
