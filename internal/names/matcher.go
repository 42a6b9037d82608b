package names

import (
	"sort"
	"strings"
)

// Match is the outcome of looking for one student in a free-text list.
type Match struct {
	Matched bool
	// Ambiguous is set when the student matched and another student of the
	// same roster has a colliding mention key. The match still counts.
	Ambiguous bool
	Key       string
	Conflicts []string
}

// Matcher finds students of one roster in incorrect-answer lists.
type Matcher struct {
	keys      map[string]string   // normalized name -> mention key
	conflicts map[string][]string // normalized name -> colliding students
}

// NewMatcher indexes the students of one test. Two students collide when
// one mention key equals or contains the other, since substring matching
// cannot tell them apart.
func NewMatcher(students []string) *Matcher {
	m := &Matcher{
		keys:      make(map[string]string, len(students)),
		conflicts: make(map[string][]string),
	}
	display := make(map[string]string, len(students))
	for _, s := range students {
		n := Normalize(s)
		if _, ok := m.keys[n]; ok {
			continue
		}
		m.keys[n] = MentionKey(s)
		display[n] = s
	}

	for a, ka := range m.keys {
		for b, kb := range m.keys {
			if a == b || ka == "" || kb == "" {
				continue
			}
			if strings.Contains(kb, ka) {
				m.conflicts[a] = append(m.conflicts[a], display[b])
			}
		}
	}
	for n := range m.conflicts {
		sort.Strings(m.conflicts[n])
	}
	return m
}

// Match reports whether the student's mention key occurs, case-insensitively,
// in freeText. freeText may contain HTML.
func (m *Matcher) Match(student, freeText string) Match {
	n := Normalize(student)
	key, ok := m.keys[n]
	if !ok {
		key = MentionKey(student)
	}
	res := Match{Key: key}
	if key == "" || freeText == "" {
		return res
	}
	res.Matched = strings.Contains(Fold(StripMarkup(freeText)), key)
	if res.Matched && len(m.conflicts[n]) > 0 {
		res.Ambiguous = true
		res.Conflicts = m.conflicts[n]
	}
	return res
}

// Conflicts returns the students colliding with the named one.
func (m *Matcher) Conflicts(student string) []string {
	return m.conflicts[Normalize(student)]
}
