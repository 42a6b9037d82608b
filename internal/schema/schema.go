// Package schema declares how upstream headers and cell values are
// normalized before scoring and date enrichment.
package schema

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// PrefixRule replaces a test-family code in a roster-dates header.
type PrefixRule struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Mapping holds the normalization rules. The zero value is not useful;
// start from Default.
type Mapping struct {
	HeaderRenames map[string]string `yaml:"header_renames"`
	TestPrefixes  []PrefixRule      `yaml:"test_prefixes"`
	DateSuffixes  []string          `yaml:"date_suffixes"`
	NameNoise     []string          `yaml:"name_noise"`
	ViewedMarker  string            `yaml:"viewed_marker"`
	DateLayouts   []string          `yaml:"date_layouts"`
}

// Default returns the rules matching the current export format of the
// assessment website.
func Default() *Mapping {
	return &Mapping{
		HeaderRenames: map[string]string{"Type Description": "Type"},
		TestPrefixes: []PrefixRule{
			{From: "RDG_BASIC:", To: "Basic Reading"},
			{From: "MATH_BASIC_BM:", To: "Basic Math"},
			{From: "MATH_BASIC:", To: "Basic Math"},
			{From: "RDG_PROF:", To: "Proficient Reading"},
			{From: "MATH_PROF_BM:", To: "Proficient Math"},
			{From: "MATH_PROF:", To: "Proficient Math"},
		},
		DateSuffixes: []string{" - Date"},
		NameNoise:    []string{"Show Graph"},
		ViewedMarker: "View",
		DateLayouts:  []string{"01/02/2006", "1/2/2006", "2006-01-02", "01/02/06", "1/2/06", "2006-01-02 15:04:05"},
	}
}

// Load reads a YAML mapping file. Keys present in the file replace the
// defaults; absent keys keep them.
func Load(path string) (*Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping: %w", err)
	}
	m := Default()
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse mapping %s: %w", path, err)
	}
	return m, nil
}

// Marshal renders m as YAML.
func (m *Mapping) Marshal() ([]byte, error) {
	return yaml.Marshal(m)
}

// RenameHeader applies the declared header renames.
func (m *Mapping) RenameHeader(h string) string {
	if n, ok := m.HeaderRenames[h]; ok {
		return n
	}
	return h
}

// CanonicalDateHeader turns a roster-dates column header into a canonical
// test name.
func (m *Mapping) CanonicalDateHeader(h string) string {
	for _, r := range m.TestPrefixes {
		h = strings.ReplaceAll(h, r.From, r.To)
	}
	for _, s := range m.DateSuffixes {
		h = strings.ReplaceAll(h, s, "")
	}
	return CanonicalTestName(h)
}

var digitSpace = regexp.MustCompile(`(\d)\s`)

// CanonicalTestName lowercases a test name, joins a digit to the word after
// it with an underscore and collapses whitespace.
func CanonicalTestName(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = digitSpace.ReplaceAllString(s, "${1}_")
	return strings.ToLower(s)
}

// CleanName removes decoration the website adds to student names.
func (m *Mapping) CleanName(s string) string {
	for _, n := range m.NameNoise {
		s = strings.ReplaceAll(s, n, "")
	}
	return strings.Join(strings.Fields(s), " ")
}

// Viewed reports whether a View Test cell marks a taken test.
func (m *Mapping) Viewed(s string) bool {
	return strings.TrimSpace(s) == m.ViewedMarker
}

var percent = regexp.MustCompile(`\((\d+(?:\.\d+)?)%\)`)

// ParseScore reads an overall score cell: "12 (80%)" yields 80; a bare
// number is taken as is.
func ParseScore(s string) (float64, bool) {
	if m := percent.FindStringSubmatch(s); m != nil {
		f, err := strconv.ParseFloat(m[1], 64)
		return f, err == nil
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64)
	return f, err == nil
}

// ParseDate tries every configured layout.
func (m *Mapping) ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range m.DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
