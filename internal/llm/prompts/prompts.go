package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/dalton-wilson/CBM/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

var tagRegex = regexp.MustCompile(`(?i)</?\s*(recommendations|system-instructions)\b[^>]*>`)

// maxFieldRunes caps any single upstream value placed in a prompt.
const maxFieldRunes = 200

// Audience selects who the summary is written for.
type Audience string

const (
	// AudienceTeacher is the default: planning notes for the class teacher.
	AudienceTeacher Audience = "teacher"
	// AudienceFamily is a plain-language note for a student's family.
	AudienceFamily Audience = "family"
)

var validAudiences = map[Audience]bool{
	AudienceTeacher: true,
	AudienceFamily:  true,
}

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[Audience]*template.Template
)

// IsValidAudience checks if an audience name is valid.
func IsValidAudience(a string) bool {
	return validAudiences[Audience(a)]
}

// SummaryData holds template data for summary prompts.
type SummaryData struct {
	Title           string
	GradeLevel      string
	Subject         string
	Student         string
	Header          string
	Recommendations []model.Recommendation
}

// Load parses the embedded templates once.
func Load() error {
	loadOnce.Do(func() {
		templates = make(map[Audience]*template.Template)
		for _, a := range []Audience{AudienceTeacher, AudienceFamily} {
			name := "templates/summary_" + string(a) + ".txt"
			content, err := templateFS.ReadFile(name)
			if err != nil {
				loadErr = fmt.Errorf("read prompt file %s: %w", name, err)
				return
			}
			tmpl, err := template.New(string(a)).Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", name, err)
				return
			}
			templates[a] = tmpl
		}
	})
	return loadErr
}

// BuildSummaryPrompt renders the prompt for an audience. Every upstream
// value is sanitized first.
func BuildSummaryPrompt(a Audience, data SummaryData) (string, error) {
	if err := Load(); err != nil {
		return "", err
	}
	tmpl, ok := templates[a]
	if !ok {
		return "", errors.New("invalid prompt audience: " + string(a))
	}

	clean := SummaryData{
		Title:      sanitize(data.Title),
		GradeLevel: sanitize(data.GradeLevel),
		Subject:    sanitize(data.Subject),
		Student:    sanitize(data.Student),
		Header:     sanitize(data.Header),
	}
	for _, r := range data.Recommendations {
		r.Category = sanitize(r.Category)
		r.Key = sanitize(r.Key)
		r.DateRange = sanitize(r.DateRange)
		clean.Recommendations = append(clean.Recommendations, r)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, clean); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// sanitize strips prompt delimiter tags and newlines from a value and
// truncates it.
func sanitize(s string) string {
	s = tagRegex.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) > maxFieldRunes {
		s = string([]rune(s)[:maxFieldRunes]) + "…"
	}
	return s
}
