// Package names normalizes student names and matches them against the
// free-text lists of students who missed an item.
package names

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Normalize returns the comparison form of a name: trimmed, inner
// whitespace collapsed, case folded and NFC normalized. "Last, First" is
// reordered to "first last".
func Normalize(name string) string {
	if last, first, ok := strings.Cut(name, ","); ok && strings.TrimSpace(first) != "" {
		name = first + " " + last
	}
	return Fold(name)
}

// Fold collapses whitespace, case folds and NFC normalizes s without
// reordering anything.
func Fold(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return norm.NFC.String(cases.Fold().String(s))
}

// MentionKey returns how the source website lists a student in the
// incorrect-answer column: the first name and the last initial, e.g.
// "john s". For "Last, First" names the initial is the first letter of the
// whole surname, so "De La Cruz, Maria" is "maria d". Single-token names
// are returned whole.
func MentionKey(name string) string {
	if last, first, ok := strings.Cut(name, ","); ok {
		given := strings.Fields(Fold(first))
		surname := []rune(Fold(last))
		if len(given) > 0 && len(surname) > 0 {
			return given[0] + " " + string(surname[0])
		}
	}
	fields := strings.Fields(Normalize(name))
	switch len(fields) {
	case 0:
		return ""
	case 1:
		return fields[0]
	}
	last := []rune(fields[len(fields)-1])
	return fields[0] + " " + string(last[0])
}

// StripMarkup returns the text content of an HTML fragment with entities
// decoded. Plain text passes through unchanged apart from entity decoding.
func StripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return strings.TrimSpace(b.String())
			}
			return s
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.SelfClosingTagToken:
			if name, _ := z.TagName(); string(name) == "br" {
				b.WriteString(", ")
			} else {
				b.WriteByte(' ')
			}
		}
	}
}
