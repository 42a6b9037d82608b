package source

import (
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/dalton-wilson/CBM/internal/table"
)

// Report tables on saved pages of the assessment website.
var (
	ItemTableSelector    = cascadia.MustCompile("table#reportItemAnalysisTable")
	StudentTableSelector = cascadia.MustCompile("table#studentReportingTable")

	anyTable = cascadia.MustCompile("table")
	rowSel   = cascadia.MustCompile("tr")
	cellSel  = cascadia.MustCompile("th, td")
)

// ReadHTML extracts the first table matching sel from a saved page. When no
// table matches, the first table of the page is used. The first row holding
// cells is the header.
func ReadHTML(r io.Reader, sel cascadia.Selector) (*table.Table, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	node := sel.MatchFirst(doc)
	if node == nil {
		node = anyTable.MatchFirst(doc)
	}
	if node == nil {
		return nil, fmt.Errorf("no table found")
	}

	var t *table.Table
	for _, tr := range rowSel.MatchAll(node) {
		var vals []string
		for _, c := range cellSel.MatchAll(tr) {
			if c.Parent != tr {
				continue
			}
			vals = append(vals, textOf(c))
		}
		if len(vals) == 0 {
			continue
		}
		if t == nil {
			t = table.New(vals...)
			continue
		}
		cells := make([]table.Cell, len(vals))
		for i, v := range vals {
			cells[i] = table.String(v)
		}
		t.Append(cells...)
	}
	if t == nil {
		return table.New(), nil
	}
	return t, nil
}

// textOf returns the whitespace-collapsed text of n. Line breaks become
// ", " so lists of names stay separated.
func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
		case n.Type == html.ElementNode && n.Data == "br":
			b.WriteString(", ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && (n.Data == "div" || n.Data == "p" || n.Data == "li") {
			b.WriteByte(' ')
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
