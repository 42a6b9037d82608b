// Package views renders the report viewer pages.
package views

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"

	appI18n "github.com/dalton-wilson/CBM/internal/i18n"
	"github.com/dalton-wilson/CBM/internal/table"
)

// HTMXSrc is the htmx build the layout loads for fragment requests.
const HTMXSrc = "https://unpkg.com/htmx.org@2.0.4"

type ctxKey int

const (
	basePathKey ctxKey = iota
	csrfKey
)

// WithBasePath records the URL prefix links are built under.
func WithBasePath(ctx context.Context, p string) context.Context {
	return context.WithValue(ctx, basePathKey, p)
}

// WithCSRFToken records the token forms must echo back.
func WithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfKey, token)
}

// CSRFToken returns the token stored by WithCSRFToken.
func CSRFToken(ctx context.Context) string {
	s, _ := ctx.Value(csrfKey).(string)
	return s
}

// Path prefixes p with the base path.
func Path(ctx context.Context, p string) string {
	base, _ := ctx.Value(basePathKey).(string)
	return base + p
}

// Entry is one report in the index.
type Entry struct {
	Kind       string
	Name       string
	Title      string
	GradeLevel string
}

// LastRun describes the run the reports come from.
type LastRun struct {
	ID       string
	Finished string
}

// Report is what the report page shows.
type Report struct {
	Kind            string
	Name            string
	Title           string
	GradeLevel      string
	Subject         string
	Student         string
	MaxGroup        string
	Header          string
	Data            *table.Table
	Recommendations *table.Table
	Progress        *table.Table
	Summary         bool
}

// out collects the first write error so components read top to bottom.
type out struct {
	w   io.Writer
	err error
}

func (o *out) write(parts ...string) {
	for _, s := range parts {
		if o.err != nil {
			return
		}
		_, o.err = io.WriteString(o.w, s)
	}
}

func href(ctx context.Context, p string) string {
	return templ.EscapeString(string(templ.URL(Path(ctx, p))))
}

func component(f func(ctx context.Context, o *out)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		o := &out{w: w}
		f(ctx, o)
		return o.err
	})
}

// layout wraps the children of ctx in the page shell.
func layout(title string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		o := &out{w: w}
		o.write(`<!DOCTYPE html><html><head><meta charset="utf-8"><title>`, templ.EscapeString(title), `</title>`)
		o.write(`<script src="`, templ.EscapeString(HTMXSrc), `"></script></head><body>`)
		o.write(`<header><a href="`, href(ctx, "/"), `">`, templ.EscapeString(appI18n.T(ctx, "AppTitle")), `</a></header><main>`)
		if o.err != nil {
			return o.err
		}
		if err := templ.GetChildren(ctx).Render(ctx, w); err != nil {
			return err
		}
		o.write(`</main></body></html>`)
		return o.err
	})
}

func page(ctx context.Context, w io.Writer, title string, body templ.Component) error {
	return layout(title).Render(templ.WithChildren(ctx, body), w)
}

// IndexPage lists class and student reports.
func IndexPage(classes, students []Entry, last *LastRun) templ.Component {
	body := component(func(ctx context.Context, o *out) {
		if last != nil {
			o.write(`<p class="last-run">`,
				templ.EscapeString(appI18n.Td(ctx, "LastRun", map[string]any{"ID": last.ID, "Time": last.Finished})),
				`</p>`)
		}
		if len(classes)+len(students) == 0 {
			o.write(`<p>`, templ.EscapeString(appI18n.T(ctx, "NoReports")), `</p>`)
			return
		}
		o.write(`<p>`, templ.EscapeString(appI18n.Tp(ctx, "ReportsAvailable", len(classes)+len(students))), `</p>`)
		entryList(ctx, o, appI18n.T(ctx, "ClassReports"), classes)
		entryList(ctx, o, appI18n.T(ctx, "StudentReports"), students)
	})
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return page(ctx, w, appI18n.T(ctx, "AppTitle"), body)
	})
}

func entryList(ctx context.Context, o *out, heading string, entries []Entry) {
	if len(entries) == 0 {
		return
	}
	o.write(`<h2>`, templ.EscapeString(heading), `</h2><ul>`)
	for _, e := range entries {
		o.write(`<li><a href="`, href(ctx, "/reports/"+e.Kind+"/"+e.Name), `">`, templ.EscapeString(e.Title), `</a> `)
		o.write(`<span class="grade">`, templ.EscapeString(e.GradeLevel), `</span></li>`)
	}
	o.write(`</ul>`)
}

// ReportPage shows one report's tables. With Summary set, the summary
// fragment is fetched by htmx once the page loads.
func ReportPage(r Report) templ.Component {
	body := component(func(ctx context.Context, o *out) {
		base := "/reports/" + r.Kind + "/" + r.Name
		o.write(`<h1>`, templ.EscapeString(r.Title), `</h1><dl>`)
		field(ctx, o, "GradeLevel", r.GradeLevel)
		field(ctx, o, "Subject", r.Subject)
		if r.Student != "" {
			field(ctx, o, "Student", r.Student)
		}
		field(ctx, o, "MaxGroup", r.MaxGroup)
		o.write(`</dl><p>`)
		o.write(`<a href="`, href(ctx, base+"/download/csv"), `">`, templ.EscapeString(appI18n.T(ctx, "DownloadCSV")), `</a> `)
		o.write(`<a href="`, href(ctx, base+"/download/xlsx"), `">`, templ.EscapeString(appI18n.T(ctx, "DownloadXLSX")), `</a>`)
		o.write(`</p>`)

		section(o, appI18n.T(ctx, "Scores"), r.Data)
		o.write(`<h2>`, templ.EscapeString(appI18n.T(ctx, "Recommendations")), `</h2>`)
		o.write(`<p class="section-header">`, templ.EscapeString(r.Header), `</p>`)
		tableHTML(o, r.Recommendations)
		if r.Summary {
			o.write(`<h2>`, templ.EscapeString(appI18n.T(ctx, "Summary")), `</h2>`)
			o.write(`<div id="summary" hx-get="`, href(ctx, base+"/summary"), `" hx-trigger="load" hx-swap="innerHTML">`)
			o.write(`<a href="`, href(ctx, base+"/summary"), `">`, templ.EscapeString(appI18n.T(ctx, "Summary")), `</a></div>`)
		}
		section(o, appI18n.T(ctx, "Progress"), r.Progress)
		o.write(`<p><a href="`, href(ctx, "/"), `">`, templ.EscapeString(appI18n.T(ctx, "BackToReports")), `</a></p>`)
	})
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return page(ctx, w, r.Title, body)
	})
}

func field(ctx context.Context, o *out, labelID, value string) {
	o.write(`<dt>`, templ.EscapeString(appI18n.T(ctx, labelID)), `</dt><dd>`, templ.EscapeString(value), `</dd>`)
}

func section(o *out, heading string, t *table.Table) {
	o.write(`<h2>`, templ.EscapeString(heading), `</h2>`)
	tableHTML(o, t)
}

func tableHTML(o *out, t *table.Table) {
	if t == nil {
		return
	}
	o.write(`<table><thead><tr>`)
	for _, c := range t.Columns {
		o.write(`<th>`, templ.EscapeString(c), `</th>`)
	}
	o.write(`</tr></thead><tbody>`)
	for i := range t.Rows {
		o.write(`<tr>`)
		for _, c := range t.Columns {
			o.write(`<td>`, templ.EscapeString(t.Get(i, c).Text()), `</td>`)
		}
		o.write(`</tr>`)
	}
	o.write(`</tbody></table>`)
}

// SummaryFragment renders the generated summary paragraphs.
func SummaryFragment(text string) templ.Component {
	return component(func(ctx context.Context, o *out) {
		for _, p := range strings.Split(strings.TrimSpace(text), "\n\n") {
			if p = strings.TrimSpace(p); p != "" {
				o.write(`<p>`, templ.EscapeString(p), `</p>`)
			}
		}
	})
}

// LoginPage renders the sign-in form with an optional error message.
func LoginPage(errMsg string) templ.Component {
	body := component(func(ctx context.Context, o *out) {
		if errMsg != "" {
			o.write(`<p class="error">`, templ.EscapeString(errMsg), `</p>`)
		}
		o.write(`<form method="post" action="`, href(ctx, "/login"), `">`)
		o.write(`<input type="hidden" name="csrf_token" value="`, templ.EscapeString(CSRFToken(ctx)), `">`)
		o.write(`<label>`, templ.EscapeString(appI18n.T(ctx, "Username")),
			` <input name="username" autocomplete="username"></label>`)
		o.write(`<label>`, templ.EscapeString(appI18n.T(ctx, "Password")),
			` <input type="password" name="password" autocomplete="current-password"></label>`)
		o.write(`<button type="submit">`, templ.EscapeString(appI18n.T(ctx, "SignIn")), `</button></form>`)
	})
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return page(ctx, w, appI18n.T(ctx, "SignIn"), body)
	})
}
