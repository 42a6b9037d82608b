package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dalton-wilson/CBM/internal/export"
	"github.com/dalton-wilson/CBM/internal/group"
	"github.com/dalton-wilson/CBM/internal/handler/views"
	appI18n "github.com/dalton-wilson/CBM/internal/i18n"
	"github.com/dalton-wilson/CBM/internal/llm"
	"github.com/dalton-wilson/CBM/internal/store"
)

// Config holds the viewer's HTTP settings.
type Config struct {
	BasePath      string
	SecureCookies bool
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store  *store.Store
	llm    *llm.Client
	config Config
}

// New creates a new Handler. l may be nil, which hides the summary.
func New(s *store.Store, l *llm.Client, cfg Config) *Handler {
	return &Handler{store: s, llm: l, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.csrfMiddleware)
		r.Get("/login", h.handleLoginPage)
		r.Post("/login", h.handleLogin)
		r.Post("/logout", h.handleLogout)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Get("/", h.handleIndex)
		r.Get("/api/reports", h.handleReportList)
		r.Route("/reports/{kind}/{name}", func(r chi.Router) {
			r.Get("/", h.handleReportPage)
			r.Get("/download/{format}", h.handleDownload)
			r.Get("/summary", h.handleSummary)
		})
	})
}

// BasePathMiddleware makes the base path available to views.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(views.WithBasePath(r.Context(), h.config.BasePath)))
	})
}

func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	reports, err := export.LoadAll(r.Context(), h.store)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var classes, students []views.Entry
	for _, rep := range reports {
		e := views.Entry{Kind: string(rep.Kind), Name: rep.Name, Title: rep.Title(), GradeLevel: rep.GradeLevel}
		if rep.Kind == group.KindStudent {
			students = append(students, e)
		} else {
			classes = append(classes, e)
		}
	}

	var last *views.LastRun
	if ref, err := h.store.LastRun(r.Context()); err == nil && ref != nil {
		last = &views.LastRun{ID: ref.ID}
		if info, err := h.store.GetRun(r.Context(), ref.ID); err == nil && info.FinishedAt != nil {
			last.Finished = info.FinishedAt.Format(time.DateTime)
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.IndexPage(classes, students, last).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleReportList(w http.ResponseWriter, r *http.Request) {
	reports, err := export.LoadAll(r.Context(), h.store)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]any, 0, len(reports))
	for _, rep := range reports {
		out = append(out, rep.Summary())
	}
	writeJSON(w, out)
}

// loadReport resolves the {kind}/{name} URL parameters. It writes the
// error response itself and returns nil on failure.
func (h *Handler) loadReport(w http.ResponseWriter, r *http.Request) *export.Report {
	kind := group.Kind(chi.URLParam(r, "kind"))
	if kind != group.KindClass && kind != group.KindStudent {
		http.Error(w, "unknown report kind", http.StatusNotFound)
		return nil
	}
	rep, err := export.Load(r.Context(), h.store, kind, chi.URLParam(r, "name"))
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, appI18n.T(r.Context(), "ReportNotFound"), http.StatusNotFound)
		return nil
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil
	}
	return rep
}

func (h *Handler) handleReportPage(w http.ResponseWriter, r *http.Request) {
	rep := h.loadReport(w, r)
	if rep == nil {
		return
	}
	view := views.Report{
		Kind:            string(rep.Kind),
		Name:            rep.Name,
		Title:           rep.Title(),
		GradeLevel:      rep.GradeLevel,
		Subject:         string(rep.Subject),
		Student:         rep.Student,
		MaxGroup:        rep.MaxGroup.Label(),
		Header:          rep.Header,
		Data:            rep.Data,
		Recommendations: rep.Recommendations,
		Progress:        rep.Progress,
		Summary:         h.llm != nil,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.ReportPage(view).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	format := chi.URLParam(r, "format")
	if format != export.FormatCSV && format != export.FormatXLSX {
		http.Error(w, "unsupported format", http.StatusBadRequest)
		return
	}
	rep := h.loadReport(w, r)
	if rep == nil {
		return
	}

	filename := rep.Title() + "." + format
	w.Header().Set("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(filename))
	var err error
	if format == export.FormatXLSX {
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		err = rep.WriteXLSX(r.Context(), w)
	} else {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		err = rep.WriteCSV(w)
	}
	if err != nil {
		slog.Error("write report", "report", rep.Name, "format", format, "error", err)
	}
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	if h.llm == nil {
		http.NotFound(w, r)
		return
	}
	rep := h.loadReport(w, r)
	if rep == nil {
		return
	}
	s, err := h.llm.Summarize(r.Context(), rep.Summary(), rep.Title(), rep.Header)
	if err != nil {
		slog.Error("LLM summary failed", "report", rep.Name, "error", err)
		http.Error(w, "summary unavailable", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.SummaryFragment(s.Text).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
