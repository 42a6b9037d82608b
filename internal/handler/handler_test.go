package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/dalton-wilson/CBM/internal/combine"
	"github.com/dalton-wilson/CBM/internal/handler/views"
	appI18n "github.com/dalton-wilson/CBM/internal/i18n"
	"github.com/dalton-wilson/CBM/internal/llm"
	"github.com/dalton-wilson/CBM/internal/model"
	"github.com/dalton-wilson/CBM/internal/pipeline"
	"github.com/dalton-wilson/CBM/internal/store"
)

func newTestServer(t *testing.T, l *llm.Client) (http.Handler, *store.Store) {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	overall := 70.0
	date := time.Date(2023, 9, 1, 0, 0, 0, 0, time.UTC)
	rows := []model.MasterRow{{
		Student: "Smith, John", StudentKey: "john smith", Administrator: "Brown",
		Test: "Grade 3 Basic Math", TestDate: &date, GradeLevel: "3rd Grade",
		Overall: &overall,
		Scores: []model.CategoryScore{
			{Category: "Addition", Accuracy: 50, ItemCount: 4},
			{Category: "Subtraction", Accuracy: 90, ItemCount: 2},
		},
	}}
	if err := st.PutTable(ctx, pipeline.KeyMaster, combine.ToTable(rows)); err != nil {
		t.Fatalf("PutTable: %v", err)
	}
	if _, err := pipeline.Regroup(ctx, st); err != nil {
		t.Fatalf("Regroup: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	if err := st.UpsertViewer(ctx, "teacher", string(hash)); err != nil {
		t.Fatalf("UpsertViewer: %v", err)
	}

	h := New(st, l, Config{})
	r := chi.NewRouter()
	r.Use(appI18n.Middleware("en"))
	r.Use(h.BasePathMiddleware)
	h.Routes(r)
	return r, st
}

func cookieValue(res *http.Response, name string) string {
	for _, c := range res.Cookies() {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// login walks the CSRF handshake and returns the session cookie value.
func login(t *testing.T, srv http.Handler, password string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	csrf := cookieValue(rec.Result(), csrfCookieName)
	if csrf == "" {
		t.Fatal("login page did not set a CSRF cookie")
	}
	if !strings.Contains(rec.Body.String(), csrf) {
		t.Fatal("login form does not carry the CSRF token")
	}

	form := url.Values{"username": {"teacher"}, "password": {password}, "csrf_token": {csrf}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: csrf})
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func authed(t *testing.T, srv http.Handler) *http.Cookie {
	t.Helper()
	rec := login(t, srv, "secret")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("login status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	token := cookieValue(rec.Result(), sessionCookieName)
	if token == "" {
		t.Fatal("login did not set a session cookie")
	}
	return &http.Cookie{Name: sessionCookieName, Value: token}
}

func get(srv http.Handler, path string, session *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if session != nil {
		req.AddCookie(session)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestRequireAuth(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := get(srv, "/", nil)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want redirect", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login" {
		t.Errorf("Location = %q, want /login", loc)
	}

	rec = get(srv, "/", &http.Cookie{Name: sessionCookieName, Value: "bogus"})
	if rec.Code != http.StatusSeeOther {
		t.Errorf("bogus session status = %d, want redirect", rec.Code)
	}
}

func TestLogin(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	t.Run("wrong password", func(t *testing.T) {
		rec := login(t, srv, "nope")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
		if !strings.Contains(rec.Body.String(), "Invalid username or password") {
			t.Errorf("body lacks the login error: %s", rec.Body.String())
		}
	})

	t.Run("missing csrf", func(t *testing.T) {
		form := url.Values{"username": {"teacher"}, "password": {"secret"}}
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
		}
	})

	t.Run("logout", func(t *testing.T) {
		session := authed(t, srv)
		if rec := get(srv, "/", session); rec.Code != http.StatusOK {
			t.Fatalf("index status = %d, want 200", rec.Code)
		}

		csrf := "token"
		form := url.Values{"csrf_token": {csrf}}
		req := httptest.NewRequest(http.MethodPost, "/logout", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: csrf})
		req.AddCookie(session)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusSeeOther {
			t.Fatalf("logout status = %d", rec.Code)
		}
		if rec := get(srv, "/", session); rec.Code != http.StatusSeeOther {
			t.Errorf("session still valid after logout: %d", rec.Code)
		}
	})
}

func TestIndex(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := get(srv, "/", authed(t, srv))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"/reports/student/john_smith_math", "/reports/class/3rd_Grade_math", "Class reports"} {
		if !strings.Contains(body, want) {
			t.Errorf("index lacks %q", want)
		}
	}
}

func TestReportPage(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	session := authed(t, srv)

	rec := get(srv, "/reports/student/john_smith_math", session)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"Smith, John", "Top 3 Areas to Focus on Grouped by Year:", "Addition", "/download/csv"} {
		if !strings.Contains(body, want) {
			t.Errorf("report page lacks %q", want)
		}
	}
	if strings.Contains(body, `id="summary"`) {
		t.Error("summary placeholder shown without an LLM client")
	}

	if rec := get(srv, "/reports/student/nobody_math", session); rec.Code != http.StatusNotFound {
		t.Errorf("unknown report status = %d, want 404", rec.Code)
	}
	if rec := get(srv, "/reports/teacher/john_smith_math", session); rec.Code != http.StatusNotFound {
		t.Errorf("unknown kind status = %d, want 404", rec.Code)
	}
	if rec := get(srv, "/reports/student/john_smith_math/summary", session); rec.Code != http.StatusNotFound {
		t.Errorf("summary status = %d, want 404", rec.Code)
	}
}

func TestDownload(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	session := authed(t, srv)

	rec := get(srv, "/reports/class/3rd_Grade_math/download/csv", session)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !strings.Contains(rec.Body.String(), "Top 3 Question Types to Focus on, Grouped by Test:") {
		t.Errorf("csv lacks the recommendations header:\n%s", rec.Body.String())
	}

	rec = get(srv, "/reports/class/3rd_Grade_math/download/xlsx", session)
	if rec.Code != http.StatusOK || rec.Body.Len() == 0 {
		t.Errorf("xlsx status = %d, %d bytes", rec.Code, rec.Body.Len())
	}

	if rec := get(srv, "/reports/class/3rd_Grade_math/download/pdf", session); rec.Code != http.StatusBadRequest {
		t.Errorf("pdf status = %d, want 400", rec.Code)
	}
}

func TestReportList(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := get(srv, "/api/reports", authed(t, srv))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got []model.ReportSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d reports, want 2", len(got))
	}
	if got[0].Kind != model.ReportClass || got[0].Name != "3rd_Grade_math" {
		t.Errorf("first report = %s/%s", got[0].Kind, got[0].Name)
	}
	if len(got[1].Recommendations) == 0 {
		t.Error("student report has no recommendations")
	}
}

func TestReportSummary(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","model":"test","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"summary\":\"Practice addition facts.\",\"focus\":[\"Addition\"]}"}}]}`)
	}))
	defer api.Close()

	srv, _ := newTestServer(t, llm.New(api.URL+"/v1", "key", "test", "teacher"))
	session := authed(t, srv)

	rec := get(srv, "/reports/student/john_smith_math", session)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`hx-get="/reports/student/john_smith_math/summary"`,
		`hx-trigger="load"`,
		`<script src="` + views.HTMXSrc + `">`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("report page lacks %q", want)
		}
	}

	rec = get(srv, "/reports/student/john_smith_math/summary", session)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary status = %d", rec.Code)
	}
	if got := rec.Body.String(); got != "<p>Practice addition facts.</p>" {
		t.Errorf("summary = %q", got)
	}
}

func TestFragmentRequestWithoutSession(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/reports/student/john_smith_math/summary", nil)
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if loc := rec.Header().Get("HX-Redirect"); loc != "/login" {
		t.Errorf("HX-Redirect = %q, want /login", loc)
	}
}
