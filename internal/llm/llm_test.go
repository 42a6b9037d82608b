package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dalton-wilson/CBM/internal/model"
)

func sampleReport() model.ReportSummary {
	return model.ReportSummary{
		Kind:       model.ReportClass,
		Name:       "3rd_Grade_math",
		GradeLevel: "3rd Grade",
		Subject:    model.SubjectMath,
		MaxGroup:   "3",
		Recommendations: []model.Recommendation{
			{Category: "Addition", AverageScore: 50, ItemCount: 4, Rank: 1, DateRange: "09/01/2023 - 09/01/2023", Key: "Grade 3 Basic Math"},
			{Category: "Fractions", AverageScore: 62.5, ItemCount: 3, Rank: 2, DateRange: "N/A", Key: "Grade 3 Basic Math"},
		},
	}
}

func TestParseSummary(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"ok", `{"summary": "Practice addition.", "focus": ["Addition"]}`, "Practice addition.", false},
		{"not json", `Practice addition.`, "", true},
		{"empty summary", `{"summary": "", "focus": []}`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSummary(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseSummary(%q) succeeded, want error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseSummary: %v", err)
			}
			if got.Text != tt.want {
				t.Errorf("Text = %q, want %q", got.Text, tt.want)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	var prompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.Unmarshal(body, &req); err == nil && len(req.Messages) > 0 {
			prompt = req.Messages[0].Content
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","model":"test","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"summary\":\"Focus on addition first.\",\"focus\":[\"Addition\"]}"}}]}`)
	}))
	defer srv.Close()

	c := New(srv.URL+"/v1", "key", "test", "teacher")
	s, err := c.Summarize(context.Background(), sampleReport(), "Grade 3 math Scores and Recommendations", "Top 3 Question Types to Focus on, Grouped by Test:")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if s.Text != "Focus on addition first." || len(s.Focus) != 1 || s.Focus[0] != "Addition" {
		t.Errorf("summary = %+v", s)
	}
	if !strings.Contains(prompt, "rank 1 | Addition | average score 50.0 | 4 items") {
		t.Errorf("prompt lacks the first recommendation:\n%s", prompt)
	}
}

func TestSummarizeWithoutRecommendations(t *testing.T) {
	c := New("http://127.0.0.1:1/v1", "key", "test", "teacher")
	rep := sampleReport()
	rep.Recommendations = nil
	s, err := c.Summarize(context.Background(), rep, "t", "h")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if s.Text != "" {
		t.Errorf("Text = %q, want empty", s.Text)
	}
}

func TestNewFallsBackToTeacher(t *testing.T) {
	c := New("", "key", "test", "principal")
	if c.audience != "teacher" {
		t.Errorf("audience = %q, want teacher", c.audience)
	}
}
