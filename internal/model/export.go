package model

import (
	"context"
	"time"
)

// ReportKind distinguishes per-class and per-student reports.
type ReportKind string

const (
	ReportClass   ReportKind = "class"
	ReportStudent ReportKind = "student"
)

// RunInfo is the trace record of one pipeline run.
type RunInfo struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
	Tests      int        `json:"tests"`
	Failures   int        `json:"failures"`
}

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// ReportSummary is the JSON form of a report used by the export command and the viewer.
type ReportSummary struct {
	Kind            ReportKind       `json:"kind"`
	Name            string           `json:"name"`
	GradeLevel      string           `json:"grade_level"`
	Subject         Subject          `json:"subject"`
	Student         string           `json:"student,omitempty"`
	MaxGroup        string           `json:"max_group"`
	Rows            int              `json:"rows"`
	Recommendations []Recommendation `json:"recommendations"`
}

type runIDKey struct{}

// WithRunID tags ctx with the ID of the run producing data.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFrom returns the run ID stored by WithRunID.
func RunIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey{}).(string)
	return id, ok
}
