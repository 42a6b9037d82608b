package schema

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dalton-wilson/CBM/internal/model"
	"github.com/dalton-wilson/CBM/internal/table"
)

func TestCanonicalTestName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Grade 3 Basic Math", "grade 3_basic math"},
		{"  Grade  3   Basic Math ", "grade 3_basic math"},
		{"K Basic Reading", "k basic reading"},
	}
	for _, tt := range tests {
		if got := CanonicalTestName(tt.in); got != tt.want {
			t.Errorf("CanonicalTestName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCanonicalDateHeader(t *testing.T) {
	m := Default()
	tests := []struct {
		in, want string
	}{
		{"MATH_BASIC: Grade 3 - Date", "basic math grade 3"},
		{"MATH_BASIC_BM: Grade 3 - Date", "basic math grade 3"},
		{"MATH_PROF_BM: Grade 3 - Date", "proficient math grade 3"},
		{"RDG_BASIC: Grade 2 - Date", "basic reading grade 2"},
		{"RDG_PROF: Grade 2 - Date", "proficient reading grade 2"},
		{"Grade 3 Basic Math - Date", "grade 3_basic math"},
	}
	for _, tt := range tests {
		if got := m.CanonicalDateHeader(tt.in); got != tt.want {
			t.Errorf("CanonicalDateHeader(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if m.CanonicalDateHeader("Grade 3 Basic Math - Date") != CanonicalTestName("Grade 3 Basic Math") {
		t.Error("date header and test name should canonicalize to the same key")
	}
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"12 (80%)", 80, true},
		{"4 (66.5%)", 66.5, true},
		{"75", 75, true},
		{"75%", 75, true},
		{"-", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseScore(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ParseScore(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestParseDate(t *testing.T) {
	m := Default()
	want := time.Date(2023, 9, 1, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"09/01/2023", "9/1/2023", "2023-09-01", "09/01/23"} {
		got, ok := m.ParseDate(in)
		if !ok || !got.Equal(want) {
			t.Errorf("ParseDate(%q) = %v, %v", in, got, ok)
		}
	}
	if _, ok := m.ParseDate("soon"); ok {
		t.Error("ParseDate(soon) should fail")
	}
}

func TestCleanNameAndViewed(t *testing.T) {
	m := Default()
	if got := m.CleanName("Smith, John Show Graph"); got != "Smith, John" {
		t.Errorf("CleanName = %q", got)
	}
	if !m.Viewed(" View ") || m.Viewed("") {
		t.Error("Viewed mismatch")
	}
}

func TestItems(t *testing.T) {
	m := Default()

	tbl := table.New("Item", "Type Description", "Student Names, Incorrect")
	tbl.Append(table.String("1"), table.String("Addition"), table.String("John S"))
	items, err := m.Items(tbl, "smith", "Grade 3 Basic Math")
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if len(items) != 1 || items[0].Category != "Addition" || items[0].Incorrect != "John S" {
		t.Errorf("items = %+v", items)
	}

	noItem := table.New("Type", "Student Names, Incorrect")
	if _, err := m.Items(noItem, "smith", "t"); !model.IsSchemaMismatch(err) {
		t.Errorf("missing Item column: err = %v, want schema mismatch", err)
	}

	noType := table.New("Item", "Student Names, Incorrect")
	if _, err := m.Items(noType, "smith", "t"); !model.IsDataMissing(err) {
		t.Errorf("missing Type column: err = %v, want data missing", err)
	}
}

func TestScores(t *testing.T) {
	m := Default()
	tbl := table.New("Student Name", "Score", "View Test")
	tbl.Append(table.String("Smith, John Show Graph"), table.String("4 (80%)"), table.String("View"))
	tbl.Append(table.String("Kay, Mary"), table.Null(), table.Null())

	recs, err := m.Scores(tbl, "smith", "t")
	if err != nil {
		t.Fatalf("Scores: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].Name != "Smith, John" || !recs[0].Viewed || recs[0].Score == nil || *recs[0].Score != 80 {
		t.Errorf("first record = %+v", recs[0])
	}
	if recs[1].Viewed || recs[1].Score != nil {
		t.Errorf("second record = %+v", recs[1])
	}

	if _, err := m.Scores(table.New("Student Name"), "smith", "t"); !model.IsSchemaMismatch(err) {
		t.Errorf("err = %v, want schema mismatch", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.yaml")
	data := []byte("viewed_marker: Ver\nname_noise:\n  - Mostrar\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.ViewedMarker != "Ver" || len(m.NameNoise) != 1 || m.NameNoise[0] != "Mostrar" {
		t.Errorf("overrides not applied: %+v", m)
	}
	if len(m.TestPrefixes) != len(Default().TestPrefixes) {
		t.Error("defaults lost for keys absent from the file")
	}
}
