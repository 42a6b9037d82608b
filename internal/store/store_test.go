package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dalton-wilson/CBM/internal/model"
	"github.com/dalton-wilson/CBM/internal/table"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type tableStore interface {
	PutTable(ctx context.Context, key string, t *table.Table) error
	GetTable(ctx context.Context, key string) (*table.Table, error)
	ListTables(ctx context.Context, prefix string) ([]string, error)
	DeleteTables(ctx context.Context, prefix string) error
}

func sampleTable(name string) *table.Table {
	t := table.New("Student Name", "Addition", "Addition Item Count")
	t.Append(table.String(name), table.Int(80), table.Int(5))
	t.Append(table.String("Kay, Mary"), table.Null(), table.Null())
	return t
}

func TestTableStores(t *testing.T) {
	stores := map[string]tableStore{
		"sqlite": newTestStore(t),
		"memory": NewMemory(),
	}
	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.GetTable(ctx, "master")
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("GetTable on empty store: err = %v, want ErrNotFound", err)
			}

			for _, k := range []string{"class/3rd_Grade_math", "class/3rd_Grade_reading", "Class/upper", "student/john_smith_math", "master"} {
				if err := s.PutTable(ctx, k, sampleTable("Smith, John")); err != nil {
					t.Fatalf("PutTable(%s): %v", k, err)
				}
			}
			// Overwrite replaces.
			if err := s.PutTable(ctx, "master", sampleTable("Lee, Ann")); err != nil {
				t.Fatalf("PutTable overwrite: %v", err)
			}

			got, err := s.GetTable(ctx, "master")
			if err != nil {
				t.Fatalf("GetTable: %v", err)
			}
			if got.Get(0, "Student Name").Text() != "Lee, Ann" {
				t.Errorf("master not replaced: %q", got.Get(0, "Student Name").Text())
			}
			if !got.Get(1, "Addition").IsNull() {
				t.Error("null cell lost in storage")
			}
			if v, _ := got.Get(0, "Addition").Float(); v != 80 {
				t.Errorf("Addition = %v, want 80", v)
			}

			keys, err := s.ListTables(ctx, "class/")
			if err != nil {
				t.Fatalf("ListTables: %v", err)
			}
			if len(keys) != 2 || keys[0] != "class/3rd_Grade_math" || keys[1] != "class/3rd_Grade_reading" {
				t.Errorf("ListTables(class/) = %v", keys)
			}

			if err := s.DeleteTables(ctx, "class/"); err != nil {
				t.Fatalf("DeleteTables: %v", err)
			}
			all, err := s.ListTables(ctx, "")
			if err != nil {
				t.Fatalf("ListTables all: %v", err)
			}
			want := []string{"Class/upper", "master", "student/john_smith_math"}
			if len(all) != len(want) {
				t.Fatalf("remaining keys = %v, want %v", all, want)
			}
			for i := range want {
				if all[i] != want[i] {
					t.Errorf("key %d = %q, want %q", i, all[i], want[i])
				}
			}
		})
	}
}

func TestRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	started := time.Now().Add(-time.Minute).Truncate(time.Second)
	if err := s.StartRun(ctx, "run-1", started); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	r, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if r.Status != model.RunRunning || r.FinishedAt != nil {
		t.Errorf("fresh run = %+v", r)
	}

	if err := s.FinishRun(ctx, model.RunInfo{ID: "run-1", Status: model.RunSucceeded, Tests: 4, Failures: 1}); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	r, err = s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if r.Status != model.RunSucceeded || r.Tests != 4 || r.Failures != 1 || r.FinishedAt == nil {
		t.Errorf("finished run = %+v", r)
	}

	if err := s.StartRun(ctx, "run-2", time.Now()); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	runs, err := s.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-2" {
		t.Errorf("ListRuns = %+v", runs)
	}

	if _, err := s.GetRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun(missing) err = %v", err)
	}
}

func TestImportedFiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	h, err := s.ImportedHash(ctx, "/data/a.csv")
	if err != nil || h != "" {
		t.Fatalf("ImportedHash on empty store = %q, %v", h, err)
	}
	if err := s.MarkImported(ctx, "/data/a.csv", "abc", "run-1"); err != nil {
		t.Fatalf("MarkImported: %v", err)
	}
	if err := s.MarkImported(ctx, "/data/a.csv", "def", "run-2"); err != nil {
		t.Fatalf("MarkImported again: %v", err)
	}
	h, err = s.ImportedHash(ctx, "/data/a.csv")
	if err != nil || h != "def" {
		t.Errorf("ImportedHash = %q, %v; want def", h, err)
	}
}

func TestMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ref, err := s.LastRun(ctx)
	if err != nil || ref != nil {
		t.Fatalf("LastRun before any run = %+v, %v", ref, err)
	}
	if err := s.SetLastRun(ctx, RunRef{ID: "run-1", SourceRoot: "/data", RosterFile: "grades.yaml"}); err != nil {
		t.Fatalf("SetLastRun: %v", err)
	}
	ref, err = s.LastRun(ctx)
	if err != nil {
		t.Fatalf("LastRun: %v", err)
	}
	if ref.ID != "run-1" || ref.SourceRoot != "/data" || ref.RosterFile != "grades.yaml" {
		t.Errorf("LastRun = %+v", ref)
	}

	v, err := s.GetMetadata(ctx, "nope")
	if err != nil || v != "" {
		t.Errorf("GetMetadata(nope) = %q, %v", v, err)
	}
}

func TestViewers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v, err := s.GetViewer(ctx, "teacher")
	if err != nil || v != nil {
		t.Fatalf("GetViewer on empty store = %+v, %v", v, err)
	}
	if err := s.UpsertViewer(ctx, "teacher", "hash1"); err != nil {
		t.Fatalf("UpsertViewer: %v", err)
	}
	if err := s.UpsertViewer(ctx, "teacher", "hash2"); err != nil {
		t.Fatalf("UpsertViewer again: %v", err)
	}
	v, err = s.GetViewer(ctx, "teacher")
	if err != nil {
		t.Fatalf("GetViewer: %v", err)
	}
	if v.PasswordHash != "hash2" {
		t.Errorf("hash = %q, want hash2", v.PasswordHash)
	}
	n, err := s.ViewerCount(ctx)
	if err != nil || n != 1 {
		t.Errorf("ViewerCount = %d, %v", n, err)
	}
}

func TestPutTableRecordsRunID(t *testing.T) {
	s := newTestStore(t)
	ctx := model.WithRunID(context.Background(), "run-9")
	if err := s.PutTable(ctx, "master", sampleTable("Smith, John")); err != nil {
		t.Fatalf("PutTable: %v", err)
	}
	var runID string
	if err := s.db.QueryRow(`SELECT run_id FROM data_tables WHERE key = 'master'`).Scan(&runID); err != nil {
		t.Fatalf("query run_id: %v", err)
	}
	if runID != "run-9" {
		t.Errorf("run_id = %q", runID)
	}
}

func TestViewerSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertViewer(ctx, "teacher", "hash"); err != nil {
		t.Fatalf("UpsertViewer: %v", err)
	}
	v, err := s.GetViewer(ctx, "teacher")
	if err != nil || v == nil {
		t.Fatalf("GetViewer = %+v, %v", v, err)
	}

	token, err := s.CreateViewerSession(ctx, v.ID)
	if err != nil {
		t.Fatalf("CreateViewerSession: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("token length = %d, want 64", len(token))
	}
	sess, err := s.GetViewerSession(ctx, token)
	if err != nil || sess == nil || sess.ViewerID != v.ID {
		t.Fatalf("GetViewerSession = %+v, %v", sess, err)
	}
	byID, err := s.GetViewerByID(ctx, sess.ViewerID)
	if err != nil || byID == nil || byID.Username != "teacher" {
		t.Errorf("GetViewerByID = %+v, %v", byID, err)
	}

	if _, err := s.db.Exec(`UPDATE viewer_sessions SET expires_at = ?`, time.Now().Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}
	sess, err = s.GetViewerSession(ctx, token)
	if err != nil || sess != nil {
		t.Errorf("expired session = %+v, %v", sess, err)
	}
	n, err := s.CleanupExpiredSessions(ctx)
	if err != nil || n != 0 {
		t.Errorf("CleanupExpiredSessions = %d, %v; expired session already removed", n, err)
	}
}
