// Package source discovers and decodes the raw tables extracted from the
// assessment website.
package source

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/andybalholm/cascadia"

	"github.com/dalton-wilson/CBM/internal/table"
)

// File name suffixes of the per-test extracts.
const (
	testSuffix    = "_test_data"
	studentSuffix = "_student_data"
	rosterPrefix  = "All_Students"
)

var extensions = []string{".csv", ".xlsx", ".html", ".htm"}

// Source yields the raw tables of a run.
type Source interface {
	Administrators() ([]string, error)
	Tests(admin string) ([]string, error)
	ItemTable(admin, test string) (*table.Table, error)
	ScoreTable(admin, test string) (*table.Table, error)
	// RosterDates returns the roster-dates table for an administrator and a
	// name identifying it.
	RosterDates(admin string) (string, *table.Table, error)
	// Files lists every input file, for import tracing.
	Files() ([]string, error)
}

// Dir reads extracts laid out as
// <root>/<admin>/<admin>_<test>_test_data.<ext> and
// <root>/<admin>/<admin>_<test>_student_data.<ext>, with the roster-dates
// export All_Students*.<ext> either in the admin directory or in root.
type Dir struct {
	Root string
}

// NewDir returns a Dir rooted at root.
func NewDir(root string) *Dir { return &Dir{Root: root} }

// Administrators lists the subdirectories of the root in name order.
func (d *Dir) Administrators() ([]string, error) {
	entries, err := os.ReadDir(d.Root)
	if err != nil {
		return nil, fmt.Errorf("read source dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Tests lists the tests an administrator has item extracts for, sorted.
func (d *Dir) Tests(admin string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(d.Root, admin))
	if err != nil {
		return nil, fmt.Errorf("read admin dir %s: %w", admin, err)
	}
	seen := make(map[string]bool)
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		stem, ok := knownExt(e.Name())
		if !ok || !strings.HasPrefix(stem, admin+"_") || !strings.HasSuffix(stem, testSuffix) {
			continue
		}
		test := strings.TrimSuffix(strings.TrimPrefix(stem, admin+"_"), testSuffix)
		if test != "" && !seen[test] {
			seen[test] = true
			out = append(out, test)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (d *Dir) ItemTable(admin, test string) (*table.Table, error) {
	return d.readExtract(admin, admin+"_"+test+testSuffix, ItemTableSelector)
}

func (d *Dir) ScoreTable(admin, test string) (*table.Table, error) {
	return d.readExtract(admin, admin+"_"+test+studentSuffix, StudentTableSelector)
}

// RosterDates prefers an All_Students export inside the admin directory
// over one in the root.
func (d *Dir) RosterDates(admin string) (string, *table.Table, error) {
	for _, dir := range []string{filepath.Join(d.Root, admin), d.Root} {
		path, err := firstMatch(dir, rosterPrefix)
		if err != nil {
			return "", nil, err
		}
		if path == "" {
			continue
		}
		t, err := ReadFile(path, nil)
		if err != nil {
			return "", nil, err
		}
		return filepath.Base(path), t, nil
	}
	return "", nil, fmt.Errorf("no %s* file for administrator %s: %w", rosterPrefix, admin, os.ErrNotExist)
}

// Files lists every input file below the root.
func (d *Dir) Files() ([]string, error) {
	var out []string
	err := filepath.WalkDir(d.Root, func(path string, e os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !e.IsDir() {
			if _, ok := knownExt(e.Name()); ok {
				out = append(out, path)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk source dir: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

func (d *Dir) readExtract(admin, stem string, sel cascadia.Selector) (*table.Table, error) {
	for _, ext := range extensions {
		path := filepath.Join(d.Root, admin, stem+ext)
		if _, err := os.Stat(path); err == nil {
			return ReadFile(path, sel)
		}
	}
	return nil, fmt.Errorf("no extract %s: %w", stem, os.ErrNotExist)
}

// ReadFile decodes a CSV, XLSX or saved HTML file. sel picks the table on
// HTML pages; nil takes the first table.
func ReadFile(path string, sel cascadia.Selector) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var t *table.Table
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		t, err = table.ReadCSV(f)
	case ".xlsx":
		t, err = table.ReadXLSX(f)
	case ".html", ".htm":
		if sel == nil {
			sel = anyTable
		}
		t, err = ReadHTML(f, sel)
	default:
		return nil, fmt.Errorf("unsupported extract format %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return t, nil
}

func knownExt(name string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range extensions {
		if ext == e {
			return strings.TrimSuffix(name, filepath.Ext(name)), true
		}
	}
	return "", false
}

func firstMatch(dir, prefix string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		if _, ok := knownExt(e.Name()); ok {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", nil
}
