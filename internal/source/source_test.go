package source

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const studentPage = `<html><body>
<table id="other"><tr><td>ignore me</td></tr></table>
<table id="studentReportingTable">
  <thead><tr><th>Student Name</th><th>Score</th><th>View Test</th></tr></thead>
  <tbody>
    <tr><td>Smith, John <a href="#">Show Graph</a></td><td>4 (80%)</td><td><a>View</a></td></tr>
    <tr><td>Kay, Mary</td><td></td><td></td></tr>
  </tbody>
</table></body></html>`

func TestDir(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "smith", "smith_Grade 3 Basic Math_test_data.csv"),
		"Item,Type,\"Student Names, Incorrect\"\n1,Addition,John S\n")
	write(t, filepath.Join(root, "smith", "smith_Grade 3 Basic Math_student_data.html"), studentPage)
	write(t, filepath.Join(root, "smith", "smith_Grade 2 Basic Math_test_data.csv"), "Item,Type\n")
	write(t, filepath.Join(root, "smith", "notes.txt"), "x")
	write(t, filepath.Join(root, "All_Students_2023.csv"), "Last Name,First Name\nSmith,John\n")
	write(t, filepath.Join(root, "jones", "All_Students_jones.csv"), "Last Name,First Name\nJones,Ann\n")

	d := NewDir(root)

	admins, err := d.Administrators()
	require.NoError(t, err)
	assert.Equal(t, []string{"jones", "smith"}, admins)

	tests, err := d.Tests("smith")
	require.NoError(t, err)
	assert.Equal(t, []string{"Grade 2 Basic Math", "Grade 3 Basic Math"}, tests)

	items, err := d.ItemTable("smith", "Grade 3 Basic Math")
	require.NoError(t, err)
	assert.Equal(t, "Addition", items.Get(0, "Type").Text())

	scores, err := d.ScoreTable("smith", "Grade 3 Basic Math")
	require.NoError(t, err)
	assert.Equal(t, []string{"Student Name", "Score", "View Test"}, scores.Columns)
	require.Equal(t, 2, scores.Len())
	assert.Equal(t, "Smith, John Show Graph", scores.Get(0, "Student Name").Text())
	assert.Equal(t, "View", scores.Get(0, "View Test").Text())
	assert.True(t, scores.Get(1, "Score").IsNull())

	_, err = d.ScoreTable("smith", "Grade 2 Basic Math")
	assert.True(t, errors.Is(err, os.ErrNotExist))

	name, roster, err := d.RosterDates("jones")
	require.NoError(t, err)
	assert.Equal(t, "All_Students_jones.csv", name)
	assert.Equal(t, "Jones", roster.Get(0, "Last Name").Text())

	name, _, err = d.RosterDates("smith")
	require.NoError(t, err)
	assert.Equal(t, "All_Students_2023.csv", name, "root roster is the fallback")

	files, err := d.Files()
	require.NoError(t, err)
	assert.Len(t, files, 5)
}

func TestReadHTMLFallsBackToFirstTable(t *testing.T) {
	page := `<table><tr><th>Item</th><th>Type</th></tr><tr><td>1</td><td>Phonics</td></tr></table>`
	tbl, err := ReadHTML(strings.NewReader(page), ItemTableSelector)
	require.NoError(t, err)
	assert.Equal(t, "Phonics", tbl.Get(0, "Type").Text())
}

func TestReadHTMLLineBreaks(t *testing.T) {
	page := `<table id="reportItemAnalysisTable"><tr><th>Student Names, Incorrect</th></tr>
<tr><td>John S<br>Mary K</td></tr></table>`
	tbl, err := ReadHTML(strings.NewReader(page), ItemTableSelector)
	require.NoError(t, err)
	assert.Equal(t, "John S, Mary K", tbl.Get(0, "Student Names, Incorrect").Text())
}
