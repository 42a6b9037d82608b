// Package progress builds the per-date category score series charted for
// each group.
package progress

import (
	"sort"
	"time"

	"github.com/dalton-wilson/CBM/internal/combine"
	"github.com/dalton-wilson/CBM/internal/model"
	"github.com/dalton-wilson/CBM/internal/table"
)

// Column names of a series table besides the categories.
const (
	ColTestGroup = "Test Group"
	ColTestDate  = "Test Date"
)

// Point is the mean score of every category on one date.
type Point struct {
	Group  model.TestGroup
	Date   time.Time
	Scores map[string]float64
}

// Series returns one point per (test group, test date), ordered by group
// then date. Rows without a date or a parseable test group are skipped.
func Series(rows []model.MasterRow) []Point {
	type key struct {
		group model.TestGroup
		date  time.Time
	}
	sums := make(map[key]map[string][2]float64)
	var keys []key
	for _, r := range rows {
		if r.TestDate == nil {
			continue
		}
		g, ok := r.TestGroup()
		if !ok {
			continue
		}
		k := key{group: g, date: *r.TestDate}
		acc, ok := sums[k]
		if !ok {
			acc = make(map[string][2]float64)
			sums[k] = acc
			keys = append(keys, k)
		}
		for _, s := range r.Scores {
			v := acc[s.Category]
			acc[s.Category] = [2]float64{v[0] + float64(s.Accuracy), v[1] + 1}
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if c := keys[i].group.Compare(keys[j].group); c != 0 {
			return c < 0
		}
		return keys[i].date.Before(keys[j].date)
	})

	out := make([]Point, 0, len(keys))
	for _, k := range keys {
		p := Point{Group: k.group, Date: k.date, Scores: make(map[string]float64)}
		for cat, v := range sums[k] {
			p.Scores[cat] = v[0] / v[1]
		}
		out = append(out, p)
	}
	return out
}

// Table renders the series of rows with one column per category.
func Table(rows []model.MasterRow) *table.Table {
	cats := combine.Categories(rows)
	t := table.New(append([]string{ColTestGroup, ColTestDate}, cats...)...)
	for _, p := range Series(rows) {
		cells := []table.Cell{
			table.String(p.Group.Label()),
			table.String(p.Date.Format("01/02/2006")),
		}
		for _, c := range cats {
			if v, ok := p.Scores[c]; ok {
				cells = append(cells, table.Number(v))
			} else {
				cells = append(cells, table.Null())
			}
		}
		t.Append(cells...)
	}
	return t
}
