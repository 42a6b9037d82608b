// Package rank picks the three weakest categories of a group, per test for
// classes and per year for students.
package rank

import (
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/dalton-wilson/CBM/internal/group"
	"github.com/dalton-wilson/CBM/internal/model"
	"github.com/dalton-wilson/CBM/internal/table"
)

// TopN is how many categories each test or year reports.
const TopN = 3

// Mode selects how rows are bucketed before ranking.
type Mode int

const (
	ByTest Mode = iota // class view
	ByYear             // student view
)

// ModeFor returns the ranking mode used for a group kind.
func ModeFor(k group.Kind) Mode {
	if k == group.KindStudent {
		return ByYear
	}
	return ByTest
}

// Group ranks g in the mode its kind calls for.
func Group(g group.Group) []model.Recommendation {
	if ModeFor(g.Kind) == ByYear {
		return Student(g.Rows)
	}
	return Class(g.Rows)
}

// Class ranks the categories of every test, most recent test first. Item
// counts are averaged over the test's rows and average scores are rounded to
// one decimal before ranking.
func Class(rows []model.MasterRow) []model.Recommendation {
	buckets := make(map[string][]model.MasterRow)
	latest := make(map[string]time.Time)
	var tests []string
	for _, r := range rows {
		if _, ok := buckets[r.Test]; !ok {
			tests = append(tests, r.Test)
		}
		buckets[r.Test] = append(buckets[r.Test], r)
		if r.TestDate != nil && r.TestDate.After(latest[r.Test]) {
			latest[r.Test] = *r.TestDate
		}
	}
	sort.SliceStable(tests, func(i, j int) bool {
		di, dj := latest[tests[i]], latest[tests[j]]
		if !di.Equal(dj) {
			return di.After(dj)
		}
		return tests[i] < tests[j]
	})

	var out []model.Recommendation
	for _, test := range tests {
		out = append(out, top(buckets[test], test, true, mean)...)
	}
	return out
}

// Student ranks the categories of every test year, most recent year first.
// Item counts are summed across the year's rows. Tests without a number in
// their name are skipped.
func Student(rows []model.MasterRow) []model.Recommendation {
	buckets := make(map[int][]model.MasterRow)
	var years []int
	for _, r := range rows {
		y, ok := model.TestYear(r.Test)
		if !ok {
			continue
		}
		if _, seen := buckets[y]; !seen {
			years = append(years, y)
		}
		buckets[y] = append(buckets[y], r)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))

	var out []model.Recommendation
	for _, y := range years {
		out = append(out, top(buckets[y], strconv.Itoa(y), false, sum)...)
	}
	return out
}

type scored struct {
	model.Recommendation
	value float64
}

func top(rows []model.MasterRow, key string, roundAvg bool, count func([]float64) float64) []model.Recommendation {
	var cats []string
	accs := make(map[string][]float64)
	items := make(map[string][]float64)
	for _, r := range rows {
		for _, s := range r.Scores {
			if _, ok := items[s.Category]; !ok {
				cats = append(cats, s.Category)
			}
			accs[s.Category] = append(accs[s.Category], float64(s.Accuracy))
			items[s.Category] = append(items[s.Category], float64(s.ItemCount))
		}
	}

	ranked := make([]scored, 0, len(cats))
	for _, c := range cats {
		avg := mean(accs[c])
		if roundAvg {
			avg = math.Round(avg*10) / 10
		}
		n := count(items[c])
		ranked = append(ranked, scored{
			Recommendation: model.Recommendation{
				Category:     c,
				AverageScore: avg,
				ItemCount:    n,
				DateRange:    DateRange(rows, c),
				Key:          key,
			},
			value: Value(avg, n),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].value != ranked[j].value {
			return ranked[i].value > ranked[j].value
		}
		return ranked[i].Category < ranked[j].Category
	})

	values := make([]float64, len(ranked))
	for i, r := range ranked {
		values[i] = r.value
	}
	ranks := DenseRank(values)

	out := make([]model.Recommendation, 0, TopN)
	for i := range ranked {
		if i == TopN {
			break
		}
		rec := ranked[i].Recommendation
		rec.Rank = ranks[i]
		out = append(out, rec)
	}
	return out
}

// Value is the ranking value of a category: weak categories with many items
// rank first.
func Value(avg, itemCount float64) float64 {
	return (100 - avg) * itemCount
}

// DenseRank ranks values sorted in descending order: equal values share a
// rank and the next distinct value gets the next integer.
func DenseRank(values []float64) []int {
	ranks := make([]int, len(values))
	rank := 0
	for i, v := range values {
		if i == 0 || v != values[i-1] {
			rank++
		}
		ranks[i] = rank
	}
	return ranks
}

// DateRange formats the earliest and latest test dates of the rows carrying
// the category, or "N/A" when none of them is dated.
func DateRange(rows []model.MasterRow, category string) string {
	var lo, hi time.Time
	for _, r := range rows {
		if r.TestDate == nil {
			continue
		}
		if _, ok := r.Score(category); !ok {
			continue
		}
		d := *r.TestDate
		if lo.IsZero() || d.Before(lo) {
			lo = d
		}
		if hi.IsZero() || d.After(hi) {
			hi = d
		}
	}
	if lo.IsZero() {
		return "N/A"
	}
	return lo.Format("01/02/2006") + " - " + hi.Format("01/02/2006")
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return sum(xs) / float64(len(xs))
}

func sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}

// Table renders recommendations with the key column named for the mode.
func Table(recs []model.Recommendation, mode Mode) *table.Table {
	keyCol := model.ColTest
	if mode == ByYear {
		keyCol = "Test Year"
	}
	t := table.New("Category", "Average Score", "Item Count", "Rank", "Test Date Range", keyCol)
	for _, r := range recs {
		key := table.String(r.Key)
		if mode == ByYear {
			if y, err := strconv.Atoi(r.Key); err == nil {
				key = table.Int(y)
			}
		}
		t.Append(
			table.String(r.Category),
			table.Number(r.AverageScore),
			table.Number(r.ItemCount),
			table.Int(r.Rank),
			table.String(r.DateRange),
			key,
		)
	}
	return t
}

// HeaderID is the message ID of the section header printed above a
// recommendation table.
func HeaderID(mode Mode) string {
	if mode == ByYear {
		return "StudentRecommendationsHeader"
	}
	return "ClassRecommendationsHeader"
}
