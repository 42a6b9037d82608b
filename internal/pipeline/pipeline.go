// Package pipeline runs the scoring, combining, dating, grouping and ranking
// stages and stores every derived table.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/dalton-wilson/CBM/internal/combine"
	"github.com/dalton-wilson/CBM/internal/dates"
	"github.com/dalton-wilson/CBM/internal/group"
	"github.com/dalton-wilson/CBM/internal/model"
	"github.com/dalton-wilson/CBM/internal/progress"
	"github.com/dalton-wilson/CBM/internal/rank"
	"github.com/dalton-wilson/CBM/internal/schema"
	"github.com/dalton-wilson/CBM/internal/scoring"
	"github.com/dalton-wilson/CBM/internal/source"
	"github.com/dalton-wilson/CBM/internal/table"
)

// Recorder keeps the trace of runs. Stores that implement it get run rows
// and input hashes written.
type Recorder interface {
	StartRun(ctx context.Context, id string, started time.Time) error
	FinishRun(ctx context.Context, info model.RunInfo) error
	MarkImported(ctx context.Context, path, hash, runID string) error
}

// Failure is a test skipped because of missing data.
type Failure struct {
	Administrator string `json:"administrator"`
	Test          string `json:"test"`
	Reason        string `json:"reason"`
}

// RunReport summarizes a run.
type RunReport struct {
	RunID           string              `json:"run_id"`
	StartedAt       time.Time           `json:"started_at"`
	FinishedAt      time.Time           `json:"finished_at"`
	Administrators  int                 `json:"administrators"`
	Tests           int                 `json:"tests"`
	Scored          int                 `json:"scored"`
	Failures        []Failure           `json:"failures"`
	Ambiguities     []scoring.Ambiguity `json:"ambiguities"`
	MasterRows      int                 `json:"master_rows"`
	StudentGroups   int                 `json:"student_groups"`
	ClassGroups     int                 `json:"class_groups"`
	Recommendations int                 `json:"recommendations"`
}

// Pipeline wires a source and a store.
type Pipeline struct {
	cfg     Config
	src     source.Source
	store   TableStore
	mapping *schema.Mapping
	grades  model.GradeLevelMap
	now     func() time.Time
}

// New returns a pipeline. A nil mapping means schema.Default().
func New(cfg Config, src source.Source, st TableStore, mapping *schema.Mapping, grades model.GradeLevelMap) *Pipeline {
	if mapping == nil {
		mapping = schema.Default()
	}
	return &Pipeline{cfg: cfg, src: src, store: st, mapping: mapping, grades: grades, now: time.Now}
}

// Run rebuilds every derived table. Tests with missing data are reported
// and skipped; a schema mismatch aborts the run.
func (p *Pipeline) Run(ctx context.Context) (*RunReport, error) {
	rep := &RunReport{RunID: uuid.New().String(), StartedAt: p.now()}
	ctx = model.WithRunID(ctx, rep.RunID)
	log := slog.With("run", rep.RunID)

	rec, _ := p.store.(Recorder)
	if rec != nil {
		if err := rec.StartRun(ctx, rep.RunID, rep.StartedAt); err != nil {
			return nil, err
		}
	}

	err := p.run(ctx, log, rep, rec)
	rep.FinishedAt = p.now()

	if rec != nil {
		status := model.RunSucceeded
		if err != nil {
			status = model.RunFailed
		}
		finished := rep.FinishedAt
		ferr := rec.FinishRun(ctx, model.RunInfo{
			ID:         rep.RunID,
			StartedAt:  rep.StartedAt,
			FinishedAt: &finished,
			Status:     status,
			Tests:      rep.Tests,
			Failures:   len(rep.Failures),
		})
		if err == nil && ferr != nil {
			err = ferr
		}
	}
	if err != nil {
		return rep, err
	}
	log.Info("run finished",
		"tests", rep.Tests, "scored", rep.Scored, "failures", len(rep.Failures),
		"ambiguities", len(rep.Ambiguities), "elapsed", rep.FinishedAt.Sub(rep.StartedAt))
	return rep, nil
}

func (p *Pipeline) run(ctx context.Context, log *slog.Logger, rep *RunReport, rec Recorder) error {
	if err := p.clear(ctx); err != nil {
		return err
	}
	if rec != nil {
		if err := p.recordInputs(ctx, rec, rep.RunID); err != nil {
			return err
		}
	}

	admins, err := p.src.Administrators()
	if err != nil {
		return err
	}

	perAdmin := make(map[string][]model.MasterRow)
	for _, admin := range admins {
		if !p.cfg.wantAdmin(admin) {
			continue
		}
		rep.Administrators++
		rows, err := p.scoreAdministrator(ctx, log, admin, rep)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			continue
		}
		if err := p.store.PutTable(ctx, CombinedKey(admin), combine.ToTable(rows)); err != nil {
			return err
		}

		rows, err = p.enrich(admin, rows, log)
		if err != nil {
			return err
		}
		if err := p.store.PutTable(ctx, DatedKey(admin), combine.ToTable(rows)); err != nil {
			return err
		}
		perAdmin[admin] = rows
	}

	master := combine.Master(perAdmin, p.grades)
	rep.MasterRows = len(master)
	if err := p.store.PutTable(ctx, KeyMaster, combine.ToTable(master)); err != nil {
		return err
	}
	if err := p.storeAmbiguities(ctx, rep.Ambiguities); err != nil {
		return err
	}
	return p.publish(ctx, master, rep)
}

func (p *Pipeline) scoreAdministrator(ctx context.Context, log *slog.Logger, admin string, rep *RunReport) ([]model.MasterRow, error) {
	tests, err := p.src.Tests(admin)
	if err != nil {
		return nil, err
	}
	var scored []model.TestScores
	for _, test := range tests {
		rep.Tests++
		res, err := p.scoreTest(admin, test)
		switch {
		case err == nil:
		case model.IsDataMissing(err) || errors.Is(err, os.ErrNotExist):
			log.Warn("skipping test", "admin", admin, "test", test, "error", err)
			rep.Failures = append(rep.Failures, Failure{Administrator: admin, Test: test, Reason: err.Error()})
			continue
		default:
			return nil, fmt.Errorf("score %s/%s: %w", admin, test, err)
		}

		rep.Scored++
		rep.Ambiguities = append(rep.Ambiguities, res.Ambiguities...)
		scored = append(scored, res.Scores)
		single := combine.Administrator(admin, []model.TestScores{res.Scores})
		if err := p.store.PutTable(ctx, SingleKey(admin, test), combine.ToTable(single)); err != nil {
			return nil, err
		}
		log.Debug("scored test", "admin", admin, "test", test, "students", len(res.Scores.Rows))
	}
	return combine.Administrator(admin, scored), nil
}

func (p *Pipeline) scoreTest(admin, test string) (*scoring.Result, error) {
	itemTable, err := p.src.ItemTable(admin, test)
	if err != nil {
		return nil, err
	}
	scoreTable, err := p.src.ScoreTable(admin, test)
	if err != nil {
		return nil, err
	}
	items, err := p.mapping.Items(itemTable, admin, test)
	if err != nil {
		return nil, err
	}
	scores, err := p.mapping.Scores(scoreTable, admin, test)
	if err != nil {
		return nil, err
	}
	if p.cfg.BypassMissing {
		if missing := scoring.CheckMissingCategories(items); len(missing) > 0 {
			slog.Warn("dropping items without a category", "admin", admin, "test", test, "items", len(missing))
			items = scoring.DropMissingCategories(items)
		}
	}
	return scoring.Score(scoring.Input{Administrator: admin, Test: test, Items: items, Scores: scores})
}

func (p *Pipeline) enrich(admin string, rows []model.MasterRow, log *slog.Logger) ([]model.MasterRow, error) {
	name, t, err := p.src.RosterDates(admin)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn("no roster-dates table; tests stay undated", "admin", admin)
		return rows, nil
	}
	if err != nil {
		return nil, err
	}
	roster, err := dates.NewRoster(name, t, p.mapping)
	if err != nil {
		return nil, err
	}
	return dates.Enrich(rows, roster), nil
}

// Regroup rebuilds the group, recommendation and progress tables from the
// stored master table.
func Regroup(ctx context.Context, st TableStore) (*RunReport, error) {
	t, err := st.GetTable(ctx, KeyMaster)
	if err != nil {
		return nil, err
	}
	master, err := combine.FromTable(t)
	if err != nil {
		return nil, err
	}
	for _, prefix := range []string{GroupPrefix(group.KindStudent), GroupPrefix(group.KindClass), PrefixRecommend, PrefixProgress} {
		if err := st.DeleteTables(ctx, prefix); err != nil {
			return nil, err
		}
	}
	p := &Pipeline{store: st}
	rep := &RunReport{MasterRows: len(master)}
	return rep, p.publish(ctx, master, rep)
}

// publish groups the master rows and stores each group's table,
// recommendations and progress series.
func (p *Pipeline) publish(ctx context.Context, master []model.MasterRow, rep *RunReport) error {
	students := group.ByStudent(master)
	classes := group.ByClass(master)
	rep.StudentGroups = len(students)
	rep.ClassGroups = len(classes)

	for _, g := range append(students, classes...) {
		if err := p.store.PutTable(ctx, GroupKey(g.Kind, g.Name), g.Table()); err != nil {
			return err
		}
		recs := rank.Group(g)
		rep.Recommendations += len(recs)
		if err := p.store.PutTable(ctx, RecommendKey(g.Kind, g.Name), rank.Table(recs, rank.ModeFor(g.Kind))); err != nil {
			return err
		}
		if err := p.store.PutTable(ctx, ProgressKey(g.Kind, g.Name), progress.Table(g.Rows)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) clear(ctx context.Context) error {
	for _, prefix := range outputPrefixes {
		if err := p.store.DeleteTables(ctx, prefix); err != nil {
			return fmt.Errorf("clear %s: %w", prefix, err)
		}
	}
	return nil
}

func (p *Pipeline) storeAmbiguities(ctx context.Context, amb []scoring.Ambiguity) error {
	t := table.New(model.ColAdministrator, model.ColTest, model.ColStudentName, model.ColItem, "Conflicts")
	for _, a := range amb {
		conflicts := ""
		for i, c := range a.Conflicts {
			if i > 0 {
				conflicts += "; "
			}
			conflicts += c
		}
		t.Append(table.String(a.Administrator), table.String(a.Test), table.String(a.Student), table.String(a.Item), table.String(conflicts))
	}
	return p.store.PutTable(ctx, PrefixAmbiguous, t)
}
