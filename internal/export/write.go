package export

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/dalton-wilson/CBM/internal/group"
	"github.com/dalton-wilson/CBM/internal/i18n"
	"github.com/dalton-wilson/CBM/internal/progress"
)

// Formats accepted by WriteAll.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// Sheet names of the workbook.
const (
	SheetData            = "Data"
	SheetRecommendations = "Recommendations"
	SheetProgress        = "Progress"
)

// WriteCSV writes the data table, two blank lines, the section header and
// the recommendation table. Without recommendations only the data table is
// written.
func (r *Report) WriteCSV(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if err := r.Data.WriteCSV(bw); err != nil {
		return err
	}
	if r.Recommendations.Len() > 0 {
		if _, err := fmt.Fprintf(bw, "\n\n%s\n", r.Header); err != nil {
			return fmt.Errorf("write section header: %w", err)
		}
		if err := r.Recommendations.WriteCSV(bw); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteXLSX writes a workbook with Data, Recommendations and Progress
// sheets. The progress sheet carries a line chart with one series per
// category when it has any points.
func (r *Report) WriteXLSX(ctx context.Context, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetData); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := r.Data.WriteSheet(f, SheetData, 1); err != nil {
		return err
	}

	if _, err := f.NewSheet(SheetRecommendations); err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}
	if err := f.SetCellValue(SheetRecommendations, "A1", r.Header); err != nil {
		return fmt.Errorf("write section header: %w", err)
	}
	if _, err := r.Recommendations.WriteSheet(f, SheetRecommendations, 2); err != nil {
		return err
	}

	if _, err := f.NewSheet(SheetProgress); err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}
	if _, err := r.Progress.WriteSheet(f, SheetProgress, 1); err != nil {
		return err
	}
	if err := r.addProgressChart(ctx, f); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// addProgressChart plots every category column of the progress sheet
// against the test dates.
func (r *Report) addProgressChart(ctx context.Context, f *excelize.File) error {
	n := r.Progress.Len()
	if n == 0 {
		return nil
	}
	dateCol := r.Progress.Index(progress.ColTestDate) + 1
	lastRow := n + 1

	var series []excelize.ChartSeries
	for j, c := range r.Progress.Columns {
		if c == progress.ColTestGroup || c == progress.ColTestDate {
			continue
		}
		series = append(series, excelize.ChartSeries{
			Name:       ref(SheetProgress, j+1, 1, j+1, 1),
			Categories: ref(SheetProgress, dateCol, 2, dateCol, lastRow),
			Values:     ref(SheetProgress, j+1, 2, j+1, lastRow),
		})
	}
	if len(series) == 0 {
		return nil
	}

	anchor, err := excelize.CoordinatesToCellName(len(r.Progress.Columns)+2, 1)
	if err != nil {
		return err
	}
	chart := &excelize.Chart{
		Type:   excelize.Line,
		Series: series,
		Title:  []excelize.RichTextRun{{Text: i18n.T(ctx, "ProgressChartTitle")}},
		Legend: excelize.ChartLegend{Position: "bottom"},
	}
	if err := f.AddChart(SheetProgress, anchor, chart); err != nil {
		return fmt.Errorf("add progress chart: %w", err)
	}
	return nil
}

// ref builds an absolute range reference such as 'Progress'!$C$2:$C$9.
func ref(sheet string, c1, r1, c2, r2 int) string {
	from, _ := excelize.CoordinatesToCellName(c1, r1, true)
	to, _ := excelize.CoordinatesToCellName(c2, r2, true)
	if from == to {
		return fmt.Sprintf("'%s'!%s", sheet, from)
	}
	return fmt.Sprintf("'%s'!%s:%s", sheet, from, to)
}

// WriteAll writes every stored report below root in the given format and
// returns the paths written.
func WriteAll(ctx context.Context, r Reader, root, format string) ([]string, error) {
	if format != FormatCSV && format != FormatXLSX {
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
	reports, err := LoadAll(ctx, r, group.KindClass, group.KindStudent)
	if err != nil {
		return nil, err
	}

	var written []string
	for _, rep := range reports {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		path := filepath.Join(root, rep.Path("."+format))
		if err := writeFile(ctx, rep, path, format); err != nil {
			return written, err
		}
		slog.Debug("wrote report", "path", path)
		written = append(written, path)
	}
	slog.Info("exported reports", "count", len(written), "root", root, "format", format)
	return written, nil
}

func writeFile(ctx context.Context, rep *Report, path, format string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if format == FormatXLSX {
		err = rep.WriteXLSX(ctx, f)
	} else {
		err = rep.WriteCSV(f)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
