package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dalton-wilson/CBM/internal/model"
	"github.com/dalton-wilson/CBM/internal/scoring"
)

// Finding is an item without a category found by Check.
type Finding struct {
	Administrator string `json:"administrator"`
	Test          string `json:"test"`
	Item          string `json:"item"`
}

// Check reads every item table and reports the items whose category is
// blank. Schema mismatches are returned as errors; missing extracts are
// logged and skipped.
func (p *Pipeline) Check(ctx context.Context) ([]Finding, error) {
	admins, err := p.src.Administrators()
	if err != nil {
		return nil, err
	}
	var out []Finding
	for _, admin := range admins {
		if !p.cfg.wantAdmin(admin) {
			continue
		}
		tests, err := p.src.Tests(admin)
		if err != nil {
			return nil, err
		}
		for _, test := range tests {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			t, err := p.src.ItemTable(admin, test)
			if err != nil {
				slog.Warn("cannot read item table", "admin", admin, "test", test, "error", err)
				continue
			}
			items, err := p.mapping.Items(t, admin, test)
			if err != nil {
				if model.IsDataMissing(err) {
					slog.Warn("item table has no categories", "admin", admin, "test", test, "error", err)
					continue
				}
				return nil, err
			}
			for _, it := range scoring.CheckMissingCategories(items) {
				out = append(out, Finding{Administrator: admin, Test: test, Item: it.Item})
			}
		}
	}
	return out, nil
}

// recordInputs stores a content hash of every source file against the run.
func (p *Pipeline) recordInputs(ctx context.Context, rec Recorder, runID string) error {
	files, err := p.src.Files()
	if err != nil {
		return err
	}
	for _, path := range files {
		sum, err := hashFile(path)
		if err != nil {
			return err
		}
		if err := rec.MarkImported(ctx, path, sum, runID); err != nil {
			return err
		}
	}
	return nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
