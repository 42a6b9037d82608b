// Package roster loads the current grade-level roster.
package roster

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/dalton-wilson/CBM/internal/model"
)

// Load reads a grade → students map from a JSON or YAML file, chosen by
// extension.
func Load(path string) (model.GradeLevelMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes roster data. ext is ".json", ".yaml" or ".yml".
func Parse(data []byte, ext string) (model.GradeLevelMap, error) {
	grades := model.GradeLevelMap{}
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &grades); err != nil {
			return nil, fmt.Errorf("parse roster json: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &grades); err != nil {
			return nil, fmt.Errorf("parse roster yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported roster format %q", ext)
	}
	for g, students := range grades {
		if strings.TrimSpace(g) == "" {
			return nil, fmt.Errorf("roster has a blank grade label")
		}
		var kept []string
		for _, s := range students {
			if strings.TrimSpace(s) != "" {
				kept = append(kept, s)
			}
		}
		grades[g] = kept
	}
	return grades, nil
}
