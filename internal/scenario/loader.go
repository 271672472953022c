package scenario

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
)

// Loader loads and validates scenario fixtures from a directory of
// SCN-*.json files.
type Loader struct {
	dir string
	log *zap.Logger

	scenarios map[string]Scenario
}

// NewLoader creates a Loader rooted at dir.
func NewLoader(dir string, log *zap.Logger) *Loader {
	return &Loader{dir: dir, log: log, scenarios: make(map[string]Scenario)}
}

// LoadAll loads every SCN-*.json file in the loader's directory, logging
// and skipping any file that fails to parse or validate. Duplicate
// scenario IDs are logged as a warning; the later file wins. Scenarios are
// returned sorted by ID for deterministic run order.
func (l *Loader) LoadAll() ([]Scenario, error) {
	entries, err := filepath.Glob(filepath.Join(l.dir, "SCN-*.json"))
	if err != nil {
		return nil, fmt.Errorf("scenario: glob %q: %w", l.dir, err)
	}
	if len(entries) == 0 {
		l.log.Warn("scenario: no SCN-*.json files found", zap.String("dir", l.dir))
		return nil, nil
	}

	seen := make(map[string]bool)
	for _, path := range entries {
		scn, err := l.LoadOne(path)
		if err != nil {
			l.log.Error("scenario: failed to load", zap.String("path", path), zap.Error(err))
			continue
		}
		if seen[scn.ID] {
			l.log.Warn("scenario: duplicate scenario id, later file wins", zap.String("id", scn.ID))
		}
		seen[scn.ID] = true
		l.scenarios[scn.ID] = scn
	}

	out := make([]Scenario, 0, len(l.scenarios))
	for _, scn := range l.scenarios {
		out = append(out, scn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// LoadOne loads and validates a single scenario file.
func (l *Loader) LoadOne(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("scenario: read %q: %w", path, err)
	}

	var scn Scenario
	if err := json.Unmarshal(data, &scn); err != nil {
		return Scenario{}, fmt.Errorf("scenario: parse %q: %w", path, err)
	}
	if err := scn.Validate(); err != nil {
		return Scenario{}, fmt.Errorf("scenario: validate %q: %w", path, err)
	}
	return scn, nil
}

// Get returns a previously loaded scenario by ID.
func (l *Loader) Get(id string) (Scenario, bool) {
	s, ok := l.scenarios[id]
	return s, ok
}

// Count returns the number of currently loaded scenarios.
func (l *Loader) Count() int { return len(l.scenarios) }
