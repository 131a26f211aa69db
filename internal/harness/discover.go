package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ScenarioDirError is returned when a scenario directory doesn't exist or
// holds no scenarios.
type ScenarioDirError struct {
	Dir    string
	Reason string
}

// Error implements the error interface.
func (e *ScenarioDirError) Error() string {
	return fmt.Sprintf("scenario directory %q: %s", e.Dir, e.Reason)
}

// DiscoverScenarios returns the .yaml and .yml files directly under dir,
// sorted by path. A path to a single file is returned as is.
func DiscoverScenarios(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &ScenarioDirError{Dir: dir, Reason: "does not exist"}
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return []string{dir}, nil
	}

	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", pattern, err)
		}
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		return nil, &ScenarioDirError{Dir: dir, Reason: "no scenario files"}
	}
	sort.Strings(paths)
	return paths, nil
}
