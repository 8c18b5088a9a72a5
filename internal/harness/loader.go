package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadScenarios reads every YAML scenario in dir, sorted by filename so the
// execution order is stable across machines.
func LoadScenarios(dir string) ([]Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	scenarios := make([]Scenario, 0, len(files))
	names := make(map[string]string)
	for _, file := range files {
		path := filepath.Join(dir, file)
		scenario, err := loadScenarioFile(path)
		if err != nil {
			return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
		}
		if previous, exists := names[scenario.Name]; exists {
			return nil, fmt.Errorf("scenario name %q in %s already used by %s", scenario.Name, file, previous)
		}
		names[scenario.Name] = file
		scenarios = append(scenarios, scenario)
	}
	return scenarios, nil
}

func loadScenarioFile(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, err
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	// Unknown fields are almost always typos in expectation keys; a silently
	// dropped expectation would make a scenario pass vacuously.
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return Scenario{}, err
	}
	if err := validateScenario(scenario); err != nil {
		return Scenario{}, err
	}
	return scenario, nil
}

func validateScenario(scenario Scenario) error {
	if scenario.Name == "" {
		return fmt.Errorf("scenario name must be set")
	}
	if len(scenario.Steps) == 0 {
		return fmt.Errorf("scenario %s has no steps", scenario.Name)
	}

	for i, step := range scenario.Steps {
		label := step.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
		}

		actions := 0
		if step.Apply != "" {
			actions++
		}
		if step.Delete != "" {
			actions++
		}
		if step.AwaitRelease != nil {
			actions++
		}
		if actions != 1 {
			return fmt.Errorf("step %s must have exactly one of apply, delete or awaitRelease", label)
		}
		if step.Strict && step.Delete == "" {
			return fmt.Errorf("step %s sets strict without a delete", label)
		}
		if step.TimestampMetric != "" && step.Expect == nil {
			return fmt.Errorf("step %s sets timestampMetric without an expect block", label)
		}
		if step.AwaitRelease != nil {
			if step.AwaitRelease.Release == "" {
				return fmt.Errorf("step %s awaits a release without a name", label)
			}
			if len(step.AwaitRelease.Contains) == 0 && len(step.AwaitRelease.NotContains) == 0 {
				return fmt.Errorf("step %s awaits release %s without any status checks", label, step.AwaitRelease.Release)
			}
		}
	}
	return nil
}

// Filter returns the scenarios whose name matches, or all scenarios when the
// name is empty. Matching is case-insensitive.
func Filter(scenarios []Scenario, name string) []Scenario {
	if name == "" {
		return scenarios
	}
	var matched []Scenario
	for _, scenario := range scenarios {
		if strings.EqualFold(scenario.Name, name) {
			matched = append(matched, scenario)
		}
	}
	return matched
}
