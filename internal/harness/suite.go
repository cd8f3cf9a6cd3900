package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SuiteResult summarizes a directory of scenarios.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Results  []ScenarioOutcome `json:"scenarios"`
	Failures []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioOutcome is one scenario's pass/fail line.
type ScenarioOutcome struct {
	Name   string   `json:"name"`
	Path   string   `json:"path"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// ScenarioFailure represents a scenario that failed to load, run, or pass.
type ScenarioFailure struct {
	ScenarioPath string `json:"scenario_path"`
	Error        string `json:"error"`
}

// FindScenarios returns the .yaml/.yml files under dir, sorted. filter is
// an optional glob matched against the file name without extension.
func FindScenarios(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	sort.Strings(files)
	return files, err
}

// SuiteCheck is an extra check applied to each scenario that ran and
// passed its own assertions, such as a golden snapshot comparison.
type SuiteCheck func(scenario *Scenario, result *Result) error

// RunSuite loads and runs every scenario file in paths. Load and
// execution errors count as failures; they do not stop the suite.
func RunSuite(ctx context.Context, paths []string, checks ...SuiteCheck) *SuiteResult {
	result := &SuiteResult{Results: []ScenarioOutcome{}}

	for _, path := range paths {
		result.Total++
		fail := func(name, msg string, errs []string) {
			result.Failed++
			result.Results = append(result.Results, ScenarioOutcome{Name: name, Path: path, Errors: errs})
			result.Failures = append(result.Failures, ScenarioFailure{ScenarioPath: path, Error: msg})
		}

		scenario, err := LoadScenario(path)
		if err != nil {
			fail(filepath.Base(path), fmt.Sprintf("failed to load scenario: %v", err), []string{err.Error()})
			continue
		}

		runResult, err := Run(ctx, scenario)
		if err != nil {
			fail(scenario.Name, fmt.Sprintf("scenario execution failed: %v", err), []string{err.Error()})
			continue
		}
		if !runResult.Pass {
			fail(scenario.Name, fmt.Sprintf("scenario assertions failed: %v", runResult.Errors), runResult.Errors)
			continue
		}
		var checkErrs []string
		for _, check := range checks {
			if err := check(scenario, runResult); err != nil {
				checkErrs = append(checkErrs, err.Error())
			}
		}
		if len(checkErrs) > 0 {
			fail(scenario.Name, fmt.Sprintf("scenario checks failed: %v", checkErrs), checkErrs)
			continue
		}

		result.Passed++
		result.Results = append(result.Results, ScenarioOutcome{Name: scenario.Name, Path: path, Pass: true})
	}

	return result
}
