package harness

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// consoleReporter prints progress to stdout, compact by default and
// step-by-step in verbose mode.
type consoleReporter struct {
	verbose    bool
	reportPath string
}

// NewConsoleReporter creates the default reporter. With a non-empty
// reportPath a JSON report file is written into that directory after the run.
func NewConsoleReporter(verbose bool, reportPath string) Reporter {
	return &consoleReporter{
		verbose:    verbose,
		reportPath: reportPath,
	}
}

func (r *consoleReporter) SuiteStart(total int) {
	fmt.Printf("🧪 Starting verifyctl\n")
	fmt.Printf("📋 Scenarios: %d\n\n", total)
}

func (r *consoleReporter) ScenarioStart(scenario Scenario) {
	if r.verbose {
		fmt.Printf("🎯 Starting scenario: %s\n", scenario.Name)
		if scenario.Description != "" {
			fmt.Printf("   📝 %s\n", scenario.Description)
		}
		fmt.Printf("   📋 Steps: %d\n", len(scenario.Steps))
		if scenario.Controller.CRDFilter != "" {
			fmt.Printf("   🔍 Filter: %s\n", scenario.Controller.CRDFilter)
		}
		fmt.Printf("\n")
	} else {
		fmt.Printf("🎯 %s... ", scenario.Name)
	}
}

func (r *consoleReporter) StepResult(result StepResult) {
	if !r.verbose {
		return
	}
	fmt.Printf("   %s Step: %s (%v)\n", resultSymbol(result.Result), result.Name, result.Duration)
	if result.Error != "" {
		fmt.Printf("     ❌ Error: %s\n", result.Error)
	}
}

func (r *consoleReporter) ScenarioResult(result ScenarioResult) {
	symbol := resultSymbol(result.Result)

	if r.verbose {
		fmt.Printf("%s Scenario completed: %s (%v)\n", symbol, result.Name, result.Duration)
		if result.Error != "" {
			fmt.Printf("   ❌ Error: %s\n", result.Error)
		}

		passed := 0
		failed := 0
		errors := 0
		for _, stepResult := range result.StepResults {
			switch stepResult.Result {
			case ResultPassed:
				passed++
			case ResultFailed:
				failed++
			case ResultError:
				errors++
			}
		}
		fmt.Printf("   📊 Steps: %d passed", passed)
		if failed > 0 {
			fmt.Printf(", %d failed", failed)
		}
		if errors > 0 {
			fmt.Printf(", %d errors", errors)
		}
		fmt.Printf("\n\n")
	} else {
		fmt.Printf("%s (%v)\n", symbol, result.Duration)
	}
}

func (r *consoleReporter) SuiteResult(result SuiteResult) {
	fmt.Printf("\n🏁 Verification Complete\n")
	fmt.Printf("⏱️  Duration: %v\n", result.Duration)
	fmt.Printf("📊 Results:\n")
	fmt.Printf("   ✅ Passed: %d\n", result.PassedScenarios)
	if result.FailedScenarios > 0 {
		fmt.Printf("   ❌ Failed: %d\n", result.FailedScenarios)
	}
	if result.ErrorScenarios > 0 {
		fmt.Printf("   💥 Errors: %d\n", result.ErrorScenarios)
	}
	if result.SkippedScenarios > 0 {
		fmt.Printf("   ⏭️  Skipped: %d\n", result.SkippedScenarios)
	}
	fmt.Printf("   📈 Total: %d\n", result.TotalScenarios)

	if result.FailedScenarios == 0 && result.ErrorScenarios == 0 {
		fmt.Printf("\n🎉 All scenarios passed!\n")
	} else {
		fmt.Printf("\n💔 Some scenarios failed\n")
	}

	if r.reportPath != "" {
		if path, err := saveReport(r.reportPath, result); err != nil {
			fmt.Printf("⚠️  Failed to save report: %v\n", err)
		} else {
			fmt.Printf("📄 Report saved to: %s\n", path)
		}
	}
}

// saveReport writes the suite result as an indented JSON file into dir and
// returns the file path.
func saveReport(dir string, result SuiteResult) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	path := filepath.Join(dir, fmt.Sprintf("verifyctl-report-%s.json", timestamp))

	jsonData, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report to JSON: %w", err)
	}
	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	return path, nil
}

func resultSymbol(result Result) string {
	switch result {
	case ResultPassed:
		return "✅"
	case ResultFailed:
		return "❌"
	case ResultSkipped:
		return "⏭️"
	case ResultError:
		return "💥"
	default:
		return "❓"
	}
}

// NewQuietReporter creates a reporter that only reports failures and the
// final summary, for CI pipelines.
func NewQuietReporter() Reporter {
	return &quietReporter{}
}

type quietReporter struct{}

func (r *quietReporter) SuiteStart(total int) {}

func (r *quietReporter) ScenarioStart(scenario Scenario) {}

func (r *quietReporter) StepResult(result StepResult) {}

func (r *quietReporter) ScenarioResult(result ScenarioResult) {
	if result.Result == ResultFailed || result.Result == ResultError {
		symbol := "❌"
		if result.Result == ResultError {
			symbol = "💥"
		}
		fmt.Printf("%s %s: %s\n", symbol, result.Name, result.Error)
	}
}

func (r *quietReporter) SuiteResult(result SuiteResult) {
	if result.FailedScenarios == 0 && result.ErrorScenarios == 0 {
		fmt.Printf("✅ All %d scenarios passed\n", result.PassedScenarios)
	} else {
		fmt.Printf("❌ %d/%d scenarios failed\n",
			result.FailedScenarios+result.ErrorScenarios,
			result.TotalScenarios)
	}
}
