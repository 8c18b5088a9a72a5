package harness

import (
	"time"

	"verifyctl/internal/metrics"
)

// Phase tracks where a scenario is in its lifecycle. Transitions are strictly
// ordered and teardown runs exactly once for every scenario that left Idle.
type Phase string

const (
	// PhaseIdle is the initial phase, before any side effect.
	PhaseIdle Phase = "IDLE"
	// PhasePrepared means fixtures are in place but the controller is not up.
	PhasePrepared Phase = "PREPARED"
	// PhaseRunning means the controller answered its readiness probe and
	// steps are executing.
	PhaseRunning Phase = "RUNNING"
	// PhaseTornDown is terminal: cleanup has run, successfully or not.
	PhaseTornDown Phase = "TORN_DOWN"
)

// Result represents the outcome of a step, scenario or suite.
type Result string

const (
	// ResultPassed indicates every assertion held.
	ResultPassed Result = "PASSED"
	// ResultFailed indicates a convergence or release-status assertion failed.
	ResultFailed Result = "FAILED"
	// ResultSkipped indicates the scenario was not executed.
	ResultSkipped Result = "SKIPPED"
	// ResultError indicates a tool or process failure before any assertion.
	ResultError Result = "ERROR"
)

// Scenario defines a single verification scenario.
type Scenario struct {
	// Name is the unique identifier for the scenario.
	Name string `yaml:"name"`
	// Description provides a human-readable summary.
	Description string `yaml:"description,omitempty"`
	// Controller selects launch options for the controller-under-test.
	Controller ControllerOptions `yaml:"controller,omitempty"`
	// Helm configures the release tool before the controller starts.
	Helm *HelmOptions `yaml:"helm,omitempty"`
	// Prepare puts fixtures in place before the controller starts.
	Prepare PrepareSpec `yaml:"prepare,omitempty"`
	// Steps are executed in order; the first failure stops the scenario.
	Steps []Step `yaml:"steps"`
	// Teardown lists cleanup beyond the automatic fixture unwinding.
	Teardown TeardownSpec `yaml:"teardown,omitempty"`
}

// ControllerOptions selects how the controller-under-test is launched.
type ControllerOptions struct {
	// NoOp disables the controller's real mutation side effects.
	NoOp bool `yaml:"nop"`
	// CRDFilter restricts which resources the controller watches.
	CRDFilter string `yaml:"crdFilter,omitempty"`
}

// HelmOptions configures the release tool for a scenario.
type HelmOptions struct {
	// Init initializes the release tool's local state before the run.
	Init bool `yaml:"init"`
	// Repos are chart repositories added best-effort before the run.
	Repos []Repo `yaml:"repos,omitempty"`
}

// Repo names a chart repository.
type Repo struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// PrepareSpec lists fixture work done before the controller starts. Applies
// are strict; deletes are best-effort and clear leftovers from earlier runs.
type PrepareSpec struct {
	Apply  []string `yaml:"apply,omitempty"`
	Delete []string `yaml:"delete,omitempty"`
}

// TeardownSpec lists cleanup beyond the automatic unwinding of applied
// fixtures: extra fixture deletes and release deletes, all best-effort.
type TeardownSpec struct {
	Delete   []string `yaml:"delete,omitempty"`
	Releases []string `yaml:"releases,omitempty"`
}

// Step is one scenario action. Exactly one of Apply, Delete or AwaitRelease
// must be set.
type Step struct {
	// Name is the step identifier.
	Name string `yaml:"name"`
	// Apply submits a fixture to the watched system.
	Apply string `yaml:"apply,omitempty"`
	// Delete removes a fixture from the watched system.
	Delete string `yaml:"delete,omitempty"`
	// Strict makes a delete failure fatal instead of best-effort.
	Strict bool `yaml:"strict,omitempty"`
	// AwaitRelease polls the release tool's status output for a release.
	AwaitRelease *ReleaseCheck `yaml:"awaitRelease,omitempty"`
	// TimestampMetric names a timestamp metric whose value must strictly
	// exceed its pre-mutation baseline once Expect converges.
	TimestampMetric string `yaml:"timestampMetric,omitempty"`
	// Expect is the counter state the controller must converge to.
	Expect *metrics.Expectation `yaml:"expect,omitempty"`
}

// ReleaseCheck describes the expected release status output.
type ReleaseCheck struct {
	// Release is the release name queried.
	Release string `yaml:"release"`
	// Contains are substrings the status output must eventually contain.
	Contains []string `yaml:"contains,omitempty"`
	// NotContains are substrings that fail the step if present in the first
	// status answer.
	NotContains []string `yaml:"notContains,omitempty"`
}

// ResourceTool submits fixtures to and removes them from the watched system.
type ResourceTool interface {
	Apply(path string) error
	Delete(path string, strict bool) error
}

// ReleaseTool manages releases through the external release CLI. Status and
// Delete never fail: a failing status query answers with the tool's own
// output, and deletes are best-effort.
type ReleaseTool interface {
	Init() error
	Status(release string) string
	Delete(release string)
	RepoAdd(name, url string) error
}

// MetricsGate reads the controller's observability endpoints and waits for
// convergence.
type MetricsGate interface {
	Ready() (bool, error)
	Timestamp(metric string) (float64, error)
	WaitForCounts(want metrics.Expectation) error
	WaitForTimestampAfter(metric string, baseline float64, events int) error
}

// ControllerHandle is one running controller process. A scenario owns at most
// one live handle; Stop is safe to call more than once.
type ControllerHandle interface {
	PID() int
	Alive() bool
	Stop(timeout time.Duration)
}

// ControllerStarter launches the controller-under-test for one scenario.
type ControllerStarter func(opts ControllerOptions) (ControllerHandle, error)

// StepResult represents the outcome of a single step.
type StepResult struct {
	// Name is the step identifier.
	Name string `json:"name"`
	// Result is the outcome of the step.
	Result Result `json:"result"`
	// Duration of step execution.
	Duration time.Duration `json:"duration"`
	// Error message if the step failed.
	Error string `json:"error,omitempty"`
}

// ScenarioResult represents the outcome of a single scenario.
type ScenarioResult struct {
	// Name is the scenario identifier.
	Name string `json:"name"`
	// Result is the overall outcome of the scenario.
	Result Result `json:"result"`
	// Phase the scenario ended in; TornDown for every executed scenario.
	Phase Phase `json:"phase"`
	// StartTime when scenario execution began.
	StartTime time.Time `json:"start_time"`
	// EndTime when scenario execution completed.
	EndTime time.Time `json:"end_time"`
	// Duration of scenario execution.
	Duration time.Duration `json:"duration"`
	// StepResults contains individual step results.
	StepResults []StepResult `json:"step_results"`
	// Error message if the scenario failed or had an error.
	Error string `json:"error,omitempty"`
}

// SuiteResult represents the outcome of a full suite run.
type SuiteResult struct {
	// StartTime when suite execution began.
	StartTime time.Time `json:"start_time"`
	// EndTime when suite execution completed.
	EndTime time.Time `json:"end_time"`
	// Duration of suite execution.
	Duration time.Duration `json:"duration"`
	// TotalScenarios is the number of scenarios in the suite.
	TotalScenarios int `json:"total_scenarios"`
	// PassedScenarios is the number of scenarios that passed.
	PassedScenarios int `json:"passed_scenarios"`
	// FailedScenarios is the number of scenarios that failed an assertion.
	FailedScenarios int `json:"failed_scenarios"`
	// SkippedScenarios is the number of scenarios not executed.
	SkippedScenarios int `json:"skipped_scenarios"`
	// ErrorScenarios is the number of scenarios with tool or process errors.
	ErrorScenarios int `json:"error_scenarios"`
	// ScenarioResults contains individual scenario results.
	ScenarioResults []ScenarioResult `json:"scenario_results"`
}

// Reporter receives progress events while a suite runs.
type Reporter interface {
	// SuiteStart is called once before the first scenario.
	SuiteStart(total int)
	// ScenarioStart is called when a scenario begins.
	ScenarioStart(scenario Scenario)
	// StepResult is called when a step completes.
	StepResult(result StepResult)
	// ScenarioResult is called when a scenario completes.
	ScenarioResult(result ScenarioResult)
	// SuiteResult is called once after the last scenario.
	SuiteResult(result SuiteResult)
}
