package harness

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"verifyctl/internal/controller"
	"verifyctl/internal/poll"
	"verifyctl/pkg/logging"
)

// Options configures a Runner.
type Options struct {
	// ReadyAttempts bounds the controller readiness probe retries.
	ReadyAttempts int
	// PollAttempts is the retry budget for every convergence check.
	PollAttempts int
	// PollInterval is the fixed wait between attempts.
	PollInterval time.Duration
	// StopTimeout bounds the graceful controller shutdown during teardown.
	StopTimeout time.Duration
	// FixtureDir is prepended to relative fixture paths.
	FixtureDir string
	// FailFast skips the remaining scenarios after the first failure.
	FailFast bool
}

// Runner executes scenarios sequentially. Each scenario gets its own
// controller process and its fixtures are unwound on every exit path.
type Runner struct {
	resources ResourceTool
	releases  ReleaseTool
	gate      MetricsGate
	start     ControllerStarter
	reporter  Reporter
	opts      Options
}

// NewRunner creates a Runner.
func NewRunner(resources ResourceTool, releases ReleaseTool, gate MetricsGate, start ControllerStarter, reporter Reporter, opts Options) *Runner {
	return &Runner{
		resources: resources,
		releases:  releases,
		gate:      gate,
		start:     start,
		reporter:  reporter,
		opts:      opts,
	}
}

// RunSuite executes the scenarios in order and reports progress as it goes.
// Cancelling the context skips the remaining scenarios; the scenario in
// flight still runs its teardown.
func (r *Runner) RunSuite(ctx context.Context, scenarios []Scenario) SuiteResult {
	suite := SuiteResult{
		StartTime:       time.Now(),
		TotalScenarios:  len(scenarios),
		ScenarioResults: make([]ScenarioResult, 0, len(scenarios)),
	}
	r.reporter.SuiteStart(len(scenarios))

	halted := false
	for _, scenario := range scenarios {
		if halted || ctx.Err() != nil {
			skipped := ScenarioResult{Name: scenario.Name, Result: ResultSkipped, Phase: PhaseIdle}
			suite.ScenarioResults = append(suite.ScenarioResults, skipped)
			suite.SkippedScenarios++
			r.reporter.ScenarioResult(skipped)
			continue
		}

		result := r.runScenario(ctx, scenario)
		suite.ScenarioResults = append(suite.ScenarioResults, result)
		switch result.Result {
		case ResultPassed:
			suite.PassedScenarios++
		case ResultFailed:
			suite.FailedScenarios++
		case ResultError:
			suite.ErrorScenarios++
		}
		r.reporter.ScenarioResult(result)

		if r.opts.FailFast && result.Result != ResultPassed {
			halted = true
		}
	}

	suite.EndTime = time.Now()
	suite.Duration = suite.EndTime.Sub(suite.StartTime)
	r.reporter.SuiteResult(suite)
	return suite
}

// scenarioState is the mutable per-scenario bookkeeping the teardown needs:
// the live controller handle and which fixtures are still in the system.
type scenarioState struct {
	handle  ControllerHandle
	applied []string
	deleted map[string]bool
}

func (s *scenarioState) noteApplied(fixture string) {
	for _, f := range s.applied {
		if f == fixture {
			return
		}
	}
	s.applied = append(s.applied, fixture)
	delete(s.deleted, fixture)
}

func (s *scenarioState) noteDeleted(fixture string) {
	if s.deleted == nil {
		s.deleted = make(map[string]bool)
	}
	s.deleted[fixture] = true
}

// pendingFixtures returns every applied fixture a step did not already
// delete, most recent first, followed by the explicit teardown deletes. The
// explicit list comes last so that a definition can be removed after the
// resources that depend on it.
func (s *scenarioState) pendingFixtures(explicit []string) []string {
	seen := make(map[string]bool)
	var fixtures []string
	for i := len(s.applied) - 1; i >= 0; i-- {
		f := s.applied[i]
		if seen[f] || s.deleted[f] {
			continue
		}
		seen[f] = true
		fixtures = append(fixtures, f)
	}
	for _, f := range explicit {
		if !seen[f] {
			seen[f] = true
			fixtures = append(fixtures, f)
		}
	}
	return fixtures
}

// runScenario executes one scenario through its lifecycle phases. The
// deferred teardown makes cleanup unconditional for every scenario that got
// past Idle, whatever happens in between.
func (r *Runner) runScenario(ctx context.Context, scenario Scenario) (result ScenarioResult) {
	result = ScenarioResult{
		Name:        scenario.Name,
		Result:      ResultPassed,
		Phase:       PhaseIdle,
		StartTime:   time.Now(),
		StepResults: make([]StepResult, 0, len(scenario.Steps)),
	}
	r.reporter.ScenarioStart(scenario)

	state := &scenarioState{}
	defer func() {
		r.teardown(scenario, state)
		result.Phase = PhaseTornDown
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
	}()

	if scenario.Helm != nil {
		if scenario.Helm.Init {
			if err := r.releases.Init(); err != nil {
				result.Result = ResultError
				result.Error = fmt.Sprintf("release tool init failed: %v", err)
				return result
			}
		}
		for _, repo := range scenario.Helm.Repos {
			if err := r.releases.RepoAdd(repo.Name, repo.URL); err != nil {
				logging.Warn("harness", "adding repo %s failed: %v", repo.Name, err)
			}
		}
	}

	for _, fixture := range scenario.Prepare.Delete {
		if err := r.resources.Delete(r.fixture(fixture), false); err != nil {
			logging.Warn("harness", "pre-run delete of %s failed: %v", fixture, err)
		}
	}
	for _, fixture := range scenario.Prepare.Apply {
		if err := r.resources.Apply(r.fixture(fixture)); err != nil {
			result.Result = ResultError
			result.Error = fmt.Sprintf("failed to prepare fixture %s: %v", fixture, err)
			return result
		}
		state.noteApplied(fixture)
	}
	result.Phase = PhasePrepared

	handle, err := r.start(scenario.Controller)
	if err != nil {
		result.Result = ResultError
		result.Error = fmt.Sprintf("failed to start controller: %v", err)
		return result
	}
	state.handle = handle

	if err := controller.WaitReady(r.gate.Ready, r.opts.ReadyAttempts, r.opts.PollInterval); err != nil {
		result.Result = ResultError
		result.Error = err.Error()
		return result
	}
	result.Phase = PhaseRunning

	for _, step := range scenario.Steps {
		if err := ctx.Err(); err != nil {
			result.Result = ResultError
			result.Error = fmt.Sprintf("scenario interrupted: %v", err)
			break
		}
		stepResult := r.runStep(step, state)
		result.StepResults = append(result.StepResults, stepResult)
		r.reporter.StepResult(stepResult)

		if stepResult.Result != ResultPassed {
			result.Result = stepResult.Result
			result.Error = stepResult.Error
			break
		}
	}
	return result
}

// runStep executes one step: capture the timestamp baseline, perform the
// action, then wait for the expected counter state.
func (r *Runner) runStep(step Step, state *scenarioState) StepResult {
	start := time.Now()
	fail := func(res Result, err error) StepResult {
		return StepResult{
			Name:     step.Name,
			Result:   res,
			Duration: time.Since(start),
			Error:    err.Error(),
		}
	}

	// The baseline must come from before the mutation, otherwise the
	// timestamp check could pass against its own update.
	var baseline float64
	if step.TimestampMetric != "" {
		value, err := r.gate.Timestamp(step.TimestampMetric)
		if err != nil {
			return fail(ResultError, err)
		}
		baseline = value
	}

	switch {
	case step.Apply != "":
		if err := r.resources.Apply(r.fixture(step.Apply)); err != nil {
			return fail(ResultError, err)
		}
		state.noteApplied(step.Apply)
	case step.Delete != "":
		if err := r.resources.Delete(r.fixture(step.Delete), step.Strict); err != nil {
			return fail(ResultError, err)
		}
		state.noteDeleted(step.Delete)
	case step.AwaitRelease != nil:
		if err := r.awaitRelease(*step.AwaitRelease); err != nil {
			return fail(ResultFailed, err)
		}
	}

	if step.Expect != nil {
		if err := r.gate.WaitForCounts(*step.Expect); err != nil {
			return fail(ResultFailed, err)
		}
		if step.TimestampMetric != "" {
			if err := r.gate.WaitForTimestampAfter(step.TimestampMetric, baseline, step.Expect.Events); err != nil {
				return fail(ResultFailed, err)
			}
		}
	}

	return StepResult{Name: step.Name, Result: ResultPassed, Duration: time.Since(start)}
}

// awaitRelease checks the first status answer for forbidden substrings, then
// polls until the output contains everything the check requires.
func (r *Runner) awaitRelease(check ReleaseCheck) error {
	initial := r.releases.Status(check.Release)
	for _, banned := range check.NotContains {
		if strings.Contains(initial, banned) {
			return fmt.Errorf("release %s status contains %q:\n%s", check.Release, banned, initial)
		}
	}

	_, err := poll.Until(func() (string, error) {
		return r.releases.Status(check.Release), nil
	}, func(text string) bool {
		for _, wanted := range check.Contains {
			if !strings.Contains(text, wanted) {
				return false
			}
		}
		return true
	}, r.opts.PollAttempts, r.opts.PollInterval)
	if err != nil {
		var timeout *poll.TimeoutError
		if errors.As(err, &timeout) {
			return fmt.Errorf("release %s never reported %v; last status:\n%s", check.Release, check.Contains, timeout.LastSnapshot)
		}
		return fmt.Errorf("release %s never reported %v: %w", check.Release, check.Contains, err)
	}
	return nil
}

// teardown unwinds a scenario: best-effort fixture deletes, best-effort
// release deletes, then a controller stop. Nothing here fails the scenario.
func (r *Runner) teardown(scenario Scenario, state *scenarioState) {
	for _, fixture := range state.pendingFixtures(scenario.Teardown.Delete) {
		if err := r.resources.Delete(r.fixture(fixture), false); err != nil {
			logging.Warn("harness", "teardown delete of %s failed: %v", fixture, err)
		}
	}
	for _, release := range scenario.Teardown.Releases {
		r.releases.Delete(release)
	}
	if state.handle != nil {
		state.handle.Stop(r.opts.StopTimeout)
	}
}

// fixture resolves a fixture reference against the fixture directory.
func (r *Runner) fixture(name string) string {
	if r.opts.FixtureDir == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(r.opts.FixtureDir, name)
}
