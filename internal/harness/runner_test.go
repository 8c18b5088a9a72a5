package harness

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verifyctl/internal/metrics"
)

// callLog records calls across all fakes so tests can assert ordering
// between tools, metrics checks and teardown.
type callLog struct {
	entries []string
}

func (l *callLog) add(format string, args ...interface{}) {
	l.entries = append(l.entries, fmt.Sprintf(format, args...))
}

func (l *callLog) index(entry string) int {
	for i, e := range l.entries {
		if e == entry {
			return i
		}
	}
	return -1
}

type fakeResources struct {
	log      *callLog
	applyErr map[string]error
}

func (f *fakeResources) Apply(path string) error {
	f.log.add("apply %s", path)
	return f.applyErr[path]
}

func (f *fakeResources) Delete(path string, strict bool) error {
	f.log.add("delete %s strict=%t", path, strict)
	return nil
}

type fakeReleases struct {
	log      *callLog
	initErr  error
	statuses []string
	deleted  []string
	repos    []string
}

func (f *fakeReleases) Init() error {
	f.log.add("helm init")
	return f.initErr
}

func (f *fakeReleases) Status(release string) string {
	f.log.add("helm status %s", release)
	if len(f.statuses) == 0 {
		return ""
	}
	status := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return status
}

func (f *fakeReleases) Delete(release string) {
	f.log.add("helm delete %s", release)
	f.deleted = append(f.deleted, release)
}

func (f *fakeReleases) RepoAdd(name, url string) error {
	f.log.add("helm repo add %s", name)
	f.repos = append(f.repos, name)
	return nil
}

type fakeGate struct {
	log        *callLog
	readyAfter int
	readyCalls int
	baselines  map[string]float64
	countsErr  error
	tsErr      error
}

func (f *fakeGate) Ready() (bool, error) {
	f.readyCalls++
	f.log.add("ready")
	return f.readyCalls > f.readyAfter, nil
}

func (f *fakeGate) Timestamp(metric string) (float64, error) {
	f.log.add("baseline %s", metric)
	return f.baselines[metric], nil
}

func (f *fakeGate) WaitForCounts(want metrics.Expectation) error {
	f.log.add("counts %d/%d/%d/%d/%d", want.Events, want.Managed, want.Created, want.Deleted, want.Updated)
	return f.countsErr
}

func (f *fakeGate) WaitForTimestampAfter(metric string, baseline float64, events int) error {
	f.log.add("timestamp-after %s %.1f %d", metric, baseline, events)
	return f.tsErr
}

type fakeHandle struct {
	log          *callLog
	stops        int
	stopTimeouts []time.Duration
}

func (h *fakeHandle) PID() int {
	return 4242
}

func (h *fakeHandle) Alive() bool {
	return h.stops == 0
}

func (h *fakeHandle) Stop(timeout time.Duration) {
	h.log.add("stop controller")
	h.stops++
	h.stopTimeouts = append(h.stopTimeouts, timeout)
}

type recordingReporter struct {
	events []string
}

func (r *recordingReporter) SuiteStart(total int) {
	r.events = append(r.events, fmt.Sprintf("suite-start %d", total))
}

func (r *recordingReporter) ScenarioStart(scenario Scenario) {
	r.events = append(r.events, "scenario-start "+scenario.Name)
}

func (r *recordingReporter) StepResult(result StepResult) {
	r.events = append(r.events, fmt.Sprintf("step %s %s", result.Name, result.Result))
}

func (r *recordingReporter) ScenarioResult(result ScenarioResult) {
	r.events = append(r.events, fmt.Sprintf("scenario-result %s %s", result.Name, result.Result))
}

func (r *recordingReporter) SuiteResult(result SuiteResult) {
	r.events = append(r.events, "suite-result")
}

type testFixture struct {
	log       *callLog
	resources *fakeResources
	releases  *fakeReleases
	gate      *fakeGate
	handle    *fakeHandle
	startErr  error
	started   []ControllerOptions
	reporter  *recordingReporter
}

func newTestFixture() *testFixture {
	log := &callLog{}
	return &testFixture{
		log:       log,
		resources: &fakeResources{log: log},
		releases:  &fakeReleases{log: log},
		gate:      &fakeGate{log: log},
		handle:    &fakeHandle{log: log},
		reporter:  &recordingReporter{},
	}
}

func (f *testFixture) runner(opts Options) *Runner {
	if opts.ReadyAttempts == 0 {
		opts.ReadyAttempts = 5
	}
	if opts.PollAttempts == 0 {
		opts.PollAttempts = 3
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Millisecond
	}
	if opts.StopTimeout == 0 {
		opts.StopTimeout = time.Second
	}
	starter := func(controllerOpts ControllerOptions) (ControllerHandle, error) {
		f.log.add("start controller")
		if f.startErr != nil {
			return nil, f.startErr
		}
		f.started = append(f.started, controllerOpts)
		return f.handle, nil
	}
	return NewRunner(f.resources, f.releases, f.gate, starter, f.reporter, opts)
}

func crudScenario() Scenario {
	return Scenario{
		Name:    "crud",
		Prepare: PrepareSpec{Apply: []string{"crd.yml"}},
		Steps: []Step{
			{
				Name:   "create resources",
				Apply:  "cr.yml",
				Expect: &metrics.Expectation{Events: 2, Managed: 2, Created: 2},
			},
		},
	}
}

func TestRunSuite_HappyPath(t *testing.T) {
	f := newTestFixture()
	runner := f.runner(Options{})

	suite := runner.RunSuite(context.Background(), []Scenario{crudScenario()})

	assert.Equal(t, 1, suite.PassedScenarios)
	assert.Equal(t, 1, suite.TotalScenarios)
	require.Len(t, suite.ScenarioResults, 1)

	result := suite.ScenarioResults[0]
	assert.Equal(t, ResultPassed, result.Result)
	assert.Equal(t, PhaseTornDown, result.Phase)
	require.Len(t, result.StepResults, 1)
	assert.Equal(t, ResultPassed, result.StepResults[0].Result)

	// Mutation happens before the convergence check, cleanup after.
	applyIdx := f.log.index("apply cr.yml")
	countsIdx := f.log.index("counts 2/2/2/0/0")
	require.GreaterOrEqual(t, applyIdx, 0)
	require.GreaterOrEqual(t, countsIdx, 0)
	assert.Less(t, applyIdx, countsIdx)

	// Applied fixtures are removed best-effort, most recent first, and the
	// controller stops last.
	assert.Contains(t, f.log.entries, "delete cr.yml strict=false")
	assert.Contains(t, f.log.entries, "delete crd.yml strict=false")
	assert.Less(t, f.log.index("delete cr.yml strict=false"), f.log.index("delete crd.yml strict=false"))
	assert.Less(t, countsIdx, f.log.index("delete cr.yml strict=false"))
	assert.Equal(t, 1, f.handle.stops)
	assert.Equal(t, time.Second, f.handle.stopTimeouts[0])

	assert.Equal(t, []string{
		"suite-start 1",
		"scenario-start crud",
		"step create resources PASSED",
		"scenario-result crud PASSED",
		"suite-result",
	}, f.reporter.events)
}

func TestRunSuite_TeardownRunsOnConvergenceFailure(t *testing.T) {
	f := newTestFixture()
	f.gate.countsErr = fmt.Errorf("event total never reached 2")
	runner := f.runner(Options{})

	suite := runner.RunSuite(context.Background(), []Scenario{crudScenario()})

	assert.Equal(t, 1, suite.FailedScenarios)
	result := suite.ScenarioResults[0]
	assert.Equal(t, ResultFailed, result.Result)
	assert.Equal(t, PhaseTornDown, result.Phase)
	assert.Contains(t, result.Error, "never reached")

	// Cleanup is unconditional.
	assert.Contains(t, f.log.entries, "delete cr.yml strict=false")
	assert.Contains(t, f.log.entries, "delete crd.yml strict=false")
	assert.Equal(t, 1, f.handle.stops)
}

func TestRunSuite_ControllerStartFailure(t *testing.T) {
	f := newTestFixture()
	f.startErr = fmt.Errorf("no such file or directory")
	runner := f.runner(Options{})

	suite := runner.RunSuite(context.Background(), []Scenario{crudScenario()})

	assert.Equal(t, 1, suite.ErrorScenarios)
	result := suite.ScenarioResults[0]
	assert.Equal(t, ResultError, result.Result)
	assert.Contains(t, result.Error, "failed to start controller")
	assert.Empty(t, result.StepResults)

	// No readiness probe, but prepared fixtures are still removed.
	assert.Equal(t, 0, f.gate.readyCalls)
	assert.Contains(t, f.log.entries, "delete crd.yml strict=false")
	assert.Equal(t, 0, f.handle.stops)
}

func TestRunSuite_ReadinessTimeout(t *testing.T) {
	f := newTestFixture()
	f.gate.readyAfter = 100
	runner := f.runner(Options{ReadyAttempts: 3})

	suite := runner.RunSuite(context.Background(), []Scenario{crudScenario()})

	assert.Equal(t, 1, suite.ErrorScenarios)
	result := suite.ScenarioResults[0]
	assert.Equal(t, ResultError, result.Result)
	assert.Contains(t, result.Error, "never became ready")
	assert.Equal(t, 3, f.gate.readyCalls)

	// No step ran, the started controller still gets stopped.
	assert.Empty(t, result.StepResults)
	assert.Equal(t, 1, f.handle.stops)
}

func TestRunStep_TimestampBaselineCapturedBeforeMutation(t *testing.T) {
	f := newTestFixture()
	f.gate.baselines = map[string]float64{
		"releases_last_create_timestamp_utc_seconds": 1700000100.5,
	}
	runner := f.runner(Options{})

	scenario := Scenario{
		Name: "timestamps",
		Steps: []Step{
			{
				Name:            "create with timestamp check",
				Apply:           "cr.yml",
				TimestampMetric: "releases_last_create_timestamp_utc_seconds",
				Expect:          &metrics.Expectation{Events: 3, Managed: 3, Created: 3},
			},
		},
	}
	suite := runner.RunSuite(context.Background(), []Scenario{scenario})
	assert.Equal(t, 1, suite.PassedScenarios)

	baselineIdx := f.log.index("baseline releases_last_create_timestamp_utc_seconds")
	applyIdx := f.log.index("apply cr.yml")
	countsIdx := f.log.index("counts 3/3/3/0/0")
	checkIdx := f.log.index("timestamp-after releases_last_create_timestamp_utc_seconds 1700000100.5 3")

	require.GreaterOrEqual(t, baselineIdx, 0)
	require.GreaterOrEqual(t, checkIdx, 0, "timestamp assertion must run, log: %v", f.log.entries)
	assert.Less(t, baselineIdx, applyIdx, "baseline must be read before the mutation")
	assert.Less(t, countsIdx, checkIdx, "timestamp check runs after the counters converged")
}

func TestRunSuite_FailFastSkipsRemaining(t *testing.T) {
	f := newTestFixture()
	f.gate.countsErr = fmt.Errorf("convergence timeout")
	runner := f.runner(Options{FailFast: true})

	first := crudScenario()
	second := crudScenario()
	second.Name = "never-runs"
	suite := runner.RunSuite(context.Background(), []Scenario{first, second})

	assert.Equal(t, 1, suite.FailedScenarios)
	assert.Equal(t, 1, suite.SkippedScenarios)
	require.Len(t, suite.ScenarioResults, 2)
	assert.Equal(t, ResultSkipped, suite.ScenarioResults[1].Result)
	assert.Contains(t, f.reporter.events, "scenario-result never-runs SKIPPED")
}

func TestRunSuite_StepDeleteNotRepeatedInTeardown(t *testing.T) {
	f := newTestFixture()
	runner := f.runner(Options{})

	scenario := Scenario{
		Name: "delete-step",
		Steps: []Step{
			{Name: "create", Apply: "cr.yml"},
			{Name: "remove", Delete: "cr.yml", Strict: true},
		},
	}
	suite := runner.RunSuite(context.Background(), []Scenario{scenario})
	assert.Equal(t, 1, suite.PassedScenarios)

	deletes := 0
	for _, entry := range f.log.entries {
		if entry == "delete cr.yml strict=true" || entry == "delete cr.yml strict=false" {
			deletes++
		}
	}
	assert.Equal(t, 1, deletes, "a fixture deleted by a step must not be deleted again, log: %v", f.log.entries)
}

func TestRunSuite_FixtureDirResolvesRelativePaths(t *testing.T) {
	f := newTestFixture()
	runner := f.runner(Options{FixtureDir: "test/data"})

	suite := runner.RunSuite(context.Background(), []Scenario{crudScenario()})
	assert.Equal(t, 1, suite.PassedScenarios)
	assert.Contains(t, f.log.entries, "apply test/data/cr.yml")
	assert.Contains(t, f.log.entries, "delete test/data/crd.yml strict=false")
}

func TestRunSuite_ControllerOptionsPassedThrough(t *testing.T) {
	f := newTestFixture()
	runner := f.runner(Options{})

	scenario := crudScenario()
	scenario.Controller = ControllerOptions{NoOp: true, CRDFilter: "filtered-thing"}
	runner.RunSuite(context.Background(), []Scenario{scenario})

	require.Len(t, f.started, 1)
	assert.True(t, f.started[0].NoOp)
	assert.Equal(t, "filtered-thing", f.started[0].CRDFilter)
}

func TestAwaitRelease_EventuallyDeployed(t *testing.T) {
	f := newTestFixture()
	f.releases.statuses = []string{"STATUS: PENDING", "STATUS: DEPLOYED"}
	runner := f.runner(Options{})

	scenario := Scenario{
		Name: "release-status",
		Steps: []Step{
			{
				Name: "wait for deploy",
				AwaitRelease: &ReleaseCheck{
					Release:     "my-release",
					Contains:    []string{"DEPLOYED"},
					NotContains: []string{"Error"},
				},
			},
		},
	}
	suite := runner.RunSuite(context.Background(), []Scenario{scenario})
	assert.Equal(t, 1, suite.PassedScenarios)

	statusCalls := 0
	for _, entry := range f.log.entries {
		if entry == "helm status my-release" {
			statusCalls++
		}
	}
	assert.GreaterOrEqual(t, statusCalls, 2)
}

func TestAwaitRelease_ForbiddenOutputFailsImmediately(t *testing.T) {
	f := newTestFixture()
	f.releases.statuses = []string{"Error: release not found"}
	runner := f.runner(Options{})

	scenario := Scenario{
		Name: "release-broken",
		Steps: []Step{
			{
				Name: "wait for deploy",
				AwaitRelease: &ReleaseCheck{
					Release:     "my-release",
					Contains:    []string{"DEPLOYED"},
					NotContains: []string{"Error"},
				},
			},
		},
	}
	suite := runner.RunSuite(context.Background(), []Scenario{scenario})

	assert.Equal(t, 1, suite.FailedScenarios)
	result := suite.ScenarioResults[0]
	assert.Contains(t, result.Error, `"Error"`)

	statusCalls := 0
	for _, entry := range f.log.entries {
		if entry == "helm status my-release" {
			statusCalls++
		}
	}
	assert.Equal(t, 1, statusCalls, "a forbidden substring must fail without polling")
}

func TestRunSuite_HelmLifecycle(t *testing.T) {
	f := newTestFixture()
	runner := f.runner(Options{})

	scenario := crudScenario()
	scenario.Helm = &HelmOptions{
		Init:  true,
		Repos: []Repo{{Name: "charts", URL: "https://charts.example.com"}},
	}
	scenario.Teardown = TeardownSpec{Releases: []string{"my-release"}}

	suite := runner.RunSuite(context.Background(), []Scenario{scenario})
	assert.Equal(t, 1, suite.PassedScenarios)

	assert.Contains(t, f.log.entries, "helm init")
	assert.Equal(t, []string{"charts"}, f.releases.repos)
	assert.Equal(t, []string{"my-release"}, f.releases.deleted)

	// The release tool is prepared before the controller starts.
	assert.Less(t, f.log.index("helm init"), f.log.index("start controller"))
}

func TestRunSuite_CancelledContextSkipsScenarios(t *testing.T) {
	f := newTestFixture()
	runner := f.runner(Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	suite := runner.RunSuite(ctx, []Scenario{crudScenario()})

	assert.Equal(t, 1, suite.SkippedScenarios)
	assert.Equal(t, 0, suite.PassedScenarios)
	assert.Empty(t, f.log.entries, "a skipped scenario must not touch any tool")
}

func TestRunSuite_HelmInitFailure(t *testing.T) {
	f := newTestFixture()
	f.releases.initErr = fmt.Errorf("could not initialize")
	runner := f.runner(Options{})

	scenario := crudScenario()
	scenario.Helm = &HelmOptions{Init: true}
	scenario.Teardown = TeardownSpec{Releases: []string{"my-release"}}

	suite := runner.RunSuite(context.Background(), []Scenario{scenario})

	assert.Equal(t, 1, suite.ErrorScenarios)
	result := suite.ScenarioResults[0]
	assert.Equal(t, ResultError, result.Result)
	assert.Contains(t, result.Error, "release tool init failed")

	// Teardown still tries the release delete.
	assert.Equal(t, []string{"my-release"}, f.releases.deleted)
	assert.Equal(t, 0, f.handle.stops)
}
