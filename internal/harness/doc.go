// Package harness executes verification scenarios against a release
// controller.
//
// A scenario drives create/update/delete events into the watched system
// through external command-line tools, launches the controller-under-test as
// a child process, and waits for the controller's plaintext metrics to
// converge to the values implied by the actions taken.
//
// ## Architecture Components
//
// ### Scenario Runner (runner.go)
// - Owns the scenario lifecycle phase machine
//   (Idle → Prepared → Running → TornDown)
// - Executes steps sequentially and stops a scenario on its first failure
// - Guarantees teardown structurally: cleanup runs on every path that left
//   Idle, including panics and early returns
//
// ### Scenario Loader (loader.go)
// - Parses YAML scenario definitions from a directory, sorted by filename
// - Rejects unknown fields and structurally invalid steps up front
// - Provides name-based filtering for single-scenario runs
//
// ### Reporter (reporter.go)
// - Console output in compact or verbose mode
// - Quiet mode for CI pipelines
// - Optional JSON report files per suite run
//
// ## Scenario Structure
//
// Scenarios are defined in YAML:
//
//	```yaml
//	name: "crud-convergence"
//	description: "create, update and delete resources and watch the counters"
//	controller:
//	  nop: true
//	prepare:
//	  apply: ["crd.yml"]
//	steps:
//	  - name: "create two resources"
//	    apply: "cr_things.yml"
//	    expect:
//	      events: 2
//	      managed: 2
//	      created: 2
//	teardown:
//	  delete: ["crd.yml"]
//	```
//
// ## Usage
//
// The harness is invoked through the `verifyctl run` command:
//
//	```bash
//	verifyctl run                         # Run all scenarios
//	verifyctl run --scenario=crud-convergence
//	verifyctl run --fail-fast --report=./reports
//	```
package harness
