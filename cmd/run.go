package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"verifyctl/internal/config"
	"verifyctl/internal/controller"
	"verifyctl/internal/harness"
	"verifyctl/internal/helm"
	"verifyctl/internal/kubectl"
	"verifyctl/internal/metrics"
	"verifyctl/pkg/logging"
)

var (
	runConfigPath  string
	runScenarioDir string
	runScenario    string
	runFixtureDir  string
	runReportPath  string
	runTimeout     time.Duration
	runFailFast    bool
	runVerbose     bool
	runDebug       bool
	runQuiet       bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run verification scenarios against the release controller",
	Long: `The run command executes verification scenarios against the release
controller under test.

For each scenario, verifyctl:
1. Prepares fixtures in the watched system (kubectl apply / delete)
2. Starts the controller binary and waits for its status endpoint
3. Executes the scenario steps, polling the metrics endpoint after each
   mutation until the counters converge to the expected values
4. Tears everything down again, whatever the outcome

Scenarios are YAML files loaded from the scenario directory in filename
order. The controller, the tools and the retry budgets are configured via
verifyctl.yaml or the --config flag.

Example usage:
  verifyctl run                              # Run all scenarios
  verifyctl run --scenario=crud-convergence  # Run a single scenario
  verifyctl run --verbose --debug            # Detailed output and debugging
  verifyctl run --fail-fast                  # Stop on first failure
  verifyctl run --report=./reports           # Save a JSON report

The command exits non-zero when any scenario fails, for CI integration.`,
	RunE: runScenarios,
}

func init() {
	rootCmd.AddCommand(runCmd)

	// Execution configuration
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "Path to the verifyctl configuration file (default: ./verifyctl.yaml)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 10*time.Minute, "Overall execution timeout")

	// Scenario selection
	runCmd.Flags().StringVar(&runScenarioDir, "scenarios", "", "Path to the scenario directory (overrides config)")
	runCmd.Flags().StringVar(&runScenario, "scenario", "", "Run a specific scenario by name")
	runCmd.Flags().StringVar(&runFixtureDir, "fixtures", "", "Path to the fixture directory (overrides config)")

	// Output and debugging
	runCmd.Flags().BoolVar(&runVerbose, "verbose", false, "Enable verbose step-by-step output")
	runCmd.Flags().BoolVar(&runDebug, "debug", false, "Enable debug logging including controller output")
	runCmd.Flags().BoolVar(&runQuiet, "quiet", false, "Only report failures and the final summary")
	runCmd.Flags().StringVar(&runReportPath, "report", "", "Directory to save a JSON report (default: stdout only)")

	// Execution control
	runCmd.Flags().BoolVar(&runFailFast, "fail-fast", false, "Skip remaining scenarios after the first failure")

	runCmd.MarkFlagsMutuallyExclusive("quiet", "verbose")
	runCmd.MarkFlagsMutuallyExclusive("quiet", "debug")
}

func runScenarios(cmd *cobra.Command, args []string) error {
	level := logging.LevelWarn
	if runVerbose {
		level = logging.LevelInfo
	}
	if runDebug {
		level = logging.LevelDebug
	}
	logging.Init(level, os.Stderr)

	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return err
	}
	if runScenarioDir != "" {
		cfg.ScenarioDir = runScenarioDir
	}
	if runFixtureDir != "" {
		cfg.FixtureDir = runFixtureDir
	}

	scenarios, err := harness.LoadScenarios(cfg.ScenarioDir)
	if err != nil {
		return fmt.Errorf("failed to load scenarios: %w", err)
	}
	scenarios = harness.Filter(scenarios, runScenario)
	if len(scenarios) == 0 {
		if runScenario != "" {
			return fmt.Errorf("no scenario named %q in %s", runScenario, cfg.ScenarioDir)
		}
		fmt.Printf("⚠️  No scenarios found in %s\n", cfg.ScenarioDir)
		return nil
	}

	// Handle interrupts gracefully: the scenario in flight finishes its
	// teardown, the rest are skipped.
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, cleaning up...")
		cancel()
	}()

	if runTimeout > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, runTimeout)
		defer timeoutCancel()
	}

	helmHome := cfg.Helm.Home
	if helmHome == "" {
		discovered, err := helm.DiscoverHome(cfg.Helm.Binary)
		if err != nil {
			logging.Warn("run", "could not discover helm home, using the tool's default: %v", err)
		} else {
			helmHome = discovered
		}
	}

	gate := metrics.NewClient(
		cfg.Controller.StatusURL,
		cfg.Controller.MetricsURL,
		cfg.Poll.Attempts,
		cfg.Poll.Interval.Std(),
	)

	starter := func(opts harness.ControllerOptions) (harness.ControllerHandle, error) {
		return controller.Start(controller.Spec{
			Binary:     cfg.Controller.Binary,
			ConfigFile: cfg.Controller.ConfigFile,
			CRDFilter:  opts.CRDFilter,
			NoOp:       opts.NoOp,
		})
	}

	var reporter harness.Reporter
	if runQuiet {
		reporter = harness.NewQuietReporter()
	} else {
		reporter = harness.NewConsoleReporter(runVerbose, runReportPath)
	}

	runner := harness.NewRunner(
		kubectl.NewRunner(cfg.Kubectl.Binary),
		helm.NewClient(cfg.Helm.Binary, helmHome),
		gate,
		starter,
		reporter,
		harness.Options{
			ReadyAttempts: cfg.Controller.ReadyAttempts,
			PollAttempts:  cfg.Poll.Attempts,
			PollInterval:  cfg.Poll.Interval.Std(),
			StopTimeout:   cfg.Controller.StopTimeout.Std(),
			FixtureDir:    cfg.FixtureDir,
			FailFast:      runFailFast,
		},
	)

	result := runner.RunSuite(ctx, scenarios)

	// Exit non-zero for CI when anything failed.
	if result.FailedScenarios > 0 || result.ErrorScenarios > 0 {
		os.Exit(1)
	}
	return nil
}
