package config

import "time"

// Default returns the built-in configuration. The retry budgets follow the
// controller's bounded, roughly-constant reaction latency: ten attempts one
// second apart per convergence check, and a generous readiness budget for
// slow CI machines.
func Default() Config {
	return Config{
		Controller: ControllerConfig{
			Binary:        "./controller",
			ConfigFile:    "test/data/config.yaml",
			StatusURL:     "http://localhost:8080/status",
			MetricsURL:    "http://localhost:8080/metrics",
			ReadyAttempts: 15,
			StopTimeout:   Duration(10 * time.Second),
		},
		Kubectl: ToolConfig{Binary: "kubectl"},
		Helm:    HelmConfig{Binary: "helm"},
		Poll: PollConfig{
			Attempts: 10,
			Interval: Duration(time.Second),
		},
		FixtureDir:  "test/data",
		ScenarioDir: "scenarios",
	}
}
