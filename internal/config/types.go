package config

// Config is the harness configuration, layered from built-in defaults and an
// optional YAML file.
type Config struct {
	Controller  ControllerConfig `yaml:"controller"`
	Kubectl     ToolConfig       `yaml:"kubectl"`
	Helm        HelmConfig       `yaml:"helm"`
	Poll        PollConfig       `yaml:"poll"`
	FixtureDir  string           `yaml:"fixtureDir"`
	ScenarioDir string           `yaml:"scenarioDir"`
}

// ControllerConfig describes the controller-under-test and its HTTP surface.
type ControllerConfig struct {
	// Binary is the path to the controller executable.
	Binary string `yaml:"binary"`
	// ConfigFile is the controller's own configuration file.
	ConfigFile string `yaml:"configFile"`
	// StatusURL is the readiness endpoint returning {"success": bool}.
	StatusURL string `yaml:"statusURL"`
	// MetricsURL is the plaintext metrics endpoint.
	MetricsURL string `yaml:"metricsURL"`
	// ReadyAttempts bounds the readiness probe retries.
	ReadyAttempts int `yaml:"readyAttempts"`
	// StopTimeout bounds the graceful shutdown wait before SIGKILL.
	StopTimeout Duration `yaml:"stopTimeout"`
}

// ToolConfig names an external command-line tool.
type ToolConfig struct {
	Binary string `yaml:"binary"`
}

// HelmConfig names the release tool and the home directory it operates
// against. An empty Home is discovered at startup via the tool's `home`
// query subcommand.
type HelmConfig struct {
	Binary string `yaml:"binary"`
	Home   string `yaml:"home,omitempty"`
}

// PollConfig is the retry budget applied to every convergence check:
// a fixed number of attempts separated by a fixed interval.
type PollConfig struct {
	Attempts int      `yaml:"attempts"`
	Interval Duration `yaml:"interval"`
}
