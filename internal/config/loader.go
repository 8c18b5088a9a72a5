package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osGetwd = os.Getwd

const configFileName = "verifyctl.yaml"

// Load builds the configuration by overlaying an optional YAML file on the
// built-in defaults. With an empty path, the default file in the working
// directory is used when present; a missing default file is not an error.
func Load(path string) (Config, error) {
	config := Default()

	explicit := path != ""
	if !explicit {
		wd, err := osGetwd()
		if err != nil {
			return Config{}, fmt.Errorf("could not determine working directory: %w", err)
		}
		path = filepath.Join(wd, configFileName)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if explicit {
			return Config{}, fmt.Errorf("config file %s does not exist", path)
		}
		return config, nil
	}

	overlay, err := loadConfigFromFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("error loading config from %s: %w", path, err)
	}
	config = mergeConfigs(config, overlay)

	if err := Validate(config); err != nil {
		return Config{}, err
	}
	return config, nil
}

// loadConfigFromFile loads a Config from a YAML file.
func loadConfigFromFile(filePath string) (Config, error) {
	var config Config
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Config{}, err
	}
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return Config{}, err
	}
	return config, nil
}

// mergeConfigs merges 'overlay' config into 'base' config. Only fields the
// overlay actually sets replace the base values.
func mergeConfigs(base, overlay Config) Config {
	merged := base

	if overlay.Controller.Binary != "" {
		merged.Controller.Binary = overlay.Controller.Binary
	}
	if overlay.Controller.ConfigFile != "" {
		merged.Controller.ConfigFile = overlay.Controller.ConfigFile
	}
	if overlay.Controller.StatusURL != "" {
		merged.Controller.StatusURL = overlay.Controller.StatusURL
	}
	if overlay.Controller.MetricsURL != "" {
		merged.Controller.MetricsURL = overlay.Controller.MetricsURL
	}
	if overlay.Controller.ReadyAttempts != 0 {
		merged.Controller.ReadyAttempts = overlay.Controller.ReadyAttempts
	}
	if overlay.Controller.StopTimeout != 0 {
		merged.Controller.StopTimeout = overlay.Controller.StopTimeout
	}
	if overlay.Kubectl.Binary != "" {
		merged.Kubectl.Binary = overlay.Kubectl.Binary
	}
	if overlay.Helm.Binary != "" {
		merged.Helm.Binary = overlay.Helm.Binary
	}
	if overlay.Helm.Home != "" {
		merged.Helm.Home = overlay.Helm.Home
	}
	if overlay.Poll.Attempts != 0 {
		merged.Poll.Attempts = overlay.Poll.Attempts
	}
	if overlay.Poll.Interval != 0 {
		merged.Poll.Interval = overlay.Poll.Interval
	}
	if overlay.FixtureDir != "" {
		merged.FixtureDir = overlay.FixtureDir
	}
	if overlay.ScenarioDir != "" {
		merged.ScenarioDir = overlay.ScenarioDir
	}

	return merged
}

// Validate rejects configurations that would make every check meaningless.
func Validate(config Config) error {
	if config.Poll.Attempts < 1 {
		return fmt.Errorf("poll attempts must be at least 1")
	}
	if config.Poll.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if config.Controller.ReadyAttempts < 1 {
		return fmt.Errorf("controller readyAttempts must be at least 1")
	}
	if config.Controller.StopTimeout <= 0 {
		return fmt.Errorf("controller stopTimeout must be positive")
	}
	if config.Controller.Binary == "" {
		return fmt.Errorf("controller binary must be set")
	}
	return nil
}
