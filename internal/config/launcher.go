package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// LauncherConfigFile is the default launcher config filename
	LauncherConfigFile = "pilauncher.yaml"
)

// LoadLauncherConfig loads the launcher configuration from the given path
func LoadLauncherConfig(path string) (*LauncherConfig, error) {
	if path == "" {
		path = LauncherConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultLauncherConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if errs := ValidateStaleProcesses(config.StaleProcesses); errs.HasErrors() {
		return nil, fmt.Errorf("invalid config file: %w", errs)
	}

	return config, nil
}

// SaveLauncherConfig saves the launcher configuration to the given path
func SaveLauncherConfig(config *LauncherConfig, path string) error {
	if path == "" {
		path = LauncherConfigFile
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Password may be present
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LauncherConfigExists checks if the launcher config file exists
func LauncherConfigExists(path string) bool {
	if path == "" {
		path = LauncherConfigFile
	}
	_, err := os.Stat(path)
	return err == nil
}

// FindLauncherConfig searches for the config file in current and parent directories
func FindLauncherConfig() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	dir := cwd
	for {
		configPath := filepath.Join(dir, LauncherConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("no %s found in current or parent directories", LauncherConfigFile)
}
