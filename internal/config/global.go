package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

const (
	// GlobalConfigDir is the configuration directory name
	GlobalConfigDir = "pilauncher"
	// GlobalConfigFile is the global config filename
	GlobalConfigFile = "config.yaml"
)

// GetGlobalConfigPath returns the path to the global config file
func GetGlobalConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, GlobalConfigDir, GlobalConfigFile), nil
}

// LoadGlobalConfig loads the global configuration
func LoadGlobalConfig() (*GlobalConfig, error) {
	path, err := GetGlobalConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadGlobalConfigFrom(path)
}

// LoadGlobalConfigFrom loads the global configuration from path
func LoadGlobalConfigFrom(path string) (*GlobalConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultGlobalConfig(), nil
		}
		return nil, fmt.Errorf("failed to read global config: %w", err)
	}

	var config GlobalConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse global config: %w", err)
	}

	if config.Devices == nil {
		config.Devices = make(map[string]DeviceConfig)
	}

	return &config, nil
}

// SaveGlobalConfig saves the global configuration
func SaveGlobalConfig(config *GlobalConfig) error {
	path, err := GetGlobalConfigPath()
	if err != nil {
		return err
	}
	return SaveGlobalConfigTo(config, path)
}

// SaveGlobalConfigTo saves the global configuration to path
func SaveGlobalConfigTo(config *GlobalConfig, path string) error {
	dir := filepath.Dir(path)
	// SECURITY: Use 0700 to restrict directory access to owner only
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// SECURITY: Use 0600 to restrict file access to owner only (contains device passwords)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write global config: %w", err)
	}

	return nil
}

// GetDevice retrieves a device configuration by name
func (c *GlobalConfig) GetDevice(name string) (*DeviceConfig, error) {
	device, ok := c.Devices[name]
	if !ok {
		return nil, fmt.Errorf("device '%s' not found", name)
	}
	return &device, nil
}

// AddDevice adds a new device to the configuration
func (c *GlobalConfig) AddDevice(name string, device DeviceConfig) error {
	if _, exists := c.Devices[name]; exists {
		return fmt.Errorf("device '%s' already exists", name)
	}

	if device.Port == 0 {
		device.Port = c.DefaultPort
		if device.Port == 0 {
			device.Port = 22
		}
	}
	if device.User == "" {
		device.User = c.DefaultUser
	}
	device.Name = name

	c.Devices[name] = device
	return nil
}

// RemoveDevice removes a device from the configuration
func (c *GlobalConfig) RemoveDevice(name string) error {
	if _, exists := c.Devices[name]; !exists {
		return fmt.Errorf("device '%s' not found", name)
	}

	delete(c.Devices, name)
	return nil
}

// ListDevices returns all device names, sorted
func (c *GlobalConfig) ListDevices() []string {
	names := make([]string, 0, len(c.Devices))
	for name := range c.Devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
