package config

// LauncherConfig represents the pilauncher.yaml configuration
type LauncherConfig struct {
	Platform     string `yaml:"platform,omitempty"`
	TargetName   string `yaml:"target"`
	OutDirectory string `yaml:"out_directory"`
	// Device is the device address; RASPI_ADDR is used when empty
	Device            string            `yaml:"device,omitempty"`
	EnvVariables      map[string]string `yaml:"env,omitempty"`
	TargetParams      []string          `yaml:"params,omitempty"`
	TestResultXMLPath string            `yaml:"result_xml,omitempty"`
	// StaleProcesses are pkill patterns for leftovers of previous runs
	StaleProcesses []string `yaml:"stale_processes,omitempty"`
	// LogTargets emits banner log lines around each run (default true)
	LogTargets *bool  `yaml:"log_targets,omitempty"`
	Username   string `yaml:"username,omitempty"`
	Password   string `yaml:"password,omitempty"`
	// Prompt is the shell prompt awaited when resynchronizing
	Prompt string `yaml:"prompt,omitempty"`
}

// ShouldLogTargets reports whether banner lines are enabled
func (c *LauncherConfig) ShouldLogTargets() bool {
	return c.LogTargets == nil || *c.LogTargets
}

// GlobalConfig represents the global ~/.config/pilauncher/config.yaml
type GlobalConfig struct {
	Devices     map[string]DeviceConfig `yaml:"devices"`
	DefaultUser string                  `yaml:"default_user,omitempty"`
	DefaultPort int                     `yaml:"default_port,omitempty"`
	// SSHTimeout is the native SSH dial timeout in seconds
	SSHTimeout int `yaml:"ssh_timeout,omitempty"`
}

// DeviceConfig represents a registered device
type DeviceConfig struct {
	Name     string `yaml:"name,omitempty"`
	Host     string `yaml:"host"`
	User     string `yaml:"user"`
	Port     int    `yaml:"port,omitempty"`
	KeyPath  string `yaml:"key_path,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// DefaultStaleProcesses are the process patterns killed before each run
var DefaultStaleProcesses = []string{"cobalt", "crashpad_handler", "elf_loader"}

// DefaultLauncherConfig returns a default launcher configuration
func DefaultLauncherConfig() *LauncherConfig {
	return &LauncherConfig{
		Platform:       "raspi-2",
		EnvVariables:   make(map[string]string),
		StaleProcesses: append([]string(nil), DefaultStaleProcesses...),
	}
}

// DefaultGlobalConfig returns a default global configuration
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		Devices:     make(map[string]DeviceConfig),
		DefaultUser: "pi",
		DefaultPort: 22,
	}
}
