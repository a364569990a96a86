package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// DeviceAddrEnv names the variable holding the device address fallback.
const DeviceAddrEnv = "RASPI_ADDR"

// Env holds settings read from the process environment.
type Env struct {
	DeviceAddr string `envconfig:"RASPI_ADDR"`
	// ModularBuild makes a missing <target>_loader binary fatal
	ModularBuild bool `envconfig:"MODULAR_BUILD"`

	// CI/CD overrides for the native SSH probe
	SSHKey           string `envconfig:"PILAUNCHER_SSH_KEY"`
	KnownHosts       string `envconfig:"PILAUNCHER_KNOWN_HOSTS"`
	SkipHostKeyCheck bool   `envconfig:"PILAUNCHER_SKIP_HOST_KEY_CHECK"`
}

// LoadEnv reads Env from the process environment.
func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return &env, nil
}

// ResolveDeviceAddr returns the configured device address, falling back to
// RASPI_ADDR from the launcher's env overrides and then the process
// environment.
func ResolveDeviceAddr(cfg *LauncherConfig, env *Env) (string, error) {
	if cfg.Device != "" {
		return cfg.Device, nil
	}
	if addr := cfg.EnvVariables[DeviceAddrEnv]; addr != "" {
		return addr, nil
	}
	if env != nil && env.DeviceAddr != "" {
		return env.DeviceAddr, nil
	}
	return "", fmt.Errorf("unable to determine target, please pass it in, or set %s environment variable", DeviceAddrEnv)
}
