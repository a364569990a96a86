package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/yoanbernabeu/pilauncher/internal/config"
	"github.com/yoanbernabeu/pilauncher/internal/security"
	"github.com/yoanbernabeu/pilauncher/internal/ssh"
)

// DeviceConnection holds a connected SSH client along with its device config.
type DeviceConnection struct {
	Client *ssh.Client
	Device *config.DeviceConfig
	Global *config.GlobalConfig
}

// ConnectToDevice validates the device name, loads the global registry and
// establishes an SSH connection. The caller must defer conn.Client.Close().
func ConnectToDevice(ctx context.Context, deviceName string, opts ...ssh.Option) (*DeviceConnection, error) {
	if err := security.ValidateDeviceName(deviceName); err != nil {
		return nil, fmt.Errorf("invalid device name: %w", err)
	}

	globalCfg, err := config.LoadGlobalConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load global config: %w", err)
	}

	deviceCfg, err := globalCfg.GetDevice(deviceName)
	if err != nil {
		return nil, err
	}

	env, err := config.LoadEnv()
	if err != nil {
		return nil, err
	}

	allOpts := sshOptsFromGlobal(globalCfg, append([]ssh.Option{ssh.WithEnv(env)}, opts...))

	client := ssh.NewClientForDevice(deviceCfg, allOpts...)
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return &DeviceConnection{
		Client: client,
		Device: deviceCfg,
		Global: globalCfg,
	}, nil
}

// sshOptsFromGlobal prepends a WithTimeout option if SSHTimeout is configured.
func sshOptsFromGlobal(globalCfg *config.GlobalConfig, opts []ssh.Option) []ssh.Option {
	if globalCfg.SSHTimeout > 0 {
		timeoutOpt := ssh.WithTimeout(time.Duration(globalCfg.SSHTimeout) * time.Second)
		return append([]ssh.Option{timeoutOpt}, opts...)
	}
	return opts
}
