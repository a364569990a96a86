package config

import (
	"testing"
)

func TestValidateLauncherConfig(t *testing.T) {
	tests := []struct {
		name       string
		config     *LauncherConfig
		wantErrors bool
	}{
		{
			name: "valid config",
			config: &LauncherConfig{
				TargetName:   "nplb",
				OutDirectory: "out/raspi-2_devel",
			},
			wantErrors: false,
		},
		{
			name: "missing target",
			config: &LauncherConfig{
				OutDirectory: "out/raspi-2_devel",
			},
			wantErrors: true,
		},
		{
			name: "target with shell metacharacters",
			config: &LauncherConfig{
				TargetName:   "nplb;reboot",
				OutDirectory: "out/raspi-2_devel",
			},
			wantErrors: true,
		},
		{
			name: "missing out directory",
			config: &LauncherConfig{
				TargetName: "nplb",
			},
			wantErrors: true,
		},
		{
			name: "invalid env name",
			config: &LauncherConfig{
				TargetName:   "nplb",
				OutDirectory: "out",
				EnvVariables: map[string]string{"1BAD": "x"},
			},
			wantErrors: true,
		},
		{
			name: "invalid stale process",
			config: &LauncherConfig{
				TargetName:     "nplb",
				OutDirectory:   "out",
				StaleProcesses: []string{"cobalt", "a|b"},
			},
			wantErrors: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errors := ValidateLauncherConfig(tt.config)
			if tt.wantErrors && !errors.HasErrors() {
				t.Error("expected validation errors but got none")
			}
			if !tt.wantErrors && errors.HasErrors() {
				t.Errorf("unexpected validation errors: %v", errors)
			}
		})
	}
}

func TestValidateDeviceConfig(t *testing.T) {
	tests := []struct {
		name       string
		config     *DeviceConfig
		wantErrors bool
	}{
		{"valid", &DeviceConfig{Host: "192.168.1.20", User: "pi", Port: 22}, false},
		{"missing host", &DeviceConfig{User: "pi", Port: 22}, true},
		{"missing user", &DeviceConfig{Host: "raspberrypi.local", Port: 22}, true},
		{"port zero", &DeviceConfig{Host: "raspberrypi.local", User: "pi"}, true},
		{"port too high", &DeviceConfig{Host: "raspberrypi.local", User: "pi", Port: 70000}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errors := ValidateDeviceConfig(tt.config)
			if errors.HasErrors() != tt.wantErrors {
				t.Errorf("ValidateDeviceConfig() errors = %v, wantErrors %v", errors, tt.wantErrors)
			}
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{
		{Field: "target", Message: "required"},
		{Field: "port", Message: "out of range"},
	}
	want := "target: required; port: out of range"
	if errs.Error() != want {
		t.Errorf("Error() = %q, want %q", errs.Error(), want)
	}
	if (ValidationErrors{}).Error() != "" {
		t.Error("empty ValidationErrors should have empty message")
	}
}
