package config

import (
	"testing"
)

func TestLoadEnv(t *testing.T) {
	t.Setenv("RASPI_ADDR", "192.168.1.20")
	t.Setenv("MODULAR_BUILD", "1")
	t.Setenv("PILAUNCHER_SKIP_HOST_KEY_CHECK", "true")

	env, err := LoadEnv()
	if err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if env.DeviceAddr != "192.168.1.20" {
		t.Errorf("DeviceAddr = %q", env.DeviceAddr)
	}
	if !env.ModularBuild {
		t.Error("ModularBuild = false, want true")
	}
	if !env.SkipHostKeyCheck {
		t.Error("SkipHostKeyCheck = false, want true")
	}
}

func TestResolveDeviceAddr(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *LauncherConfig
		env     *Env
		want    string
		wantErr bool
	}{
		{"explicit device", &LauncherConfig{Device: "a"}, &Env{DeviceAddr: "c"}, "a", false},
		{"env override", &LauncherConfig{EnvVariables: map[string]string{"RASPI_ADDR": "b"}}, &Env{DeviceAddr: "c"}, "b", false},
		{"process env", &LauncherConfig{}, &Env{DeviceAddr: "c"}, "c", false},
		{"nil env", &LauncherConfig{}, nil, "", true},
		{"nothing", &LauncherConfig{}, &Env{}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveDeviceAddr(tt.cfg, tt.env)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveDeviceAddr() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ResolveDeviceAddr() = %q, want %q", got, tt.want)
			}
		})
	}
}
