package cmd

import (
	"reflect"
	"strings"
	"testing"

	"github.com/yoanbernabeu/pilauncher/internal/config"
)

func TestSplitRunArgs(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		dash       int
		wantTarget string
		wantParams []string
	}{
		{name: "nothing", args: nil, dash: -1},
		{name: "target only", args: []string{"nplb"}, dash: -1, wantTarget: "nplb", wantParams: []string{}},
		{name: "target and flags", args: []string{"nplb", "--gtest_filter=A.*"}, dash: 1, wantTarget: "nplb", wantParams: []string{"--gtest_filter=A.*"}},
		{name: "flags only", args: []string{"--gtest_filter=A.*"}, dash: 0, wantParams: []string{"--gtest_filter=A.*"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, params := splitRunArgs(tt.args, tt.dash)
			if target != tt.wantTarget {
				t.Errorf("target = %q, want %q", target, tt.wantTarget)
			}
			if len(params) != len(tt.wantParams) || (len(params) > 0 && !reflect.DeepEqual(params, tt.wantParams)) {
				t.Errorf("params = %v, want %v", params, tt.wantParams)
			}
		})
	}
}

func TestApplyRunOptions(t *testing.T) {
	registry := config.DefaultGlobalConfig()
	registry.Devices["lab"] = config.DeviceConfig{Host: "192.168.1.20", User: "tester", Port: 22, Password: "s3cret"}
	registry.Devices["odd"] = config.DeviceConfig{Host: "10.0.0.8", User: "pi", Port: 2222}

	t.Run("flags override file", func(t *testing.T) {
		cfg := config.DefaultLauncherConfig()
		cfg.TargetName = "nplb"
		cfg.OutDirectory = "out/a"

		err := applyRunOptions(cfg, runOptions{
			target:    "base_unittests",
			params:    []string{"--single-process"},
			out:       "out/b",
			platform:  "raspi-2-skia",
			resultXML: "/tmp/r.xml",
			noBanner:  true,
		}, registry)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.TargetName != "base_unittests" || cfg.OutDirectory != "out/b" || cfg.Platform != "raspi-2-skia" {
			t.Errorf("unexpected config: %+v", cfg)
		}
		if cfg.TestResultXMLPath != "/tmp/r.xml" {
			t.Errorf("TestResultXMLPath = %q", cfg.TestResultXMLPath)
		}
		if cfg.ShouldLogTargets() {
			t.Error("banner should be disabled")
		}
		if !reflect.DeepEqual(cfg.TargetParams, []string{"--single-process"}) {
			t.Errorf("TargetParams = %v", cfg.TargetParams)
		}
	})

	t.Run("registered device", func(t *testing.T) {
		cfg := config.DefaultLauncherConfig()
		if err := applyRunOptions(cfg, runOptions{device: "lab"}, registry); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Device != "192.168.1.20" || cfg.Username != "tester" || cfg.Password != "s3cret" {
			t.Errorf("device not resolved: %+v", cfg)
		}
	})

	t.Run("raw address", func(t *testing.T) {
		cfg := config.DefaultLauncherConfig()
		if err := applyRunOptions(cfg, runOptions{device: "10.1.1.1"}, registry); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Device != "10.1.1.1" || cfg.Username != "" {
			t.Errorf("unexpected config: %+v", cfg)
		}
	})

	t.Run("file credentials win", func(t *testing.T) {
		cfg := config.DefaultLauncherConfig()
		cfg.Device = "lab"
		cfg.Username = "pi"
		if err := applyRunOptions(cfg, runOptions{}, registry); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Device != "192.168.1.20" || cfg.Username != "pi" {
			t.Errorf("unexpected config: %+v", cfg)
		}
	})

	t.Run("non standard port rejected", func(t *testing.T) {
		cfg := config.DefaultLauncherConfig()
		err := applyRunOptions(cfg, runOptions{device: "odd"}, registry)
		if err == nil || !strings.Contains(err.Error(), "2222") {
			t.Errorf("expected port error, got %v", err)
		}
	})
}
