package constants

import "testing"

func TestInstallDir(t *testing.T) {
	tests := []struct {
		name     string
		out      string
		expected string
	}{
		{"relative", "out/raspi-2_devel", "out/raspi-2_devel/install"},
		{"trailing slash", "out/raspi-2_devel/", "out/raspi-2_devel/install"},
		{"absolute", "/src/out/raspi-2_qa", "/src/out/raspi-2_qa/install"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InstallDir(tt.out)
			if got != tt.expected {
				t.Errorf("InstallDir(%q) = %q, want %q", tt.out, got, tt.expected)
			}
		})
	}
}

func TestDeviceTestDir(t *testing.T) {
	tests := []struct {
		out      string
		expected string
	}{
		{"out/raspi-2_devel", "raspi-2_devel"},
		{"out/raspi-2_devel/", "raspi-2_devel"},
		{"/abs/raspi-2_qa", "raspi-2_qa"},
	}

	for _, tt := range tests {
		if got := DeviceTestDir(tt.out); got != tt.expected {
			t.Errorf("DeviceTestDir(%q) = %q, want %q", tt.out, got, tt.expected)
		}
	}
}

func TestInstalledBinaryPath(t *testing.T) {
	got := InstalledBinaryPath("out/raspi-2_devel", "nplb_loader")
	expected := "out/raspi-2_devel/install/nplb_loader/nplb_loader"
	if got != expected {
		t.Errorf("InstalledBinaryPath() = %q, want %q", got, expected)
	}
}

func TestConstants(t *testing.T) {
	if DeviceUser != "pi" {
		t.Errorf("DeviceUser = %q, want pi", DeviceUser)
	}
	if ShellPrompt != "pi@raspberrypi:" {
		t.Errorf("ShellPrompt = %q", ShellPrompt)
	}
	if DeviceOutputPath != "/tmp" {
		t.Errorf("DeviceOutputPath = %q, want /tmp", DeviceOutputPath)
	}
	if SpawnRetries != 20 {
		t.Errorf("SpawnRetries = %d, want 20", SpawnRetries)
	}
	if ReadLineRetries*TransportTimeout < 10*60*1e9 {
		t.Errorf("read budget too short for slow tests: %v", ReadLineRetries*TransportTimeout)
	}
}

func TestStaleProcessPattern(t *testing.T) {
	got := StaleProcessPattern([]string{"cobalt", "crashpad_handler", "elf_loader"})
	expected := "(cobalt)|(crashpad_handler)|(elf_loader)"
	if got != expected {
		t.Errorf("StaleProcessPattern() = %q, want %q", got, expected)
	}
	if StaleProcessPattern(nil) != "" {
		t.Error("StaleProcessPattern(nil) should be empty")
	}
}
