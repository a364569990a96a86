package constants

import (
	"path/filepath"
	"strings"
	"time"
)

// Device credentials and shell markers
const (
	DeviceUser     = "pi"
	DevicePassword = "raspberry"
	ShellPrompt    = "pi@raspberrypi:"

	// DeviceOutputPath is a writable directory on every supported image
	DeviceOutputPath = "/tmp"

	LoginSignal = "pilauncher-login-success"
	SleepSignal = "pilauncher-done-sleeping"

	SuccessMarker = "succeeded"
	FailureMarker = "failed"
)

// Timing
const (
	// TransportTimeout bounds each expect/read call on the interactive shell
	TransportTimeout = 1 * time.Second
	// InterCommandDelay paces commands sent to the device
	InterCommandDelay = 1500 * time.Millisecond
	ShutdownWait      = 3 * time.Second
	ProcessKillSettle = 10 * time.Second
	DmesgWait         = 3 * time.Second
	InterruptWait     = 1 * time.Second
	StartupTimeout    = 1800 * time.Second
)

// Retry budgets
const (
	SpawnRetries    = 20
	SendLineRetries = 3
	ReadLineRetries = 600
	LoginRetries    = 10
	PromptRetries   = 5
	KillRetries     = 3
	DiagReadRetries = 5
)

// InstallDir returns the local directory synced to the device.
func InstallDir(outDirectory string) string {
	return filepath.Join(outDirectory, "install")
}

// DeviceTestDir returns the directory, relative to the device user's home,
// the install tree is synced into. Targets built into the same out directory
// share it.
func DeviceTestDir(outDirectory string) string {
	return filepath.Base(filepath.Clean(outDirectory))
}

// InstalledBinaryPath returns the local path of an installed test binary.
func InstalledBinaryPath(outDirectory, name string) string {
	return filepath.Join(InstallDir(outDirectory), name, name)
}

// StaleProcessPattern builds the extended regex pkill/pgrep match against
// full command lines, e.g. "(cobalt)|(crashpad_handler)|(elf_loader)".
func StaleProcessPattern(names []string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = "(" + n + ")"
	}
	return strings.Join(parts, "|")
}
