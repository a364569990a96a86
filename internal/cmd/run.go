package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/yoanbernabeu/pilauncher/internal/config"
	"github.com/yoanbernabeu/pilauncher/internal/launcher"
)

var runCmd = &cobra.Command{
	Use:   "run [target] [-- test flags...]",
	Short: "Sync and run a test binary on a device",
	Long: `Copies <out>/install to the device with rsync, logs in over ssh and runs
the target binary. The exit status is 0 when the test reported success and 1
otherwise.

Settings come from pilauncher.yaml (searched upwards from the current
directory) and are overridden by flags. Arguments after -- are passed to the
test binary.

Example:
  pilauncher run nplb --out out/raspi-2_devel --device lab
  pilauncher run -- --gtest_filter=PosixFileTest.*`,
	Args: cobra.ArbitraryArgs,
	RunE: runRun,
}

var (
	runDevice    string
	runOut       string
	runPlatform  string
	runResultXML string
	runNoBanner  bool
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runDevice, "device", "d", "", "Registered device name or device address")
	runCmd.Flags().StringVarP(&runOut, "out", "o", "", "Build output directory containing install/")
	runCmd.Flags().StringVar(&runPlatform, "platform", "", "Platform identifier")
	runCmd.Flags().StringVar(&runResultXML, "result-xml", "", "Result file path on the device")
	runCmd.Flags().BoolVar(&runNoBanner, "no-banner", false, "Do not log banner lines around the run")
}

// loadLauncherConfig reads --config, else the nearest pilauncher.yaml, else
// the defaults.
func loadLauncherConfig() (*config.LauncherConfig, error) {
	path := GetConfigFile()
	if path == "" {
		found, err := config.FindLauncherConfig()
		if err != nil {
			return config.DefaultLauncherConfig(), nil
		}
		path = found
	}
	PrintVerbose("Using %s", path)
	return config.LoadLauncherConfig(path)
}

type runOptions struct {
	target    string
	params    []string
	device    string
	out       string
	platform  string
	resultXML string
	noBanner  bool
}

// splitRunArgs separates the target from the flags meant for the test binary.
func splitRunArgs(args []string, dash int) (string, []string) {
	if dash < 0 {
		if len(args) > 0 {
			return args[0], args[1:]
		}
		return "", nil
	}
	var target string
	if dash > 0 {
		target = args[0]
	}
	return target, args[dash:]
}

// applyRunOptions overlays command-line values on cfg. A device that names a
// registry entry brings its host and credentials along.
func applyRunOptions(cfg *config.LauncherConfig, opts runOptions, registry *config.GlobalConfig) error {
	if opts.target != "" {
		cfg.TargetName = opts.target
	}
	if len(opts.params) > 0 {
		cfg.TargetParams = opts.params
	}
	if opts.out != "" {
		cfg.OutDirectory = opts.out
	}
	if opts.platform != "" {
		cfg.Platform = opts.platform
	}
	if opts.resultXML != "" {
		cfg.TestResultXMLPath = opts.resultXML
	}
	if opts.noBanner {
		off := false
		cfg.LogTargets = &off
	}

	if opts.device != "" {
		cfg.Device = opts.device
	}
	if cfg.Device == "" || registry == nil {
		return nil
	}
	if d, ok := registry.Devices[cfg.Device]; ok {
		if d.Port != 0 && d.Port != 22 {
			return fmt.Errorf("device '%s' uses port %d; run only supports port 22", cfg.Device, d.Port)
		}
		cfg.Device = d.Host
		if cfg.Username == "" {
			cfg.Username = d.User
		}
		if cfg.Password == "" {
			cfg.Password = d.Password
		}
	}
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadLauncherConfig()
	if err != nil {
		return err
	}

	registry, err := config.LoadGlobalConfig()
	if err != nil {
		return fmt.Errorf("failed to load global config: %w", err)
	}

	target, params := splitRunArgs(args, cmd.ArgsLenAtDash())
	opts := runOptions{
		target:    target,
		params:    params,
		device:    runDevice,
		out:       runOut,
		platform:  runPlatform,
		resultXML: runResultXML,
		noBanner:  runNoBanner,
	}
	if err := applyRunOptions(cfg, opts, registry); err != nil {
		return err
	}

	if errors := config.ValidateLauncherConfig(cfg); errors.HasErrors() {
		return fmt.Errorf("invalid configuration: %w", errors)
	}

	l, err := launcher.New(cfg, launcher.WithOutput(os.Stdout))
	if err != nil {
		return err
	}

	launcher.InstallSignalBridge()

	PrintInfo("Running %s on %s", cfg.TargetName, l.DeviceAddress())
	PrintVerbose("Completion tag: %s", l.CompletionTag())
	if len(cfg.TargetParams) > 0 {
		PrintVerbose("Test flags: %v", cfg.TargetParams)
	}

	if result := l.Run(cmd.Context()); result != 0 {
		PrintError("%s failed on %s", cfg.TargetName, l.DeviceAddress())
		return &ExitCodeError{Code: result}
	}

	PrintSuccess("%s passed on %s", cfg.TargetName, l.DeviceAddress())
	return nil
}
