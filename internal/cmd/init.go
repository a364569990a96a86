package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/yoanbernabeu/pilauncher/internal/config"
	"github.com/yoanbernabeu/pilauncher/internal/scanner"
)

var initCmd = &cobra.Command{
	Use:   "init [target]",
	Short: "Create pilauncher.yaml",
	Long: `Creates a pilauncher.yaml in the current directory describing which
test binary to run and where to find it. Without a target, the binaries
found under <out>/install are offered.

Example:
  pilauncher init nplb --out out/raspi-2_devel
  pilauncher init nplb --out out/raspi-2_devel --device 192.168.1.20 --result-xml /tmp/nplb.xml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

var (
	initOut       string
	initDevice    string
	initPlatform  string
	initResultXML string
	initForce     bool
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVarP(&initOut, "out", "o", "", "Build output directory containing install/ (required)")
	initCmd.Flags().StringVarP(&initDevice, "device", "d", "", "Registered device name or device address")
	initCmd.Flags().StringVar(&initPlatform, "platform", "", "Platform identifier (default: raspi-2)")
	initCmd.Flags().StringVar(&initResultXML, "result-xml", "", "Result file path on the device")
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite existing configuration")
	_ = initCmd.MarkFlagRequired("out")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := GetConfigFile()
	if config.LauncherConfigExists(path) && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", configName(path))
	}

	PrintInfo("Scanning %s...", initOut)
	result, err := scanner.New(initOut).Scan()
	if err != nil {
		return err
	}

	var target string
	if len(args) > 0 {
		target = args[0]
	}
	target, err = chooseTarget(result, target)
	if err != nil {
		return err
	}

	cfg := config.DefaultLauncherConfig()
	cfg.TargetName = target
	cfg.OutDirectory = strings.TrimRight(initOut, "/")
	cfg.Device = initDevice
	cfg.TestResultXMLPath = initResultXML
	if initPlatform != "" {
		cfg.Platform = initPlatform
	}

	if errors := config.ValidateLauncherConfig(cfg); errors.HasErrors() {
		return fmt.Errorf("invalid configuration: %w", errors)
	}

	if err := config.SaveLauncherConfig(cfg, path); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	PrintSuccess("Created %s", configName(path))
	printInitSummary(cfg)
	if t, ok := result.Find(target); ok && t.HasLoader {
		PrintInfo("%s ships a loader; set MODULAR_BUILD=1 to require it", target)
	}
	return nil
}

// chooseTarget validates target against the scan, or picks one when empty.
func chooseTarget(result *scanner.ScanResult, target string) (string, error) {
	names := result.Names()
	if target != "" {
		if _, ok := result.Find(target); !ok {
			PrintWarning("%s was not found in %s/install", target, result.OutDirectory)
		}
		return target, nil
	}

	switch {
	case len(names) == 0:
		return "", fmt.Errorf("no test binaries found in %s/install", result.OutDirectory)
	case len(names) == 1:
		return names[0], nil
	case IsInteractive():
		choice := PromptSelect("Select the target to run:", names)
		if choice < 0 {
			return "", fmt.Errorf("no target selected")
		}
		return names[choice], nil
	default:
		return "", fmt.Errorf("several targets found, pass one of: %s", strings.Join(names, ", "))
	}
}

func configName(path string) string {
	if path == "" {
		return config.LauncherConfigFile
	}
	return path
}

func printInitSummary(cfg *config.LauncherConfig) {
	fmt.Println()
	fmt.Println("📋 Launcher Configuration:")
	fmt.Printf("   Target:      %s\n", cfg.TargetName)
	fmt.Printf("   Platform:    %s\n", cfg.Platform)
	fmt.Printf("   Out:         %s\n", cfg.OutDirectory)

	if cfg.Device != "" {
		fmt.Printf("   Device:      %s\n", cfg.Device)
	} else {
		fmt.Printf("   Device:      $%s\n", config.DeviceAddrEnv)
	}

	if cfg.TestResultXMLPath != "" {
		fmt.Printf("   Result XML:  %s\n", cfg.TestResultXMLPath)
	}

	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Review pilauncher.yaml and adjust if needed")
	fmt.Println("  2. Run 'pilauncher device check <name>' to verify the device")
	fmt.Println("  3. Run 'pilauncher run' to run the test")
}
