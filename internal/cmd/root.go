package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/yoanbernabeu/pilauncher/internal/logging"
)

var (
	// Version is set at build time
	Version = "dev"

	// Global flags
	verbose bool
	cfgFile string
	yesFlag bool // CI/CD: skip prompts
)

var rootCmd = &cobra.Command{
	Use:   "pilauncher",
	Short: "Run test binaries on a Raspberry Pi over SSH",
	Long: `pilauncher copies a test binary from a local build tree to a Raspberry Pi,
runs it through an interactive SSH session and reports whether it passed.

Quick start:
  pilauncher init nplb --out out/raspi-2_devel   # Create pilauncher.yaml
  pilauncher device add lab pi@192.168.1.20      # Register a device
  pilauncher run --device lab                    # Run the test

Commands:
  init          Create pilauncher.yaml
  run           Sync and run a test binary on a device
  device        Manage registered devices

Environment Variables:
  RASPI_ADDR                      Device address when none is configured
  MODULAR_BUILD                   Require the <target>_loader binary
  PILAUNCHER_SSH_KEY              SSH private key content (device checks)
  PILAUNCHER_KNOWN_HOSTS          SSH known_hosts content (device checks)
  PILAUNCHER_SKIP_HOST_KEY_CHECK  Skip host key verification (true/false)`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(verbose, os.Stderr)
	},
}

// ExitCodeError makes the process exit with Code without printing anything.
type ExitCodeError struct {
	Code int
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command, used to generate documentation
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug logs")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: pilauncher.yaml, searched upwards)")
	rootCmd.PersistentFlags().BoolVarP(&yesFlag, "yes", "y", false, "Never prompt (CI/CD mode)")

	rootCmd.SetVersionTemplate(`pilauncher {{.Version}}
`)
}

// IsVerbose returns true if verbose mode is enabled
func IsVerbose() bool {
	return verbose
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// IsYesMode returns true if --yes flag is set (CI/CD mode)
func IsYesMode() bool {
	return yesFlag
}

// PrintError prints a formatted error message
func PrintError(msg string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "❌ "+msg+"\n", args...)
}

// PrintSuccess prints a success message
func PrintSuccess(msg string, args ...interface{}) {
	fmt.Printf("✅ "+msg+"\n", args...)
}

// PrintInfo prints an info message
func PrintInfo(msg string, args ...interface{}) {
	fmt.Printf("ℹ️  "+msg+"\n", args...)
}

// PrintWarning prints a warning message
func PrintWarning(msg string, args ...interface{}) {
	fmt.Printf("⚠️  "+msg+"\n", args...)
}

// PrintVerbose prints a message only in verbose mode
func PrintVerbose(msg string, args ...interface{}) {
	if verbose {
		fmt.Printf("   "+msg+"\n", args...)
	}
}
