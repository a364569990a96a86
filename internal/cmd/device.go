package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/yoanbernabeu/pilauncher/internal/config"
	"github.com/yoanbernabeu/pilauncher/internal/device"
	"github.com/yoanbernabeu/pilauncher/internal/security"
	"github.com/yoanbernabeu/pilauncher/internal/ssh"
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Manage registered devices",
	Long:  `Commands to add, check, and remove the devices tests run on.`,
}

var deviceAddCmd = &cobra.Command{
	Use:   "add <name> <user@host>",
	Short: "Register a device",
	Long: `Adds a device to the global registry (~/.config/pilauncher/config.yaml).

Example:
  pilauncher device add lab pi@192.168.1.20
  pilauncher device add bench pi@bench.local --port 2222 --ask-password`,
	Args: cobra.ExactArgs(2),
	RunE: runDeviceAdd,
}

var deviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered devices",
	RunE:  runDeviceList,
}

var deviceRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a device",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeviceRemove,
}

var deviceCheckCmd = &cobra.Command{
	Use:   "check <name>",
	Short: "Check that a device can run tests",
	Long: `Connects to a device over SSH and reports:
- Architecture, total memory and free disk space
- Whether /tmp is writable
- Processes left over from earlier runs`,
	Args: cobra.ExactArgs(1),
	RunE: runDeviceCheck,
}

var deviceInfoCmd = &cobra.Command{
	Use:   "info <name>",
	Short: "Show kernel, OS release and uptime of a device",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeviceInfo,
}

var (
	devicePort        int
	deviceKeyPath     string
	deviceAskPassword bool
	skipSSHTest       bool
	checkRetries      int
)

func init() {
	rootCmd.AddCommand(deviceCmd)
	deviceCmd.AddCommand(deviceAddCmd)
	deviceCmd.AddCommand(deviceListCmd)
	deviceCmd.AddCommand(deviceRemoveCmd)
	deviceCmd.AddCommand(deviceCheckCmd)
	deviceCmd.AddCommand(deviceInfoCmd)

	deviceAddCmd.Flags().IntVarP(&devicePort, "port", "p", 22, "SSH port")
	deviceAddCmd.Flags().StringVarP(&deviceKeyPath, "key", "k", "", "SSH private key path")
	deviceAddCmd.Flags().BoolVar(&deviceAskPassword, "ask-password", false, "Prompt for the SSH password and store it")
	deviceAddCmd.Flags().BoolVar(&skipSSHTest, "skip-test", false, "Skip SSH connection test")

	deviceCheckCmd.Flags().IntVar(&checkRetries, "retries", 3, "Reachability retries")
}

// parseUserHost splits user@host. A bare host gets the default user.
func parseUserHost(hostSpec, defaultUser string) (string, string, error) {
	user, host, found := strings.Cut(hostSpec, "@")
	if !found {
		user, host = defaultUser, hostSpec
	}
	if user == "" || host == "" {
		return "", "", fmt.Errorf("invalid host format, use user@host")
	}
	return user, host, nil
}

func runDeviceAdd(cmd *cobra.Command, args []string) error {
	name := args[0]

	if err := security.ValidateDeviceName(name); err != nil {
		return fmt.Errorf("invalid device name: %w", err)
	}

	globalCfg, err := config.LoadGlobalConfig()
	if err != nil {
		return fmt.Errorf("failed to load global config: %w", err)
	}

	user, host, err := parseUserHost(args[1], globalCfg.DefaultUser)
	if err != nil {
		return err
	}

	deviceCfg := config.DeviceConfig{
		Host:    host,
		User:    user,
		Port:    devicePort,
		KeyPath: deviceKeyPath,
	}

	if deviceAskPassword {
		if !IsInteractive() {
			return fmt.Errorf("--ask-password needs an interactive terminal")
		}
		password, err := PromptPassword(fmt.Sprintf("Password for %s@%s: ", user, host))
		if err != nil {
			return err
		}
		deviceCfg.Password = password
	}

	if errors := config.ValidateDeviceConfig(&deviceCfg); errors.HasErrors() {
		return fmt.Errorf("invalid device configuration: %w", errors)
	}

	if err := globalCfg.AddDevice(name, deviceCfg); err != nil {
		return err
	}

	if err := config.SaveGlobalConfig(globalCfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	PrintSuccess("Added device '%s' (%s@%s)", name, user, host)

	if skipSSHTest {
		PrintInfo("Skipping SSH connection test (--skip-test)")
		return nil
	}

	if err := testAndConfigureSSH(cmd.Context(), name, globalCfg); err != nil {
		PrintWarning("SSH connection could not be established: %v", err)
		PrintInfo("You can test the connection manually with: ssh %s@%s -p %d", user, host, deviceCfg.Port)
	}
	return nil
}

// testAndConfigureSSH tests the SSH connection and tries alternative keys if needed
func testAndConfigureSSH(ctx context.Context, name string, globalCfg *config.GlobalConfig) error {
	PrintInfo("Testing SSH connection...")

	deviceCfg, err := globalCfg.GetDevice(name)
	if err != nil {
		return err
	}

	env, err := config.LoadEnv()
	if err != nil {
		return err
	}

	client := ssh.NewClientForDevice(deviceCfg, ssh.WithEnv(env), ssh.WithRetries(0))
	if err := client.Connect(ctx); err == nil {
		client.Close()
		PrintSuccess("SSH connection successful")
		return nil
	}

	if deviceCfg.Password != "" {
		return fmt.Errorf("password authentication failed")
	}

	PrintWarning("Connection failed with default key")

	keys, err := ssh.DiscoverSSHKeys()
	if err != nil {
		return fmt.Errorf("failed to discover SSH keys: %w", err)
	}

	var availableKeys []ssh.SSHKeyInfo
	for _, key := range keys {
		if key.IsEncrypted {
			PrintVerbose("Skipping encrypted key: %s", key.Name)
			continue
		}
		if deviceCfg.KeyPath != "" && key.Path == deviceCfg.KeyPath {
			continue
		}
		availableKeys = append(availableKeys, key)
	}

	if len(availableKeys) == 0 {
		return fmt.Errorf("no SSH keys available to try")
	}

	var workingKey *ssh.SSHKeyInfo
	if IsInteractive() {
		workingKey = interactiveKeySelection(ctx, deviceCfg, availableKeys, env)
	} else {
		workingKey = autoTryKeys(ctx, deviceCfg, availableKeys, env)
	}

	if workingKey == nil {
		return fmt.Errorf("no working SSH key found")
	}

	deviceCfg.KeyPath = workingKey.Path
	globalCfg.Devices[name] = *deviceCfg

	if err := config.SaveGlobalConfig(globalCfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	PrintSuccess("Updated device config with key: %s", workingKey.Path)
	return nil
}

// interactiveKeySelection prompts the user to select an SSH key
func interactiveKeySelection(ctx context.Context, deviceCfg *config.DeviceConfig, keys []ssh.SSHKeyInfo, env *config.Env) *ssh.SSHKeyInfo {
	options := make([]string, len(keys))
	for i, key := range keys {
		options[i] = fmt.Sprintf("%s (%s)", key.Name, key.Type)
	}

	fmt.Println()
	PrintInfo("Available SSH keys:")
	choice := PromptSelect("Select SSH key to use:", options)
	if choice < 0 {
		return nil
	}

	selectedKey := &keys[choice]
	PrintInfo("Testing with %s...", selectedKey.Path)

	err := ssh.TryConnect(ctx, deviceCfg.Host, deviceCfg.User, deviceCfg.Port, selectedKey.Path, env)
	if err != nil {
		PrintError("Connection failed: %v", err)
		return nil
	}

	PrintSuccess("Connection successful!")
	return selectedKey
}

// autoTryKeys automatically tries available keys in order
func autoTryKeys(ctx context.Context, deviceCfg *config.DeviceConfig, keys []ssh.SSHKeyInfo, env *config.Env) *ssh.SSHKeyInfo {
	PrintInfo("Trying available SSH keys automatically...")

	for _, key := range keys {
		PrintVerbose("Trying %s...", key.Name)
		err := ssh.TryConnect(ctx, deviceCfg.Host, deviceCfg.User, deviceCfg.Port, key.Path, env)
		if err == nil {
			PrintSuccess("SSH connection successful with %s", key.Name)
			return &key
		}
	}

	return nil
}

func runDeviceList(cmd *cobra.Command, args []string) error {
	globalCfg, err := config.LoadGlobalConfig()
	if err != nil {
		return err
	}

	devices := globalCfg.ListDevices()
	if len(devices) == 0 {
		PrintInfo("No devices registered")
		fmt.Println()
		fmt.Println("Add a device with:")
		fmt.Println("  pilauncher device add <name> <user@host>")
		return nil
	}

	fmt.Println("Registered devices:")
	fmt.Println()
	for _, name := range devices {
		printDevice(name, globalCfg.Devices[name])
	}

	return nil
}

func printDevice(name string, d config.DeviceConfig) {
	fmt.Printf("  %s\n", name)
	fmt.Printf("    Host: %s@%s:%d\n", d.User, d.Host, d.Port)
	if d.KeyPath != "" {
		fmt.Printf("    Key:  %s\n", d.KeyPath)
	}
	if d.Password != "" {
		fmt.Printf("    Auth: password\n")
	}
	fmt.Println()
}

func runDeviceRemove(cmd *cobra.Command, args []string) error {
	name := args[0]

	if err := security.ValidateDeviceName(name); err != nil {
		return fmt.Errorf("invalid device name: %w", err)
	}

	globalCfg, err := config.LoadGlobalConfig()
	if err != nil {
		return err
	}

	if err := globalCfg.RemoveDevice(name); err != nil {
		return err
	}

	if err := config.SaveGlobalConfig(globalCfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	PrintSuccess("Removed device '%s'", name)
	return nil
}

func runDeviceCheck(cmd *cobra.Command, args []string) error {
	name := args[0]
	ctx := cmd.Context()

	PrintInfo("Checking device '%s'...", name)

	conn, err := ConnectToDevice(ctx, name)
	if err != nil {
		PrintError("Connection failed: %v", err)
		return &ExitCodeError{Code: 1}
	}
	defer conn.Client.Close()

	PrintSuccess("Connection: OK")

	prober := device.NewProber(conn.Client)
	prober.SetRetries(checkRetries)
	if launcherCfg, err := loadLauncherConfig(); err == nil {
		prober.SetStaleProcesses(launcherCfg.StaleProcesses)
	}

	result, err := prober.Check(ctx)
	if err != nil {
		PrintError("Device check failed after %d attempt(s): %v", result.Attempts, err)
		return &ExitCodeError{Code: 1}
	}
	if !result.Reachable {
		PrintError("Device not responding after %d attempt(s): %s", result.Attempts, result.Message)
		return &ExitCodeError{Code: 1}
	}

	printProbeResult(result)

	if !result.Ready() {
		return &ExitCodeError{Code: 1}
	}
	return nil
}

func printProbeResult(result *device.ProbeResult) {
	fmt.Println()
	fmt.Println("Device:")
	if result.Arch != "" {
		fmt.Printf("  Arch:   %s\n", result.Arch)
	}
	if result.MemTotalMB > 0 {
		fmt.Printf("  Memory: %d MB\n", result.MemTotalMB)
	}
	if result.DiskAvailable != "" {
		fmt.Printf("  Disk:   %s available\n", result.DiskAvailable)
	}
	fmt.Println()

	if result.OutputWritable {
		PrintSuccess("Output path: writable")
	} else {
		PrintWarning("Output path: not writable")
	}

	if len(result.StaleProcesses) > 0 {
		PrintWarning("Leftover processes (killed before the next run):")
		for _, p := range result.StaleProcesses {
			fmt.Printf("    %s\n", p)
		}
	} else {
		PrintSuccess("No leftover processes")
	}
}

func runDeviceInfo(cmd *cobra.Command, args []string) error {
	conn, err := ConnectToDevice(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	defer conn.Client.Close()

	return device.NewProber(conn.Client).StreamInfo(cmd.Context(), conn.Device.Host, os.Stdout)
}
