package launcher

import (
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/yoanbernabeu/pilauncher/internal/constants"
	"github.com/yoanbernabeu/pilauncher/internal/security"
)

// TargetPathError reports a test binary missing from the install tree.
type TargetPathError struct {
	Path string
}

func (e *TargetPathError) Error() string {
	return fmt.Sprintf("target path (%s) must be a file", e.Path)
}

func checkTestFile(outDirectory, name string) (string, error) {
	p := constants.InstalledBinaryPath(outDirectory, name)
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return "", &TargetPathError{Path: p}
	}
	return name, nil
}

// resolveTestFile prefers the <target>_loader binary. Only modular builds
// require it; other builds fall back to <target>.
func resolveTestFile(outDirectory, target string, modular bool) (string, error) {
	name, err := checkTestFile(outDirectory, target+"_loader")
	if err == nil {
		return name, nil
	}
	if modular {
		return "", err
	}
	return checkTestFile(outDirectory, target)
}

func rsyncCommand(user, address, outDirectory string) string {
	return fmt.Sprintf("rsync -avzLh %s/ %s@%s:~/%s/",
		constants.InstallDir(outDirectory), user, address, constants.DeviceTestDir(outDirectory))
}

func sshCommand(user, address string) string {
	return fmt.Sprintf("ssh -t %s@%s TERM=dumb bash -l", user, address)
}

// testCommand runs the binary from the login directory and reports exactly
// one of "<tag> succeeded" or "<tag> failed".
func testCommand(outDirectory, testFile string, params []string, tag string) string {
	parts := []string{path.Join(constants.DeviceTestDir(outDirectory), testFile, testFile)}
	if flags := security.EscapeMetaChars(strings.Join(params, " ")); flags != "" {
		parts = append(parts, flags)
	}
	parts = append(parts,
		"&&", "echo", tag, constants.SuccessMarker,
		"||", "echo", tag, constants.FailureMarker,
	)
	return strings.Join(parts, " ")
}

func killCommand(processes []string) string {
	return fmt.Sprintf(`pkill -9 -ef "%s"`, constants.StaleProcessPattern(processes))
}

// mergeEnv overlays overrides on base, a KEY=value list.
func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	env := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[key]; !ok {
			env = append(env, kv)
		}
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}
	return env
}
