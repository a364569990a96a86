// Package scanner inspects a build output directory for runnable test
// targets.
package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yoanbernabeu/pilauncher/internal/constants"
)

const loaderSuffix = "_loader"

// Target is a test binary found under <out>/install
type Target struct {
	Name string
	// HasLoader is set when <name>_loader was installed next to it
	HasLoader bool
	Size      int64
}

// ScanResult lists the targets of one output directory
type ScanResult struct {
	OutDirectory string
	Targets      []Target
	// Modular is set when any target ships a loader
	Modular bool
}

// Names returns the target names in scan order
func (r *ScanResult) Names() []string {
	names := make([]string, len(r.Targets))
	for i, t := range r.Targets {
		names[i] = t.Name
	}
	return names
}

// Find returns the named target
func (r *ScanResult) Find(name string) (*Target, bool) {
	for i := range r.Targets {
		if r.Targets[i].Name == name {
			return &r.Targets[i], true
		}
	}
	return nil, false
}

// Scanner analyzes a build output directory
type Scanner struct {
	outDirectory string
}

// New creates a new Scanner for the given output directory
func New(outDirectory string) *Scanner {
	if outDirectory == "" {
		outDirectory = "."
	}
	return &Scanner{outDirectory: strings.TrimRight(outDirectory, "/")}
}

// Scan lists install/<name>/<name> executables. Loader binaries are folded
// into the target they load.
func (s *Scanner) Scan() (*ScanResult, error) {
	installDir := constants.InstallDir(s.outDirectory)
	entries, err := os.ReadDir(installDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no install directory in %s (build the target first)", s.outDirectory)
		}
		return nil, fmt.Errorf("failed to read %s: %w", installDir, err)
	}

	found := make(map[string]int64)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if size, ok := s.executable(e.Name()); ok {
			found[e.Name()] = size
		}
	}

	result := &ScanResult{OutDirectory: s.outDirectory}
	for name, size := range found {
		if strings.HasSuffix(name, loaderSuffix) {
			if _, ok := found[strings.TrimSuffix(name, loaderSuffix)]; ok {
				continue
			}
		}
		_, loader := found[name+loaderSuffix]
		result.Targets = append(result.Targets, Target{Name: name, HasLoader: loader, Size: size})
		if loader {
			result.Modular = true
		}
	}

	sort.Slice(result.Targets, func(i, j int) bool {
		return result.Targets[i].Name < result.Targets[j].Name
	})

	return result, nil
}

// executable reports whether install/<name>/<name> is a regular file with an
// execute bit, and its size.
func (s *Scanner) executable(name string) (int64, bool) {
	info, err := os.Stat(filepath.Join(constants.InstallDir(s.outDirectory), name, name))
	if err != nil || !info.Mode().IsRegular() || info.Mode().Perm()&0o111 == 0 {
		return 0, false
	}
	return info.Size(), true
}
