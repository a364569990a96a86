// Package device checks that a registered device can host a test run.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/yoanbernabeu/pilauncher/internal/config"
	"github.com/yoanbernabeu/pilauncher/internal/constants"
	"github.com/yoanbernabeu/pilauncher/internal/retry"
	"github.com/yoanbernabeu/pilauncher/internal/security"
	"github.com/yoanbernabeu/pilauncher/internal/ssh"
)

var errNotReady = errors.New("device not ready")

// Prober runs read-only checks against a device over SSH
type Prober struct {
	client     ssh.Executor
	outputPath string
	stale      []string
	retries    int
	interval   time.Duration
	sleep      func(time.Duration)
}

// NewProber creates a prober for the device behind client
func NewProber(client ssh.Executor) *Prober {
	return &Prober{
		client:     client,
		outputPath: constants.DeviceOutputPath,
		stale:      append([]string(nil), config.DefaultStaleProcesses...),
		retries:    3,
		interval:   2 * time.Second,
		sleep:      time.Sleep,
	}
}

// SetRetries sets how many times the reachability check is retried
func (p *Prober) SetRetries(retries int) {
	p.retries = retries
}

// SetInterval sets the interval between reachability retries
func (p *Prober) SetInterval(interval time.Duration) {
	p.interval = interval
}

// SetStaleProcesses sets the process names reported as leftovers
func (p *Prober) SetStaleProcesses(names []string) {
	p.stale = names
}

// ProbeResult contains the outcome of a probe
type ProbeResult struct {
	Reachable      bool
	Attempts       int
	Arch           string
	MemTotalMB     int
	DiskAvailable  string
	OutputWritable bool
	StaleProcesses []string
	Message        string
}

// Ready reports whether the device can run a test
func (r *ProbeResult) Ready() bool {
	return r.Reachable && r.OutputWritable
}

// Check performs the reachability check with retries, then gathers the rest
func (p *Prober) Check(ctx context.Context) (*ProbeResult, error) {
	result := &ProbeResult{}

	err := retry.Do(retry.Policy{
		Retryable: retry.On(errNotReady),
		Retries:   p.retries,
		Backoff: func() bool {
			p.sleep(p.interval)
			return ctx.Err() != nil
		},
	}, func() error {
		result.Attempts++
		res, err := p.client.Exec(ctx, "echo "+constants.LoginSignal)
		if err != nil || res.ExitCode != 0 || !strings.Contains(res.Stdout, constants.LoginSignal) {
			if err != nil {
				result.Message = err.Error()
			} else {
				result.Message = fmt.Sprintf("unexpected echo response (exit %d)", res.ExitCode)
			}
			return errNotReady
		}
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		return result, nil
	}
	result.Reachable = true

	if res, err := p.client.Exec(ctx, "uname -m"); err == nil {
		result.Arch, _ = res.Output()
	}

	if res, err := p.client.Exec(ctx, "free -m | awk '/^Mem:/{print $2}'"); err == nil {
		if out, err := res.Output(); err == nil {
			result.MemTotalMB, _ = strconv.Atoi(out)
		}
	}

	quoted := security.ShellEscape(p.outputPath)

	if res, err := p.client.Exec(ctx, "df -h "+quoted+" | awk 'NR==2{print $4}'"); err == nil {
		result.DiskAvailable, _ = res.Output()
	}

	res, err := p.client.Exec(ctx, "test -w "+quoted+" && echo writable || echo readonly")
	if err != nil {
		return result, fmt.Errorf("failed to check %s: %w", p.outputPath, err)
	}
	result.OutputWritable = strings.TrimSpace(res.Stdout) == "writable"

	stale, err := p.StaleProcesses(ctx)
	if err != nil {
		return result, err
	}
	result.StaleProcesses = stale

	switch {
	case !result.OutputWritable:
		result.Message = fmt.Sprintf("%s is not writable", p.outputPath)
	case len(stale) > 0:
		result.Message = fmt.Sprintf("%d leftover process(es) will be killed before the next run", len(stale))
	default:
		result.Message = "ready"
	}

	return result, nil
}

// StaleProcesses lists leftover processes from earlier runs as "pid name"
func (p *Prober) StaleProcesses(ctx context.Context) ([]string, error) {
	if len(p.stale) == 0 {
		return nil, nil
	}
	pattern := constants.StaleProcessPattern(p.stale)
	res, err := p.client.Exec(ctx, fmt.Sprintf("pgrep -fl %s", security.ShellEscape(pattern)))
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}
	// pgrep exits 1 when nothing matched
	if res.ExitCode > 1 {
		return nil, fmt.Errorf("pgrep failed (exit %d): %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	var procs []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			procs = append(procs, line)
		}
	}
	return procs, nil
}

// StreamInfo writes kernel, OS and uptime details to out, prefixed
func (p *Prober) StreamInfo(ctx context.Context, prefix string, out io.Writer) error {
	return p.client.StreamOutput(ctx, "uname -a; cat /etc/os-release 2>/dev/null | head -n 2; uptime", prefix, out)
}
