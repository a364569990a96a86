// Package launcher runs a test binary on a remote device by driving rsync and
// an interactive ssh login shell through a pseudo-terminal.
//
// A run syncs the install tree, logs in, optionally records device
// diagnostics, kills leftovers of earlier runs and then executes the test
// until a per-run completion tag reports the outcome. Kill may be called from
// another goroutine; it asks the run to stop at its next checkpoint.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/yoanbernabeu/pilauncher/internal/config"
	"github.com/yoanbernabeu/pilauncher/internal/constants"
	"github.com/yoanbernabeu/pilauncher/internal/expect"
	"github.com/yoanbernabeu/pilauncher/internal/logging"
	"github.com/yoanbernabeu/pilauncher/internal/retry"
)

// errShuttingDown stops a step that noticed a shutdown request before it
// could start.
var errShuttingDown = errors.New("launcher: shutdown requested")

// Launcher runs one target on one device. Run may be called repeatedly but
// not concurrently.
type Launcher struct {
	cfg    *config.LauncherConfig
	logger zerolog.Logger

	address        string
	outDirectory   string
	testFile       string
	user           string
	password       string
	prompt         string
	staleProcesses []string
	env            []string
	tag            string

	output io.Writer
	spawn  Spawner
	sleep  func(time.Duration)
	gate   *OnceGate
	settle SettlePolicy

	killWait time.Duration

	runMu       sync.Mutex
	transport   Transport
	lastCommand string
	result      int

	phase      atomic.Int32
	loginState atomic.Int32

	// active is written by the goroutine in Run, shutdown by Kill.
	active   atomic.Bool
	shutdown atomic.Bool
}

type options struct {
	output io.Writer
	spawn  Spawner
	sleep  func(time.Duration)
	gate   *OnceGate
	settle SettlePolicy
	env    *config.Env
	tag    string
}

// Option configures a Launcher.
type Option func(*options)

// WithOutput mirrors everything the device prints to w. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.output = w }
}

// WithSpawner replaces the pty spawner.
func WithSpawner(s Spawner) Option {
	return func(o *options) { o.spawn = s }
}

// WithSleep replaces time.Sleep for local waits.
func WithSleep(fn func(time.Duration)) Option {
	return func(o *options) { o.sleep = fn }
}

// WithFirstRunGate sets the gate deciding which run records diagnostics.
// Defaults to ProcessGate.
func WithFirstRunGate(g *OnceGate) Option {
	return func(o *options) { o.gate = g }
}

// WithSettlePolicy sets how long to wait after stale processes were killed.
func WithSettlePolicy(p SettlePolicy) Option {
	return func(o *options) { o.settle = p }
}

// WithEnv uses env instead of reading the process environment.
func WithEnv(env *config.Env) Option {
	return func(o *options) { o.env = env }
}

// WithCompletionTag overrides the generated completion tag.
func WithCompletionTag(tag string) Option {
	return func(o *options) { o.tag = tag }
}

// New prepares a launcher for cfg. It fails without touching the network when
// no device address is known or the test binary is missing.
func New(cfg *config.LauncherConfig, opts ...Option) (*Launcher, error) {
	if cfg == nil {
		return nil, errors.New("launcher config is required")
	}

	o := options{
		output: os.Stdout,
		spawn:  PtySpawner,
		sleep:  time.Sleep,
		gate:   ProcessGate(),
		settle: FixedSettle(constants.ProcessKillSettle),
		tag:    fmt.Sprintf("TEST-%d", time.Now().UnixNano()),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.env == nil {
		env, err := config.LoadEnv()
		if err != nil {
			return nil, err
		}
		o.env = env
	}

	address, err := config.ResolveDeviceAddr(cfg, o.env)
	if err != nil {
		return nil, err
	}

	outDirectory := strings.TrimRight(cfg.OutDirectory, "/")
	testFile, err := resolveTestFile(outDirectory, cfg.TargetName, o.env.ModularBuild)
	if err != nil {
		return nil, err
	}

	l := &Launcher{
		cfg:            cfg,
		address:        address,
		outDirectory:   outDirectory,
		testFile:       testFile,
		user:           orDefault(cfg.Username, constants.DeviceUser),
		password:       orDefault(cfg.Password, constants.DevicePassword),
		prompt:         orDefault(cfg.Prompt, constants.ShellPrompt),
		staleProcesses: cfg.StaleProcesses,
		env:            mergeEnv(os.Environ(), cfg.EnvVariables),
		tag:            o.tag,
		output:         o.output,
		spawn:          o.spawn,
		sleep:          o.sleep,
		gate:           o.gate,
		settle:         o.settle,
		killWait:       constants.ShutdownWait,
		result:         1,
	}
	if len(l.staleProcesses) == 0 {
		l.staleProcesses = append([]string(nil), config.DefaultStaleProcesses...)
	}
	l.logger = logging.For("launcher").With().
		Str("run_id", uuid.NewString()).
		Str("target", cfg.TargetName).
		Str("device", address).
		Logger()

	return l, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Run executes the target and returns 0 on success, 1 otherwise. Cancelling
// ctx has the same effect as Kill without the wait.
func (l *Launcher) Run(ctx context.Context) int {
	l.runMu.Lock()
	defer l.runMu.Unlock()

	l.banner("Starting to run target")
	l.result = 1
	l.lastCommand = ""
	l.active.Store(true)

	if ctx.Err() != nil {
		l.requestShutdown()
	}
	stop := context.AfterFunc(ctx, l.requestShutdown)
	defer stop()

	func() {
		defer l.active.Store(false)
		defer l.cleanup()

		if err := l.steps(); err != nil {
			l.result = 1
			l.logFailure(err)
		}
	}()

	l.banner("Finished running target")
	return l.result
}

func (l *Launcher) steps() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if !l.shuttingDown() {
		l.setPhase(PhaseSync)
		if err := l.spawnAndConnect(rsyncCommand(l.user, l.address, l.outDirectory)); err != nil {
			return err
		}
	}
	if !l.shuttingDown() {
		l.setPhase(PhaseSyncOutput)
		if err := l.readUntilCompletion(); err != nil {
			return err
		}
	}

	if !l.shuttingDown() {
		l.setPhase(PhaseConnect)
		if err := l.spawnAndConnect(sshCommand(l.user, l.address)); err != nil {
			return err
		}
		if err := l.sleepRemote(constants.InterCommandDelay); err != nil {
			return err
		}
	}

	if !l.shuttingDown() && l.gate.First() {
		l.setPhase(PhaseDiagnostics)
		if err := l.runDiagnostics(); err != nil {
			return err
		}
	}

	if !l.shuttingDown() {
		l.setPhase(PhaseKillStale)
		if err := l.killStaleProcesses(); err != nil {
			return err
		}
		if err := l.sleepRemote(constants.InterCommandDelay); err != nil {
			return err
		}
	}

	if !l.shuttingDown() {
		l.setPhase(PhaseTest)
		if err := l.sendCommand(testCommand(l.outDirectory, l.testFile, l.cfg.TargetParams, l.tag)); err != nil {
			return err
		}
		if err := l.readUntilCompletion(); err != nil {
			return err
		}
	}
	return nil
}

// spawnAndConnect replaces the current transport with one running command and
// logs in. Connection setup is the flakiest part of a run, so the whole
// sequence is retried.
func (l *Launcher) spawnAndConnect(command string) error {
	l.setLoginState(StateConnecting)
	return retry.Do(retry.Policy{
		Retryable: expect.IsTransient,
		Retries:   constants.SpawnRetries,
		Backoff:   l.commandBackoff,
	}, func() error {
		l.closeTransport()
		if l.shuttingDown() {
			return errShuttingDown
		}

		l.logger.Debug().Str("cmd", l.redact(command)).Msg("spawning")
		t, err := l.spawn(command, l.env, l.output)
		if err != nil {
			return err
		}
		l.transport = t
		return l.login()
	})
}

func (l *Launcher) closeTransport() {
	if l.transport == nil {
		return
	}
	_ = l.transport.Close()
	l.transport = nil
}

// cleanup tears down the shell. It never fails and never panics.
func (l *Launcher) cleanup() {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Warn().Interface("panic", r).Msg("cleanup panicked")
		}
		l.transport = nil
	}()

	l.setPhase(PhaseCleanup)
	if l.transport == nil {
		return
	}

	if l.transport.IsAlive() {
		if l.result != 0 {
			l.logger.Info().Msg("sending dmesg")
			_ = l.transport.SendLine("dmesg -P --color=never | tail -n 100")
			l.sleep(constants.DmesgWait)
			_, _ = l.transport.Drain()
		}
		_ = l.transport.SendLine("\x03")
		l.sleep(constants.InterruptWait)
	}
	_ = l.transport.Close()
}

func (l *Launcher) logFailure(err error) {
	if errors.Is(err, errShuttingDown) || l.shuttingDown() {
		l.logger.Warn().Err(err).
			Str("cmd", l.redact(l.lastCommand)).
			Stringer("phase", l.Phase()).
			Msg("run cancelled")
		return
	}

	var msg string
	switch {
	case errors.Is(err, retry.ErrRetriesExceeded):
		msg = "command retry exceeded"
	case errors.Is(err, expect.ErrEOF):
		msg = "transport reached end of stream"
	case errors.Is(err, expect.ErrTimeout):
		msg = "transport timed out"
	default:
		msg = "error occurred while running test"
	}
	l.logger.Error().Err(err).
		Str("cmd", l.redact(l.lastCommand)).
		Stringer("phase", l.Phase()).
		Msg(msg)
}

func (l *Launcher) banner(msg string) {
	if !l.cfg.ShouldLogTargets() {
		return
	}
	l.logger.Info().Msg(strings.Repeat("-", 32))
	l.logger.Info().Msgf("%s: %s", msg, l.cfg.TargetName)
	l.logger.Info().Msg(strings.Repeat("=", 32))
}

// Kill asks a running Run to stop and waits briefly for it to wind down.
// It returns at once when nothing is running.
func (l *Launcher) Kill() {
	l.requestShutdown()
	if !l.active.Load() {
		return
	}
	l.logger.Warn().Msg("killing launcher")

	deadline := time.Now().Add(l.killWait)
	for l.active.Load() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
}

// Shutdown is one-way; a launcher that was killed stays killed.
func (l *Launcher) requestShutdown() {
	l.shutdown.Store(true)
}

func (l *Launcher) shuttingDown() bool {
	return l.shutdown.Load()
}

func (l *Launcher) setPhase(p Phase) {
	l.phase.Store(int32(p))
}

func (l *Launcher) setLoginState(s LoginState) {
	l.loginState.Store(int32(s))
}

// Phase reports the step the current or last run reached.
func (l *Launcher) Phase() Phase {
	return Phase(l.phase.Load())
}

// LoginState reports how far the last login got.
func (l *Launcher) LoginState() LoginState {
	return LoginState(l.loginState.Load())
}

// DeviceAddress returns the resolved device address.
func (l *Launcher) DeviceAddress() string {
	return l.address
}

// DeviceOutputPath returns a path on the device tests may write to.
func (l *Launcher) DeviceOutputPath() string {
	return constants.DeviceOutputPath
}

// StartupTimeout bounds how long a caller should wait for the first output.
func (l *Launcher) StartupTimeout() time.Duration {
	return constants.StartupTimeout
}

// CompletionTag returns the tag marking this launcher's test result line.
func (l *Launcher) CompletionTag() string {
	return l.tag
}
