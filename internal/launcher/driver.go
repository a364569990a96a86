package launcher

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/yoanbernabeu/pilauncher/internal/constants"
	"github.com/yoanbernabeu/pilauncher/internal/expect"
	"github.com/yoanbernabeu/pilauncher/internal/retry"
	"github.com/yoanbernabeu/pilauncher/internal/security"
)

var (
	procKillZero = regexp.MustCompile(`PROCKILL:0`)
	procKillAny  = regexp.MustCompile(`PROCKILL:(\d+)`)
)

// SettlePolicy waits after stale processes were killed so they are gone
// before the next command runs.
type SettlePolicy func(sleep func(time.Duration))

// FixedSettle waits d regardless of whether the processes already exited.
func FixedSettle(d time.Duration) SettlePolicy {
	return func(sleep func(time.Duration)) {
		sleep(d)
	}
}

// commandBackoff paces retries and aborts them once shutdown was requested.
func (l *Launcher) commandBackoff() bool {
	l.sleep(constants.InterCommandDelay)
	return l.shuttingDown()
}

// sendCommand writes cmd to the transport and remembers it for failure logs.
func (l *Launcher) sendCommand(cmd string) error {
	return retry.Do(retry.Policy{
		Retryable:     expect.IsTransient,
		Retries:       constants.SendLineRetries,
		KeepLastError: true,
	}, func() error {
		l.logger.Info().Str("cmd", l.redact(cmd)).Msg("sending")
		l.lastCommand = cmd
		return l.transport.SendLine(cmd)
	})
}

func (l *Launcher) redact(cmd string) string {
	if l.password != "" && cmd == l.password {
		return "****"
	}
	return security.SanitizeCommandForLog(cmd, l.password)
}

// readUntilCompletion consumes output until the completion tag reports a
// result or the stream ends. Each read waits out a long run of timeouts so a
// quiet test is not mistaken for a dead connection.
func (l *Launcher) readUntilCompletion() error {
	for {
		line, err := retry.Value(retry.Policy{
			Retryable:     retry.On(expect.ErrTimeout),
			Retries:       constants.ReadLineRetries,
			Backoff:       l.shuttingDown,
			KeepLastError: true,
		}, l.transport.ReadLine)
		if errors.Is(err, expect.ErrEOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = expect.Sanitize(line)
		l.flush()

		if !strings.HasPrefix(line, l.tag) {
			continue
		}
		if strings.Contains(line, constants.SuccessMarker) {
			l.result = 0
			return nil
		}
		if strings.Contains(line, constants.FailureMarker) {
			return nil
		}
	}
}

// waitForPrompt resynchronizes with the shell after output of unknown length.
// Each retry pokes the shell so a fresh prompt is printed.
func (l *Launcher) waitForPrompt() error {
	_, err := retry.Value(retry.Policy{
		Retryable: expect.IsTransient,
		Retries:   constants.PromptRetries,
		Backoff: func() bool {
			if err := l.sendCommand("echo " + constants.SleepSignal); err != nil {
				return true
			}
			return l.commandBackoff()
		},
		KeepLastError: true,
	}, func() (int, error) {
		return l.transport.ExpectExact(l.prompt)
	})
	return err
}

// killStaleProcesses kills leftovers of earlier runs that could hold ports or
// files the test needs.
func (l *Launcher) killStaleProcesses() error {
	return retry.Do(retry.Policy{
		Retryable: expect.IsTransient,
		Retries:   constants.KillRetries,
		Backoff:   l.commandBackoff,
	}, func() error {
		l.logger.Info().Msg("killing existing processes")
		if err := l.sendCommand(killCommand(l.staleProcesses)); err != nil {
			return err
		}
		if err := l.waitForPrompt(); err != nil {
			return err
		}
		// pkill exits 0 only when something was killed
		if err := l.sendCommand("echo PROCKILL:${?}"); err != nil {
			return err
		}
		i, err := l.transport.Expect(procKillZero, procKillAny)
		if err != nil {
			return err
		}
		if i == 0 {
			l.logger.Warn().Msg("forced to kill existing processes, pausing until they shut down")
			l.settle(l.sleep)
		}
		l.logger.Info().Msg("done killing existing processes")
		return nil
	})
}

// sleepRemote pauses on the device side and waits for it to report back.
func (l *Launcher) sleepRemote(d time.Duration) error {
	secs := strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
	if err := l.sendCommand(fmt.Sprintf("sleep %s;echo %s", secs, constants.SleepSignal)); err != nil {
		return err
	}
	_, err := l.transport.ExpectExact(constants.SleepSignal)
	return err
}

// runDiagnostics records the device state once: result file, memory,
// processes, disk.
func (l *Launcher) runDiagnostics() error {
	var cmds []string
	if l.cfg.TestResultXMLPath != "" {
		cmds = append(cmds, "touch "+security.ShellEscape(l.cfg.TestResultXMLPath))
	}
	cmds = append(cmds, "free -mh", "ps -ux", "df -h")

	for _, cmd := range cmds {
		if l.shuttingDown() {
			return nil
		}
		if err := l.sendCommand(cmd); err != nil {
			return err
		}
		if _, err := retry.Value(retry.Policy{
			Retryable: expect.IsTransient,
			Retries:   constants.DiagReadRetries,
		}, l.transport.ReadLine); err != nil {
			return err
		}
	}

	if err := l.waitForPrompt(); err != nil {
		return err
	}
	l.flush()
	return l.sleepRemote(constants.InterCommandDelay)
}

// flush pushes mirrored output through sinks that buffer.
func (l *Launcher) flush() {
	switch f := l.output.(type) {
	case interface{ Flush() error }:
		_ = f.Flush()
	case interface{ Sync() error }:
		_ = f.Sync()
	}
}
