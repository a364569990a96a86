package launcher

import (
	"regexp"

	"github.com/yoanbernabeu/pilauncher/internal/constants"
	"github.com/yoanbernabeu/pilauncher/internal/expect"
	"github.com/yoanbernabeu/pilauncher/internal/retry"
)

// Checked in order; the first that matches decides the reply.
var loginPrompts = []*regexp.Regexp{
	regexp.MustCompile(`.*Are\syou\ssure.*`), // host key fingerprint
	regexp.MustCompile(`.* password:`),
	regexp.MustCompile(`.*[a-zA-Z]+.*`), // anything else
}

// login turns a freshly spawned connection into a ready shell. A fingerprint
// question is confirmed and the wait continues; a password prompt gets the
// device password; any other text may mean key auth already succeeded, which
// an echoed login signal confirms.
func (l *Launcher) login() error {
	l.setLoginState(StateConnecting)

	return retry.Do(retry.Policy{
		Retryable: expect.IsTransient,
		Retries:   constants.LoginRetries,
		Backoff:   l.commandBackoff,
	}, func() error {
		for {
			i, err := l.transport.Expect(loginPrompts...)
			if err != nil {
				return err
			}

			switch i {
			case 0:
				l.setLoginState(StateConfirmFingerprint)
				if err := l.sendCommand("yes"); err != nil {
					return err
				}
				continue
			case 1:
				l.setLoginState(StateEnterPassword)
				if err := l.sendCommand(l.password); err != nil {
					return err
				}
			default:
				l.setLoginState(StateProbeLogin)
				if err := l.sendCommand("echo " + constants.LoginSignal); err != nil {
					return err
				}
				if _, err := l.transport.ExpectExact(constants.LoginSignal); err != nil {
					return err
				}
			}

			l.setLoginState(StateReady)
			return nil
		}
	})
}
