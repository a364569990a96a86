package launcher

import (
	"io"
	"regexp"

	"github.com/yoanbernabeu/pilauncher/internal/constants"
	"github.com/yoanbernabeu/pilauncher/internal/expect"
)

// Transport is the interactive connection a run drives. Only the goroutine
// executing Run touches it.
type Transport interface {
	SendLine(s string) error
	Expect(patterns ...*regexp.Regexp) (int, error)
	ExpectExact(literals ...string) (int, error)
	Match() []string
	ReadLine() (string, error)
	Drain() (string, error)
	IsAlive() bool
	Close() error
}

// Spawner starts command with the given environment, mirroring everything it
// prints to sink.
type Spawner func(command string, env []string, sink io.Writer) (Transport, error)

// PtySpawner runs command locally under a pseudo-terminal.
func PtySpawner(command string, env []string, sink io.Writer) (Transport, error) {
	p, err := expect.Spawn(command,
		expect.WithTimeout(constants.TransportTimeout),
		expect.WithLogfile(sink),
		expect.WithEnv(env),
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}
