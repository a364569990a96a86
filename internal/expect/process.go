// Package expect drives a child process through a pseudo-terminal.
//
// It offers the small set of primitives an interactive login needs: send a
// line, wait for one of several patterns, read a line. Every blocking call is
// bounded by a short per-call timeout so the caller regains control often
// enough to notice a cancellation request.
package expect

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/creack/pty"
)

var (
	// ErrTimeout is returned when a call saw no match before its deadline.
	ErrTimeout = errors.New("expect: timeout")
	// ErrEOF is returned once the child's output is exhausted.
	ErrEOF = errors.New("expect: end of stream")
	// ErrClosed is returned by calls made after Close.
	ErrClosed = errors.New("expect: transport closed")
)

const (
	// DefaultTimeout bounds each Expect, ReadLine and Drain call.
	DefaultTimeout = time.Second

	maxBuffer  = 64 * 1024
	readChunk  = 4096
	closeGrace = 100 * time.Millisecond
)

// Process is a child process attached to a pseudo-terminal.
// It is not safe for concurrent use.
type Process struct {
	cmd     *exec.Cmd
	pty     *os.File
	timeout time.Duration
	logfile io.Writer

	chunks chan []byte
	quit   chan struct{}
	done   chan struct{}

	buf    []byte
	match  []string
	eof    bool
	closed bool
}

type options struct {
	timeout time.Duration
	logfile io.Writer
	env     []string
	size    *pty.Winsize
}

// Option configures Spawn.
type Option func(*options)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogfile mirrors everything read from the child to w as it arrives.
func WithLogfile(w io.Writer) Option {
	return func(o *options) {
		o.logfile = w
	}
}

// WithEnv sets the child's environment. The default inherits ours.
func WithEnv(env []string) Option {
	return func(o *options) {
		o.env = env
	}
}

// Spawn starts command, split on whitespace, under a new pseudo-terminal.
func Spawn(command string, opts ...Option) (*Process, error) {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return nil, fmt.Errorf("spawn: empty command")
	}

	o := &options{
		timeout: DefaultTimeout,
		size:    &pty.Winsize{Rows: 24, Cols: 80},
	}
	for _, opt := range opts {
		opt(o)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	if o.env != nil {
		cmd.Env = o.env
	}

	f, err := pty.StartWithSize(cmd, o.size)
	if err != nil {
		return nil, fmt.Errorf("spawn %s: %w", argv[0], err)
	}

	p := &Process{
		cmd:     cmd,
		pty:     f,
		timeout: o.timeout,
		logfile: o.logfile,
		chunks:  make(chan []byte, 64),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	go p.pump()
	go func() {
		_ = cmd.Wait()
		close(p.done)
	}()

	return p, nil
}

// pump copies pty output into the chunk channel until the pty fails or the
// process is closed. On Linux a pty master reports EIO once the child side
// hangs up; any read error is treated as end of stream.
func (p *Process) pump() {
	defer close(p.chunks)
	b := make([]byte, readChunk)
	for {
		n, err := p.pty.Read(b)
		if n > 0 {
			c := make([]byte, n)
			copy(c, b[:n])
			select {
			case p.chunks <- c:
			case <-p.quit:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// fill waits for the next chunk of output or for timer to fire.
func (p *Process) fill(timer <-chan time.Time) error {
	if p.eof {
		return ErrEOF
	}
	select {
	case c, ok := <-p.chunks:
		if !ok {
			p.eof = true
			return ErrEOF
		}
		if p.logfile != nil {
			_, _ = p.logfile.Write(c)
		}
		p.buf = append(p.buf, c...)
		if len(p.buf) > maxBuffer {
			p.buf = p.buf[len(p.buf)-maxBuffer:]
		}
		return nil
	case <-timer:
		return ErrTimeout
	}
}

// SendLine writes s followed by a newline.
func (p *Process) SendLine(s string) error {
	if p.closed {
		return ErrClosed
	}
	if _, err := io.WriteString(p.pty, s+"\n"); err != nil {
		return fmt.Errorf("send line: %w", err)
	}
	return nil
}

// Expect waits until one of patterns matches the buffered output and returns
// its index. Patterns are tried in order; the first one that matches wins and
// the buffer is consumed through the end of its match.
func (p *Process) Expect(patterns ...*regexp.Regexp) (int, error) {
	if p.closed {
		return -1, ErrClosed
	}
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	for {
		for i, re := range patterns {
			loc := re.FindSubmatchIndex(p.buf)
			if loc == nil {
				continue
			}
			p.match = submatches(p.buf, loc)
			p.buf = p.buf[loc[1]:]
			return i, nil
		}
		if err := p.fill(timer.C); err != nil {
			return -1, err
		}
	}
}

// ExpectExact is Expect with literal strings.
func (p *Process) ExpectExact(literals ...string) (int, error) {
	patterns := make([]*regexp.Regexp, len(literals))
	for i, s := range literals {
		patterns[i] = regexp.MustCompile(regexp.QuoteMeta(s))
	}
	return p.Expect(patterns...)
}

// Match returns the full match and submatches of the last successful Expect.
func (p *Process) Match() []string {
	return p.match
}

// ReadLine returns the next line without its terminator. A trailing partial
// line is returned when the stream ends; after that ReadLine reports ErrEOF.
func (p *Process) ReadLine() (string, error) {
	if p.closed {
		return "", ErrClosed
	}
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	for {
		if i := bytes.IndexByte(p.buf, '\n'); i >= 0 {
			line := strings.TrimRight(string(p.buf[:i]), "\r")
			p.buf = p.buf[i+1:]
			return line, nil
		}
		if err := p.fill(timer.C); err != nil {
			if errors.Is(err, ErrEOF) && len(p.buf) > 0 {
				line := strings.TrimRight(string(p.buf), "\r")
				p.buf = nil
				return line, nil
			}
			return "", err
		}
	}
}

// Drain reads whatever arrives until the stream goes quiet for one timeout
// period or ends, and returns it.
func (p *Process) Drain() (string, error) {
	if p.closed {
		return "", ErrClosed
	}
	for {
		timer := time.NewTimer(p.timeout)
		err := p.fill(timer.C)
		timer.Stop()
		if err != nil {
			out := string(p.buf)
			p.buf = nil
			if errors.Is(err, ErrTimeout) || errors.Is(err, ErrEOF) {
				return out, nil
			}
			return out, err
		}
	}
}

// IsAlive reports whether the child is still running.
func (p *Process) IsAlive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Close hangs up on the child, kills it if it lingers, and releases the pty.
// It is safe to call more than once.
func (p *Process) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.quit)

	if p.IsAlive() {
		_ = p.cmd.Process.Signal(syscall.SIGHUP)
		select {
		case <-p.done:
		case <-time.After(closeGrace):
			_ = p.cmd.Process.Kill()
		}
	}

	err := p.pty.Close()

	select {
	case <-p.done:
	case <-time.After(time.Second):
	}
	return err
}

func submatches(b []byte, loc []int) []string {
	out := make([]string, len(loc)/2)
	for i := range out {
		if loc[2*i] >= 0 {
			out[i] = string(b[loc[2*i]:loc[2*i+1]])
		}
	}
	return out
}

// IsTransient reports whether err is the kind of transport failure worth
// retrying: a timeout, an unexpected end of stream, or an OS-level error
// raised while spawning or talking to the child.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrEOF) {
		return true
	}
	var (
		pathErr *os.PathError
		execErr *exec.Error
		errno   syscall.Errno
	)
	return errors.As(err, &pathErr) || errors.As(err, &execErr) || errors.As(err, &errno)
}
