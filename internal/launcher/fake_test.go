package launcher

import (
	"bytes"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/yoanbernabeu/pilauncher/internal/constants"
	"github.com/yoanbernabeu/pilauncher/internal/expect"
)

const fakePrompt = "pi@raspberrypi:~$ "

// fakeTransport is an in-memory shell. Output produced in reply to SendLine is
// buffered at once; reads that find nothing report a timeout after a short
// pause, or end of stream once the fake hung up.
type fakeTransport struct {
	mu      sync.Mutex
	command string
	sink    io.Writer
	respond func(f *fakeTransport, line string)
	timeout time.Duration

	buf    []byte
	eof    bool
	closed bool
	alive  bool
	sent   []string
	match  []string

	// expects counts Expect calls
	expects int
	onClose func()
}

func (f *fakeTransport) emit(s string) {
	f.buf = append(f.buf, s...)
	if f.sink != nil {
		_, _ = io.WriteString(f.sink, s)
	}
}

func (f *fakeTransport) hangUp() {
	f.eof = true
	f.alive = false
}

func (f *fakeTransport) SendLine(s string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return expect.ErrClosed
	}
	f.sent = append(f.sent, s)
	if f.respond != nil && !f.eof {
		f.respond(f, s)
	}
	return nil
}

func (f *fakeTransport) starved() error {
	if f.eof {
		return expect.ErrEOF
	}
	if f.timeout > 0 {
		f.mu.Unlock()
		time.Sleep(f.timeout)
		f.mu.Lock()
	}
	return expect.ErrTimeout
}

func (f *fakeTransport) Expect(patterns ...*regexp.Regexp) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return -1, expect.ErrClosed
	}
	f.expects++
	for i, re := range patterns {
		loc := re.FindSubmatchIndex(f.buf)
		if loc == nil {
			continue
		}
		f.match = nil
		for j := 0; j < len(loc); j += 2 {
			if loc[j] >= 0 {
				f.match = append(f.match, string(f.buf[loc[j]:loc[j+1]]))
			}
		}
		f.buf = f.buf[loc[1]:]
		return i, nil
	}
	return -1, f.starved()
}

func (f *fakeTransport) ExpectExact(literals ...string) (int, error) {
	patterns := make([]*regexp.Regexp, len(literals))
	for i, s := range literals {
		patterns[i] = regexp.MustCompile(regexp.QuoteMeta(s))
	}
	return f.Expect(patterns...)
}

func (f *fakeTransport) Match() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.match
}

func (f *fakeTransport) ReadLine() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return "", expect.ErrClosed
	}
	if i := bytes.IndexByte(f.buf, '\n'); i >= 0 {
		line := strings.TrimRight(string(f.buf[:i]), "\r")
		f.buf = f.buf[i+1:]
		return line, nil
	}
	if f.eof && len(f.buf) > 0 {
		line := string(f.buf)
		f.buf = nil
		return line, nil
	}
	return "", f.starved()
}

func (f *fakeTransport) Drain() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := string(f.buf)
	f.buf = nil
	return out, nil
}

func (f *fakeTransport) IsAlive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive && !f.closed
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.alive = false
	hook := f.onClose
	f.onClose = nil
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) expectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.expects
}

func (f *fakeTransport) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// fakeDevice scripts how rsync and the remote shell behave and records every
// transport it hands out.
type fakeDevice struct {
	mu sync.Mutex

	password string
	// greeting is what ssh prints before the first reply
	greeting string
	// testOutput is printed in reply to the test command
	testOutput []string
	// hangUpAfterTest ends the stream after the test output
	hangUpAfterTest bool
	procKillStatus  string
	readTimeout     time.Duration
	onTest          func()
	// promptDelay withholds the prompt from that many sleep-signal echoes
	promptDelay int
	// onRsyncClose runs when the rsync transport is closed
	onRsyncClose func()

	spawned []*fakeTransport
	// overlap is set when a spawn happens while an earlier transport is open
	overlap bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		password:       constants.DevicePassword,
		greeting:       "pi@10.0.0.5's password: ",
		procKillStatus: "1",
	}
}

func (d *fakeDevice) spawn(command string, env []string, sink io.Writer) (Transport, error) {
	f := &fakeTransport{command: command, sink: sink, alive: true, timeout: d.readTimeout}
	if strings.HasPrefix(command, "rsync ") {
		f.respond = d.rsync
		f.onClose = d.onRsyncClose
		f.emit("pi@10.0.0.5's password: ")
	} else {
		f.respond = d.shell
		f.emit(d.greeting)
	}

	d.mu.Lock()
	for _, prev := range d.spawned {
		if !prev.isClosed() {
			d.overlap = true
		}
	}
	d.spawned = append(d.spawned, f)
	d.mu.Unlock()
	return f, nil
}

func (d *fakeDevice) rsync(f *fakeTransport, line string) {
	if line != d.password {
		return
	}
	f.emit("\r\nsending incremental file list\r\nout/\r\nout/target/target\r\n\r\nsent 1.20K bytes  received 35 bytes\r\n")
	f.hangUp()
}

func (d *fakeDevice) shell(f *fakeTransport, line string) {
	switch {
	case line == "yes":
		f.emit("Warning: Permanently added '10.0.0.5' (ED25519) to the list of known hosts.\r\npi@10.0.0.5's password: ")
	case line == d.password:
		f.emit("\r\nLinux raspberrypi 6.1.21-v7+ armv7l\r\n" + fakePrompt)
	case line == "echo PROCKILL:${?}":
		f.emit("PROCKILL:" + d.procKillStatus + "\r\n" + fakePrompt)
	case line == "echo "+constants.SleepSignal && d.promptDelay > 0:
		d.promptDelay--
		f.emit(constants.SleepSignal + "\r\n")
	case strings.HasPrefix(line, "sleep "):
		f.emit(constants.SleepSignal + "\r\n" + fakePrompt)
	case strings.HasPrefix(line, "echo "):
		f.emit(strings.TrimPrefix(line, "echo ") + "\r\n" + fakePrompt)
	case strings.HasPrefix(line, "pkill "):
		f.emit(fakePrompt)
	case strings.HasPrefix(line, "dmesg "):
		f.emit("[ 1.000000] kernel: oom-kill\r\n" + fakePrompt)
	case line == "\x03":
		f.emit("^C\r\n" + fakePrompt)
	case strings.Contains(line, "&& echo"):
		if d.onTest != nil {
			d.onTest()
		}
		for _, out := range d.testOutput {
			f.emit(out + "\r\n")
		}
		if d.hangUpAfterTest {
			f.hangUp()
			return
		}
		if len(d.testOutput) > 0 {
			f.emit(fakePrompt)
		}
	default:
		f.emit(line + ": ok\r\n" + fakePrompt)
	}
}

func (d *fakeDevice) transports() []*fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeTransport(nil), d.spawned...)
}

func (d *fakeDevice) spawnCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.spawned)
}

// shell returns the last ssh transport.
func (d *fakeDevice) lastShell() *fakeTransport {
	ts := d.transports()
	for i := len(ts) - 1; i >= 0; i-- {
		if strings.HasPrefix(ts[i].command, "ssh ") {
			return ts[i]
		}
	}
	return nil
}

// allSent lists every line sent to any transport.
func (d *fakeDevice) allSent() []string {
	var out []string
	for _, t := range d.transports() {
		out = append(out, t.Sent()...)
	}
	return out
}
