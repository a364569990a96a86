package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
)

// ExecResult holds the result of a command execution
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Exec executes a command on the device. Cancelling ctx closes the session.
func (c *Client) Exec(ctx context.Context, command string) (*ExecResult, error) {
	session, err := c.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	c.logger.Debug().Str("cmd", command).Msg("exec")
	err = runWithContext(ctx, session, command)

	result := &ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
		} else {
			return result, fmt.Errorf("failed to execute command: %w", err)
		}
	}

	return result, nil
}

// ExecWithOutput executes a command and returns trimmed stdout
func (c *Client) ExecWithOutput(ctx context.Context, command string) (string, error) {
	result, err := c.Exec(ctx, command)
	if err != nil {
		return "", err
	}
	return result.Output()
}

// Output returns trimmed stdout, or an error carrying stderr when the
// command exited non-zero
func (r *ExecResult) Output() (string, error) {
	output := strings.TrimSpace(r.Stdout)
	if r.ExitCode != 0 {
		errMsg := strings.TrimSpace(r.Stderr)
		if errMsg == "" {
			errMsg = output
		}
		return output, fmt.Errorf("command failed (exit %d): %s", r.ExitCode, errMsg)
	}
	return output, nil
}

// StreamOutput streams command output to out, each line prefixed
func (c *Client) StreamOutput(ctx context.Context, command, prefix string, out io.Writer) error {
	session, err := c.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	stdout, err := session.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	stderr, err := session.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	if err := session.Start(command); err != nil {
		return fmt.Errorf("failed to start command: %w", err)
	}

	pw := &prefixWriter{out: out}
	done := make(chan struct{}, 2)
	go func() { streamWithPrefix(stdout, pw, prefix); done <- struct{}{} }()
	go func() { streamWithPrefix(stderr, pw, prefix); done <- struct{}{} }()

	err = waitWithContext(ctx, session)
	<-done
	<-done
	return err
}

// prefixWriter serializes writes from the stdout and stderr pumps
type prefixWriter struct {
	mu  sync.Mutex
	out io.Writer
}

func (w *prefixWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.out.Write(p)
}

func streamWithPrefix(r io.Reader, w io.Writer, prefix string) {
	buf := make([]byte, 1024)
	var partial string
	for {
		n, err := r.Read(buf)
		if n > 0 {
			lines := strings.Split(partial+string(buf[:n]), "\n")
			partial = lines[len(lines)-1]
			for _, line := range lines[:len(lines)-1] {
				if line != "" {
					fmt.Fprintf(w, "%s%s\n", prefix, line)
				}
			}
		}
		if err != nil {
			break
		}
	}
	if partial != "" {
		fmt.Fprintf(w, "%s%s\n", prefix, partial)
	}
}

func runWithContext(ctx context.Context, session *ssh.Session, command string) error {
	if err := session.Start(command); err != nil {
		return err
	}
	return waitWithContext(ctx, session)
}

func waitWithContext(ctx context.Context, session *ssh.Session) error {
	errCh := make(chan error, 1)
	go func() { errCh <- session.Wait() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		<-errCh
		return ctx.Err()
	}
}
