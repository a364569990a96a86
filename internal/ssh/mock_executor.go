package ssh

import (
	"context"
	"io"
)

// MockExecutor is a test double that records commands and returns configured results.
type MockExecutor struct {
	ExecFunc   func(ctx context.Context, command string) (*ExecResult, error)
	StreamFunc func(ctx context.Context, command, prefix string, out io.Writer) error
	Commands   []string
	Closed     bool
}

// Exec records the command and delegates to ExecFunc.
func (m *MockExecutor) Exec(ctx context.Context, command string) (*ExecResult, error) {
	m.Commands = append(m.Commands, command)
	if m.ExecFunc != nil {
		return m.ExecFunc(ctx, command)
	}
	return &ExecResult{Stdout: "", Stderr: "", ExitCode: 0}, nil
}

// StreamOutput records the command and delegates to StreamFunc.
func (m *MockExecutor) StreamOutput(ctx context.Context, command, prefix string, out io.Writer) error {
	m.Commands = append(m.Commands, command)
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, command, prefix, out)
	}
	return nil
}

// Close marks the mock closed.
func (m *MockExecutor) Close() error {
	m.Closed = true
	return nil
}
