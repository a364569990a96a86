package ssh

import (
	"context"
	"io"
)

// Executor abstracts remote command execution for testability.
type Executor interface {
	Exec(ctx context.Context, command string) (*ExecResult, error)
	StreamOutput(ctx context.Context, command, prefix string, out io.Writer) error
	Close() error
}

var _ Executor = (*Client)(nil)
