package expect

import (
	"bytes"
	"errors"
	"os/exec"
	"regexp"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSpawn_EmptyCommand(t *testing.T) {
	_, err := Spawn("   ")
	require.Error(t, err)
}

func TestSpawn_MissingBinaryIsTransient(t *testing.T) {
	_, err := Spawn("pilauncher-definitely-not-a-binary --flag")
	require.Error(t, err)
	require.True(t, IsTransient(err), "spawn error should be retryable: %v", err)
}

func TestProcess_ReadLineUntilEOF(t *testing.T) {
	var mirror bytes.Buffer
	p, err := Spawn("echo hello world", WithTimeout(5*time.Second), WithLogfile(&mirror))
	require.NoError(t, err)
	defer p.Close()

	line, err := p.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "hello world", line)

	_, err = p.ReadLine()
	require.ErrorIs(t, err, ErrEOF)
	require.Contains(t, mirror.String(), "hello world")

	require.Eventually(t, func() bool { return !p.IsAlive() }, 5*time.Second, 10*time.Millisecond)
}

func TestProcess_SendLineAndExpect(t *testing.T) {
	p, err := Spawn("cat", WithTimeout(5*time.Second))
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.SendLine("PROCKILL:3"))
	i, err := p.Expect(regexp.MustCompile(`PROCKILL:0`), regexp.MustCompile(`PROCKILL:(\d+)`))
	require.NoError(t, err)
	require.Equal(t, 1, i)
	require.Equal(t, []string{"PROCKILL:3", "3"}, p.Match())
}

func TestProcess_ExpectExactQuotesMetacharacters(t *testing.T) {
	p, err := Spawn("cat", WithTimeout(5*time.Second))
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.SendLine("a.b*c"))
	i, err := p.ExpectExact("x", "a.b*c")
	require.NoError(t, err)
	require.Equal(t, 1, i)
}

func TestProcess_ExpectTimesOut(t *testing.T) {
	p, err := Spawn("cat", WithTimeout(50*time.Millisecond))
	require.NoError(t, err)
	defer p.Close()

	start := time.Now()
	_, err = p.Expect(regexp.MustCompile("never"))
	require.ErrorIs(t, err, ErrTimeout)
	require.True(t, IsTransient(err))
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestProcess_CloseIsIdempotent(t *testing.T) {
	p, err := Spawn("cat")
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	require.False(t, p.IsAlive())

	require.ErrorIs(t, p.SendLine("x"), ErrClosed)
	_, err = p.ReadLine()
	require.ErrorIs(t, err, ErrClosed)
	require.False(t, IsTransient(ErrClosed))
}

func TestProcess_Drain(t *testing.T) {
	p, err := Spawn("cat", WithTimeout(500*time.Millisecond))
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.SendLine("alpha"))
	require.NoError(t, p.SendLine("beta"))

	out, err := p.Drain()
	require.NoError(t, err)
	require.Contains(t, out, "alpha")
	require.Contains(t, out, "beta")

	out, err = p.Drain()
	require.NoError(t, err)
	require.Empty(t, out)

	require.NoError(t, p.Close())
	_, err = p.Drain()
	require.ErrorIs(t, err, ErrClosed)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout", ErrTimeout, true},
		{"eof", ErrEOF, true},
		{"wrapped eof", errors.Join(errors.New("read"), ErrEOF), true},
		{"errno", syscall.EIO, true},
		{"exec", &exec.Error{Name: "ssh", Err: exec.ErrNotFound}, true},
		{"other", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
