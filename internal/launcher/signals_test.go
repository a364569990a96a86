package launcher

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignalBridgeExitsWithSignalNumber(t *testing.T) {
	codes := make(chan int, 1)
	stop := startBridge(func(code int) { codes <- code }, syscall.SIGUSR1)
	defer stop()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))

	select {
	case code := <-codes:
		require.Equal(t, int(syscall.SIGUSR1), code)
	case <-time.After(2 * time.Second):
		t.Fatal("signal not bridged")
	}
}

func TestSignalBridgeStop(t *testing.T) {
	codes := make(chan int, 1)
	stop := startBridge(func(code int) { codes <- code }, syscall.SIGUSR2)
	stop()

	select {
	case code := <-codes:
		t.Fatalf("unexpected exit %d", code)
	case <-time.After(50 * time.Millisecond):
	}
}
