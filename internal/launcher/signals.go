package launcher

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

var (
	bridgeOnce sync.Once
	exitFunc   = os.Exit
)

// InstallSignalBridge makes SIGINT and SIGTERM exit the process with the
// signal number as status. It registers at most once per process; launchers
// never install handlers of their own.
func InstallSignalBridge() {
	bridgeOnce.Do(func() {
		startBridge(exitFunc, syscall.SIGINT, syscall.SIGTERM)
	})
}

func startBridge(exit func(int), sigs ...os.Signal) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	done := make(chan struct{})

	go func() {
		select {
		case s := <-ch:
			code := 1
			if sig, ok := s.(syscall.Signal); ok {
				code = int(sig)
			}
			exit(code)
		case <-done:
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}
