//go:build !windows
// +build !windows

package matbridge

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// setSignalsForChannel configures the channel to receive SIGINT and SIGTERM.
func setSignalsForChannel(c chan os.Signal) {
	signal.Notify(c, os.Interrupt, unix.SIGTERM)
}

// terminateProcess asks the engine process to exit gracefully.
func terminateProcess(p *os.Process) error {
	return p.Signal(unix.SIGTERM)
}
