//go:build windows
// +build windows

package matbridge

import (
	"os"
	"os/signal"
)

// setSignalsForChannel configures the channel to receive interrupt signals.
func setSignalsForChannel(c chan os.Signal) {
	signal.Notify(c, os.Interrupt)
}

// terminateProcess stops the engine process. Windows has no SIGTERM
// equivalent for console children, so the process is killed outright.
func terminateProcess(p *os.Process) error {
	return p.Kill()
}
