//go:build windows

package bridge

import "os"

// Windows has no SIGTERM equivalent for console children.
func signalTerminate(p *os.Process) error {
	return p.Kill()
}
