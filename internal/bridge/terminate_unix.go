//go:build !windows

package bridge

import (
	"os"

	"golang.org/x/sys/unix"
)

func signalTerminate(p *os.Process) error {
	return p.Signal(unix.SIGTERM)
}
