//go:build !windows

package discovery

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// applyUDPSocketOptions sets SO_REUSEADDR and, where the platform
// defines it, SO_REUSEPORT, so more than one process (or more than one
// Service in the same process, e.g. under test) can bind the discovery
// port concurrently. golang.org/x/sys/unix carries the per-GOOS value
// of SO_REUSEPORT; the bare syscall package only defines it on some
// Unix targets, which is what made the teacher's bridge drop it
// entirely.
func applyUDPSocketOptions(network, address string, rc syscall.RawConn) error {
	var retErr error
	_ = rc.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil && retErr == nil {
			retErr = err
		}
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil && retErr == nil {
			retErr = err
		}
	})
	return retErr
}
