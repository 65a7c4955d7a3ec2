//go:build linux || darwin || freebsd || openbsd

package conn

import (
	"net"

	"golang.org/x/sys/unix"
)

// enableBroadcast sets SO_BROADCAST on the socket's underlying fd with
// the usual raw-sockopt idiom (as WireGuard uses for SO_MARK): reach the
// fd via SyscallConn().Control and call unix.SetsockoptInt directly
// rather than shelling out to a helper.
func enableBroadcast(udp *net.UDPConn) error {
	raw, err := udp.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
