//go:build unix

package transport

import (
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func (t TCP) control(listen bool) func(network, address string, c syscall.RawConn) error {
	reuse := listen && t.ReuseAddr
	if !reuse && !t.NoDelay {
		return nil
	}
	return func(network, address string, c syscall.RawConn) error {
		var serr error
		err := c.Control(func(fd uintptr) {
			if reuse {
				serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			}
			if serr == nil && t.NoDelay {
				serr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
			}
		})
		if err == nil {
			err = serr
		}
		return errors.Wrapf(err, "socket options %s", address)
	}
}
