//go:build !unix

package transport

import "syscall"

func (t TCP) control(listen bool) func(network, address string, c syscall.RawConn) error {
	return nil
}
