package transport

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
)

// TCP is the TCP Network.
type TCP struct {
	// NoDelay disables Nagle's algorithm on new sockets.
	NoDelay bool
	// ReuseAddr sets SO_REUSEADDR on listening sockets.
	ReuseAddr bool
	// KeepAlive is the keep-alive period; zero uses the system default.
	KeepAlive time.Duration
}

func (t TCP) Dial(ctx context.Context, addr string) (Conn, error) {
	d := net.Dialer{KeepAlive: t.KeepAlive, Control: t.control(false)}
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	return netConn{c}, nil
}

func (t TCP) Listen(ctx context.Context, addr string) (Listener, error) {
	lc := net.ListenConfig{KeepAlive: t.KeepAlive, Control: t.control(true)}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", addr)
	}
	return &netListener{ln: ln}, nil
}

// netConn adapts a net.Conn to Conn.
type netConn struct{ net.Conn }

func (c netConn) Remote() string { return c.Conn.RemoteAddr().String() }

type netListener struct{ ln net.Listener }

func (l *netListener) Accept() (Conn, error) {
	c, err := l.ln.Accept()
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrListenerClosed
		}
		return nil, errors.Wrap(err, "accept")
	}
	return netConn{c}, nil
}

func (l *netListener) Close() error { return l.ln.Close() }
func (l *netListener) Addr() string { return l.ln.Addr().String() }
