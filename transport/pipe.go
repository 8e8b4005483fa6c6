package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/pkg/errors"
)

// Pipe is an in-memory Network built on net.Pipe. Addresses are matched
// by port, so "host:7" dials the listener bound to ":7".
type Pipe struct {
	mu        sync.Mutex
	listeners map[string]*pipeListener
	dials     int
}

// NewPipe returns an empty in-memory Network.
func NewPipe() *Pipe { return &Pipe{listeners: map[string]*pipeListener{}} }

func pipeKey(addr string) string {
	if _, port, err := net.SplitHostPort(addr); err == nil {
		return port
	}
	return addr
}

func (p *Pipe) Listen(_ context.Context, addr string) (Listener, error) {
	key := pipeKey(addr)
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.listeners[key]; ok {
		return nil, errors.Errorf("listen %s: address in use", addr)
	}
	l := &pipeListener{p: p, key: key, conns: make(chan Conn), closed: make(chan struct{})}
	p.listeners[key] = l
	return l, nil
}

func (p *Pipe) Dial(ctx context.Context, addr string) (Conn, error) {
	p.mu.Lock()
	l, ok := p.listeners[pipeKey(addr)]
	p.dials++
	n := p.dials
	p.mu.Unlock()
	if !ok {
		return nil, errors.Errorf("dial %s: connection refused", addr)
	}
	local, remote := net.Pipe()
	select {
	case l.conns <- pipeConn{Conn: remote, remote: fmt.Sprintf("pipe-client-%d", n)}:
		return pipeConn{Conn: local, remote: "pipe:" + addr}, nil
	case <-l.closed:
		local.Close()
		remote.Close()
		return nil, errors.Errorf("dial %s: connection refused", addr)
	case <-ctx.Done():
		local.Close()
		remote.Close()
		return nil, errors.Wrapf(ctx.Err(), "dial %s", addr)
	}
}

type pipeConn struct {
	net.Conn
	remote string
}

func (c pipeConn) Remote() string { return c.remote }

type pipeListener struct {
	p      *Pipe
	key    string
	conns  chan Conn
	once   sync.Once
	closed chan struct{}
}

func (l *pipeListener) Accept() (Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.closed:
		return nil, ErrListenerClosed
	}
}

func (l *pipeListener) Close() error {
	l.once.Do(func() {
		close(l.closed)
		l.p.mu.Lock()
		delete(l.p.listeners, l.key)
		l.p.mu.Unlock()
	})
	return nil
}

func (l *pipeListener) Addr() string { return net.JoinHostPort("", l.key) }
