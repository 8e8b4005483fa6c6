package transport

import (
	"context"
	"io"
	"net"

	"github.com/pkg/errors"
)

// Conn is a connected byte stream.
type Conn interface {
	io.ReadWriteCloser
	// Remote returns the peer address.
	Remote() string
}

// Dialer opens client connections.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Conn, error)
}

// Listener accepts server connections.
type Listener interface {
	// Accept waits for the next connection. After Close it returns
	// ErrListenerClosed.
	Accept() (Conn, error)
	Close() error
	// Addr returns the bound address.
	Addr() string
}

// Network is a transport that can both dial and listen.
type Network interface {
	Dialer
	Listen(ctx context.Context, addr string) (Listener, error)
}

// Resolver maps a host name to the addresses to dial.
type Resolver interface {
	Resolve(ctx context.Context, host string) ([]string, error)
}

// ErrListenerClosed is returned by Accept on a closed Listener.
var ErrListenerClosed = errors.New("listener closed")

// NetResolver resolves hosts with a *net.Resolver. A nil R uses
// net.DefaultResolver.
type NetResolver struct {
	R *net.Resolver
}

func (r NetResolver) Resolve(ctx context.Context, host string) ([]string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []string{host}, nil
	}
	res := r.R
	if res == nil {
		res = net.DefaultResolver
	}
	addrs, err := res.LookupHost(ctx, host)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", host)
	}
	return addrs, nil
}

// StaticResolver resolves hosts from a fixed table. Hosts missing from
// the table resolve to themselves.
type StaticResolver map[string][]string

func (r StaticResolver) Resolve(_ context.Context, host string) ([]string, error) {
	if addrs, ok := r[host]; ok {
		if len(addrs) == 0 {
			return nil, errors.Errorf("resolve %s: no addresses", host)
		}
		return append([]string(nil), addrs...), nil
	}
	return []string{host}, nil
}
