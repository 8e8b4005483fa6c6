package transport

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector gathers bytes delivered by a link.
type collector struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *collector) onData(b []byte) {
	c.mu.Lock()
	c.buf.Write(b)
	c.mu.Unlock()
}

func (c *collector) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

func TestLink(t *testing.T) {
	for _, tc := range []struct {
		name string
		f    func(a *assert.Assertions, l *Link, peer net.Conn, got *collector, done <-chan error)
	}{
		{
			name: "write then graceful close",
			f: func(a *assert.Assertions, l *Link, peer net.Conn, got *collector, done <-chan error) {
				for _, s := range []string{"foo", "bar", "baz"} {
					n, err := l.Write([]byte(s))
					a.NoError(err)
					a.Equal(3, n)
				}
				a.NoError(l.Close())
				_, err := l.Write([]byte("late"))
				a.Equal(ErrLinkClosed, err)
				b, err := io.ReadAll(peer)
				a.NoError(err)
				a.Equal("foobarbaz", string(b))
				a.NoError(<-done)
				a.True(l.Closed())
			},
		},
		{
			name: "read",
			f: func(a *assert.Assertions, l *Link, peer net.Conn, got *collector, done <-chan error) {
				_, err := peer.Write([]byte("hello"))
				a.NoError(err)
				_, err = peer.Write([]byte(" world"))
				a.NoError(err)
				a.Eventually(func() bool { return got.String() == "hello world" }, time.Second, time.Millisecond)
				a.False(l.Closed())
				l.Close()
				a.NoError(<-done)
			},
		},
		{
			name: "peer close",
			f: func(a *assert.Assertions, l *Link, peer net.Conn, got *collector, done <-chan error) {
				peer.Close()
				a.Equal(io.EOF, <-done)
				a.Equal(io.EOF, l.Err())
				_, err := l.Write([]byte("x"))
				a.Equal(ErrLinkClosed, err)
				<-l.Done()
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			local, peer := net.Pipe()
			defer peer.Close()
			got := &collector{}
			done := make(chan error, 1)
			l := NewLink(pipeConn{Conn: local, remote: "peer"}, got.onData, func(err error) { done <- err })
			a := assert.New(t)
			a.Equal("peer", l.Remote())
			l.Start()
			tc.f(a, l, peer, got, done)
		})
	}
}

func TestNetworks(t *testing.T) {
	for _, tc := range []struct {
		name string
		net  Network
		addr string
	}{
		{name: "pipe", net: NewPipe(), addr: ":7"},
		{name: "tcp", net: TCP{NoDelay: true, ReuseAddr: true}, addr: "127.0.0.1:0"},
		{name: "websocket", net: WebSocket{Path: "/unicomm"}, addr: "127.0.0.1:0"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)
			ctx := context.Background()
			ln, err := tc.net.Listen(ctx, tc.addr)
			require.NoError(t, err)
			defer ln.Close()

			accepted := make(chan Conn, 1)
			go func() {
				c, err := ln.Accept()
				if err == nil {
					accepted <- c
				}
			}()
			client, err := tc.net.Dial(ctx, ln.Addr())
			require.NoError(t, err)
			server := <-accepted
			a.NotEmpty(client.Remote())
			a.NotEmpty(server.Remote())

			go func() {
				client.Write([]byte("ping"))
				client.Write([]byte("!"))
			}()
			buf := make([]byte, 5)
			_, err = io.ReadFull(server, buf)
			a.NoError(err)
			a.Equal("ping!", string(buf))

			a.NoError(client.Close())
			_, err = server.Read(buf)
			a.Error(err)
			server.Close()

			a.NoError(ln.Close())
			_, err = ln.Accept()
			a.Equal(ErrListenerClosed, err)
		})
	}
}

func TestPipeRefused(t *testing.T) {
	a := assert.New(t)
	p := NewPipe()
	_, err := p.Dial(context.Background(), "host:9")
	a.Error(err)
	ln, err := p.Listen(context.Background(), ":9")
	a.NoError(err)
	_, err = p.Listen(context.Background(), "other:9")
	a.Error(err)
	a.Equal(":9", ln.Addr())
}

func TestResolvers(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()
	r := StaticResolver{"echo": {"10.0.0.1", "10.0.0.2"}, "none": {}}
	addrs, err := r.Resolve(ctx, "echo")
	a.NoError(err)
	a.Equal([]string{"10.0.0.1", "10.0.0.2"}, addrs)
	addrs, err = r.Resolve(ctx, "other")
	a.NoError(err)
	a.Equal([]string{"other"}, addrs)
	_, err = r.Resolve(ctx, "none")
	a.Error(err)

	addrs, err = NetResolver{}.Resolve(ctx, "127.0.0.1")
	a.NoError(err)
	a.Equal([]string{"127.0.0.1"}, addrs)
}
