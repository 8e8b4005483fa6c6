package transport

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// WebSocket is a Network carrying the byte stream in binary WebSocket
// messages. Message boundaries carry no meaning.
type WebSocket struct {
	// Path is the HTTP path served and dialed. Defaults to "/".
	Path string
	// Dialer is used by Dial. Defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
	// Upgrader is used by Listen.
	Upgrader websocket.Upgrader
}

func (w WebSocket) path() string {
	if w.Path == "" {
		return "/"
	}
	return w.Path
}

func (w WebSocket) Dial(ctx context.Context, addr string) (Conn, error) {
	d := w.Dialer
	if d == nil {
		d = websocket.DefaultDialer
	}
	c, _, err := d.DialContext(ctx, "ws://"+addr+w.path(), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	return newWSConn(c), nil
}

func (w WebSocket) Listen(ctx context.Context, addr string) (Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", addr)
	}
	l := &wsListener{
		ln:     ln,
		conns:  make(chan Conn),
		closed: make(chan struct{}),
	}
	up := w.Upgrader
	mux := http.NewServeMux()
	mux.HandleFunc(w.path(), func(rw http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		select {
		case l.conns <- newWSConn(c):
		case <-l.closed:
			c.Close()
		}
	})
	l.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go l.srv.Serve(ln)
	return l, nil
}

type wsListener struct {
	ln     net.Listener
	srv    *http.Server
	conns  chan Conn
	once   sync.Once
	closed chan struct{}
}

func (l *wsListener) Accept() (Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.closed:
		return nil, ErrListenerClosed
	}
}

func (l *wsListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.closed)
		err = l.srv.Close()
	})
	return err
}

func (l *wsListener) Addr() string { return l.ln.Addr().String() }

// wsConn adapts a *websocket.Conn to a byte stream.
type wsConn struct {
	c   *websocket.Conn
	r   io.Reader
	wmu sync.Mutex
}

func newWSConn(c *websocket.Conn) *wsConn { return &wsConn{c: c} }

func (c *wsConn) Remote() string { return c.c.RemoteAddr().String() }

func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.r == nil {
			_, r, err := c.c.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			c.r = r
		}
		n, err := c.r.Read(p)
		if err == io.EOF {
			c.r = nil
			if n == 0 {
				continue
			}
			err = nil
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.c.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	c.wmu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.wmu.Unlock()
	return c.c.Close()
}
