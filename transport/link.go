package transport

import (
	"io"
	"sync"

	"github.com/eapache/queue"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ErrLinkClosed is returned by Write once a Link is closing or has failed.
var ErrLinkClosed = errors.New("link closed")

const readBufferSize = 32 * 1024

// Link pumps bytes between a Conn and a session. A reader goroutine
// hands received bytes to onData; a writer goroutine drains frames
// queued by Write. When both have exited, onDone is called once with
// the error that ended the link, or nil if it was closed locally.
type Link struct {
	conn   Conn
	onData func([]byte)
	onDone func(error)
	log    zerolog.Logger

	mu      sync.Mutex
	q       *queue.Queue
	closing bool
	broken  bool
	err     error
	signal  chan struct{}

	closeConn sync.Once
	done      chan struct{}
}

// LinkOption is a constructor option for Link.
type LinkOption func(*Link)

// WithLinkLogger sets the link logger.
func WithLinkLogger(l zerolog.Logger) LinkOption { return func(k *Link) { k.log = l } }

// NewLink returns a Link over conn. onData is called from the reader
// goroutine with bytes only valid during the call. Either callback may
// be nil.
func NewLink(conn Conn, onData func([]byte), onDone func(error), opts ...LinkOption) *Link {
	l := &Link{
		conn:   conn,
		onData: onData,
		onDone: onDone,
		log:    zerolog.Nop(),
		q:      queue.New(),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start starts the reader and writer goroutines.
func (l *Link) Start() {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); l.readLoop() }()
	go func() { defer wg.Done(); l.writeLoop() }()
	go func() {
		wg.Wait()
		l.mu.Lock()
		err := l.err
		l.mu.Unlock()
		close(l.done)
		l.log.Debug().Err(err).Str("remote", l.conn.Remote()).Msg("link done")
		if l.onDone != nil {
			l.onDone(err)
		}
	}()
}

// Remote returns the peer address.
func (l *Link) Remote() string { return l.conn.Remote() }

// Write queues a copy of b for output. It never blocks.
func (l *Link) Write(b []byte) (int, error) {
	l.mu.Lock()
	if l.closing || l.broken {
		l.mu.Unlock()
		return 0, ErrLinkClosed
	}
	l.q.Add(append([]byte(nil), b...))
	l.mu.Unlock()
	l.wake()
	return len(b), nil
}

// Close closes the link once queued output has been written. It does
// not wait; see Done.
func (l *Link) Close() error {
	l.mu.Lock()
	l.closing = true
	l.mu.Unlock()
	l.wake()
	return nil
}

// Done is closed when both link goroutines have exited.
func (l *Link) Done() <-chan struct{} { return l.done }

// Closed reports whether the link has fully shut down.
func (l *Link) Closed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Err returns the error that ended the link, if any.
func (l *Link) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *Link) wake() {
	select {
	case l.signal <- struct{}{}:
	default:
	}
}

// fail records err as the cause of shutdown unless the link was being
// closed locally, then closes the connection.
func (l *Link) fail(err error) {
	l.mu.Lock()
	if !l.closing && l.err == nil {
		l.err = err
	}
	l.broken = true
	l.mu.Unlock()
	l.wake()
	l.shutdown()
}

func (l *Link) shutdown() {
	l.closeConn.Do(func() {
		if err := l.conn.Close(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			l.log.Debug().Err(err).Msg("link close")
		}
	})
}

func (l *Link) readLoop() {
	buf := make([]byte, readBufferSize)
	for {
		n, err := l.conn.Read(buf)
		if n > 0 && l.onData != nil {
			l.onData(buf[:n])
		}
		if err != nil {
			l.fail(err)
			return
		}
	}
}

func (l *Link) writeLoop() {
	for {
		l.mu.Lock()
		switch {
		case l.broken:
			l.mu.Unlock()
			return
		case l.q.Length() > 0:
			frame := l.q.Remove().([]byte)
			l.mu.Unlock()
			if _, err := l.conn.Write(frame); err != nil {
				l.fail(errors.Wrap(err, "write"))
				return
			}
			continue
		case l.closing:
			l.mu.Unlock()
			l.shutdown()
			return
		}
		l.mu.Unlock()
		<-l.signal
	}
}
