package comm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/andaru/unicomm/dispatch"
	"github.com/andaru/unicomm/transport"
	"github.com/andaru/unicomm/ucerr"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyNetwork listens with a listener whose first failures calls to
// Accept fail.
type flakyNetwork struct {
	transport.Network
	ln *flakyListener
}

func (n flakyNetwork) Listen(context.Context, string) (transport.Listener, error) { return n.ln, nil }

type flakyListener struct {
	failures int
	closed   chan struct{}
	once     sync.Once

	mu    sync.Mutex
	calls []time.Time
}

func (l *flakyListener) Accept() (transport.Conn, error) {
	l.mu.Lock()
	l.calls = append(l.calls, time.Now())
	n := len(l.calls)
	l.mu.Unlock()
	if n <= l.failures {
		return nil, errors.New("too many open files")
	}
	<-l.closed
	return nil, transport.ErrListenerClosed
}

func (l *flakyListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func (l *flakyListener) Addr() string { return "flaky:1" }

func (l *flakyListener) Calls() []time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]time.Time(nil), l.calls...)
}

func TestAcceptBackoff(t *testing.T) {
	a := assert.New(t)
	ln := &flakyListener{failures: 4, closed: make(chan struct{})}
	srv, err := NewServer(testConfig(), WithNetwork(flakyNetwork{Network: transport.NewPipe(), ln: ln}))
	require.NoError(t, err)
	events := record(srv.Dispatcher(), dispatch.KindError)
	_, err = srv.Listen(context.Background(), "1")
	require.NoError(t, err)
	run(t, srv)

	for i := 0; i < ln.failures; i++ {
		ev := next(t, events, dispatch.KindError)
		a.True(errors.Is(ev.Err, ucerr.ErrCommunicationFailure), "got %v", ev.Err)
	}
	require.Eventually(t, func() bool { return len(ln.Calls()) == ln.failures+1 }, waitFor, time.Millisecond)

	calls := ln.Calls()
	for i := 1; i < len(calls); i++ {
		gap, want := calls[i].Sub(calls[i-1]), minAcceptDelay<<(i-1)
		a.True(gap >= want, "retry %d after %s, want at least %s", i, gap, want)
	}
}

// Close interrupts a pending accept retry.
func TestAcceptBackoffClose(t *testing.T) {
	ln := &flakyListener{failures: 1 << 30, closed: make(chan struct{})}
	srv, err := NewServer(testConfig(), WithNetwork(flakyNetwork{Network: transport.NewPipe(), ln: ln}))
	require.NoError(t, err)
	_, err = srv.Listen(context.Background(), "1")
	require.NoError(t, err)

	// retries so far: 5, 10, 20, 40, 80, 160 and 320ms; the next waits 640ms
	time.Sleep(700 * time.Millisecond)
	done := make(chan struct{})
	go func() {
		srv.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(maxAcceptDelay / 2):
		t.Fatal("Close waited for the accept retry delay")
	}
	assert.Less(t, len(ln.Calls()), 10)
}
