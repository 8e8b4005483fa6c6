package comm

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/andaru/unicomm/config"
	"github.com/andaru/unicomm/dispatch"
	"github.com/andaru/unicomm/transport"
	"github.com/andaru/unicomm/ucerr"
	"github.com/pkg/errors"
)

// Server is a communicator that accepts incoming connections.
type Server struct {
	*core

	mu        sync.Mutex
	listeners []transport.Listener
	wg        sync.WaitGroup
	closed    chan struct{}
	closeOnce sync.Once
}

// NewServer returns a Server for cfg. The configuration is copied;
// later changes to cfg have no effect.
func NewServer(cfg config.Config, opts ...Option) (*Server, error) {
	c, err := newCore(cfg, opts)
	if err != nil {
		return nil, err
	}
	return &Server{core: c, closed: make(chan struct{})}, nil
}

// Listen accepts connections on port on all interfaces. See ListenAddr.
func (s *Server) Listen(ctx context.Context, port string) (string, error) {
	return s.ListenAddr(ctx, net.JoinHostPort("", port))
}

// ListenAddr accepts connections on addr and returns the bound address.
//
// Each accepted connection gets a session from the factory. If the
// factory fails or the registry is full, the failure is delivered as a
// KindError event and only that connection is dropped.
func (s *Server) ListenAddr(ctx context.Context, addr string) (string, error) {
	ln, err := s.network.Listen(ctx, addr)
	if err != nil {
		return "", ucerr.CommunicationFailure(ucerr.WithContext(addr), ucerr.WithCause(err))
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, ln)
	s.mu.Unlock()
	s.log.Info().Str("addr", ln.Addr()).Msg("listening")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ln)
	}()
	return ln.Addr(), nil
}

// Accept retry delays after a failed Accept, doubling from
// minAcceptDelay up to maxAcceptDelay.
const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

func (s *Server) acceptLoop(ln transport.Listener) {
	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, transport.ErrListenerClosed) {
				return
			}
			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay *= 2
			}
			if delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			s.log.Warn().Err(err).Str("addr", ln.Addr()).Dur("retry", delay).Msg("accept failed")
			s.disp.Post(dispatch.Event{Kind: dispatch.KindError, Err: ucerr.CommunicationFailure(ucerr.WithContext(ln.Addr()), ucerr.WithCause(err))})
			if !s.sleep(delay) {
				return
			}
			continue
		}
		delay = 0
		remote := conn.Remote()
		if _, err := s.attach(conn); err != nil {
			s.log.Debug().Err(err).Str("remote", remote).Msg("connection rejected")
			s.disp.Post(dispatch.Event{Kind: dispatch.KindError, Remote: remote, Err: err})
		}
	}
}

// sleep waits for d, returning false if the server closes first.
func (s *Server) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.closed:
		return false
	}
}

// Close stops accepting, closes every session and stops the dispatcher
// once they have closed. Closing before Run makes Run stop after its
// first cycle.
func (s *Server) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	s.mu.Lock()
	lns := s.listeners
	s.listeners = nil
	s.mu.Unlock()
	var first error
	for _, ln := range lns {
		if err := ln.Close(); err != nil && first == nil {
			first = err
		}
	}
	s.wg.Wait()
	s.DisconnectAll()
	s.Stop()
	return first
}
