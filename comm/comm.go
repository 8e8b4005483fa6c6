package comm

import (
	"context"
	"time"

	"github.com/andaru/unicomm/config"
	"github.com/andaru/unicomm/dispatch"
	"github.com/andaru/unicomm/message"
	"github.com/andaru/unicomm/registry"
	"github.com/andaru/unicomm/session"
	"github.com/andaru/unicomm/transport"
	"github.com/andaru/unicomm/ucerr"
	"github.com/rs/zerolog"
)

// Factory builds the session for a new connection. id is the session id
// to use and remote the peer address.
type Factory func(id uint64, remote string) (*session.Session, error)

// Option is a constructor option for Client and Server.
type Option func(*options)

type options struct {
	log      zerolog.Logger
	network  transport.Network
	resolver transport.Resolver
	factory  Factory
	clock    func() time.Time
}

// WithLogger sets the logger used by the communicator, its dispatcher
// and its links.
func WithLogger(l zerolog.Logger) Option { return func(o *options) { o.log = l } }

// WithNetwork sets the transport. Defaults to TCP.
func WithNetwork(n transport.Network) Option { return func(o *options) { o.network = n } }

// WithResolver sets the host resolver used by Client.Connect.
func WithResolver(r transport.Resolver) Option { return func(o *options) { o.resolver = r } }

// WithFactory replaces the default session factory, which builds
// sessions from the configuration.
func WithFactory(f Factory) Option { return func(o *options) { o.factory = f } }

// WithClock replaces time.Now for handshake deadlines.
func WithClock(now func() time.Time) Option { return func(o *options) { o.clock = now } }

// core is the machinery shared by Client and Server.
type core struct {
	cfg      config.Config
	policy   session.Policy
	disp     *dispatch.Dispatcher
	reg      *registry.Registry[*session.Session]
	factory  Factory
	network  transport.Network
	resolver transport.Resolver
	log      zerolog.Logger
}

func newCore(cfg config.Config, opts []Option) (*core, error) {
	cfg = cfg.Clone()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{
		log:      zerolog.Nop(),
		network:  transport.TCP{NoDelay: true},
		resolver: transport.NetResolver{},
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	c := &core{
		cfg:      cfg,
		policy:   cfg.Policy(),
		reg:      registry.New[*session.Session](registry.WithCapacity(cfg.MaxSessions)),
		factory:  o.factory,
		network:  o.network,
		resolver: o.resolver,
		log:      o.log,
	}
	c.disp = dispatch.New(
		dispatch.WithIdleTimeout(time.Duration(cfg.IdleTimeout)),
		dispatch.WithLogger(o.log),
		dispatch.WithClock(o.clock),
	)
	if c.factory == nil {
		c.factory = c.newSession
	}
	return c, nil
}

func (c *core) newSession(id uint64, remote string) (*session.Session, error) {
	codec, err := c.cfg.NewCodec()
	if err != nil {
		return nil, err
	}
	return session.New(id, codec, c.policy,
		session.WithHandshakeTimeout(time.Duration(c.cfg.HandshakeTimeout)),
		session.WithRemote(remote),
	), nil
}

// Dispatcher returns the dispatcher handlers are registered with.
func (c *core) Dispatcher() *dispatch.Dispatcher { return c.disp }

// Config returns a copy of the communicator's configuration.
func (c *core) Config() config.Config { return c.cfg.Clone() }

// Run runs the dispatcher until Stop, Close or ctx cancellation.
func (c *core) Run(ctx context.Context) error {
	return c.disp.Run(ctx, dispatch.ProcessorFunc(c.process))
}

// Stop stops the dispatcher once no session is mid-close.
func (c *core) Stop() { c.disp.Stop() }

// Session returns the session registered under id.
func (c *core) Session(id uint64) (*session.Session, error) { return c.reg.Find(id) }

// Sessions returns the ids of the registered sessions.
func (c *core) Sessions() []uint64 {
	var ids []uint64
	c.reg.ForEach(func(s *session.Session) bool {
		ids = append(ids, s.ID())
		return true
	})
	return ids
}

// Send queues m on session id. A request without a Seq is numbered by
// the session; KindMessageSent reports the number used.
//
// A protocol error, such as a disallowed reply, also closes the session.
// The error is returned either way.
func (c *core) Send(id uint64, m message.Message) error {
	s, err := c.reg.Find(id)
	if err != nil {
		return err
	}
	if err := s.Send(m); err != nil {
		if kind, _ := ucerr.KindOf(err); kind == ucerr.KindProtocol {
			c.log.Debug().Err(err).Uint64("session", id).Msg("closing session on protocol error")
			s.Close(err)
		}
		c.disp.Wake()
		return err
	}
	c.disp.Wake()
	return nil
}

// Broadcast sends m to every ready session for which pred returns true,
// or to every ready session if pred is nil. It returns the number of
// sessions m was queued on and the first error seen.
func (c *core) Broadcast(m message.Message, pred func(id uint64) bool) (int, error) {
	var sent int
	var first error
	c.reg.ForEach(func(s *session.Session) bool {
		if s.State() != session.StateReady || (pred != nil && !pred(s.ID())) {
			return true
		}
		if err := c.Send(s.ID(), m); err != nil {
			if first == nil {
				first = err
			}
			return true
		}
		sent++
		return true
	})
	return sent, first
}

// Disconnect closes session id.
func (c *core) Disconnect(id uint64) error {
	s, err := c.reg.Find(id)
	if err != nil {
		return err
	}
	s.Close(nil)
	c.disp.Wake()
	return nil
}

// DisconnectAll closes every session.
func (c *core) DisconnectAll() {
	c.reg.ForEach(func(s *session.Session) bool {
		s.Close(nil)
		return true
	})
	c.disp.Wake()
}

// attach builds, registers and starts the session for conn. On failure
// conn is closed.
func (c *core) attach(conn transport.Conn) (uint64, error) {
	id := c.reg.NextID()
	remote := conn.Remote()
	s, err := c.factory(id, remote)
	if err == nil && s == nil {
		err = ucerr.InvalidFactory(ucerr.WithSession(id), ucerr.WithMessage("factory returned no session"))
	}
	if err == nil && s.ID() != id {
		err = ucerr.InvalidFactory(ucerr.WithSession(id), ucerr.WithMessage("factory ignored session id"))
	}
	if err != nil {
		conn.Close()
		if _, ok := ucerr.KindOf(err); !ok {
			err = ucerr.InvalidFactory(ucerr.WithSession(id), ucerr.WithCause(err))
		}
		return 0, err
	}

	link := transport.NewLink(conn,
		func(b []byte) {
			s.Inbound().Append(b)
			c.disp.Wake()
		},
		func(err error) {
			if err != nil {
				s.Close(ucerr.Disconnected(ucerr.WithSession(id), ucerr.WithCause(err)))
			}
			c.disp.Wake()
		},
		transport.WithLinkLogger(c.log),
	)
	s.Attach(link)
	if err := c.reg.Insert(s); err != nil {
		conn.Close()
		return 0, err
	}
	link.Start()
	c.log.Debug().Uint64("session", id).Str("remote", remote).Msg("session attached")
	c.disp.Wake()
	return id, nil
}

// process runs one dispatcher cycle over every session. It reports
// whether any session is still closing.
func (c *core) process(now time.Time) (busy bool) {
	c.reg.ForEach(func(s *session.Session) bool {
		if c.processSession(s, now) {
			busy = true
		}
		return true
	})
	return busy
}

func (c *core) processSession(s *session.Session, now time.Time) (closing bool) {
	id, remote := s.ID(), s.Remote()
	was := s.State()
	if was == session.StateConnecting {
		c.report(s, s.Connect(now))
	}
	c.report(s, s.Expire(now))
	for _, m := range s.Timeouts(now) {
		c.log.Debug().Uint64("session", id).Uint32("id", m.ID).Uint64("seq", m.Seq).Msg("reply timed out")
		c.disp.Dispatch(dispatch.Event{Kind: dispatch.KindMessageTimeout, SessionID: id, Remote: remote, Message: m})
	}

	msgs, err := s.Process()
	if was < session.StateReady && s.State() == session.StateReady {
		c.log.Debug().Uint64("session", id).Msg("session ready")
		c.disp.Dispatch(dispatch.Event{Kind: dispatch.KindConnected, SessionID: id, Remote: remote})
	}
	for _, m := range msgs {
		c.disp.Dispatch(dispatch.Event{Kind: dispatch.KindMessageArrived, SessionID: id, Remote: remote, Message: m})
	}
	c.report(s, err)

	sent, err := s.Flush(now)
	for _, m := range sent {
		c.disp.Dispatch(dispatch.Event{Kind: dispatch.KindMessageSent, SessionID: id, Remote: remote, Message: m})
	}
	c.report(s, err)
	c.disp.Dispatch(dispatch.Event{Kind: dispatch.KindAfterProcessed, SessionID: id, Remote: remote})

	if s.State() != session.StateClosing {
		return false
	}
	if !s.Finish() {
		return true
	}
	if _, err := c.reg.Remove(id); err != nil {
		return false
	}
	c.log.Debug().Uint64("session", id).Err(s.Err()).Msg("session closed")
	c.disp.Dispatch(dispatch.Event{Kind: dispatch.KindDisconnected, SessionID: id, Remote: remote, Err: s.Err()})
	return false
}

func (c *core) report(s *session.Session, err error) {
	if err == nil {
		return
	}
	c.log.Debug().Err(err).Uint64("session", s.ID()).Str("state", s.State().String()).Msg("session error")
	c.disp.Dispatch(dispatch.Event{Kind: dispatch.KindError, SessionID: s.ID(), Remote: s.Remote(), Err: err})
}
