package session

import (
	"io"
	"sync"
	"time"

	"github.com/andaru/unicomm/buffer"
	"github.com/andaru/unicomm/message"
	"github.com/andaru/unicomm/ucerr"
	"github.com/eapache/queue"
)

// Transport is a Session's view of its connection.
type Transport interface {
	// Write queues a frame for output without blocking.
	io.Writer
	// Close starts a graceful close: queued output is written, then the
	// connection is released.
	Close() error
	// Closed reports whether the connection has been released.
	Closed() bool
}

// Counters contains session counters
type Counters struct {
	// RxMsgs is the number of messages received on the session
	RxMsgs uint64
	// TxMsgs is the number of messages handed to the transport
	TxMsgs uint64
	// Discarded is the number of replies dropped because no tracked
	// request matched their ReplyTo
	Discarded uint64
}

// Option is a constructor option for Session.
type Option func(*Session)

// WithHandshakeTimeout bounds the time spent in StateHandshaking. Zero
// disables the bound.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(s *Session) { s.handshakeTimeout = d }
}

// WithRemote records the peer address.
func WithRemote(addr string) Option { return func(s *Session) { s.remote = addr } }

// Session is one logical conversation over one transport connection.
//
// Sessions are driven by a single goroutine (the communicator's
// dispatcher) through Connect, Process, Expire, Timeouts, Flush and
// Finish. Send and Close may be called from any goroutine.
type Session struct {
	id     uint64
	remote string
	codec  message.Codec
	policy Policy

	inbound buffer.Buffer

	mu               sync.Mutex
	state            State
	transport        Transport
	outbox           *queue.Queue
	handshaker       Handshaker
	handshakeTimeout time.Duration
	deadline         time.Time
	closing          bool
	reason           error
	counters         Counters
	errs             []error
	seq              uint64
	awaiting         map[uint64]awaitingReply

	// Opaque is user private data and is not used by the unicomm libraries.
	Opaque interface{}
}

type outgoing struct {
	msg   message.Message
	frame []byte
}

// awaitingReply is a sent request waiting for its reply. A zero
// deadline never expires.
type awaitingReply struct {
	req      message.Message
	deadline time.Time
}

// New returns a Session in StateConnecting.
func New(id uint64, codec message.Codec, policy Policy, opts ...Option) *Session {
	s := &Session{
		id:     id,
		codec:  codec,
		policy:   policy,
		outbox:   queue.New(),
		awaiting: map[uint64]awaitingReply{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session id.
func (s *Session) ID() uint64 { return s.id }

// Remote returns the peer address, if known.
func (s *Session) Remote() string { return s.remote }

// Codec returns the session's message codec.
func (s *Session) Codec() message.Codec { return s.codec }

// Inbound returns the buffer received bytes are appended to.
func (s *Session) Inbound() *buffer.Buffer { return &s.inbound }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Counters returns a snapshot of the session counters.
func (s *Session) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

// Err returns the reason the session began closing, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Pending returns the number of queued outbound messages.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outbox.Length()
}

// Attach sets the session's transport.
func (s *Session) Attach(t Transport) {
	s.mu.Lock()
	s.transport = t
	s.mu.Unlock()
}

// AddError adds an error to the session state
func (s *Session) AddError(errs ...error) (added int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addError(errs...)
}

func (s *Session) addError(errs ...error) (added int) {
	for _, err := range errs {
		if err != nil {
			s.errs = append(s.errs, err)
			added++
		}
	}
	return added
}

// Errors returns all session errors
func (s *Session) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

// Connect moves a connecting session to StateHandshaking and starts its
// handshake. A session without a handshaker is ready immediately.
// A handshake error closes the session and is returned.
func (s *Session) Connect(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnecting {
		return nil
	}
	s.state = StateHandshaking
	if s.handshakeTimeout > 0 {
		s.deadline = now.Add(s.handshakeTimeout)
	}
	if s.policy.Handshake == nil {
		s.state = StateReady
		return nil
	}
	s.handshaker = s.policy.Handshake()
	done, err := s.handshaker.Begin(handshakeWriter{s})
	return s.handshakeResult(done, err)
}

func (s *Session) handshakeResult(done bool, err error) error {
	if err != nil {
		herr := ucerr.HandshakeFailure(ucerr.WithSession(s.id), ucerr.WithCause(err))
		s.close(herr)
		return herr
	}
	if done {
		s.state = StateReady
		s.handshaker = nil
	}
	return nil
}

// Expire closes a session whose handshake deadline has passed, returning
// the handshake-failure error. It returns nil in every other case.
func (s *Session) Expire(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateHandshaking || s.deadline.IsZero() || !now.After(s.deadline) {
		return nil
	}
	err := ucerr.HandshakeFailure(ucerr.WithSession(s.id), ucerr.WithMessage("handshake timed out"))
	s.close(err)
	return err
}

// Send encodes m and queues it for output.
//
// Send fails with invalid-session once the session is closing, and with
// disallowed-reply when the policy does not permit m.ID in the current
// state. A rejected Send leaves the session unchanged.
//
// A request, or with Policy.UniqueSeq any message, without a Seq is
// given the session's next sequence number. The numbered message is
// reported by Flush.
func (s *Session) Send(m message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state >= StateClosing {
		return ucerr.InvalidSession(ucerr.WithSession(s.id), ucerr.WithMessage("session "+s.state.String()))
	}
	if !s.policy.Permits(s.state, m.ID) {
		return ucerr.DisallowedReply(m.ID, ucerr.WithSession(s.id), ucerr.WithContext(s.state.String()))
	}
	_, isRequest := s.policy.Requests[m.ID]
	numbered := m.Seq == 0 && (isRequest || s.policy.UniqueSeq)
	if numbered {
		m.Seq = s.seq + 1
	}
	if err := s.enqueue(m); err != nil {
		return err
	}
	if numbered {
		s.seq++
	}
	return nil
}

func (s *Session) enqueue(m message.Message) error {
	frame, err := s.codec.Encode(m)
	if err != nil {
		return ucerr.EncodeFailure(ucerr.WithSession(s.id), ucerr.WithMessageID(m.ID), ucerr.WithCause(err))
	}
	s.outbox.Add(outgoing{msg: m, frame: frame})
	return nil
}

// Receive appends b to the inbound buffer and processes it.
func (s *Session) Receive(b []byte) ([]message.Message, error) {
	s.inbound.Append(b)
	return s.Process()
}

// Process decodes the complete messages in the inbound buffer and
// returns those meant for the application. Incomplete trailing bytes
// stay buffered for the next call.
//
// While handshaking, messages go to the handshaker instead. Input is
// left untouched before Connect and discarded once closing. A decode
// failure closes the session; messages decoded ahead of the bad frame
// are still returned with the error.
func (s *Session) Process() ([]message.Message, error) {
	switch st := s.State(); {
	case st == StateConnecting:
		return nil, nil
	case st >= StateClosing:
		s.inbound.With(func(l *buffer.Lock) error { l.Reset(); return nil })
		return nil, nil
	}

	var msgs []message.Message
	derr := s.inbound.With(func(l *buffer.Lock) error {
		var n int
		var err error
		msgs, n, err = s.codec.Decode(l.Bytes())
		if cerr := l.Consume(n); cerr != nil {
			return cerr
		}
		if err != nil {
			l.Reset()
		}
		return err
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.RxMsgs += uint64(len(msgs))
	var out []message.Message
	for _, m := range msgs {
		if s.state == StateHandshaking {
			done, err := s.handshaker.Step(handshakeWriter{s}, m)
			if herr := s.handshakeResult(done, err); herr != nil {
				return nil, herr
			}
			continue
		}
		deliver, err := s.matchReply(m)
		if err != nil {
			s.close(err)
			return out, err
		}
		if deliver {
			out = append(out, m)
		}
	}
	if derr != nil {
		if ue, ok := derr.(*ucerr.Error); ok && ue.SessionID == 0 {
			ue.SessionID = s.id
		}
		s.close(derr)
		return out, derr
	}
	return out, nil
}

// Flush hands queued frames to the transport and returns the messages
// written. Written requests start waiting for their reply at now. A
// transport write error drops the remaining output and, if the session
// was not already closing, closes it.
func (s *Session) Flush(now time.Time) ([]message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transport == nil || s.state == StateClosed {
		return nil, nil
	}
	var sent []message.Message
	for s.outbox.Length() > 0 {
		o := s.outbox.Peek().(outgoing)
		if _, err := s.transport.Write(o.frame); err != nil {
			for s.outbox.Length() > 0 {
				s.outbox.Remove()
			}
			if s.state >= StateClosing {
				// already closing for another reason
				return sent, nil
			}
			cerr := ucerr.CommunicationFailure(ucerr.WithSession(s.id), ucerr.WithCause(err))
			s.close(cerr)
			return sent, cerr
		}
		s.outbox.Remove()
		s.counters.TxMsgs++
		s.track(o.msg, now)
		sent = append(sent, o.msg)
	}
	return sent, nil
}

// Close requests the session close. The first reason recorded is kept;
// later calls are no-ops.
func (s *Session) Close(reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.close(reason)
}

func (s *Session) close(reason error) {
	if s.state >= StateClosing {
		return
	}
	s.state = StateClosing
	s.handshaker = nil
	s.reason = reason
	s.addError(reason)
}

// Finish completes a close. Once the outbound queue is empty the
// transport is asked to close; when it reports closed the session moves
// to StateClosed and Finish returns true.
func (s *Session) Finish() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateClosing {
		return s.state == StateClosed
	}
	if s.transport == nil {
		s.state = StateClosed
		return true
	}
	if s.outbox.Length() > 0 && !s.transport.Closed() {
		return false
	}
	if !s.closing {
		s.closing = true
		s.transport.Close()
	}
	if !s.transport.Closed() {
		return false
	}
	for s.outbox.Length() > 0 {
		s.outbox.Remove()
	}
	s.state = StateClosed
	return true
}

// handshakeWriter lets a Handshaker queue output. The session lock is
// held by the caller.
type handshakeWriter struct{ s *Session }

func (w handshakeWriter) WriteMessage(m message.Message) error { return w.s.enqueue(m) }
