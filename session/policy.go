package session

import (
	"time"

	"github.com/andaru/unicomm/message"
	"github.com/pkg/errors"
)

// Policy parameterizes a Session's protocol behaviour.
type Policy struct {
	// Handshake returns a fresh Handshaker for each session. If nil,
	// sessions become ready as soon as they connect.
	Handshake func() Handshaker
	// Replies holds the message ids Send may emit in each state.
	Replies map[State]message.IDSet
	// Strict controls states absent from Replies: a strict policy
	// permits nothing in them, an open policy permits everything.
	Strict bool
	// Requests lists the message ids that expect a reply. Sent requests
	// are tracked by sequence number until a reply carrying that number
	// in ReplyTo arrives or the request times out. While Requests is
	// non-empty, replies to untracked sequence numbers are discarded.
	Requests map[uint32]Request
	// UniqueSeq numbers every message passed to Send that has no Seq.
	// Requests are always numbered.
	UniqueSeq bool
}

// Request describes a message id that expects a reply.
type Request struct {
	// Timeout bounds the wait for the reply. Zero waits forever.
	Timeout time.Duration
	// Replies holds the message ids allowed as the reply. Empty allows
	// any id.
	Replies message.IDSet
}

// Permits reports whether a message with the given id may be sent in
// state st.
func (p Policy) Permits(st State, id uint32) bool {
	set, ok := p.Replies[st]
	if !ok {
		return !p.Strict
	}
	return set.Has(id)
}

// MessageWriter queues a message for output. Handshakers receive one so
// they can emit handshake traffic regardless of the reply policy.
type MessageWriter interface {
	WriteMessage(m message.Message) error
}

// Handshaker runs a session's handshake phase.
//
// Begin is called once on entering StateHandshaking, then Step for every
// message received until either returns done or an error. Messages fed
// to Step are not delivered to the application. Both methods are called
// with the session locked and must only use the writer they are given.
type Handshaker interface {
	Begin(w MessageWriter) (done bool, err error)
	Step(w MessageWriter, m message.Message) (done bool, err error)
}

// Greeting is a Handshaker that sends a fixed set of messages and then
// expects the peer's messages to carry the Expect ids, in order.
type Greeting struct {
	Send   []message.Message
	Expect []uint32

	next int
}

// NewGreeting returns a Policy.Handshake function producing Greeting
// handshakers that send messages with the ids in send and expect the
// ids in expect.
func NewGreeting(send, expect []uint32) func() Handshaker {
	return func() Handshaker {
		g := &Greeting{Expect: append([]uint32(nil), expect...)}
		for _, id := range send {
			g.Send = append(g.Send, message.Message{ID: id})
		}
		return g
	}
}

func (g *Greeting) Begin(w MessageWriter) (bool, error) {
	for _, m := range g.Send {
		if err := w.WriteMessage(m); err != nil {
			return false, err
		}
	}
	return g.next == len(g.Expect), nil
}

func (g *Greeting) Step(w MessageWriter, m message.Message) (bool, error) {
	if g.next >= len(g.Expect) {
		return true, nil
	}
	if want := g.Expect[g.next]; m.ID != want {
		return false, errors.Errorf("unexpected greeting message id %d (want %d)", m.ID, want)
	}
	g.next++
	return g.next == len(g.Expect), nil
}
