package dispatch

import (
	"fmt"

	"github.com/andaru/unicomm/message"
)

// Kind identifies an event and the handler slot it is delivered to.
type Kind int

const (
	// KindConnected fires when a session becomes ready.
	KindConnected Kind = iota
	// KindDisconnected fires when a session has closed and left the registry.
	KindDisconnected
	// KindMessageArrived fires for each application message received.
	KindMessageArrived
	// KindMessageSent fires after a message is handed to the transport.
	KindMessageSent
	// KindError fires for errors contained to a session or raised by a handler.
	KindError
	// KindAfterAllProcessed fires once per dispatcher cycle, after every
	// session has been processed.
	KindAfterAllProcessed
	// KindMessageTimeout fires when no reply to a request arrived in
	// time. Message is the request.
	KindMessageTimeout
	// KindAfterProcessed fires for each session once per cycle, after
	// its input and output have been handled.
	KindAfterProcessed

	numKinds
)

func (k Kind) String() string {
	switch k {
	case KindConnected:
		return "connected"
	case KindDisconnected:
		return "disconnected"
	case KindMessageArrived:
		return "message-arrived"
	case KindMessageSent:
		return "message-sent"
	case KindError:
		return "error"
	case KindAfterAllProcessed:
		return "after-all-processed"
	case KindMessageTimeout:
		return "message-timeout"
	case KindAfterProcessed:
		return "after-processed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Event is an immutable notification passed to handlers. Sessions are
// referred to by id; use the communicator to act on them.
type Event struct {
	Kind      Kind
	SessionID uint64
	Remote    string
	Message   message.Message
	Err       error
}

// HandlerFunc handles an event. A returned error is delivered to the
// error handlers.
type HandlerFunc func(Event) error
