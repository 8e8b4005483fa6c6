package session

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
)

// State is a Session's lifecycle state. States only move forward, in
// declaration order, except that any state before StateClosing may
// jump straight to StateClosing.
type State int

const (
	// StateConnecting is the initial state, before the transport is up.
	StateConnecting State = iota
	// StateHandshaking is entered once the transport is connected. The
	// policy's Handshaker runs in this state.
	StateHandshaking
	// StateReady is entered when the handshake completes. Application
	// traffic flows in this state.
	StateReady
	// StateClosing is entered on close requests, transport loss,
	// handshake failure or protocol violations. Queued output is still
	// flushed.
	StateClosing
	// StateClosed is terminal. The transport has been released.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ParseState returns the State named s.
func ParseState(s string) (State, error) {
	var st State
	err := st.UnmarshalText([]byte(s))
	return st, err
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	switch string(bytes.TrimSpace(b)) {
	case "connecting":
		*s = StateConnecting
	case "handshaking":
		*s = StateHandshaking
	case "ready":
		*s = StateReady
	case "closing":
		*s = StateClosing
	case "closed":
		*s = StateClosed
	default:
		return errors.Errorf("unknown session state %q", b)
	}
	return nil
}
