package ucerr

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
)

// Kind is the broad class of a unicomm error. It determines which
// scope an error is contained to.
type Kind int

const (
	// KindTransport errors come from the connection itself and end the session.
	KindTransport Kind = iota
	// KindProtocol errors are wire or policy violations on a session.
	KindProtocol
	// KindRegistry errors concern session lookup and creation.
	KindRegistry
	// KindConfig errors are raised at communicator construction.
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindRegistry:
		return "registry"
	case KindConfig:
		return "config"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

func (k *Kind) UnmarshalText(b []byte) error {
	b = bytes.TrimSpace(b)
	switch string(b) {
	case "transport":
		*k = KindTransport
	case "protocol":
		*k = KindProtocol
	case "registry":
		*k = KindRegistry
	case "config":
		*k = KindConfig
	default:
		return errors.New("unknown value")
	}
	return nil
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Error tags
const (
	TagDisconnected         = "disconnected"
	TagCommunicationFailure = "communication-failure"
	TagHandshakeFailure     = "handshake-failure"
	TagDecodeFailure        = "decode-failure"
	TagEncodeFailure        = "encode-failure"
	TagDisallowedReply      = "disallowed-reply"
	TagNotFound             = "not-found"
	TagCreationConflict     = "creation-conflict"
	TagInvalidSession       = "invalid-session"
	TagInvalidFactory       = "invalid-factory"
	TagInvalidConfig        = "invalid-config"
)

// Error is a unicomm error. Kind and Tag identify the failure, the
// remaining fields carry whatever context was known where it was raised.
//
// Two errors match under errors.Is when their tags are equal, so the
// exported sentinels below can be used for classification:
//
//	if errors.Is(err, ucerr.ErrNotFound) { ... }
type Error struct {
	Kind      Kind    `json:"kind"`
	Tag       string  `json:"tag"`
	SessionID uint64  `json:"session-id,omitempty"`
	MessageID *uint32 `json:"message-id,omitempty"`
	Offset    int     `json:"offset,omitempty"`
	Context   string  `json:"context,omitempty"`
	Message   string  `json:"message,omitempty"`
	Cause     error   `json:"-"`
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s error tag:%s", e.Kind, e.Tag)
	if e.SessionID != 0 {
		s += " session:" + strconv.FormatUint(e.SessionID, 10)
	}
	if e.MessageID != nil {
		s += " message-id:" + strconv.FormatUint(uint64(*e.MessageID), 10)
	}
	if e.Offset > 0 {
		s += " offset:" + strconv.Itoa(e.Offset)
	}
	if e.Context != "" {
		s += " context:" + e.Context
	}
	if e.Message != "" {
		s += " " + e.Message
	}
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is a *Error with the same tag.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Tag == e.Tag
}

// Sentinels for errors.Is. Never return these directly, use the
// constructors so context is attached.
var (
	ErrDisconnected         = &Error{Kind: KindTransport, Tag: TagDisconnected}
	ErrCommunicationFailure = &Error{Kind: KindTransport, Tag: TagCommunicationFailure}
	ErrHandshakeFailure     = &Error{Kind: KindTransport, Tag: TagHandshakeFailure}
	ErrDecodeFailure        = &Error{Kind: KindProtocol, Tag: TagDecodeFailure}
	ErrEncodeFailure        = &Error{Kind: KindProtocol, Tag: TagEncodeFailure}
	ErrDisallowedReply      = &Error{Kind: KindProtocol, Tag: TagDisallowedReply}
	ErrNotFound             = &Error{Kind: KindRegistry, Tag: TagNotFound}
	ErrCreationConflict     = &Error{Kind: KindRegistry, Tag: TagCreationConflict}
	ErrInvalidSession       = &Error{Kind: KindRegistry, Tag: TagInvalidSession}
	ErrInvalidFactory       = &Error{Kind: KindRegistry, Tag: TagInvalidFactory}
	ErrInvalidConfig        = &Error{Kind: KindConfig, Tag: TagInvalidConfig}
)

func newError(kind Kind, tag string, opts []Option) *Error {
	e := &Error{Kind: kind, Tag: tag}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func Disconnected(opts ...Option) *Error {
	return newError(KindTransport, TagDisconnected, opts)
}

func CommunicationFailure(opts ...Option) *Error {
	return newError(KindTransport, TagCommunicationFailure, opts)
}

func HandshakeFailure(opts ...Option) *Error {
	return newError(KindTransport, TagHandshakeFailure, opts)
}

// DecodeFailure reports malformed input at byte offset within the
// session's inbound stream.
func DecodeFailure(offset int, opts ...Option) *Error {
	return newError(KindProtocol, TagDecodeFailure, append([]Option{WithOffset(offset)}, opts...))
}

func EncodeFailure(opts ...Option) *Error {
	return newError(KindProtocol, TagEncodeFailure, opts)
}

// DisallowedReply reports an attempt to send message id where the
// session's reply policy does not permit it.
func DisallowedReply(id uint32, opts ...Option) *Error {
	return newError(KindProtocol, TagDisallowedReply, append([]Option{WithMessageID(id)}, opts...))
}

// NotFound reports that no session is registered under id.
func NotFound(id uint64, opts ...Option) *Error {
	return newError(KindRegistry, TagNotFound, append([]Option{WithSession(id)}, opts...))
}

func CreationConflict(opts ...Option) *Error {
	return newError(KindRegistry, TagCreationConflict, opts)
}

func InvalidSession(opts ...Option) *Error {
	return newError(KindRegistry, TagInvalidSession, opts)
}

func InvalidFactory(opts ...Option) *Error {
	return newError(KindRegistry, TagInvalidFactory, opts)
}

// InvalidConfig reports a bad value for the named configuration field.
func InvalidConfig(field string, opts ...Option) *Error {
	return newError(KindConfig, TagInvalidConfig, append([]Option{WithContext(field)}, opts...))
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// TagOf returns the tag of the first *Error in err's chain, or "".
func TagOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Tag
	}
	return ""
}
