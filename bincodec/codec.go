package bincodec

import (
	"encoding/binary"
	"math/bits"

	"github.com/andaru/unicomm/framing"
	"github.com/andaru/unicomm/message"
	"github.com/andaru/unicomm/ucerr"
	"github.com/pkg/errors"
)

// Name is the codec name used in configuration.
const Name = "binary"

// Version is the header version written and accepted.
const Version = 0

// header flags
const (
	flagSeq     = 0x01
	flagReplyTo = 0x02
)

// baseHeaderLen covers version, header length, flags and the message id.
const baseHeaderLen = 1 + 1 + 1 + 4

// Framing selects how encoded messages are delimited on the wire.
type Framing int

const (
	// FramingEscaped ends each message with an end marker, escaping
	// marker bytes in the body.
	FramingEscaped Framing = iota
	// FramingChunked sends each message as size-prefixed chunks.
	FramingChunked
)

func (f Framing) String() string {
	switch f {
	case FramingEscaped:
		return "escaped"
	case FramingChunked:
		return "chunked"
	default:
		return "unknown"
	}
}

// Codec is the binary message codec.
type Codec struct {
	framing  Framing
	maxChunk int
}

// Option is a constructor option for Codec.
type Option func(*Codec)

// WithChunkedFraming selects chunked framing with chunks of at most
// maxChunk bytes. maxChunk <= 0 places no limit.
func WithChunkedFraming(maxChunk int) Option {
	return func(c *Codec) {
		c.framing = FramingChunked
		c.maxChunk = maxChunk
	}
}

// New returns a binary Codec. Escaped framing is the default.
func New(opts ...Option) *Codec {
	c := &Codec{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the codec name.
func (c *Codec) Name() string { return Name }

// Framing returns the codec's framing mode.
func (c *Codec) Framing() Framing { return c.framing }

// Encode returns the framed binary encoding of m.
func (c *Codec) Encode(m message.Message) ([]byte, error) {
	var flags byte
	hlen := baseHeaderLen
	if m.Seq != 0 {
		flags |= flagSeq
		hlen += 8
	}
	if m.ReplyTo != 0 {
		flags |= flagReplyTo
		hlen += 8
	}
	body := make([]byte, hlen, hlen+len(m.Payload))
	body[0] = Version
	body[1] = byte(hlen)
	body[2] = flags
	binary.BigEndian.PutUint32(body[3:], m.ID)
	off := baseHeaderLen
	if m.Seq != 0 {
		binary.BigEndian.PutUint64(body[off:], m.Seq)
		off += 8
	}
	if m.ReplyTo != 0 {
		binary.BigEndian.PutUint64(body[off:], m.ReplyTo)
	}
	body = append(body, m.Payload...)

	if c.framing == FramingChunked {
		out, err := framing.AppendChunked(make([]byte, 0, len(body)+16), body, c.maxChunk)
		if err != nil {
			return nil, ucerr.EncodeFailure(ucerr.WithContext(Name), ucerr.WithMessageID(m.ID), ucerr.WithCause(err))
		}
		return out, nil
	}
	return framing.AppendEscaped(make([]byte, 0, len(body)+len(body)/16+1), body), nil
}

// Decode decodes the complete messages at the head of b.
func (c *Codec) Decode(b []byte) ([]message.Message, int, error) {
	split := framing.SplitEscaped
	if c.framing == FramingChunked {
		split = framing.SplitChunked
	}
	return message.Split(Name, b, split, parse)
}

var (
	errShortHeader = errors.New("short header")
	errVersion     = errors.New("unsupported header version")
	errFlags       = errors.New("unknown header flags")
	errHeaderLen   = errors.New("header length mismatch")
)

func parse(frame []byte) (message.Message, error) {
	var m message.Message
	if len(frame) < 3 {
		return m, errors.WithStack(errShortHeader)
	}
	if frame[0] != Version {
		return m, errors.Wrapf(errVersion, "version %d", frame[0])
	}
	flags := frame[2]
	if flags&^(flagSeq|flagReplyTo) != 0 {
		return m, errors.Wrapf(errFlags, "flags 0x%02x", flags)
	}
	want := baseHeaderLen + 8*bits.OnesCount8(flags)
	if hlen := int(frame[1]); hlen != want {
		return m, errors.Wrapf(errHeaderLen, "got %d want %d", hlen, want)
	}
	if len(frame) < want {
		return m, errors.WithStack(errShortHeader)
	}
	m.ID = binary.BigEndian.Uint32(frame[3:])
	off := baseHeaderLen
	if flags&flagSeq != 0 {
		m.Seq = binary.BigEndian.Uint64(frame[off:])
		off += 8
	}
	if flags&flagReplyTo != 0 {
		m.ReplyTo = binary.BigEndian.Uint64(frame[off:])
	}
	if payload := frame[want:]; len(payload) > 0 {
		m.Payload = append([]byte(nil), payload...)
	}
	return m, nil
}

var _ message.Codec = (*Codec)(nil)
