package message

import (
	"fmt"
	"sort"
)

// Message is the unit exchanged by sessions: a numeric type identifier
// and an opaque payload. Seq and ReplyTo are optional correlation
// fields; zero means absent.
type Message struct {
	ID      uint32
	Seq     uint64
	ReplyTo uint64
	Payload []byte
}

func (m Message) String() string {
	s := fmt.Sprintf("message id:%d", m.ID)
	if m.Seq != 0 {
		s += fmt.Sprintf(" seq:%d", m.Seq)
	}
	if m.ReplyTo != 0 {
		s += fmt.Sprintf(" reply-to:%d", m.ReplyTo)
	}
	return s + fmt.Sprintf(" payload:%dB", len(m.Payload))
}

// Encoder turns a message into its wire bytes, including framing.
// Encoding is deterministic.
type Encoder interface {
	Encode(m Message) ([]byte, error)
}

// Decoder extracts complete messages from the head of b.
//
// Decode returns the messages found and the number of bytes they
// occupied. The remaining bytes are an incomplete message and must be
// presented again, with more data appended, on the next call. A
// malformed frame yields a *ucerr.Error with tag decode-failure.
type Decoder interface {
	Decode(b []byte) (msgs []Message, consumed int, err error)
}

// Codec is a named Encoder and Decoder pair.
type Codec interface {
	Encoder
	Decoder
	Name() string
}

// IDSet is a set of message ids.
type IDSet map[uint32]struct{}

// NewIDSet returns an IDSet holding ids.
func NewIDSet(ids ...uint32) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set. The nil set is empty.
func (s IDSet) Has(id uint32) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the set's members in ascending order.
func (s IDSet) IDs() []uint32 {
	ids := make([]uint32, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
