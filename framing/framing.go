package framing

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// ErrBadFrame reports malformed framing. Offset is relative to the
// start of the input handed to the split function.
type ErrBadFrame struct {
	Message string
	Offset  int
}

func (e ErrBadFrame) Error() string {
	msg := "bad frame"
	if e.Message != "" {
		msg = msg + ": " + e.Message
	}
	if e.Offset < 1 {
		return msg
	}
	return fmt.Sprintf("%s at input offset %d", msg, e.Offset)
}

// Escaped framing markers. A frame is its escaped payload followed by
// EndMarker; any payload byte equal to EndMarker or EscapeMarker is
// written as EscapeMarker followed by the byte XOR EscapeMask.
const (
	EndMarker    byte = 0xFF
	EscapeMarker byte = 0xFE
	EscapeMask   byte = 0x40
)

// AppendEscaped appends the escaped frame for payload to dst.
func AppendEscaped(dst, payload []byte) []byte {
	for _, c := range payload {
		if c == EndMarker || c == EscapeMarker {
			dst = append(dst, EscapeMarker, c^EscapeMask)
			continue
		}
		dst = append(dst, c)
	}
	return append(dst, EndMarker)
}

// SplitEscaped is a bufio.SplitFunc for escaped frames. Tokens are
// unescaped payloads.
//
// SplitEscaped keeps no state between calls: an incomplete frame
// returns zero advance and is rescanned once more input arrives.
func SplitEscaped(b []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(b) == 0 {
		return
	}
	end := bytes.IndexByte(b, EndMarker)
	if end == -1 {
		if atEOF {
			err = io.ErrUnexpectedEOF
		}
		return
	}
	token = make([]byte, 0, end)
	for i := 0; i < end; i++ {
		c := b[i]
		if c != EscapeMarker {
			token = append(token, c)
			continue
		}
		if i+1 == end {
			return 0, nil, ErrBadFrame{Message: "escape before end marker", Offset: i}
		}
		i++
		switch d := b[i] ^ EscapeMask; d {
		case EndMarker, EscapeMarker:
			token = append(token, d)
		default:
			return 0, nil, ErrBadFrame{Message: fmt.Sprintf("invalid escape 0x%02x", b[i]), Offset: i}
		}
	}
	return end + 1, token, nil
}

// Delimiter is the delimiter used by text protocols.
var Delimiter = []byte("\r\n\r\n")

// AppendDelimited appends payload and delim to dst. The payload must
// not contain delim.
func AppendDelimited(dst, payload, delim []byte) []byte {
	return append(append(dst, payload...), delim...)
}

// SplitDelimited returns a bufio.SplitFunc yielding the payloads
// between occurrences of delim.
func SplitDelimited(delim []byte) func([]byte, bool) (int, []byte, error) {
	return func(b []byte, atEOF bool) (advance int, token []byte, err error) {
		if atEOF && len(b) == 0 {
			return
		}
		idx := bytes.Index(b, delim)
		if idx == -1 {
			if atEOF {
				err = io.ErrUnexpectedEOF
			}
			return
		}
		return idx + len(delim), b[:idx:idx], nil
	}
}

// maxChunkSize is the largest chunk size representable in a chunk header.
const maxChunkSize = 4294967295

// AppendChunked appends payload to dst as a chunked frame:
//
//	\n#<size>\n<size bytes> ... \n##\n
//
// Chunks are at most maxChunk bytes; maxChunk <= 0 writes a single chunk.
// A chunked frame carries at least one chunk, so payload must be non-empty.
func AppendChunked(dst, payload []byte, maxChunk int) ([]byte, error) {
	if len(payload) == 0 {
		return dst, ErrBadFrame{Message: "empty chunked payload"}
	}
	if maxChunk <= 0 || maxChunk > maxChunkSize {
		maxChunk = maxChunkSize
	}
	for n := 0; n < len(payload); {
		size := len(payload) - n
		if size > maxChunk {
			size = maxChunk
		}
		dst = append(dst, '\n', '#')
		dst = strconv.AppendInt(dst, int64(size), 10)
		dst = append(dst, '\n')
		dst = append(dst, payload[n:n+size]...)
		n += size
	}
	return append(dst, '\n', '#', '#', '\n'), nil
}

// SplitChunked is a bufio.SplitFunc for chunked frames. Tokens are the
// reassembled payloads. Like SplitEscaped it rescans from the start of
// b on every call.
func SplitChunked(b []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(b) == 0 {
		return
	}
	var chunks int
	pos := 0
	more := func() (int, []byte, error) {
		if atEOF {
			return 0, nil, io.ErrUnexpectedEOF
		}
		return 0, nil, nil
	}
	for {
		cur := b[pos:]
		if len(cur) < 3 {
			return more()
		}
		if cur[0] != '\n' || cur[1] != '#' {
			return 0, nil, ErrBadFrame{Message: "invalid chunk header", Offset: pos}
		}
		switch r := cur[2]; {
		case r == '#':
			if len(cur) < 4 {
				return more()
			}
			if cur[3] != '\n' {
				return 0, nil, ErrBadFrame{Message: "invalid chunk terminator", Offset: pos + 3}
			}
			if chunks == 0 {
				return 0, nil, ErrBadFrame{Message: "end of chunks seen prior to chunk", Offset: pos}
			}
			if token == nil {
				token = []byte{}
			}
			return pos + 4, token, nil
		case r >= '1' && r <= '9':
		default:
			return 0, nil, ErrBadFrame{Message: "invalid chunk size", Offset: pos + 2}
		}
		// chunk-size is at most 10 digits
		idx := bytes.IndexByte(cur[2:], '\n')
		switch {
		case idx == -1 && len(cur)-2 <= 10:
			return more()
		case idx == -1 || idx > 10:
			return 0, nil, ErrBadFrame{Message: "chunk size too long", Offset: pos + 2}
		}
		size, perr := strconv.ParseUint(string(cur[2:2+idx]), 10, 32)
		if perr != nil {
			return 0, nil, ErrBadFrame{Message: "invalid chunk size", Offset: pos + 2}
		}
		start := 2 + idx + 1
		if uint64(len(cur)-start) < size {
			return more()
		}
		token = append(token, cur[start:start+int(size)]...)
		chunks++
		pos += start + int(size)
	}
}
