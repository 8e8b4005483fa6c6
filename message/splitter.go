package message

import (
	"bufio"

	"github.com/andaru/unicomm/framing"
	"github.com/andaru/unicomm/ucerr"
	"github.com/pkg/errors"
)

// ParseFunc builds a message from one unframed payload.
type ParseFunc func(frame []byte) (Message, error)

// Split implements Decoder for codecs built from a framing split
// function and a per-frame parser. name identifies the codec in errors.
//
// Frames are taken from b until split asks for more input. A framing or
// parse error becomes a decode-failure carrying the byte offset; the
// messages decoded before the bad frame are still returned, along with
// the bytes they consumed.
func Split(name string, b []byte, split bufio.SplitFunc, parse ParseFunc) (msgs []Message, consumed int, err error) {
	for consumed < len(b) {
		advance, frame, serr := split(b[consumed:], false)
		if serr != nil {
			offset := consumed
			var bad framing.ErrBadFrame
			if errors.As(serr, &bad) {
				offset += bad.Offset
			}
			return msgs, consumed, ucerr.DecodeFailure(offset, ucerr.WithContext(name), ucerr.WithCause(serr))
		}
		if advance == 0 {
			break
		}
		m, perr := parse(frame)
		if perr != nil {
			return msgs, consumed, ucerr.DecodeFailure(consumed, ucerr.WithContext(name), ucerr.WithCause(perr))
		}
		msgs = append(msgs, m)
		consumed += advance
	}
	return msgs, consumed, nil
}
