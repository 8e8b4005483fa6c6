package xmlcodec

import (
	"fmt"
	"strings"
	"testing"

	"github.com/andaru/unicomm/message"
	"github.com/andaru/unicomm/ucerr"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestEncode(t *testing.T) {
	for _, tc := range []struct {
		msg  message.Message
		want string
	}{
		{msg: message.Message{ID: 1}, want: `<message id="1"></message>`},
		{msg: message.Message{ID: 2, Payload: []byte("hi")}, want: `<message id="2">hi</message>`},
		{msg: message.Message{ID: 3, Seq: 4, ReplyTo: 5, Payload: []byte("a<b")}, want: `<message id="3" seq="4" rid="5">a&lt;b</message>`},
		{msg: message.Message{ID: 6, Payload: []byte("x\r\n\r\ny")}, want: `<message id="6">x&#xD;` + "\n" + `&#xD;` + "\n" + `y</message>`},
		{msg: message.Message{ID: 7, Payload: []byte{0xff, 0x00}}, want: `<message id="7" encoding="base64">/wA=</message>`},
	} {
		t.Run(tc.msg.String(), func(t *testing.T) {
			a := assert.New(t)
			b, err := New().Encode(tc.msg)
			a.NoError(err)
			a.Equal(tc.want+"\r\n\r\n", string(b))

			msgs, n, err := New().Decode(b)
			a.NoError(err)
			a.Equal(len(b), n)
			a.Equal([]message.Message{tc.msg}, msgs)
		})
	}
}

func TestDecodeSplitPoints(t *testing.T) {
	want := []message.Message{
		{ID: 10, Payload: []byte("first")},
		{ID: 11, Seq: 9, Payload: []byte("tab\there & <there>")},
		{ID: 12, Payload: []byte{1, 2, 3}},
		{ID: 13},
	}
	var stream []byte
	for _, m := range want {
		b, err := New().Encode(m)
		assert.NoError(t, err)
		stream = append(stream, b...)
	}
	for cut := 0; cut <= len(stream); cut += 5 {
		t.Run(fmt.Sprint(cut), func(t *testing.T) {
			a := assert.New(t)
			first, n, err := New().Decode(stream[:cut])
			a.NoError(err)
			rest, m, err := New().Decode(stream[n:])
			a.NoError(err)
			a.Equal(len(stream), n+m)
			a.Equal(want, append(first, rest...))
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	for _, tc := range []struct {
		input   string
		wantMsg string
	}{
		{input: "<other/>", wantMsg: "missing <message> element"},
		{input: `<message id="x"/>`, wantMsg: "invalid id attribute"},
		{input: `<message id="1" seq="-1"/>`, wantMsg: "invalid seq attribute"},
		{input: `<message id="1" rid="z"/>`, wantMsg: "invalid rid attribute"},
		{input: `<message id="1" encoding="base64">!!</message>`, wantMsg: "invalid base64 payload"},
		{input: `<message id="1" encoding="hex">00</message>`, wantMsg: `unknown payload encoding "hex"`},
		{input: `<message id="1">`, wantMsg: "parse"},
	} {
		t.Run(tc.input, func(t *testing.T) {
			a := assert.New(t)
			prefix, _ := New().Encode(message.Message{ID: 1})
			in := string(prefix) + tc.input + "\r\n\r\n"
			msgs, n, err := New().Decode([]byte(in))
			a.Len(msgs, 1)
			a.Equal(len(prefix), n)
			a.True(errors.Is(err, ucerr.ErrDecodeFailure))
			var ue *ucerr.Error
			a.True(errors.As(err, &ue))
			a.Equal(len(prefix), ue.Offset)
			a.True(strings.Contains(err.Error(), tc.wantMsg), err.Error())
		})
	}
}
