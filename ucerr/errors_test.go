package ucerr

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	for _, tc := range []struct {
		err *Error

		error string
		json  string
	}{
		{
			err:   Disconnected(WithSession(3)),
			error: "transport error tag:disconnected session:3",
			json:  `{"kind":"transport","tag":"disconnected","session-id":3}`,
		},
		{
			err:   DisallowedReply(5, WithSession(1)),
			error: "protocol error tag:disallowed-reply session:1 message-id:5",
			json:  `{"kind":"protocol","tag":"disallowed-reply","session-id":1,"message-id":5}`,
		},
		{
			err:   DisallowedReply(0),
			error: "protocol error tag:disallowed-reply message-id:0",
			json:  `{"kind":"protocol","tag":"disallowed-reply","message-id":0}`,
		},
		{
			err:   DecodeFailure(12, WithContext("binary"), WithMessage("bad header")),
			error: "protocol error tag:decode-failure offset:12 context:binary bad header",
			json:  `{"kind":"protocol","tag":"decode-failure","offset":12,"context":"binary","message":"bad header"}`,
		},
		{
			err:   NotFound(9),
			error: "registry error tag:not-found session:9",
			json:  `{"kind":"registry","tag":"not-found","session-id":9}`,
		},
		{
			err:   CreationConflict(WithMessage("max_sessions reached")),
			error: "registry error tag:creation-conflict max_sessions reached",
			json:  `{"kind":"registry","tag":"creation-conflict","message":"max_sessions reached"}`,
		},
		{
			err:   InvalidConfig("reply_policy", WithMessage(`unknown policy "loose"`)),
			error: `config error tag:invalid-config context:reply_policy unknown policy "loose"`,
			json:  `{"kind":"config","tag":"invalid-config","context":"reply_policy","message":"unknown policy \"loose\""}`,
		},
		{
			err:   CommunicationFailure(WithCause(errors.New("connection reset"))),
			error: "transport error tag:communication-failure: connection reset",
			json:  `{"kind":"transport","tag":"communication-failure"}`,
		},
	} {
		t.Run(fmt.Sprintf("%s/%s", tc.err.Kind, tc.err.Tag), func(t *testing.T) {
			a := assert.New(t)
			a.Equal(tc.error, tc.err.Error())
			b, err := json.Marshal(tc.err)
			a.NoError(err)
			a.Equal(tc.json, string(b))
		})
	}
}

func TestErrorIs(t *testing.T) {
	a := assert.New(t)
	wrapped := errors.Wrap(NotFound(4), "send")
	a.True(errors.Is(wrapped, ErrNotFound))
	a.False(errors.Is(wrapped, ErrCreationConflict))

	kind, ok := KindOf(wrapped)
	a.True(ok)
	a.Equal(KindRegistry, kind)
	a.Equal(TagNotFound, TagOf(wrapped))

	_, ok = KindOf(errors.New("plain"))
	a.False(ok)
	a.Equal("", TagOf(nil))

	cause := errors.New("eof")
	a.True(errors.Is(Disconnected(WithCause(cause)), cause))
}

func TestKindText(t *testing.T) {
	for _, k := range []Kind{KindTransport, KindProtocol, KindRegistry, KindConfig} {
		t.Run(k.String(), func(t *testing.T) {
			a := assert.New(t)
			b, err := k.MarshalText()
			a.NoError(err)
			var got Kind
			a.NoError(got.UnmarshalText(append([]byte(" "), b...)))
			a.Equal(k, got)
		})
	}
	var k Kind
	assert.Error(t, k.UnmarshalText([]byte("bogus")))
	assert.Equal(t, "Kind(42)", Kind(42).String())
}
