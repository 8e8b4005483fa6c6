package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andaru/unicomm/bincodec"
	"github.com/andaru/unicomm/message"
	"github.com/andaru/unicomm/session"
	"github.com/andaru/unicomm/ucerr"
	"github.com/andaru/unicomm/xmlcodec"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "unicomm.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	a := assert.New(t)
	cfg, err := Load(writeConfig(t, `
handshake_timeout = "2s"
max_sessions = 1
reply_policy = "strict"

[codec]
name = "binary"
params = { framing = "chunked", max_chunk_size = "512" }

[replies]
ready = [10, 11]

[handshake]
send = [1, 2]
expect = [1, 2]
`))
	require.NoError(t, err)
	a.Equal(Duration(2*time.Second), cfg.HandshakeTimeout)
	a.Equal(1, cfg.MaxSessions)
	a.Equal(ReplyPolicyStrict, cfg.ReplyPolicy)
	a.Equal(Duration(50*time.Millisecond), cfg.IdleTimeout, "default kept")
	a.Equal(map[string][]uint32{"ready": {10, 11}}, cfg.Replies)
	a.Equal([]uint32{1, 2}, cfg.Handshake.Expect)

	c, err := cfg.NewCodec()
	a.NoError(err)
	if bc, ok := c.(*bincodec.Codec); a.True(ok) {
		a.Equal(bincodec.FramingChunked, bc.Framing())
	}

	p := cfg.Policy()
	a.True(p.Strict)
	a.NotNil(p.Handshake)
	a.True(p.Permits(session.StateReady, 11))
	a.False(p.Permits(session.StateReady, 5))
	a.False(p.Permits(session.StateHandshaking, 1))
}

func TestLoadDefaults(t *testing.T) {
	a := assert.New(t)
	cfg, err := Load(writeConfig(t, "max_sessions = 3\n"))
	require.NoError(t, err)
	want := Default()
	want.MaxSessions = 3
	a.Equal(want, cfg)
	p := cfg.Policy()
	a.False(p.Strict)
	a.Nil(p.Handshake)
	a.True(p.Permits(session.StateReady, 12345))
}

func TestLoadErrors(t *testing.T) {
	for _, tc := range []struct {
		name    string
		body    string
		context string
	}{
		{name: "policy", body: `reply_policy = "loose"`, context: "reply_policy"},
		{name: "negative", body: `max_sessions = -1`, context: "max_sessions"},
		{name: "timeout", body: `handshake_timeout = "-1s"`, context: "handshake_timeout"},
		{name: "state", body: "[replies]\nopen = [1]", context: "replies.open"},
		{name: "codec", body: "[codec]\nname = \"json\"", context: "codec.name"},
		{name: "framing", body: "[codec]\nparams = { framing = \"lines\" }", context: "codec.params.framing"},
		{name: "chunk size", body: "[codec]\nparams = { framing = \"chunked\", max_chunk_size = \"big\" }", context: "codec.params.max_chunk_size"},
		{name: "unknown key", body: `max_session = 1`, context: "max_session"},
		{name: "request id", body: "[requests.ping]\ntimeout = \"1s\"", context: "requests.ping"},
		{name: "request timeout", body: "[requests.5]\ntimeout = \"-1s\"", context: "requests.5.timeout"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)
			_, err := Load(writeConfig(t, tc.body))
			a.True(errors.Is(err, ucerr.ErrInvalidConfig), "%v", err)
			var ue *ucerr.Error
			if a.True(errors.As(err, &ue)) {
				a.Equal(tc.context, ue.Context)
			}
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
	_, err = Load(writeConfig(t, `handshake_timeout = "soon"`))
	assert.Error(t, err)
}

func TestLoadRequests(t *testing.T) {
	a := assert.New(t)
	cfg, err := Load(writeConfig(t, `
unique_seq = true

[requests.5]
timeout = "250ms"
replies = [6, 8]

[requests.7]
`))
	require.NoError(t, err)
	a.True(cfg.UniqueSeq)
	a.Equal(map[string]Request{
		"5": {Timeout: Duration(250 * time.Millisecond), Replies: []uint32{6, 8}},
		"7": {},
	}, cfg.Requests)

	p := cfg.Policy()
	a.True(p.UniqueSeq)
	a.Equal(map[uint32]session.Request{
		5: {Timeout: 250 * time.Millisecond, Replies: message.NewIDSet(6, 8)},
		7: {Replies: message.NewIDSet()},
	}, p.Requests)

	c := cfg.Clone()
	cfg.Requests["5"].Replies[0] = 1
	a.Equal([]uint32{6, 8}, c.Requests["5"].Replies)
}

func TestClone(t *testing.T) {
	a := assert.New(t)
	cfg := Default()
	cfg.Replies = map[string][]uint32{"ready": {1}}
	cfg.Codec.Params = map[string]string{"framing": "escaped"}
	cfg.Handshake.Send = []uint32{1}

	c := cfg.Clone()
	cfg.Replies["ready"][0] = 2
	cfg.Replies["closing"] = nil
	cfg.Codec.Params["framing"] = "chunked"
	cfg.Handshake.Send[0] = 9

	a.Equal(map[string][]uint32{"ready": {1}}, c.Replies)
	a.Equal("escaped", c.Codec.Params["framing"])
	a.Equal([]uint32{1}, c.Handshake.Send)
}

func TestNewCodecXML(t *testing.T) {
	cfg := Default()
	cfg.Codec.Name = xmlcodec.Name
	c, err := cfg.NewCodec()
	assert.NoError(t, err)
	assert.Equal(t, xmlcodec.Name, c.Name())
}
