package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/andaru/unicomm/bincodec"
	"github.com/andaru/unicomm/message"
	"github.com/andaru/unicomm/session"
	"github.com/andaru/unicomm/ucerr"
	"github.com/andaru/unicomm/xmlcodec"
	"github.com/pkg/errors"
)

// Reply policies
const (
	ReplyPolicyStrict = "strict"
	ReplyPolicyOpen   = "open"
)

// Duration is a time.Duration read from text such as "5s".
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) { return []byte(time.Duration(d).String()), nil }

// Codec selects the message codec.
type Codec struct {
	// Name is "binary" or "xml".
	Name string `toml:"name"`
	// Params holds codec specific settings. The binary codec reads
	// "framing" ("escaped" or "chunked") and "max_chunk_size".
	Params map[string]string `toml:"params"`
}

// Handshake configures the greeting exchanged while handshaking.
type Handshake struct {
	// Send lists the message ids sent on entering the handshake.
	Send []uint32 `toml:"send"`
	// Expect lists the message ids the peer must send, in order.
	Expect []uint32 `toml:"expect"`
}

// Request marks a message id as expecting a reply.
type Request struct {
	// Timeout bounds the wait for the reply. Zero waits forever.
	Timeout Duration `toml:"timeout"`
	// Replies lists the message ids allowed as the reply. Empty allows
	// any id.
	Replies []uint32 `toml:"replies"`
}

// Config holds communicator options. Communicators take a private copy
// at construction.
type Config struct {
	// HandshakeTimeout bounds the handshake. Zero disables the bound.
	HandshakeTimeout Duration `toml:"handshake_timeout"`
	// MaxSessions bounds the number of registered sessions. Zero is unbounded.
	MaxSessions int `toml:"max_sessions"`
	// ReplyPolicy is "strict" or "open"; see session.Policy.
	ReplyPolicy string `toml:"reply_policy"`
	// IdleTimeout is the longest the dispatcher waits between cycles.
	IdleTimeout Duration `toml:"idle_timeout"`
	Codec       Codec    `toml:"codec"`
	// Replies maps state names to the message ids Send may emit in them.
	Replies   map[string][]uint32 `toml:"replies"`
	Handshake Handshake           `toml:"handshake"`
	// Requests maps decimal message ids to the reply they expect.
	Requests map[string]Request `toml:"requests"`
	// UniqueSeq numbers every outgoing message that has no Seq.
	UniqueSeq bool `toml:"unique_seq"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		HandshakeTimeout: Duration(10 * time.Second),
		ReplyPolicy:      ReplyPolicyOpen,
		IdleTimeout:      Duration(50 * time.Millisecond),
		Codec:            Codec{Name: bincodec.Name},
	}
}

// Load reads a TOML configuration file. Keys absent from the file keep
// their Default values.
func Load(path string) (Config, error) {
	cfg := Default()
	var raw Config
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, errors.Wrapf(err, "load config %s", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, ucerr.InvalidConfig(undecoded[0].String(), ucerr.WithMessage("unknown key"))
	}
	if meta.IsDefined("handshake_timeout") {
		cfg.HandshakeTimeout = raw.HandshakeTimeout
	}
	if meta.IsDefined("max_sessions") {
		cfg.MaxSessions = raw.MaxSessions
	}
	if meta.IsDefined("reply_policy") {
		cfg.ReplyPolicy = strings.TrimSpace(raw.ReplyPolicy)
	}
	if meta.IsDefined("idle_timeout") {
		cfg.IdleTimeout = raw.IdleTimeout
	}
	if meta.IsDefined("codec", "name") {
		cfg.Codec.Name = strings.TrimSpace(raw.Codec.Name)
	}
	if meta.IsDefined("codec", "params") {
		cfg.Codec.Params = raw.Codec.Params
	}
	if meta.IsDefined("replies") {
		cfg.Replies = raw.Replies
	}
	if meta.IsDefined("handshake") {
		cfg.Handshake = raw.Handshake
	}
	if meta.IsDefined("requests") {
		cfg.Requests = raw.Requests
	}
	if meta.IsDefined("unique_seq") {
		cfg.UniqueSeq = raw.UniqueSeq
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every option, returning an invalid-config error
// naming the first bad field.
func (c Config) Validate() error {
	if c.HandshakeTimeout < 0 {
		return ucerr.InvalidConfig("handshake_timeout", ucerr.WithMessage("must not be negative"))
	}
	if c.MaxSessions < 0 {
		return ucerr.InvalidConfig("max_sessions", ucerr.WithMessage("must not be negative"))
	}
	if c.IdleTimeout < 0 {
		return ucerr.InvalidConfig("idle_timeout", ucerr.WithMessage("must not be negative"))
	}
	switch c.ReplyPolicy {
	case ReplyPolicyStrict, ReplyPolicyOpen:
	default:
		return ucerr.InvalidConfig("reply_policy", ucerr.WithMessage(strconv.Quote(c.ReplyPolicy)+" is not strict or open"))
	}
	for name := range c.Replies {
		if _, err := session.ParseState(name); err != nil {
			return ucerr.InvalidConfig("replies."+name, ucerr.WithCause(err))
		}
	}
	for key, req := range c.Requests {
		if _, err := parseID(key); err != nil {
			return ucerr.InvalidConfig("requests."+key, ucerr.WithCause(err))
		}
		if req.Timeout < 0 {
			return ucerr.InvalidConfig("requests."+key+".timeout", ucerr.WithMessage("must not be negative"))
		}
	}
	if _, err := c.NewCodec(); err != nil {
		return err
	}
	return nil
}

func parseID(key string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(key), 10, 32)
	if err != nil {
		return 0, errors.Wrap(err, "message id")
	}
	return uint32(v), nil
}

// Clone returns a deep copy of c.
func (c Config) Clone() Config {
	out := c
	if c.Codec.Params != nil {
		out.Codec.Params = make(map[string]string, len(c.Codec.Params))
		for k, v := range c.Codec.Params {
			out.Codec.Params[k] = v
		}
	}
	if c.Replies != nil {
		out.Replies = make(map[string][]uint32, len(c.Replies))
		for k, v := range c.Replies {
			out.Replies[k] = append([]uint32(nil), v...)
		}
	}
	if c.Requests != nil {
		out.Requests = make(map[string]Request, len(c.Requests))
		for k, v := range c.Requests {
			v.Replies = append([]uint32(nil), v.Replies...)
			out.Requests[k] = v
		}
	}
	out.Handshake.Send = append([]uint32(nil), c.Handshake.Send...)
	out.Handshake.Expect = append([]uint32(nil), c.Handshake.Expect...)
	return out
}

// Policy builds the session policy described by c. A configuration
// with no handshake ids has no handshake.
func (c Config) Policy() session.Policy {
	p := session.Policy{Strict: c.ReplyPolicy == ReplyPolicyStrict, UniqueSeq: c.UniqueSeq}
	if len(c.Handshake.Send) > 0 || len(c.Handshake.Expect) > 0 {
		p.Handshake = session.NewGreeting(c.Handshake.Send, c.Handshake.Expect)
	}
	if len(c.Replies) > 0 {
		p.Replies = make(map[session.State]message.IDSet, len(c.Replies))
		for name, ids := range c.Replies {
			st, err := session.ParseState(name)
			if err != nil {
				continue
			}
			p.Replies[st] = message.NewIDSet(ids...)
		}
	}
	if len(c.Requests) > 0 {
		p.Requests = make(map[uint32]session.Request, len(c.Requests))
		for key, req := range c.Requests {
			id, err := parseID(key)
			if err != nil {
				continue
			}
			p.Requests[id] = session.Request{Timeout: time.Duration(req.Timeout), Replies: message.NewIDSet(req.Replies...)}
		}
	}
	return p
}

// NewCodec returns the codec described by c.
func (c Config) NewCodec() (message.Codec, error) {
	switch c.Codec.Name {
	case bincodec.Name, "":
		var opts []bincodec.Option
		switch f := c.Codec.Params["framing"]; f {
		case "", "escaped":
		case "chunked":
			size := 0
			if v, ok := c.Codec.Params["max_chunk_size"]; ok {
				n, err := strconv.Atoi(v)
				if err != nil || n < 0 {
					return nil, ucerr.InvalidConfig("codec.params.max_chunk_size", ucerr.WithMessage(strconv.Quote(v)))
				}
				size = n
			}
			opts = append(opts, bincodec.WithChunkedFraming(size))
		default:
			return nil, ucerr.InvalidConfig("codec.params.framing", ucerr.WithMessage(strconv.Quote(f)))
		}
		return bincodec.New(opts...), nil
	case xmlcodec.Name:
		return xmlcodec.New(), nil
	default:
		return nil, ucerr.InvalidConfig("codec.name", ucerr.WithMessage(strconv.Quote(c.Codec.Name)))
	}
}
