package comm

import (
	"context"
	"net"

	"github.com/andaru/unicomm/config"
	"github.com/andaru/unicomm/ucerr"
)

// Client is a communicator that opens outgoing connections.
type Client struct {
	*core
}

// NewClient returns a Client for cfg. The configuration is copied;
// later changes to cfg have no effect.
func NewClient(cfg config.Config, opts ...Option) (*Client, error) {
	c, err := newCore(cfg, opts)
	if err != nil {
		return nil, err
	}
	return &Client{core: c}, nil
}

// Connect resolves host, dials each address on port until one answers
// and registers a session for the connection. The session handshakes on
// the dispatcher's next cycle; KindConnected is delivered when it is
// ready.
func (c *Client) Connect(ctx context.Context, host, port string) (uint64, error) {
	addrs, err := c.resolver.Resolve(ctx, host)
	if err != nil {
		return 0, ucerr.CommunicationFailure(ucerr.WithContext(host), ucerr.WithCause(err))
	}
	var lastErr error
	for _, addr := range addrs {
		target := net.JoinHostPort(addr, port)
		conn, err := c.network.Dial(ctx, target)
		if err != nil {
			c.log.Debug().Err(err).Str("remote", target).Msg("dial failed")
			lastErr = err
			continue
		}
		return c.attach(conn)
	}
	return 0, ucerr.CommunicationFailure(ucerr.WithContext(net.JoinHostPort(host, port)), ucerr.WithCause(lastErr))
}

// Close closes every session and stops the dispatcher once they have
// closed. Closing before Run makes Run stop after its first cycle.
func (c *Client) Close() error {
	c.DisconnectAll()
	c.Stop()
	return nil
}
