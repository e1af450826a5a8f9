package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/danmuck/remotesync/internal/observability"
	"github.com/danmuck/remotesync/internal/protocol/message"
	"github.com/rs/zerolog/log"
)

const roleClient = "client"

type ClientConfig struct {
	Addr    string
	Port    int
	Key     []byte
	Sink    Sink
	Handler Handler
}

// Client is a UDP endpoint connected to one server.
type Client struct {
	*endpoint
	addr string
	port int
}

func NewClient(cfg ClientConfig) *Client {
	return &Client{
		endpoint: newEndpoint(roleClient, cfg.Key, cfg.Sink, cfg.Handler),
		addr:     cfg.Addr,
		port:     cfg.Port,
	}
}

func (c *Client) target() string {
	return net.JoinHostPort(c.addr, strconv.Itoa(c.port))
}

// Run connects asynchronously. cb fires with nil once running or with a
// ConnectionError on failure; it does not fire if Stop is called first.
func (c *Client) Run(cb func(error)) error {
	return c.run(
		func() (*net.UDPConn, error) {
			raddr, err := net.ResolveUDPAddr("udp", c.target())
			if err != nil {
				return nil, err
			}
			return net.DialUDP("udp", nil, raddr)
		},
		func(err error) error {
			return ConnectionError{Op: "connect to", Addr: c.addr, Port: c.port, Err: err}
		},
		func(conn *net.UDPConn) string {
			return fmt.Sprintf("Established connection to %s", conn.RemoteAddr())
		},
		cb,
	)
}

// Stop closes the connection. Idempotent.
func (c *Client) Stop() {
	c.stop()
}

// Send writes one datagram to the server.
func (c *Client) Send(data []byte) error {
	conn, err := c.liveConn()
	if err != nil {
		return err
	}
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("transport: send to %s: %w", c.target(), err)
	}
	observability.RecordDatagramSent(c.role)
	log.Debug().Str("role", c.role).Int("bytes", len(data)).Str("peer", c.target()).Msg("datagram sent")
	return nil
}

// SendString sends the UTF-8 bytes of s.
func (c *Client) SendString(s string) error {
	return c.Send([]byte(s))
}

// SendMessage encodes, signs, and sends m.
func (c *Client) SendMessage(m message.Message) error {
	if !c.IsRunning() {
		return ErrNotRunning
	}
	data, err := c.encode(m)
	if err != nil {
		return err
	}
	return c.Send(data)
}

// Serve runs the client until ctx is done.
func (c *Client) Serve(ctx context.Context) error {
	return serve(ctx, c.Run, c.Stop)
}

// serve adapts Run/Stop to a blocking, context-driven service.
func serve(ctx context.Context, run func(func(error)) error, stop func()) error {
	started := make(chan error, 1)
	if err := run(func(err error) { started <- err }); err != nil {
		return err
	}
	select {
	case err := <-started:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		stop()
		return ctx.Err()
	}
	<-ctx.Done()
	stop()
	return ctx.Err()
}
