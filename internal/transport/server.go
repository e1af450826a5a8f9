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

const roleServer = "server"

type ServerConfig struct {
	Addr    string
	Port    int
	Key     []byte
	Sink    Sink
	Handler Handler

	// PeerRate caps datagrams per second per peer IP. Zero disables limiting.
	PeerRate  float64
	PeerBurst int
	PeerCache int
}

// Server is a UDP endpoint bound to a local address.
type Server struct {
	*endpoint
	addr  string
	port  int
	local *net.UDPAddr
}

func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		endpoint: newEndpoint(roleServer, cfg.Key, cfg.Sink, cfg.Handler),
		addr:     cfg.Addr,
		port:     cfg.Port,
	}
	if cfg.PeerRate > 0 {
		s.admit = newPeerLimiter(cfg.PeerRate, cfg.PeerBurst, cfg.PeerCache).allow
	}
	return s
}

// Run binds asynchronously. cb fires with nil once running or with a
// ConnectionError on failure; it does not fire if Stop is called first.
func (s *Server) Run(cb func(error)) error {
	return s.run(
		func() (*net.UDPConn, error) {
			laddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(s.addr, strconv.Itoa(s.port)))
			if err != nil {
				return nil, err
			}
			conn, err := net.ListenUDP("udp", laddr)
			if err != nil {
				return nil, err
			}
			s.mu.Lock()
			s.local, _ = conn.LocalAddr().(*net.UDPAddr)
			s.mu.Unlock()
			return conn, nil
		},
		func(err error) error {
			return ConnectionError{Op: "bind", Addr: s.addr, Port: s.port, Err: err}
		},
		func(conn *net.UDPConn) string {
			return fmt.Sprintf("Listening on %s", conn.LocalAddr())
		},
		cb,
	)
}

// Stop closes the socket. Idempotent.
func (s *Server) Stop() {
	s.stop()
}

// LocalAddr is the bound address, or nil before the first successful bind.
func (s *Server) LocalAddr() *net.UDPAddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local
}

// Send writes one datagram to addr.
func (s *Server) Send(data []byte, addr *net.UDPAddr) error {
	conn, err := s.liveConn()
	if err != nil {
		return err
	}
	if addr == nil {
		return ErrNilAddr
	}
	if _, err := conn.WriteToUDP(data, addr); err != nil {
		return fmt.Errorf("transport: send to %s: %w", addr, err)
	}
	observability.RecordDatagramSent(s.role)
	log.Debug().Str("role", s.role).Int("bytes", len(data)).Stringer("peer", addr).Msg("datagram sent")
	return nil
}

// SendString sends the UTF-8 bytes of text to addr.
func (s *Server) SendString(text string, addr *net.UDPAddr) error {
	return s.Send([]byte(text), addr)
}

// SendMessage encodes, signs, and sends m to addr.
func (s *Server) SendMessage(m message.Message, addr *net.UDPAddr) error {
	if !s.IsRunning() {
		return ErrNotRunning
	}
	data, err := s.encode(m)
	if err != nil {
		return err
	}
	return s.Send(data, addr)
}

// Serve runs the server until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	return serve(ctx, s.Run, s.Stop)
}
