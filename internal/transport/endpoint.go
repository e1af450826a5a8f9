package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/danmuck/remotesync/internal/observability"
	"github.com/danmuck/remotesync/internal/protocol/message"
	"github.com/danmuck/remotesync/internal/protocol/packet"
	"github.com/danmuck/remotesync/internal/security"
	"github.com/rs/zerolog/log"
)

// State is the lifecycle position of an endpoint.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateRunning
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// maxReadSize covers the largest UDP payload.
const maxReadSize = 64 * 1024

// endpoint is the lifecycle and receive pipeline shared by Client and Server.
type endpoint struct {
	role   string
	signer *security.Signer
	sink   Sink

	mu      sync.Mutex
	state   State
	gen     uint64
	conn    *net.UDPConn
	cancel  context.CancelFunc
	handler Handler
	admit   func(*net.UDPAddr) bool
}

func newEndpoint(role string, key []byte, sink Sink, handler Handler) *endpoint {
	if sink == nil {
		sink = nopSink{}
	}
	return &endpoint{
		role:    role,
		signer:  security.NewSigner(key),
		sink:    sink,
		handler: handler,
	}
}

// run moves the endpoint to connecting and opens the socket on a new
// goroutine. cb fires once with nil or a ConnectionError unless stop is
// called first.
func (e *endpoint) run(open func() (*net.UDPConn, error), fail func(error) error, announce func(*net.UDPConn) string, cb func(error)) error {
	e.mu.Lock()
	if e.state == StateConnecting || e.state == StateRunning {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.state = StateConnecting
	e.gen++
	gen := e.gen
	e.mu.Unlock()

	go func() {
		conn, err := open()

		e.mu.Lock()
		if e.gen != gen || e.state != StateConnecting {
			e.mu.Unlock()
			if conn != nil {
				_ = conn.Close()
			}
			log.Debug().Str("role", e.role).Msg("connect completed after stop; discarded")
			return
		}
		if err != nil || conn == nil {
			e.state = StateIdle
			e.mu.Unlock()
			cerr := fail(err)
			e.sink.NotifyError(cerr.Error())
			if cb != nil {
				cb(cerr)
			}
			return
		}
		ctx, cancel := context.WithCancel(context.Background())
		e.conn = conn
		e.cancel = cancel
		e.state = StateRunning
		e.mu.Unlock()

		e.sink.Notify(announce(conn))
		go e.readLoop(ctx, gen, conn)
		if cb != nil {
			cb(nil)
		}
	}()
	return nil
}

// stop closes the socket and detaches any pending callback. Safe to call in
// any state, any number of times.
func (e *endpoint) stop() {
	e.mu.Lock()
	conn := e.conn
	cancel := e.cancel
	wasRunning := e.state == StateRunning
	e.conn = nil
	e.cancel = nil
	e.gen++
	e.state = StateClosed
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			log.Debug().Err(err).Str("role", e.role).Msg("socket close")
		}
	}
	if wasRunning {
		e.sink.Notify("Connection closed")
	}
}

func (e *endpoint) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *endpoint) IsRunning() bool {
	return e.State() == StateRunning
}

func (e *endpoint) SetHandler(h Handler) {
	e.mu.Lock()
	e.handler = h
	e.mu.Unlock()
}

func (e *endpoint) current(gen uint64) (Handler, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handler, e.gen == gen && e.state == StateRunning
}

func (e *endpoint) liveConn() (*net.UDPConn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRunning || e.conn == nil {
		return nil, ErrNotRunning
	}
	return e.conn, nil
}

func (e *endpoint) readLoop(ctx context.Context, gen uint64, conn *net.UDPConn) {
	buf := make([]byte, maxReadSize)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if _, live := e.current(gen); !live || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn().Err(err).Str("role", e.role).Msg("udp read failed")
			e.sink.NotifyError(fmt.Sprintf("Read failed: %v", err))
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		e.receive(ctx, gen, data, addr)
	}
}

// receive runs one datagram through decode, verify and dispatch.
func (e *endpoint) receive(ctx context.Context, gen uint64, data []byte, addr *net.UDPAddr) {
	handler, live := e.current(gen)
	if !live {
		return
	}
	observability.RecordDatagramReceived(e.role)

	if e.admit != nil && !e.admit(addr) {
		observability.RecordRateLimited(e.role)
		log.Warn().Str("role", e.role).Stringer("peer", addr).Msg("datagram dropped by rate limit")
		return
	}

	p, err := packet.Deserialize(data)
	if err != nil {
		observability.RecordDecodeError(e.role, "packet")
		e.sink.NotifyError(fmt.Sprintf("Dropped datagram from %s: %v", addr, err))
		return
	}
	valid := p.IsSignatureValid(e.signer)
	msg, err := message.FromPacket(p)
	if err != nil {
		observability.RecordDecodeError(e.role, "message")
		e.sink.NotifyError(fmt.Sprintf("Dropped datagram from %s: %v", addr, err))
		return
	}
	if !valid {
		observability.RecordInvalidSignature(e.role)
	}
	e.sink.Notify(fmt.Sprintf("Received %s from %s (signature valid: %t)", message.Describe(msg), addr, valid))

	if handler != nil {
		handler.HandleDelivery(ctx, Delivery{Message: msg, Addr: addr, Valid: valid})
	}
}

func (e *endpoint) encode(m message.Message) ([]byte, error) {
	return Encode(m, e.signer)
}
