package transport

import (
	"context"
	"net"

	"github.com/danmuck/remotesync/internal/protocol/message"
	"github.com/rs/zerolog/log"
)

// Sink consumes human-readable status and error text.
type Sink interface {
	Notify(text string)
	NotifyError(text string)
}

// LogSink writes notifications through the global zerolog logger.
type LogSink struct {
	Role string
}

func (s LogSink) Notify(text string) {
	log.Info().Str("role", s.Role).Msg(text)
}

func (s LogSink) NotifyError(text string) {
	log.Error().Str("role", s.Role).Msg(text)
}

type nopSink struct{}

func (nopSink) Notify(string)      {}
func (nopSink) NotifyError(string) {}

// Delivery is one decoded inbound message.
type Delivery struct {
	Message message.Message
	Addr    *net.UDPAddr
	Valid   bool
}

// Handler receives decoded messages on the endpoint read goroutine, in
// socket order. ctx is cancelled when the endpoint stops.
type Handler interface {
	HandleDelivery(ctx context.Context, d Delivery)
}

type HandlerFunc func(ctx context.Context, d Delivery)

func (f HandlerFunc) HandleDelivery(ctx context.Context, d Delivery) {
	f(ctx, d)
}
