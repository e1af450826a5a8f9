package transport

import (
	"github.com/danmuck/remotesync/internal/protocol/message"
	"github.com/danmuck/remotesync/internal/protocol/packet"
	"github.com/danmuck/remotesync/internal/security"
)

// Encode converts m to a signed datagram.
func Encode(m message.Message, s *security.Signer) ([]byte, error) {
	p, err := message.ToPacket(m)
	if err != nil {
		return nil, err
	}
	return packet.Serialize(p, s)
}
