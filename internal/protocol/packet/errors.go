package packet

import "errors"

var (
	ErrMalformedPacket = errors.New("packet: malformed packet")
	ErrPacketTooLarge  = errors.New("packet: packet too large")
	ErrInvalidValue    = errors.New("packet: invalid value")
)
