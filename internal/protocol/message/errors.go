package message

import (
	"errors"
	"fmt"

	"github.com/danmuck/remotesync/internal/protocol/packet"
)

var ErrNilMessage = errors.New("message: nil message")

// UnknownTypeError indicates a (type, subtype) pair with no matching variant.
type UnknownTypeError struct {
	Type    packet.Type
	Subtype Subtype
}

func (e UnknownTypeError) Error() string {
	return fmt.Sprintf("message: unknown message type=%s subtype=%s", e.Type, e.Subtype)
}

// MissingFieldError indicates a variant-required metadata or content field
// was absent or of the wrong kind.
type MissingFieldError struct {
	Type    packet.Type
	Subtype Subtype
	Field   string
}

func (e MissingFieldError) Error() string {
	return fmt.Sprintf("message: %s/%s missing required field %q", e.Type, e.Subtype, e.Field)
}
