package packet

import (
	"fmt"

	"github.com/calmh/xdr"
	"github.com/danmuck/remotesync/internal/security"
)

const (
	Magic   uint32 = 0x524d5431
	Version uint32 = 1

	// MaxDatagramSize is the largest UDP payload over IPv4.
	MaxDatagramSize = 65507
)

// Packet is the header, metadata and content of one exchange plus the
// signature attached when it was serialized.
type Packet struct {
	header    Header
	metadata  Metadata
	content   Content
	signature []byte

	// body holds the exact signed bytes of a received packet.
	body []byte
}

func New() *Packet {
	return &Packet{}
}

func (p *Packet) SetHeader(h Header) *Packet {
	p.header = h
	p.reset()
	return p
}

func (p *Packet) SetMetadata(m Metadata) *Packet {
	p.metadata = m.clone()
	p.reset()
	return p
}

func (p *Packet) SetContent(c Content) *Packet {
	p.content = c
	p.reset()
	return p
}

func (p *Packet) Header() Header {
	return p.header
}

func (p *Packet) Metadata() Metadata {
	return p.metadata.clone()
}

func (p *Packet) Content() Content {
	return p.content
}

func (p *Packet) Signature() []byte {
	return append([]byte(nil), p.signature...)
}

func (p *Packet) reset() {
	p.body = nil
	p.signature = nil
}

// Body returns the bytes covered by the signature.
func (p *Packet) Body() ([]byte, error) {
	if p.body != nil {
		return append([]byte(nil), p.body...), nil
	}
	return p.encodeBody()
}

// IsSignatureValid recomputes the signature over the body and compares it
// with the attached one.
func (p *Packet) IsSignatureValid(s *security.Signer) bool {
	if s == nil || len(p.signature) == 0 {
		return false
	}
	body, err := p.Body()
	if err != nil {
		return false
	}
	return s.Verify(body, p.signature)
}

// Serialize signs p with s and returns the datagram bytes. A nil signer signs
// with the default key.
func Serialize(p *Packet, s *security.Signer) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil packet", ErrInvalidValue)
	}
	if s == nil {
		s = security.NewSigner(nil)
	}
	body, err := p.Body()
	if err != nil {
		return nil, err
	}
	sig := s.Sign(body)

	size := 4 + 4 + opaqueSize(len(body)) + opaqueSize(len(sig))
	if size > MaxDatagramSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, size)
	}
	m := &xdr.Marshaller{Data: make([]byte, size)}
	m.MarshalUint32(Magic)
	m.MarshalUint32(Version)
	m.MarshalBytes(body)
	m.MarshalBytes(sig)
	if m.Error != nil {
		return nil, m.Error
	}
	p.body = body
	p.signature = sig
	return m.Data, nil
}

// Deserialize rebuilds a packet from datagram bytes. The signature is kept
// but not checked; see IsSignatureValid.
func Deserialize(data []byte) (pkt *Packet, err error) {
	defer func() {
		if r := recover(); r != nil {
			pkt, err = nil, fmt.Errorf("%w: %v", ErrMalformedPacket, r)
		}
	}()
	if len(data) > MaxDatagramSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds datagram limit", ErrMalformedPacket, len(data))
	}
	u := &xdr.Unmarshaller{Data: data}
	magic := u.UnmarshalUint32()
	version := u.UnmarshalUint32()
	if u.Error != nil {
		return nil, malformed("preamble", u.Error)
	}
	if magic != Magic {
		return nil, fmt.Errorf("%w: bad magic 0x%08x", ErrMalformedPacket, magic)
	}
	if version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedPacket, version)
	}
	body := copyBytes(u.UnmarshalBytesMax(MaxDatagramSize))
	sig := copyBytes(u.UnmarshalBytesMax(security.SignatureSize * 4))
	if u.Error != nil {
		return nil, malformed("envelope", u.Error)
	}
	if len(u.Data) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedPacket, len(u.Data))
	}

	p, err := decodeBody(body)
	if err != nil {
		return nil, err
	}
	p.body = body
	p.signature = sig
	return p, nil
}

func malformed(section string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformedPacket, section, err)
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return append([]byte{}, b...)
}

func (p *Packet) String() string {
	return fmt.Sprintf("packet{id=%d type=%s user=%q session=%q metadata=%d content=%d}",
		p.header.ID, p.header.Type, p.header.Username, p.header.Session,
		p.metadata.Len(), p.content.kind)
}
