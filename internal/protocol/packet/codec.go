package packet

import (
	"fmt"

	"github.com/calmh/xdr"
)

const (
	maxStringLen     = MaxDatagramSize
	maxMetadataCount = 256
)

func opaqueSize(n int) int {
	return 4 + n + xdr.Padding(n)
}

func (v Value) xdrSize() int {
	switch v.kind {
	case KindInt:
		return 8
	case KindString:
		return opaqueSize(len(v.s))
	case KindBytes:
		return opaqueSize(len(v.b))
	default:
		return 0
	}
}

func (c Content) xdrSize() int {
	size := 4
	switch c.kind {
	case ContentString:
		size += opaqueSize(len(c.text))
	case ContentFileList:
		size += 4
		for _, e := range c.list {
			size += opaqueSize(len(e.Path)) + 8
		}
	case ContentBytes:
		size += opaqueSize(len(c.data))
	}
	return size
}

func (p *Packet) bodySize() int {
	size := 8 + 4 + opaqueSize(len(p.header.Username)) + opaqueSize(len(p.header.Session))
	size += 4
	for _, e := range p.metadata.entries {
		size += opaqueSize(len(e.key)) + 4 + e.val.xdrSize()
	}
	return size + p.content.xdrSize()
}

func (p *Packet) encodeBody() ([]byte, error) {
	if len(p.metadata.entries) > maxMetadataCount {
		return nil, fmt.Errorf("%w: %d metadata entries", ErrInvalidValue, len(p.metadata.entries))
	}
	size := p.bodySize()
	if size > MaxDatagramSize {
		return nil, fmt.Errorf("%w: body is %d bytes", ErrPacketTooLarge, size)
	}
	m := &xdr.Marshaller{Data: make([]byte, size)}

	m.MarshalUint64(p.header.ID)
	m.MarshalUint32(uint32(p.header.Type))
	m.MarshalString(p.header.Username)
	m.MarshalString(p.header.Session)

	m.MarshalUint32(uint32(len(p.metadata.entries)))
	for _, e := range p.metadata.entries {
		m.MarshalString(e.key)
		m.MarshalUint32(uint32(e.val.kind))
		switch e.val.kind {
		case KindInt:
			m.MarshalUint64(uint64(e.val.i))
		case KindString:
			m.MarshalString(e.val.s)
		case KindBytes:
			m.MarshalBytes(e.val.b)
		default:
			return nil, fmt.Errorf("%w: metadata %q has no kind", ErrInvalidValue, e.key)
		}
	}

	m.MarshalUint32(uint32(p.content.kind))
	switch p.content.kind {
	case ContentNone:
	case ContentString:
		m.MarshalString(p.content.text)
	case ContentFileList:
		m.MarshalUint32(uint32(len(p.content.list)))
		for _, e := range p.content.list {
			m.MarshalString(e.Path)
			m.MarshalUint64(uint64(e.Size))
		}
	case ContentBytes:
		m.MarshalBytes(p.content.data)
	default:
		return nil, fmt.Errorf("%w: content kind %d", ErrInvalidValue, p.content.kind)
	}

	if m.Error != nil {
		return nil, m.Error
	}
	return m.Data, nil
}

func decodeBody(body []byte) (*Packet, error) {
	u := &xdr.Unmarshaller{Data: body}
	p := &Packet{}

	p.header.ID = u.UnmarshalUint64()
	p.header.Type = Type(u.UnmarshalUint32())
	p.header.Username = u.UnmarshalStringMax(maxStringLen)
	p.header.Session = u.UnmarshalStringMax(maxStringLen)
	if u.Error != nil {
		return nil, malformed("header", u.Error)
	}

	count := int(u.UnmarshalUint32())
	if u.Error != nil {
		return nil, malformed("metadata", u.Error)
	}
	if count > maxMetadataCount {
		return nil, fmt.Errorf("%w: metadata: %d entries", ErrMalformedPacket, count)
	}
	for i := 0; i < count; i++ {
		key := u.UnmarshalStringMax(maxStringLen)
		kind := ValueKind(u.UnmarshalUint32())
		if u.Error != nil {
			return nil, malformed("metadata", u.Error)
		}
		var v Value
		switch kind {
		case KindInt:
			v = Int(int64(u.UnmarshalUint64()))
		case KindString:
			v = String(u.UnmarshalStringMax(maxStringLen))
		case KindBytes:
			v = Bytes(u.UnmarshalBytesMax(maxStringLen))
		default:
			return nil, fmt.Errorf("%w: metadata %q: unknown kind %d", ErrMalformedPacket, key, kind)
		}
		if u.Error != nil {
			return nil, malformed("metadata", u.Error)
		}
		p.metadata.Set(key, v)
	}

	kind := ContentKind(u.UnmarshalUint32())
	if u.Error != nil {
		return nil, malformed("content", u.Error)
	}
	switch kind {
	case ContentNone:
	case ContentString:
		p.content = TextContent(u.UnmarshalStringMax(maxStringLen))
	case ContentFileList:
		n := int(u.UnmarshalUint32())
		if u.Error != nil {
			return nil, malformed("content", u.Error)
		}
		// each row needs at least a length word and a size
		if n > len(u.Data)/12 {
			return nil, fmt.Errorf("%w: content: %d file entries", ErrMalformedPacket, n)
		}
		list := make([]FileEntry, 0, n)
		for i := 0; i < n; i++ {
			path := u.UnmarshalStringMax(maxStringLen)
			size := int64(u.UnmarshalUint64())
			list = append(list, FileEntry{Path: path, Size: size})
		}
		p.content = Content{kind: ContentFileList, list: list}
	case ContentBytes:
		p.content = BytesContent(u.UnmarshalBytesMax(maxStringLen))
	default:
		return nil, fmt.Errorf("%w: content: unknown kind %d", ErrMalformedPacket, kind)
	}
	if u.Error != nil {
		return nil, malformed("content", u.Error)
	}
	if len(u.Data) != 0 {
		return nil, fmt.Errorf("%w: body has %d trailing bytes", ErrMalformedPacket, len(u.Data))
	}
	return p, nil
}
