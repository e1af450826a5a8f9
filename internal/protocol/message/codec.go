package message

import (
	"fmt"

	"github.com/danmuck/remotesync/internal/protocol/packet"
)

// ToPacket maps m onto a packet: identity into the header, subtype and
// auxiliary fields into metadata, the primary payload into content.
func ToPacket(m Message) (*packet.Packet, error) {
	m = deref(m)
	if m == nil {
		return nil, ErrNilMessage
	}
	var md packet.Metadata
	md.SetInt(KeySubtype, int64(m.Subtype()))

	var content packet.Content
	switch v := m.(type) {
	case FileListRequest:
		content = packet.TextContent(v.Path)
	case FileListResponse:
		content = packet.FileListContent(v.FileList)
	case RetrieveFileRequest:
		content = packet.TextContent(v.FilePath)
	case RetrieveFileResponse:
		md.SetInt(KeyFileLength, v.FileLength).
			SetInt(KeyFileVersion, v.FileVersion).
			SetInt(KeyTotalChunks, v.TotalChunks).
			SetInt(KeyChunkIndex, v.ChunkIndex)
		content = packet.BytesContent(v.ChunkData)
	case FileChangeBroadcast:
		md.SetInt(KeyFileVersion, v.FileVersion).
			SetInt(KeyFileLength, v.FileLength)
		content = packet.TextContent(v.FilePath)
	default:
		return nil, fmt.Errorf("message: unsupported variant %T", m)
	}

	p := packet.New().
		SetHeader(packet.Header{
			ID:       m.GetID(),
			Type:     m.Type(),
			Username: m.GetUsername(),
			Session:  m.GetSession(),
		}).
		SetMetadata(md).
		SetContent(content)
	return p, nil
}

// FromPacket dispatches on the header type and metadata subtype and returns
// a pointer to the matching variant.
func FromPacket(p *packet.Packet) (Message, error) {
	if p == nil {
		return nil, ErrNilMessage
	}
	h := p.Header()
	md := p.Metadata()
	content := p.Content()

	raw, ok := md.Int(KeySubtype)
	if !ok {
		return nil, MissingFieldError{Type: h.Type, Field: KeySubtype}
	}
	sub := Subtype(raw)
	env := Envelope{ID: h.ID, Username: h.Username, Session: h.Session}
	r := fieldReader{typ: h.Type, sub: sub, md: md, content: content}

	var msg Message
	switch {
	case h.Type == packet.TypeFileList && sub == SubtypeRequest:
		msg = &FileListRequest{Envelope: env, Path: r.textField(FieldPath)}
	case h.Type == packet.TypeFileList && sub == SubtypeResponse:
		msg = &FileListResponse{Envelope: env, FileList: r.fileListField(FieldFileList)}
	case h.Type == packet.TypeRetrieveFile && sub == SubtypeRequest:
		msg = &RetrieveFileRequest{Envelope: env, FilePath: r.textField(FieldFilePath)}
	case h.Type == packet.TypeRetrieveFile && sub == SubtypeResponse:
		msg = &RetrieveFileResponse{
			Envelope:    env,
			FileLength:  r.intField(KeyFileLength),
			FileVersion: r.intField(KeyFileVersion),
			TotalChunks: r.intField(KeyTotalChunks),
			ChunkIndex:  r.intField(KeyChunkIndex),
			ChunkData:   r.dataField(FieldChunkData),
		}
	case h.Type == packet.TypeFileChanged && sub == SubtypeBroadcast:
		msg = &FileChangeBroadcast{
			Envelope:    env,
			FilePath:    r.textField(FieldFilePath),
			FileVersion: r.intField(KeyFileVersion),
			FileLength:  r.intField(KeyFileLength),
		}
	default:
		return nil, UnknownTypeError{Type: h.Type, Subtype: sub}
	}
	if r.err != nil {
		return nil, r.err
	}
	return msg, nil
}

func deref(m Message) Message {
	switch v := m.(type) {
	case *FileListRequest:
		if v == nil {
			return nil
		}
		return *v
	case *FileListResponse:
		if v == nil {
			return nil
		}
		return *v
	case *RetrieveFileRequest:
		if v == nil {
			return nil
		}
		return *v
	case *RetrieveFileResponse:
		if v == nil {
			return nil
		}
		return *v
	case *FileChangeBroadcast:
		if v == nil {
			return nil
		}
		return *v
	}
	return m
}

// fieldReader keeps the first missing field; later reads are no-ops.
type fieldReader struct {
	typ     packet.Type
	sub     Subtype
	md      packet.Metadata
	content packet.Content
	err     error
}

func (r *fieldReader) missing(field string) {
	if r.err == nil {
		r.err = MissingFieldError{Type: r.typ, Subtype: r.sub, Field: field}
	}
}

func (r *fieldReader) intField(key string) int64 {
	v, ok := r.md.Int(key)
	if !ok {
		r.missing(key)
	}
	return v
}

func (r *fieldReader) textField(field string) string {
	v, ok := r.content.Text()
	if !ok {
		r.missing(field)
	}
	return v
}

func (r *fieldReader) fileListField(field string) []packet.FileEntry {
	v, ok := r.content.FileList()
	if !ok {
		r.missing(field)
	}
	return v
}

func (r *fieldReader) dataField(field string) []byte {
	v, ok := r.content.Data()
	if !ok {
		r.missing(field)
	}
	return v
}
