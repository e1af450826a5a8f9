package message

import (
	"fmt"

	"github.com/danmuck/remotesync/internal/protocol/packet"
)

// Subtype distinguishes request, response and broadcast within one type.
type Subtype int64

const (
	SubtypeRequest   Subtype = 1
	SubtypeResponse  Subtype = 2
	SubtypeBroadcast Subtype = 3
)

func (s Subtype) String() string {
	switch s {
	case SubtypeRequest:
		return "REQUEST"
	case SubtypeResponse:
		return "RESPONSE"
	case SubtypeBroadcast:
		return "BROADCAST"
	default:
		return fmt.Sprintf("SUBTYPE(%d)", int64(s))
	}
}

// Metadata keys.
const (
	KeySubtype     = "subtype"
	KeyFileLength  = "file_length"
	KeyFileVersion = "file_version"
	KeyTotalChunks = "total_chunks"
	KeyChunkIndex  = "chunk_index"
)

// Content field names, used in MissingFieldError.
const (
	FieldPath      = "path"
	FieldFileList  = "file_list"
	FieldFilePath  = "file_path"
	FieldChunkData = "chunk_data"
)

// Envelope carries the identity fields every message shares.
type Envelope struct {
	ID       uint64
	Username string
	Session  string
}

func (e Envelope) GetID() uint64 {
	return e.ID
}

func (e Envelope) GetUsername() string {
	return e.Username
}

func (e Envelope) GetSession() string {
	return e.Session
}

// Message is one typed request, response or broadcast. The concrete types
// are the five variants in this package.
type Message interface {
	GetID() uint64
	GetUsername() string
	GetSession() string
	Type() packet.Type
	Subtype() Subtype
	isMessage()
}

// FileListRequest asks for the entries below Path.
type FileListRequest struct {
	Envelope
	Path string
}

// FileListResponse answers a FileListRequest. Directories have size -1.
type FileListResponse struct {
	Envelope
	FileList []packet.FileEntry
}

// RetrieveFileRequest asks for the contents of FilePath.
type RetrieveFileRequest struct {
	Envelope
	FilePath string
}

// RetrieveFileResponse carries chunk ChunkIndex of TotalChunks.
type RetrieveFileResponse struct {
	Envelope
	FileLength  int64
	FileVersion int64
	TotalChunks int64
	ChunkIndex  int64
	ChunkData   []byte
}

// FileChangeBroadcast reports a new version of FilePath.
type FileChangeBroadcast struct {
	Envelope
	FilePath    string
	FileVersion int64
	FileLength  int64
}

func (FileListRequest) Type() packet.Type { return packet.TypeFileList }
func (FileListResponse) Type() packet.Type { return packet.TypeFileList }
func (RetrieveFileRequest) Type() packet.Type { return packet.TypeRetrieveFile }
func (RetrieveFileResponse) Type() packet.Type { return packet.TypeRetrieveFile }
func (FileChangeBroadcast) Type() packet.Type { return packet.TypeFileChanged }
func (FileListRequest) Subtype() Subtype { return SubtypeRequest }
func (FileListResponse) Subtype() Subtype { return SubtypeResponse }
func (RetrieveFileRequest) Subtype() Subtype { return SubtypeRequest }
func (RetrieveFileResponse) Subtype() Subtype { return SubtypeResponse }
func (FileChangeBroadcast) Subtype() Subtype { return SubtypeBroadcast }
func (FileListRequest) isMessage() {}
func (FileListResponse) isMessage() {}
func (RetrieveFileRequest) isMessage() {}
func (RetrieveFileResponse) isMessage() {}
func (FileChangeBroadcast) isMessage() {}

// Describe renders m for sink notifications.
func Describe(m Message) string {
	switch v := m.(type) {
	case *FileListRequest:
		return fmt.Sprintf("%s/%s id=%d from=%s path=%q", v.Type(), v.Subtype(), v.ID, v.Username, v.Path)
	case *FileListResponse:
		return fmt.Sprintf("%s/%s id=%d from=%s entries=%d", v.Type(), v.Subtype(), v.ID, v.Username, len(v.FileList))
	case *RetrieveFileRequest:
		return fmt.Sprintf("%s/%s id=%d from=%s file=%q", v.Type(), v.Subtype(), v.ID, v.Username, v.FilePath)
	case *RetrieveFileResponse:
		return fmt.Sprintf("%s/%s id=%d from=%s chunk=%d/%d bytes=%d", v.Type(), v.Subtype(), v.ID, v.Username, v.ChunkIndex+1, v.TotalChunks, len(v.ChunkData))
	case *FileChangeBroadcast:
		return fmt.Sprintf("%s/%s id=%d from=%s file=%q version=%d", v.Type(), v.Subtype(), v.ID, v.Username, v.FilePath, v.FileVersion)
	case nil:
		return "<nil>"
	default:
		return fmt.Sprintf("%s/%s id=%d", m.Type(), m.Subtype(), m.GetID())
	}
}
